// Package selecter picks which search hits are worth fetching.
package selecter

import (
	"net/url"
	"strings"

	"github.com/hyperifyio/searchgpt/internal/search"
)

// Options configures selection constraints.
type Options struct {
	// MaxTotal caps the number of selected hits. Zero means 10.
	MaxTotal int
	// PerDomain caps hits from one host. Zero means 3.
	PerDomain int
	// MinSnippetChars drops results whose snippet has fewer than this many
	// non-whitespace characters. Zero disables low-signal filtering.
	MinSnippetChars int
	// BlockedHosts are skipped, including their subdomains.
	BlockedHosts []string
}

// Select walks results in provider order and keeps the ones that pass the
// per-domain cap and the filters. Provider order is the relevance signal,
// so nothing is reordered.
func Select(results []search.Result, opt Options) []search.Result {
	if opt.MaxTotal <= 0 {
		opt.MaxTotal = 10
	}
	if opt.PerDomain <= 0 {
		opt.PerDomain = 3
	}
	domainCounts := map[string]int{}
	out := make([]search.Result, 0, opt.MaxTotal)
	for _, r := range results {
		if opt.MinSnippetChars > 0 && nonSpaceLen(r.Snippet) < opt.MinSnippetChars {
			continue
		}
		u, err := url.Parse(strings.TrimSpace(r.URL))
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if isBlocked(host, opt.BlockedHosts) {
			continue
		}
		if domainCounts[host] >= opt.PerDomain {
			continue
		}
		domainCounts[host]++
		out = append(out, r)
		if len(out) >= opt.MaxTotal {
			break
		}
	}
	return out
}

func nonSpaceLen(s string) int {
	return len(strings.Join(strings.Fields(s), ""))
}

func isBlocked(host string, blocked []string) bool {
	for _, b := range blocked {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}
