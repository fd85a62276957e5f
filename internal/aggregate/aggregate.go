// Package aggregate merges hits from several search providers into one list.
package aggregate

import (
	"net/url"
	"strings"

	"github.com/hyperifyio/searchgpt/internal/search"
)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid", "msclkid"}

// MergeAndNormalize concatenates groups in order, canonicalizes URLs, trims
// tracking parameters and drops repeated URLs. The first occurrence wins, so
// earlier groups keep their provider ranking. Hits without an http(s) URL
// are dropped.
func MergeAndNormalize(groups ...[]search.Result) []search.Result {
	seen := map[string]struct{}{}
	out := make([]search.Result, 0, 64)
	for _, g := range groups {
		for _, r := range g {
			u, err := url.Parse(strings.TrimSpace(r.URL))
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				continue
			}
			normalizeURL(u)
			key := u.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			r.URL = key
			r.Title = strings.TrimSpace(r.Title)
			r.Snippet = strings.TrimSpace(r.Snippet)
			out = append(out, r)
		}
	}
	return out
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) || (u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}
	if u.RawQuery == "" {
		return
	}
	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
}
