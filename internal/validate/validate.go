// Package validate checks a generated answer against the sources it was
// given.
package validate

import (
	"regexp"
	"sort"
	"strconv"
)

// Citations is the outcome of matching inline [n] markers against N sources.
type Citations struct {
	// InRange lists distinct cited numbers within 1..N.
	InRange []int
	// OutOfRange lists distinct cited numbers below 1 or above N.
	OutOfRange []int
	// MissingSources is set when markers exist but N is zero.
	MissingSources bool
}

// OK reports whether every citation points at a source.
func (c Citations) OK() bool {
	return len(c.OutOfRange) == 0 && !c.MissingSources
}

var citeRe = regexp.MustCompile(`\[(\d+)\]`)

// ValidateCitations scans answer for [n] markers and compares them against
// numSources.
func ValidateCitations(answer string, numSources int) Citations {
	matches := citeRe.FindAllStringSubmatch(answer, -1)
	seen := map[int]struct{}{}
	var out Citations
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		if n >= 1 && n <= numSources {
			out.InRange = append(out.InRange, n)
		} else {
			out.OutOfRange = append(out.OutOfRange, n)
		}
	}
	sort.Ints(out.InRange)
	sort.Ints(out.OutOfRange)
	out.MissingSources = numSources == 0 && len(matches) > 0
	return out
}
