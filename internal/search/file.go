package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// FileProvider serves search results from a local JSON file for offline
// runs and tests. The file holds either an array of
// {"title","url","snippet"} objects or an object with a "results" array.
type FileProvider struct {
	Path string
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) Search(_ context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, errors.New("file provider path is empty")
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	raw, err := decodeResults(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		if r.URL == "" || r.Title == "" {
			continue
		}
		if q == "" || matchesAnyTerm(q, r) {
			r.Source = f.Name()
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func decodeResults(b []byte) ([]Result, error) {
	var list []Result
	if err := json.Unmarshal(b, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Results []Result `json:"results"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Results, nil
}

// matchesAnyTerm reports whether any query word appears in the title or snippet.
func matchesAnyTerm(q string, r Result) bool {
	hay := strings.ToLower(r.Title + " " + r.Snippet)
	for _, term := range strings.Fields(q) {
		if len(term) < 3 {
			continue
		}
		if strings.Contains(hay, term) {
			return true
		}
	}
	return strings.Contains(hay, q)
}
