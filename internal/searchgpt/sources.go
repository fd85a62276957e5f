package searchgpt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/searchgpt/internal/aggregate"
	"github.com/hyperifyio/searchgpt/internal/extract"
	"github.com/hyperifyio/searchgpt/internal/fetch"
	"github.com/hyperifyio/searchgpt/internal/rank"
	selecter "github.com/hyperifyio/searchgpt/internal/select"
)

// docTypes are the file extensions picked up from the document directory.
var docTypes = []string{"txt", "md", "html"}

// webSentences searches, selects hits, fetches them concurrently and splits
// each page into sentences. Hit i gets URLID i+1. A page that cannot be
// fetched, or yields no sentences, contributes its snippet instead.
func (s *Service) webSentences(ctx context.Context, requestID, query string, cfg Config) ([]rank.Sentence, error) {
	p, err := s.provider(cfg)
	if err != nil {
		return nil, err
	}
	hits, err := p.Search(ctx, query, cfg.Search.MaxResults*2)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", p.Name(), err)
	}
	hits = selecter.Select(aggregate.MergeAndNormalize(hits), selecter.Options{
		MaxTotal:        cfg.Search.MaxResults,
		PerDomain:       cfg.Search.PerDomain,
		MinSnippetChars: cfg.Search.MinSnippetChars,
		BlockedHosts:    cfg.Search.BlockedHosts,
	})
	if len(hits) == 0 {
		return nil, nil
	}
	s.step(requestID, fmt.Sprintf("Reading %d sources", len(hits)))

	f := s.fetcher(cfg)
	perPage := make([][]rank.Sentence, len(hits))
	var wg sync.WaitGroup
	for i, h := range hits {
		h := h
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			base := rank.Sentence{URLID: i + 1, Name: h.Title, URL: h.URL, Snippet: h.Snippet}
			var texts []string
			body, ct, err := f.Get(ctx, h.URL)
			if err != nil {
				log.Debug().Err(err).Str("url", h.URL).Msg("fetch failed; using snippet")
			} else {
				texts = pageSentences(body, ct, cfg.Fetch)
			}
			if len(texts) == 0 && strings.TrimSpace(h.Snippet) != "" {
				texts = []string{strings.TrimSpace(h.Snippet)}
			}
			for _, t := range texts {
				sent := base
				sent.Text = t
				perPage[i] = append(perPage[i], sent)
			}
		}(i)
	}
	wg.Wait()

	var out []rank.Sentence
	for _, ps := range perPage {
		out = append(out, ps...)
	}
	return out, ctx.Err()
}

func pageSentences(body []byte, contentType string, fc FetchConfig) []string {
	text := string(body)
	if fetch.IsHTML(contentType) {
		text = extract.FromHTML(body).Text
	}
	return limit(extract.Sentences(text, fc.MinSentenceChars), fc.MaxSentencesPerPage)
}

// docSentences reads every supported file directly under cfg.Search.DocPath.
// Files are numbered from firstID in name order.
func docSentences(cfg Config, firstID int) ([]rank.Sentence, error) {
	dir := strings.TrimSpace(cfg.Search.DocPath)
	if dir == "" {
		return nil, nil
	}
	var files []string
	for _, ext := range docTypes {
		matches, err := filepath.Glob(filepath.Join(dir, "*."+ext))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	var out []rank.Sentence
	id := firstID
	for _, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skip document")
			continue
		}
		ct := "text/plain"
		if strings.EqualFold(filepath.Ext(path), ".html") {
			ct = "text/html"
		}
		for _, t := range pageSentences(b, ct, cfg.Fetch) {
			out = append(out, rank.Sentence{URLID: id, Name: filepath.Base(path), URL: path, Text: t})
		}
		id++
	}
	return out, nil
}

func limit(in []string, n int) []string {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}
