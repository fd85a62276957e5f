// Package rank orders extracted source sentences by relevance to a query
// and trims them to what fits into a prompt.
package rank

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/searchgpt/internal/llm"
)

// Sentence is one piece of source text considered for the prompt.
type Sentence struct {
	URLID   int
	Name    string
	URL     string
	Snippet string
	Text    string
	Score   float64
	Rank    int
}

// Ranker scores sentences against a query. With a nil Embedder, or when
// embedding fails, it falls back to lexical overlap.
type Ranker struct {
	Embedder  llm.Embedder
	Model     string
	BatchSize int
}

// Rank returns a copy of sentences sorted by descending score with Rank
// assigned from 1. Ties keep input order.
func (r *Ranker) Rank(ctx context.Context, query string, sentences []Sentence) []Sentence {
	out := append([]Sentence(nil), sentences...)
	if len(out) == 0 {
		return out
	}
	scored := false
	if r != nil && r.Embedder != nil {
		if err := r.scoreByEmbeddings(ctx, query, out); err != nil {
			log.Warn().Err(err).Msg("embedding rank failed; using lexical overlap")
		} else {
			scored = true
		}
	}
	if !scored {
		scoreLexical(query, out)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (r *Ranker) scoreByEmbeddings(ctx context.Context, query string, out []Sentence) error {
	model := r.Model
	if model == "" {
		model = string(openai.AdaEmbeddingV2)
	}
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}
	qv, err := r.embed(ctx, model, []string{query})
	if err != nil {
		return err
	}
	for start := 0; start < len(out); start += batch {
		end := start + batch
		if end > len(out) {
			end = len(out)
		}
		inputs := make([]string, 0, end-start)
		for _, s := range out[start:end] {
			inputs = append(inputs, s.Text)
		}
		vecs, err := r.embed(ctx, model, inputs)
		if err != nil {
			return err
		}
		for i, v := range vecs {
			out[start+i].Score = cosine(qv[0], v)
		}
	}
	return nil
}

func (r *Ranker) embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	resp, err := r.Embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(inputs))
	}
	vecs := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// scoreLexical scores each sentence by the share of distinct query terms it
// contains.
func scoreLexical(query string, out []Sentence) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return
	}
	for i := range out {
		words := tokenize(out[i].Text)
		hits := 0
		for t := range terms {
			if _, ok := words[t]; ok {
				hits++
			}
		}
		out[i].Score = float64(hits) / float64(len(terms))
	}
}

func tokenize(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) < 3 {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

var citationMarker = regexp.MustCompile(`\[[0-9]+\]`)

// PostProcess prepares ranked sentences for the prompt. It strips existing
// "[n]" markers, keeps sentences in rank order while their cumulative length
// stays within limit plus the one that crosses it, and renumbers URLIDs
// 1..n in order of first appearance. limit <= 0 keeps everything.
func PostProcess(ranked []Sentence, limit int) []Sentence {
	out := make([]Sentence, 0, len(ranked))
	total := 0
	for _, s := range ranked {
		s.Text = strings.TrimSpace(citationMarker.ReplaceAllString(s.Text, ""))
		if s.Text == "" {
			continue
		}
		crossed := limit > 0 && total > limit
		if crossed {
			break
		}
		total += len(s.Text)
		out = append(out, s)
	}
	ids := map[int]int{}
	for i := range out {
		id, ok := ids[out[i].URLID]
		if !ok {
			id = len(ids) + 1
			ids[out[i].URLID] = id
		}
		out[i].URLID = id
	}
	return out
}
