// Package searchgpt answers a query with an LLM grounded on web pages and
// local documents, recording progress under the caller's request id.
package searchgpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/searchgpt/internal/budget"
	"github.com/hyperifyio/searchgpt/internal/cache"
	"github.com/hyperifyio/searchgpt/internal/fetch"
	"github.com/hyperifyio/searchgpt/internal/frontend"
	"github.com/hyperifyio/searchgpt/internal/llm"
	"github.com/hyperifyio/searchgpt/internal/progress"
	"github.com/hyperifyio/searchgpt/internal/rank"
	"github.com/hyperifyio/searchgpt/internal/search"
	"github.com/hyperifyio/searchgpt/internal/synth"
	"github.com/hyperifyio/searchgpt/internal/validate"
)

// Answer is the outcome of one search.
type Answer struct {
	Query       string          `json:"query"`
	Text        string          `json:"text"`
	Sentences   []rank.Sentence `json:"sentences"`
	HTML        string          `json:"html"`
	ExplainHTML string          `json:"explain_html"`
	Cached      bool            `json:"-"`
}

// Service runs searches against a base configuration. Function fields
// replace the default backends; nil means build them from the resolved
// Config.
type Service struct {
	Base    Config
	Tracker *progress.Tracker
	// HTTPClient is used for search providers and LLM calls.
	HTTPClient *http.Client
	// Fetcher downloads source pages. Nil builds one per request from Config.Fetch.
	Fetcher *fetch.Client

	NewLLM      func(cfg Config) llm.Client
	NewEmbedder func(cfg Config) llm.Embedder
	NewProvider func(cfg Config) (search.Provider, error)
}

// Search resolves o against the base configuration and answers query.
// Every outcome, including validation errors, is recorded in the tracker
// under requestID.
func (s *Service) Search(ctx context.Context, requestID, query string, o Overrides) (ans Answer, err error) {
	s.tracker().Begin(requestID, query)
	defer func() { s.tracker().Finish(requestID, err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, ErrEmptyQuery
	}
	cfg, err := Resolve(s.Base, o)
	if err != nil {
		return Answer{}, err
	}

	rc := s.resultCache(cfg)
	key := cache.KeyFrom(cfg.Fingerprint(), query)
	if rc != nil {
		if b, ok, err := rc.Get(ctx, key); err == nil && ok {
			var cached Answer
			if err := json.Unmarshal(b, &cached); err == nil {
				s.step(requestID, "Loaded answer from cache")
				cached.Cached = true
				return cached, nil
			}
		}
	}

	ans, err = s.answer(ctx, requestID, query, cfg)
	if err != nil {
		return Answer{}, err
	}
	if rc != nil {
		if b, err := json.Marshal(ans); err == nil {
			if err := rc.Save(ctx, key, b); err != nil {
				log.Warn().Err(err).Msg("result cache save failed")
			}
		}
	}
	return ans, nil
}

func (s *Service) answer(ctx context.Context, requestID, query string, cfg Config) (Answer, error) {
	var sentences []rank.Sentence
	nextID := 1
	if cfg.Search.UseSource && cfg.Search.EnableWeb {
		s.step(requestID, "Searching the web")
		web, err := s.webSentences(ctx, requestID, query, cfg)
		if err != nil {
			return Answer{}, err
		}
		sentences = append(sentences, web...)
		nextID = maxURLID(web) + 1
	}
	if cfg.Search.UseSource && cfg.Search.EnableDocs {
		s.step(requestID, "Searching documents")
		docs, err := docSentences(cfg, nextID)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Search.DocPath).Msg("document search failed")
		}
		sentences = append(sentences, docs...)
	}

	if len(sentences) > 0 {
		s.step(requestID, fmt.Sprintf("Ranking %d sentences", len(sentences)))
		r := &rank.Ranker{Embedder: s.embedder(cfg), Model: cfg.LLM.EmbeddingModel}
		scaffold := cfg.LLM.SystemPrompt + synth.BuildPrompt(synth.Input{Query: query})
		limit := budget.SourceChars(cfg.Model().Model, cfg.LLM.MaxTokens, scaffold, cfg.LLM.PromptLengthLimit)
		sentences = rank.PostProcess(r.Rank(ctx, query, sentences), limit)
	}

	model := cfg.Model()
	s.step(requestID, fmt.Sprintf("Asking %s", model.Model))
	sy := &synth.Synthesizer{Client: s.llmClient(cfg), SystemPrompt: cfg.LLM.SystemPrompt}
	text, err := sy.Synthesize(ctx, synth.Input{
		Query:       query,
		Sources:     sentences,
		Model:       model.Model,
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	if c := validate.ValidateCitations(text, maxURLID(sentences)); !c.OK() {
		log.Warn().Str("request_id", requestID).Ints("unknown_citations", c.OutOfRange).Msg("answer cites sources it was not given")
	}

	s.step(requestID, "Rendering answer")
	htmlOut, explain, err := frontend.Render(query, text, sentences)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Query: query, Text: text, Sentences: sentences, HTML: htmlOut, ExplainHTML: explain}, nil
}

func (s *Service) step(requestID, msg string) {
	log.Debug().Str("request_id", requestID).Msg(msg)
	s.tracker().Step(requestID, msg)
}

var discardTracker = progress.New()

func (s *Service) tracker() *progress.Tracker {
	if s.Tracker == nil {
		return discardTracker
	}
	return s.Tracker
}

func (s *Service) resultCache(cfg Config) *cache.ResultCache {
	if !cfg.Cache.Enabled || strings.TrimSpace(cfg.Cache.Dir) == "" {
		return nil
	}
	return &cache.ResultCache{Dir: cfg.Cache.Dir, StrictPerms: cfg.Cache.StrictPerms, MaxEntries: cfg.Cache.MaxEntries}
}

func (s *Service) llmClient(cfg Config) llm.Client {
	if s.NewLLM != nil {
		return s.NewLLM(cfg)
	}
	m := cfg.Model()
	if cfg.LLM.Provider == llm.ProviderGooseAI {
		return llm.NewGooseAI(m.BaseURL, m.APIKey, m.Model, s.HTTPClient)
	}
	return llm.New(m.BaseURL, m.APIKey, s.HTTPClient)
}

// embedder returns nil when no OpenAI key is available, which makes the
// ranker fall back to lexical overlap.
func (s *Service) embedder(cfg Config) llm.Embedder {
	if s.NewEmbedder != nil {
		return s.NewEmbedder(cfg)
	}
	if strings.TrimSpace(cfg.LLM.OpenAI.APIKey) == "" {
		return nil
	}
	return llm.New(cfg.LLM.OpenAI.BaseURL, cfg.LLM.OpenAI.APIKey, s.HTTPClient)
}

func (s *Service) provider(cfg Config) (search.Provider, error) {
	if s.NewProvider != nil {
		return s.NewProvider(cfg)
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	switch cfg.Search.Engine {
	case EngineBing:
		return &search.Bing{Endpoint: cfg.Search.BingEndpoint, SubscriptionKey: cfg.Search.BingKey, Market: cfg.Search.Market, HTTPClient: hc, UserAgent: cfg.Fetch.UserAgent}, nil
	case EngineSearxNG:
		return &search.SearxNG{BaseURL: cfg.Search.SearxURL, APIKey: cfg.Search.SearxKey, HTTPClient: hc, UserAgent: cfg.Fetch.UserAgent}, nil
	case EngineFile:
		return &search.FileProvider{Path: cfg.Search.FilePath}, nil
	}
	return nil, errors.New("no search engine configured")
}

func (s *Service) fetcher(cfg Config) *fetch.Client {
	if s.Fetcher != nil {
		return s.Fetcher
	}
	return &fetch.Client{
		UserAgent:         cfg.Fetch.UserAgent,
		MaxAttempts:       cfg.Fetch.MaxAttempts,
		PerRequestTimeout: cfg.Fetch.Timeout,
		MaxConcurrent:     cfg.Fetch.MaxConcurrent,
	}
}

func maxURLID(sentences []rank.Sentence) int {
	top := 0
	for _, s := range sentences {
		if s.URLID > top {
			top = s.URLID
		}
	}
	return top
}
