package searchgpt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/searchgpt/internal/llm"
	"github.com/hyperifyio/searchgpt/internal/progress"
	"github.com/hyperifyio/searchgpt/internal/search"
)

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Messages[len(req.Messages)-1].Content)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.answer}}}}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type staticProvider struct{ results []search.Result }

func (p staticProvider) Name() string { return "static" }

func (p staticProvider) Search(context.Context, string, int) ([]search.Result, error) {
	return p.results, nil
}

func newTestService(t *testing.T, fl *fakeLLM, hits []search.Result) *Service {
	t.Helper()
	cfg := baseConfig()
	cfg.Fetch.MinSentenceChars = 5
	return &Service{
		Base:        cfg,
		Tracker:     progress.New(),
		NewLLM:      func(Config) llm.Client { return fl },
		NewEmbedder: func(Config) llm.Embedder { return nil },
		NewProvider: func(Config) (search.Provider, error) { return staticProvider{results: hits}, nil },
	}
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sky":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body><main><p>The sky is blue because of Rayleigh scattering.</p><p>Bananas are yellow.</p></main></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestService_AnswersFromFetchedPages(t *testing.T) {
	srv := pageServer(t)
	fl := &fakeLLM{answer: "Rayleigh scattering [1]."}
	hits := []search.Result{
		{Title: "Sky", URL: srv.URL + "/sky", Snippet: "sky snippet"},
		{Title: "Gone", URL: srv.URL + "/missing", Snippet: "The missing page still has a snippet."},
	}
	s := newTestService(t, fl, hits)

	ans, err := s.Search(context.Background(), "req-1", "why is the sky blue", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "Rayleigh scattering [1].", ans.Text)
	assert.Contains(t, ans.HTML, `href="`+srv.URL+`/sky"`)
	assert.Contains(t, ans.ExplainHTML, "The missing page still has a snippet.")
	require.Equal(t, 1, fl.calls())
	assert.Contains(t, fl.prompts[0], "Rayleigh scattering")
	assert.Contains(t, fl.prompts[0], "Query: why is the sky blue")

	var msgs []string
	for _, st := range s.Tracker.Steps("req-1") {
		msgs = append(msgs, st.Message)
	}
	assert.Equal(t, "Request received", msgs[0])
	assert.Contains(t, msgs, "Searching the web")
	assert.Contains(t, msgs, "Reading 2 sources")
	assert.Equal(t, "Done", msgs[len(msgs)-1])
}

func TestService_UseSourceFalseSkipsSearch(t *testing.T) {
	fl := &fakeLLM{answer: "From memory."}
	s := newTestService(t, fl, nil)
	s.NewProvider = func(Config) (search.Provider, error) {
		t.Fatal("search must not run when sources are disabled")
		return nil, nil
	}
	ans, err := s.Search(context.Background(), "req-2", "hello", Overrides{UseSource: "false"})
	require.NoError(t, err)
	assert.Equal(t, "From memory.", ans.Text)
	assert.Contains(t, ans.ExplainHTML, "No sources")
}

func TestService_DocumentIDsFollowWebIDs(t *testing.T) {
	srv := pageServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("Local notes say the sky looks blue at noon.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.pdf"), []byte("ignored"), 0o644))

	fl := &fakeLLM{answer: "Answer [1] [2]."}
	s := newTestService(t, fl, []search.Result{{Title: "Sky", URL: srv.URL + "/sky", Snippet: "s"}})
	s.Base.Search.EnableDocs = true
	s.Base.Search.DocPath = dir

	ans, err := s.Search(context.Background(), "req-3", "sky blue", Overrides{})
	require.NoError(t, err)

	ids := map[string]int{}
	for _, sent := range ans.Sentences {
		ids[sent.Name] = sent.URLID
	}
	assert.Contains(t, ids, "a.md")
	assert.NotContains(t, ids, "skip.pdf")
	assert.NotEqual(t, ids["Sky"], ids["a.md"])
}

func TestService_ValidationErrorIsRecorded(t *testing.T) {
	s := newTestService(t, &fakeLLM{answer: "x"}, nil)
	s.Base.LLM.OpenAI.APIKey = ""

	_, err := s.Search(context.Background(), "req-4", "q", Overrides{})
	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Contains(t, s.Tracker.HTML("req-4"), "Failed")

	_, err = s.Search(context.Background(), "req-5", "   ", Overrides{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestService_LLMFailureIsNotAConfigError(t *testing.T) {
	s := newTestService(t, &fakeLLM{err: errors.New("upstream down")}, nil)
	_, err := s.Search(context.Background(), "req-6", "q", Overrides{UseSource: "0"})
	require.Error(t, err)
	assert.False(t, IsConfigError(err))
	assert.True(t, strings.Contains(err.Error(), "upstream down"))
}

func TestService_CachesAnswersAcrossCredentials(t *testing.T) {
	fl := &fakeLLM{answer: "Cached answer."}
	s := newTestService(t, fl, nil)
	s.Base.Cache.Enabled = true
	s.Base.Cache.Dir = t.TempDir()

	first, err := s.Search(context.Background(), "a", "café", Overrides{UseSource: "false"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := s.Search(context.Background(), "b", "café", Overrides{UseSource: "false", LLMAPIKey: "sk-someone-else"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.HTML, second.HTML)
	assert.Equal(t, 1, fl.calls())
}

func TestService_GooseAIKeyDoesNotEnableEmbeddings(t *testing.T) {
	s := &Service{}
	o := Overrides{Provider: llm.ProviderGooseAI, LLMAPIKey: "goose-key"}

	base := DefaultConfig()
	base.Search.BingKey = "bing-key"
	cfg, err := Resolve(base, o)
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.OpenAI.APIKey)
	assert.Nil(t, s.embedder(cfg), "without an OpenAI key ranking stays lexical")

	cfg, err = Resolve(baseConfig(), o)
	require.NoError(t, err)
	assert.Equal(t, "sk-base", cfg.LLM.OpenAI.APIKey)
	assert.NotNil(t, s.embedder(cfg), "a configured OpenAI key keeps embeddings on")
}
