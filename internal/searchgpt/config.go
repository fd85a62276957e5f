package searchgpt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/searchgpt/internal/llm"
)

// Search engines accepted in SearchConfig.Engine.
const (
	EngineBing    = "bing"
	EngineSearxNG = "searxng"
	EngineFile    = "file"
)

var (
	// ErrMissingSubscriptionKey is returned when Bing web search is enabled
	// without a subscription key.
	ErrMissingSubscriptionKey = errors.New("bing_search_subscription_key is required")
	// ErrMissingAPIKey is returned when the openai provider has no API key.
	ErrMissingAPIKey = errors.New("openai_api_key is required")
	// ErrUnsupportedModelProvider is returned for providers other than
	// openai and goose_ai.
	ErrUnsupportedModelProvider = errors.New("unsupported llm_service_provider")
	// ErrEmptyQuery is returned for blank search text.
	ErrEmptyQuery = errors.New("empty query")
)

// IsConfigError reports whether err comes from request validation rather
// than from running the search.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingSubscriptionKey) ||
		errors.Is(err, ErrMissingAPIKey) ||
		errors.Is(err, ErrUnsupportedModelProvider) ||
		errors.Is(err, ErrEmptyQuery)
}

// Config is the service configuration. A copy is resolved per request by
// overlaying Overrides.
type Config struct {
	Search SearchConfig `json:"search"`
	LLM    LLMConfig    `json:"llm"`
	Fetch  FetchConfig  `json:"fetch"`
	Cache  CacheConfig  `json:"cache"`
}

// SearchConfig selects where source text comes from.
type SearchConfig struct {
	UseSource       bool     `json:"use_source"`
	EnableWeb       bool     `json:"enable_web"`
	EnableDocs      bool     `json:"enable_docs"`
	Engine          string   `json:"engine"`
	DocPath         string   `json:"doc_path"`
	BingEndpoint    string   `json:"bing_endpoint"`
	BingKey         string   `json:"bing_key"`
	Market          string   `json:"market"`
	SearxURL        string   `json:"searx_url"`
	SearxKey        string   `json:"searx_key"`
	FilePath        string   `json:"file_path"`
	MaxResults      int      `json:"max_results"`
	PerDomain       int      `json:"per_domain"`
	MinSnippetChars int      `json:"min_snippet_chars"`
	BlockedHosts    []string `json:"blocked_hosts"`
}

// ModelConfig holds the connection details of one LLM provider.
type ModelConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

// LLMConfig configures answer generation and ranking.
type LLMConfig struct {
	Provider          string      `json:"provider"`
	OpenAI            ModelConfig `json:"openai"`
	GooseAI           ModelConfig `json:"goose_ai"`
	EmbeddingModel    string      `json:"embedding_model"`
	Temperature       float32     `json:"temperature"`
	MaxTokens         int         `json:"max_tokens"`
	PromptLengthLimit int         `json:"prompt_length_limit"`
	SystemPrompt      string      `json:"system_prompt"`
}

// FetchConfig bounds page downloads.
type FetchConfig struct {
	MaxConcurrent       int           `json:"max_concurrent"`
	Timeout             time.Duration `json:"timeout"`
	MaxAttempts         int           `json:"max_attempts"`
	UserAgent           string        `json:"user_agent"`
	MinSentenceChars    int           `json:"min_sentence_chars"`
	MaxSentencesPerPage int           `json:"max_sentences_per_page"`
}

// CacheConfig controls the answer cache.
type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	Dir         string `json:"dir"`
	MaxEntries  int    `json:"max_entries"`
	StrictPerms bool   `json:"strict_perms"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		Search: SearchConfig{
			UseSource:  true,
			EnableWeb:  true,
			Engine:     EngineBing,
			DocPath:    "docs",
			Market:     "en-US",
			MaxResults: 5,
			PerDomain:  2,
		},
		LLM: LLMConfig{
			Provider:          llm.ProviderOpenAI,
			OpenAI:            ModelConfig{Model: "gpt-3.5-turbo"},
			GooseAI:           ModelConfig{BaseURL: llm.DefaultGooseAIBaseURL, Model: "gpt-neo-20b"},
			EmbeddingModel:    "text-embedding-ada-002",
			Temperature:       0.7,
			MaxTokens:         512,
			PromptLengthLimit: 3000,
		},
		Fetch: FetchConfig{
			MaxConcurrent:       4,
			Timeout:             10 * time.Second,
			MaxAttempts:         2,
			UserAgent:           "searchgpt/1.0 (+https://github.com/hyperifyio/searchgpt)",
			MinSentenceChars:    20,
			MaxSentencesPerPage: 40,
		},
		Cache: CacheConfig{Dir: ".searchgpt-cache", MaxEntries: 100},
	}
}

// Overrides is the per-request overlay sent with a search. Empty fields
// leave the base configuration untouched.
type Overrides struct {
	SubscriptionKey string
	LLMAPIKey       string
	UseSource       string
	Provider        string
	Model           string
}

// Resolve returns base with o applied, then validated. The provider is
// applied before the model and API key so that both land on the provider
// that will serve the request.
func Resolve(base Config, o Overrides) (Config, error) {
	cfg := base
	cfg.Search.BlockedHosts = append([]string(nil), base.Search.BlockedHosts...)
	if v := strings.TrimSpace(o.SubscriptionKey); v != "" {
		cfg.Search.BingKey = v
	}
	if v := strings.TrimSpace(o.UseSource); v != "" {
		cfg.Search.UseSource = ParseUseSource(v)
	}
	if v := strings.TrimSpace(o.Provider); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(o.Model); v != "" {
		m := cfg.LLM.selected()
		if m == nil {
			return cfg, fmt.Errorf("llm_model for provider %q: %w", cfg.LLM.Provider, ErrUnsupportedModelProvider)
		}
		m.Model = v
	}
	if v := strings.TrimSpace(o.LLMAPIKey); v != "" {
		if m := cfg.LLM.selected(); m != nil {
			m.APIKey = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseUseSource reads the is_use_source form value: "false" and "0" (any
// case) mean false, anything else true.
func ParseUseSource(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0":
		return false
	}
	return true
}

// Validate checks that the selected services have credentials.
func (c Config) Validate() error {
	if c.Search.EnableWeb && c.Search.Engine == EngineBing && strings.TrimSpace(c.Search.BingKey) == "" {
		return ErrMissingSubscriptionKey
	}
	switch c.LLM.Provider {
	case llm.ProviderOpenAI:
		if strings.TrimSpace(c.LLM.OpenAI.APIKey) == "" {
			return ErrMissingAPIKey
		}
	case llm.ProviderGooseAI:
	default:
		return fmt.Errorf("%q: %w", c.LLM.Provider, ErrUnsupportedModelProvider)
	}
	switch c.Search.Engine {
	case EngineBing, EngineSearxNG, EngineFile:
	default:
		return fmt.Errorf("unknown search engine %q", c.Search.Engine)
	}
	return nil
}

// Model returns the connection details of the selected provider.
func (c Config) Model() ModelConfig {
	if m := c.LLM.selected(); m != nil {
		return *m
	}
	return ModelConfig{}
}

func (l *LLMConfig) selected() *ModelConfig {
	switch l.Provider {
	case llm.ProviderOpenAI:
		return &l.OpenAI
	case llm.ProviderGooseAI:
		return &l.GooseAI
	}
	return nil
}

// Fingerprint hashes the configuration with every credential removed, so
// answers can be shared between users with different keys.
func (c Config) Fingerprint() string {
	c.Search.BingKey = ""
	c.Search.SearxKey = ""
	c.LLM.OpenAI.APIKey = ""
	c.LLM.GooseAI.APIKey = ""
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
