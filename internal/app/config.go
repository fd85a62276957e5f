package app

import (
	"path/filepath"
	"time"

	"github.com/hyperifyio/searchgpt/internal/searchgpt"
)

// Config holds runtime configuration for the server.
type Config struct {
	// Server
	Addr string

	// Search
	SearchEngine     string
	DisableSources   bool
	DisableWebSearch bool
	EnableDocSearch  bool
	DocPath          string
	BingEndpoint     string
	BingKey          string
	BingMarket       string
	SearxURL         string
	SearxKey         string
	FileSearchPath   string

	// Selection
	MaxSources      int
	PerDomainCap    int
	MinSnippetChars int
	BlockedHosts    []string

	// LLM
	LLMProvider       string
	OpenAIBaseURL     string
	OpenAIKey         string
	OpenAIModel       string
	GooseAIBaseURL    string
	GooseAIKey        string
	GooseAIModel      string
	EmbeddingModel    string
	Temperature       float64
	MaxTokens         int
	PromptLengthLimit int
	SynthSystemPrompt string

	// Fetch
	FetchConcurrency int
	FetchTimeout     time.Duration
	UserAgent        string
	SSLVerify        bool
	IgnoreRobots     bool

	// Cache
	CacheDir          string
	CacheMaxAge       time.Duration
	CacheClear        bool
	CacheStrictPerms  bool
	ResultCache       bool
	ResultCacheMax    int
	HTTPCacheMaxBytes int64

	// Behavior
	ProgressTTL time.Duration
	Verbose     bool
}

// Defaults shared by flag registration and ApplyFileConfig, which treats a
// field still at its default as unset.
const (
	DefaultAddr              = ":8080"
	DefaultSearchEngine      = searchgpt.EngineBing
	DefaultDocPath           = "docs"
	DefaultBingMarket        = "en-US"
	DefaultMaxSources        = 5
	DefaultPerDomainCap      = 2
	DefaultLLMProvider       = "openai"
	DefaultOpenAIModel       = "gpt-3.5-turbo"
	DefaultGooseAIModel      = "gpt-neo-20b"
	DefaultEmbeddingModel    = "text-embedding-ada-002"
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 512
	DefaultPromptLengthLimit = 3000
	DefaultFetchConcurrency  = 4
	DefaultFetchTimeout      = 10 * time.Second
	DefaultUserAgent         = "searchgpt/1.0 (+https://github.com/hyperifyio/searchgpt)"
	DefaultCacheDir          = ".searchgpt-cache"
	DefaultResultCacheMax    = 100
	DefaultProgressTTL       = 10 * time.Minute
)

// ServiceConfig maps the flat runtime configuration onto the search
// service's configuration. Zero values fall back to searchgpt.DefaultConfig.
func (c Config) ServiceConfig() searchgpt.Config {
	out := searchgpt.DefaultConfig()

	out.Search.UseSource = !c.DisableSources
	out.Search.EnableWeb = !c.DisableWebSearch
	out.Search.EnableDocs = c.EnableDocSearch
	setString(&out.Search.Engine, c.SearchEngine)
	setString(&out.Search.DocPath, c.DocPath)
	setString(&out.Search.BingEndpoint, c.BingEndpoint)
	out.Search.BingKey = c.BingKey
	setString(&out.Search.Market, c.BingMarket)
	out.Search.SearxURL = c.SearxURL
	out.Search.SearxKey = c.SearxKey
	out.Search.FilePath = c.FileSearchPath
	setInt(&out.Search.MaxResults, c.MaxSources)
	setInt(&out.Search.PerDomain, c.PerDomainCap)
	out.Search.MinSnippetChars = c.MinSnippetChars
	out.Search.BlockedHosts = append([]string(nil), c.BlockedHosts...)

	setString(&out.LLM.Provider, c.LLMProvider)
	setString(&out.LLM.OpenAI.BaseURL, c.OpenAIBaseURL)
	out.LLM.OpenAI.APIKey = c.OpenAIKey
	setString(&out.LLM.OpenAI.Model, c.OpenAIModel)
	setString(&out.LLM.GooseAI.BaseURL, c.GooseAIBaseURL)
	out.LLM.GooseAI.APIKey = c.GooseAIKey
	setString(&out.LLM.GooseAI.Model, c.GooseAIModel)
	setString(&out.LLM.EmbeddingModel, c.EmbeddingModel)
	if c.Temperature > 0 {
		out.LLM.Temperature = float32(c.Temperature)
	}
	setInt(&out.LLM.MaxTokens, c.MaxTokens)
	setInt(&out.LLM.PromptLengthLimit, c.PromptLengthLimit)
	out.LLM.SystemPrompt = c.SynthSystemPrompt

	setInt(&out.Fetch.MaxConcurrent, c.FetchConcurrency)
	if c.FetchTimeout > 0 {
		out.Fetch.Timeout = c.FetchTimeout
	}
	setString(&out.Fetch.UserAgent, c.UserAgent)

	out.Cache.Enabled = c.ResultCache && c.CacheDir != ""
	if c.CacheDir != "" {
		out.Cache.Dir = c.ResultCacheDir()
	}
	setInt(&out.Cache.MaxEntries, c.ResultCacheMax)
	out.Cache.StrictPerms = c.CacheStrictPerms
	return out
}

// ResultCacheDir is where answers are cached.
func (c Config) ResultCacheDir() string { return filepath.Join(c.CacheDir, "results") }

// HTTPCacheDir is where fetched pages are cached.
func (c Config) HTTPCacheDir() string { return filepath.Join(c.CacheDir, "http") }

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
