package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/searchgpt/internal/llm"
	"github.com/hyperifyio/searchgpt/internal/searchgpt"
)

// FileConfig represents the single-file configuration schema.
// Sections mirror the flag prefixes.
type FileConfig struct {
	Server struct {
		Addr string `yaml:"addr" json:"addr"`
	} `yaml:"server" json:"server"`

	Search struct {
		Engine          string   `yaml:"engine" json:"engine"`
		DisableSources  bool     `yaml:"disableSources" json:"disableSources"`
		DisableWeb      bool     `yaml:"disableWeb" json:"disableWeb"`
		EnableDocs      bool     `yaml:"enableDocs" json:"enableDocs"`
		DocPath         string   `yaml:"docPath" json:"docPath"`
		File            string   `yaml:"file" json:"file"`
		MaxSources      int      `yaml:"maxSources" json:"maxSources"`
		PerDomain       int      `yaml:"perDomain" json:"perDomain"`
		MinSnippetChars int      `yaml:"minSnippetChars" json:"minSnippetChars"`
		BlockedHosts    []string `yaml:"blockedHosts" json:"blockedHosts"`
	} `yaml:"search" json:"search"`

	Bing struct {
		Endpoint string `yaml:"endpoint" json:"endpoint"`
		Key      string `yaml:"key" json:"key"`
		Market   string `yaml:"market" json:"market"`
	} `yaml:"bing" json:"bing"`

	Searx struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
	} `yaml:"searx" json:"searx"`

	LLM struct {
		Provider          string  `yaml:"provider" json:"provider"`
		EmbeddingModel    string  `yaml:"embeddingModel" json:"embeddingModel"`
		Temperature       float64 `yaml:"temperature" json:"temperature"`
		MaxTokens         int     `yaml:"maxTokens" json:"maxTokens"`
		PromptLengthLimit int     `yaml:"promptLengthLimit" json:"promptLengthLimit"`
		SystemPrompt      string  `yaml:"systemPrompt" json:"systemPrompt"`
		SystemPromptFile  string  `yaml:"systemPromptFile" json:"systemPromptFile"`
	} `yaml:"llm" json:"llm"`

	OpenAI  providerSection `yaml:"openai" json:"openai"`
	GooseAI providerSection `yaml:"gooseai" json:"gooseai"`

	Fetch struct {
		Concurrency  int           `yaml:"concurrency" json:"concurrency"`
		Timeout      time.Duration `yaml:"timeout" json:"timeout"`
		UserAgent    string        `yaml:"userAgent" json:"userAgent"`
		SSLVerify    *bool         `yaml:"sslVerify" json:"sslVerify"`
		IgnoreRobots bool          `yaml:"ignoreRobots" json:"ignoreRobots"`
	} `yaml:"fetch" json:"fetch"`

	Cache struct {
		Dir          string        `yaml:"dir" json:"dir"`
		MaxAge       time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear        bool          `yaml:"clear" json:"clear"`
		StrictPerms  bool          `yaml:"strictPerms" json:"strictPerms"`
		Results      bool          `yaml:"results" json:"results"`
		MaxResults   int           `yaml:"maxResults" json:"maxResults"`
		HTTPMaxBytes int64         `yaml:"httpMaxBytes" json:"httpMaxBytes"`
	} `yaml:"cache" json:"cache"`

	Progress struct {
		TTL time.Duration `yaml:"ttl" json:"ttl"`
	} `yaml:"progress" json:"progress"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

type providerSection struct {
	BaseURL string `yaml:"base" json:"base"`
	APIKey  string `yaml:"key" json:"key"`
	Model   string `yaml:"model" json:"model"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	if fc.LLM.SystemPrompt == "" && strings.TrimSpace(fc.LLM.SystemPromptFile) != "" {
		p, err := os.ReadFile(fc.LLM.SystemPromptFile)
		if err != nil {
			return fc, fmt.Errorf("read system prompt: %w", err)
		}
		fc.LLM.SystemPrompt = string(p)
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset or still at their flag default. Flags should already
// have been parsed; explicit flags keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}

	if (cfg.Addr == "" || cfg.Addr == DefaultAddr) && fc.Server.Addr != "" {
		cfg.Addr = fc.Server.Addr
	}

	if (cfg.SearchEngine == "" || cfg.SearchEngine == DefaultSearchEngine) && fc.Search.Engine != "" {
		cfg.SearchEngine = fc.Search.Engine
	}
	if !cfg.DisableSources && fc.Search.DisableSources {
		cfg.DisableSources = true
	}
	if !cfg.DisableWebSearch && fc.Search.DisableWeb {
		cfg.DisableWebSearch = true
	}
	if !cfg.EnableDocSearch && fc.Search.EnableDocs {
		cfg.EnableDocSearch = true
	}
	if (cfg.DocPath == "" || cfg.DocPath == DefaultDocPath) && fc.Search.DocPath != "" {
		cfg.DocPath = fc.Search.DocPath
	}
	if cfg.FileSearchPath == "" && fc.Search.File != "" {
		cfg.FileSearchPath = fc.Search.File
	}
	if (cfg.MaxSources == 0 || cfg.MaxSources == DefaultMaxSources) && fc.Search.MaxSources > 0 {
		cfg.MaxSources = fc.Search.MaxSources
	}
	if (cfg.PerDomainCap == 0 || cfg.PerDomainCap == DefaultPerDomainCap) && fc.Search.PerDomain > 0 {
		cfg.PerDomainCap = fc.Search.PerDomain
	}
	if cfg.MinSnippetChars == 0 && fc.Search.MinSnippetChars > 0 {
		cfg.MinSnippetChars = fc.Search.MinSnippetChars
	}
	if len(cfg.BlockedHosts) == 0 && len(fc.Search.BlockedHosts) > 0 {
		cfg.BlockedHosts = append([]string{}, fc.Search.BlockedHosts...)
	}

	if cfg.BingEndpoint == "" && fc.Bing.Endpoint != "" {
		cfg.BingEndpoint = fc.Bing.Endpoint
	}
	if cfg.BingKey == "" && fc.Bing.Key != "" {
		cfg.BingKey = fc.Bing.Key
	}
	if (cfg.BingMarket == "" || cfg.BingMarket == DefaultBingMarket) && fc.Bing.Market != "" {
		cfg.BingMarket = fc.Bing.Market
	}
	if cfg.SearxURL == "" && fc.Searx.URL != "" {
		cfg.SearxURL = fc.Searx.URL
	}
	if cfg.SearxKey == "" && fc.Searx.Key != "" {
		cfg.SearxKey = fc.Searx.Key
	}

	if (cfg.LLMProvider == "" || cfg.LLMProvider == DefaultLLMProvider) && fc.LLM.Provider != "" {
		cfg.LLMProvider = fc.LLM.Provider
	}
	if (cfg.EmbeddingModel == "" || cfg.EmbeddingModel == DefaultEmbeddingModel) && fc.LLM.EmbeddingModel != "" {
		cfg.EmbeddingModel = fc.LLM.EmbeddingModel
	}
	if (cfg.Temperature == 0 || cfg.Temperature == DefaultTemperature) && fc.LLM.Temperature > 0 {
		cfg.Temperature = fc.LLM.Temperature
	}
	if (cfg.MaxTokens == 0 || cfg.MaxTokens == DefaultMaxTokens) && fc.LLM.MaxTokens > 0 {
		cfg.MaxTokens = fc.LLM.MaxTokens
	}
	if (cfg.PromptLengthLimit == 0 || cfg.PromptLengthLimit == DefaultPromptLengthLimit) && fc.LLM.PromptLengthLimit > 0 {
		cfg.PromptLengthLimit = fc.LLM.PromptLengthLimit
	}
	if cfg.SynthSystemPrompt == "" && fc.LLM.SystemPrompt != "" {
		cfg.SynthSystemPrompt = fc.LLM.SystemPrompt
	}

	if cfg.OpenAIBaseURL == "" && fc.OpenAI.BaseURL != "" {
		cfg.OpenAIBaseURL = fc.OpenAI.BaseURL
	}
	if cfg.OpenAIKey == "" && fc.OpenAI.APIKey != "" {
		cfg.OpenAIKey = fc.OpenAI.APIKey
	}
	if (cfg.OpenAIModel == "" || cfg.OpenAIModel == DefaultOpenAIModel) && fc.OpenAI.Model != "" {
		cfg.OpenAIModel = fc.OpenAI.Model
	}
	if (cfg.GooseAIBaseURL == "" || cfg.GooseAIBaseURL == llm.DefaultGooseAIBaseURL) && fc.GooseAI.BaseURL != "" {
		cfg.GooseAIBaseURL = fc.GooseAI.BaseURL
	}
	if cfg.GooseAIKey == "" && fc.GooseAI.APIKey != "" {
		cfg.GooseAIKey = fc.GooseAI.APIKey
	}
	if (cfg.GooseAIModel == "" || cfg.GooseAIModel == DefaultGooseAIModel) && fc.GooseAI.Model != "" {
		cfg.GooseAIModel = fc.GooseAI.Model
	}

	if (cfg.FetchConcurrency == 0 || cfg.FetchConcurrency == DefaultFetchConcurrency) && fc.Fetch.Concurrency > 0 {
		cfg.FetchConcurrency = fc.Fetch.Concurrency
	}
	if (cfg.FetchTimeout == 0 || cfg.FetchTimeout == DefaultFetchTimeout) && fc.Fetch.Timeout > 0 {
		cfg.FetchTimeout = fc.Fetch.Timeout
	}
	if (cfg.UserAgent == "" || cfg.UserAgent == DefaultUserAgent) && fc.Fetch.UserAgent != "" {
		cfg.UserAgent = fc.Fetch.UserAgent
	}
	// SSL verification: default on; allow file config to disable when sslVerify=false
	if fc.Fetch.SSLVerify != nil && !*fc.Fetch.SSLVerify {
		cfg.SSLVerify = false
	}
	if !cfg.IgnoreRobots && fc.Fetch.IgnoreRobots {
		cfg.IgnoreRobots = true
	}

	if (cfg.CacheDir == "" || cfg.CacheDir == DefaultCacheDir) && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if !cfg.CacheClear && fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if !cfg.ResultCache && fc.Cache.Results {
		cfg.ResultCache = true
	}
	if (cfg.ResultCacheMax == 0 || cfg.ResultCacheMax == DefaultResultCacheMax) && fc.Cache.MaxResults > 0 {
		cfg.ResultCacheMax = fc.Cache.MaxResults
	}
	if cfg.HTTPCacheMaxBytes == 0 && fc.Cache.HTTPMaxBytes > 0 {
		cfg.HTTPCacheMaxBytes = fc.Cache.HTTPMaxBytes
	}

	if (cfg.ProgressTTL == 0 || cfg.ProgressTTL == DefaultProgressTTL) && fc.Progress.TTL > 0 {
		cfg.ProgressTTL = fc.Progress.TTL
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs schema validation for settings that cannot be
// fixed per request. Missing credentials are not an error here because the
// search form can supply them.
func ValidateConfig(cfg Config) error {
	switch cfg.SearchEngine {
	case "", searchgpt.EngineBing, searchgpt.EngineSearxNG, searchgpt.EngineFile:
	default:
		return fmt.Errorf("config: unknown search engine %q", cfg.SearchEngine)
	}
	if cfg.SearchEngine == searchgpt.EngineSearxNG && !cfg.DisableWebSearch && trim(cfg.SearxURL) == "" {
		return errors.New("config: searx.url is required for the searxng engine (or set SEARX_URL)")
	}
	if cfg.SearchEngine == searchgpt.EngineFile && trim(cfg.FileSearchPath) == "" {
		return errors.New("config: search.file is required for the file engine (or set SEARCH_FILE)")
	}
	switch cfg.LLMProvider {
	case "", llm.ProviderOpenAI, llm.ProviderGooseAI:
	default:
		return fmt.Errorf("config: unknown llm provider %q", cfg.LLMProvider)
	}
	if cfg.MaxSources < 0 || cfg.PerDomainCap < 0 || cfg.PromptLengthLimit < 0 || cfg.MaxTokens < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.ResultCache && trim(cfg.CacheDir) == "" {
		return errors.New("config: cache.dir is required when the result cache is enabled")
	}
	return nil
}

func trim(s string) string { return strings.TrimSpace(s) }
