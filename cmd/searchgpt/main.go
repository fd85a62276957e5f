package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/searchgpt/internal/app"
	"github.com/hyperifyio/searchgpt/internal/llm"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// .env files fill the environment before flags read their defaults
	if err := app.LoadEnvFiles(".env", ".env.local"); err != nil {
		log.Warn().Err(err).Msg("load .env")
	}

	var (
		configPath       string
		blockedHosts     string
		systemPromptFile string
		cfg              app.Config
	)

	flag.StringVar(&configPath, "config", os.Getenv("SEARCHGPT_CONFIG"), "Path to YAML or JSON config file")
	flag.StringVar(&cfg.Addr, "addr", envOr("ADDR", app.DefaultAddr), "HTTP listen address")

	flag.StringVar(&cfg.SearchEngine, "search.engine", envOr("SEARCH_ENGINE", app.DefaultSearchEngine), "Web search engine: bing, searxng or file")
	flag.BoolVar(&cfg.DisableSources, "search.disableSources", false, "Answer without web or document sources unless the form asks for them")
	flag.BoolVar(&cfg.DisableWebSearch, "search.disableWeb", false, "Disable web search")
	flag.BoolVar(&cfg.EnableDocSearch, "search.enableDocs", false, "Search local documents under -search.docPath")
	flag.StringVar(&cfg.DocPath, "search.docPath", envOr("DOC_SEARCH_PATH", app.DefaultDocPath), "Directory of .txt, .md and .html documents")
	flag.StringVar(&cfg.FileSearchPath, "search.file", os.Getenv("SEARCH_FILE"), "Path to JSON file for the offline file search engine")
	flag.StringVar(&cfg.BingEndpoint, "bing.endpoint", "", "Bing Web Search endpoint (default v7 API)")
	flag.StringVar(&cfg.BingKey, "bing.key", "", "Bing search subscription key")
	flag.StringVar(&cfg.BingMarket, "bing.market", app.DefaultBingMarket, "Bing market, e.g. en-US")
	flag.StringVar(&cfg.SearxURL, "searx.url", "", "SearxNG base URL")
	flag.StringVar(&cfg.SearxKey, "searx.key", "", "SearxNG API key (optional)")
	flag.IntVar(&cfg.MaxSources, "max.sources", app.DefaultMaxSources, "Maximum number of web pages to read")
	flag.IntVar(&cfg.PerDomainCap, "max.perDomain", app.DefaultPerDomainCap, "Maximum pages per domain")
	flag.IntVar(&cfg.MinSnippetChars, "min.snippetChars", 0, "Minimum non-whitespace snippet characters to keep a result (0 disables)")
	flag.StringVar(&blockedHosts, "search.blockedHosts", "", "Comma-separated hosts never fetched (subdomains included)")

	flag.StringVar(&cfg.LLMProvider, "llm.provider", envOr("LLM_SERVICE_PROVIDER", app.DefaultLLMProvider), "Default LLM provider: openai or goose_ai")
	flag.StringVar(&cfg.OpenAIBaseURL, "openai.base", "", "OpenAI-compatible base URL")
	flag.StringVar(&cfg.OpenAIKey, "openai.key", "", "OpenAI API key")
	flag.StringVar(&cfg.OpenAIModel, "openai.model", envOr("OPENAI_MODEL", app.DefaultOpenAIModel), "OpenAI chat model")
	flag.StringVar(&cfg.GooseAIBaseURL, "gooseai.base", llm.DefaultGooseAIBaseURL, "GooseAI base URL")
	flag.StringVar(&cfg.GooseAIKey, "gooseai.key", "", "GooseAI API key")
	flag.StringVar(&cfg.GooseAIModel, "gooseai.model", envOr("GOOSE_AI_MODEL", app.DefaultGooseAIModel), "GooseAI completion model")
	flag.StringVar(&cfg.EmbeddingModel, "llm.embeddingModel", app.DefaultEmbeddingModel, "Embedding model used for ranking")
	flag.Float64Var(&cfg.Temperature, "llm.temperature", app.DefaultTemperature, "Sampling temperature")
	flag.IntVar(&cfg.MaxTokens, "llm.maxTokens", app.DefaultMaxTokens, "Maximum answer tokens")
	flag.IntVar(&cfg.PromptLengthLimit, "llm.promptLengthLimit", app.DefaultPromptLengthLimit, "Characters of source text sent to the model")
	flag.StringVar(&cfg.SynthSystemPrompt, "synth.systemPrompt", "", "Override answer system prompt (inline string)")
	flag.StringVar(&systemPromptFile, "synth.systemPromptFile", os.Getenv("SYNTH_SYSTEM_PROMPT_FILE"), "Path to file containing answer system prompt")

	flag.IntVar(&cfg.FetchConcurrency, "fetch.concurrency", app.DefaultFetchConcurrency, "Concurrent page downloads")
	flag.DurationVar(&cfg.FetchTimeout, "fetch.timeout", app.DefaultFetchTimeout, "Per-page download timeout")
	flag.StringVar(&cfg.UserAgent, "fetch.ua", app.DefaultUserAgent, "User-Agent for page downloads and search requests")
	flag.BoolVar(&cfg.IgnoreRobots, "robots.ignore", false, "Fetch source pages without consulting robots.txt")
	flag.BoolVar(&cfg.SSLVerify, "ssl.verify", os.Getenv("SSL_VERIFY") != "false", "Verify TLS certificates")

	flag.StringVar(&cfg.CacheDir, "cache.dir", envOr("CACHE_DIR", app.DefaultCacheDir), "Cache directory path")
	flag.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", 0, "Max age for cache entries before purge (e.g. 24h); 0 disables")
	flag.BoolVar(&cfg.CacheClear, "cache.clear", false, "Clear cache directory at startup")
	flag.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.BoolVar(&cfg.ResultCache, "cache.results", false, "Cache answers per query and settings")
	flag.IntVar(&cfg.ResultCacheMax, "cache.maxResults", app.DefaultResultCacheMax, "Maximum cached answers")
	flag.Int64Var(&cfg.HTTPCacheMaxBytes, "cache.httpMaxBytes", 0, "Cap on cached page bytes at startup; 0 disables")

	flag.DurationVar(&cfg.ProgressTTL, "progress.ttl", app.DefaultProgressTTL, "How long finished progress stays pollable")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("searchgpt %s (%s, %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return
	}

	cfg.BlockedHosts = app.SplitList(blockedHosts)
	if strings.TrimSpace(systemPromptFile) != "" {
		if b, err := os.ReadFile(systemPromptFile); err == nil {
			cfg.SynthSystemPrompt = string(b)
		} else {
			log.Warn().Err(err).Str("file", systemPromptFile).Msg("read system prompt")
		}
	}

	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("config", configPath).Msg("load config file")
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvToConfig(&cfg)

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// envOr returns the environment value of key, or def when it is unset.
func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func run(cfg app.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
