package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&cfg.Addr, "ADDR")
	if cfg.Addr == "" {
		if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
			cfg.Addr = ":" + p
		}
	}
	setString(&cfg.SearchEngine, "SEARCH_ENGINE")
	setString(&cfg.DocPath, "DOC_SEARCH_PATH")
	setString(&cfg.BingEndpoint, "BING_SEARCH_ENDPOINT")
	setString(&cfg.BingKey, "BING_SEARCH_SUBSCRIPTION_KEY")
	setString(&cfg.BingMarket, "BING_SEARCH_MARKET")
	// Support both SEARX_URL and SEARXNG_URL; prefer SEARX_URL if set
	setString(&cfg.SearxURL, "SEARX_URL", "SEARXNG_URL")
	setString(&cfg.SearxKey, "SEARX_KEY", "SEARXNG_KEY")
	setString(&cfg.FileSearchPath, "SEARCH_FILE")

	setString(&cfg.LLMProvider, "LLM_SERVICE_PROVIDER")
	setString(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL", "LLM_BASE_URL")
	setString(&cfg.OpenAIKey, "OPENAI_API_KEY", "LLM_API_KEY")
	setString(&cfg.OpenAIModel, "OPENAI_MODEL", "LLM_MODEL")
	setString(&cfg.GooseAIBaseURL, "GOOSE_AI_BASE_URL")
	setString(&cfg.GooseAIKey, "GOOSE_AI_API_KEY")
	setString(&cfg.GooseAIModel, "GOOSE_AI_MODEL")
	setString(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&cfg.SynthSystemPrompt, "SYNTH_SYSTEM_PROMPT")

	setString(&cfg.UserAgent, "USER_AGENT")
	setString(&cfg.CacheDir, "CACHE_DIR")

	if cfg.BlockedHosts == nil {
		cfg.BlockedHosts = splitList(os.Getenv("BLOCKED_HOSTS"))
	}

	// SOURCE_CAPS can be "<max>" or "<max>,<perDomain>"
	if cfg.MaxSources == 0 || cfg.PerDomainCap == 0 {
		maxN, per := parseSourceCaps(os.Getenv("SOURCE_CAPS"))
		if cfg.MaxSources == 0 && maxN > 0 {
			cfg.MaxSources = maxN
		}
		if cfg.PerDomainCap == 0 && per > 0 {
			cfg.PerDomainCap = per
		}
	}

	setInt := func(dst *int, key string) {
		if *dst != 0 {
			return
		}
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
			*dst = n
		}
	}
	setInt(&cfg.MaxTokens, "LLM_MAX_TOKENS")
	setInt(&cfg.PromptLengthLimit, "PROMPT_LENGTH_LIMIT")
	setInt(&cfg.FetchConcurrency, "FETCH_CONCURRENCY")
	setInt(&cfg.ResultCacheMax, "RESULT_CACHE_MAX")

	// Optional durations
	setDuration := func(dst *time.Duration, key string) {
		if *dst != 0 {
			return
		}
		if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
			*dst = d
		}
	}
	setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
	setDuration(&cfg.FetchTimeout, "FETCH_TIMEOUT")
	setDuration(&cfg.ProgressTTL, "PROGRESS_TTL")

	// Booleans
	setBool := func(dst *bool, envKey string) {
		if *dst {
			return
		}
		if isTruthy(os.Getenv(envKey)) {
			*dst = true
		}
	}
	setBool(&cfg.DisableSources, "DISABLE_SOURCES")
	setBool(&cfg.DisableWebSearch, "DISABLE_WEB_SEARCH")
	setBool(&cfg.EnableDocSearch, "ENABLE_DOC_SEARCH")
	setBool(&cfg.ResultCache, "RESULT_CACHE")
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.IgnoreRobots, "IGNORE_ROBOTS")
}

func parseSourceCaps(s string) (maxSources, perDomain int) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0
	}
	parts := strings.Split(s, ",")
	if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil && n > 0 {
		maxSources = n
	}
	if len(parts) >= 2 {
		if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && n > 0 {
			perDomain = n
		}
	}
	return maxSources, perDomain
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SplitList parses a comma-separated flag value.
func SplitList(s string) []string { return splitList(s) }
