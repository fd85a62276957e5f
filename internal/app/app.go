package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/searchgpt/internal/cache"
	"github.com/hyperifyio/searchgpt/internal/fetch"
	"github.com/hyperifyio/searchgpt/internal/llm"
	"github.com/hyperifyio/searchgpt/internal/progress"
	"github.com/hyperifyio/searchgpt/internal/robots"
	"github.com/hyperifyio/searchgpt/internal/searchgpt"
	"github.com/hyperifyio/searchgpt/internal/server"
)

// App owns the long-lived pieces of a running server.
type App struct {
	cfg       Config
	tracker   *progress.Tracker
	service   *searchgpt.Service
	server    *server.Server
	httpCache *cache.HTTPCache
}

func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	// Use a high-throughput HTTP client to avoid client-side throttling
	httpClient := newHighThroughputHTTPClient(cfg.SSLVerify)

	a := &App{cfg: cfg, tracker: progress.New()}
	if cfg.CacheDir != "" {
		// Apply cache invalidation controls; errors never fail startup
		if cfg.CacheClear {
			_ = cache.ClearDir(cfg.CacheDir)
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeHTTPCacheByAge(cfg.HTTPCacheDir(), cfg.CacheMaxAge); err == nil && n > 0 {
				log.Info().Int("removed", n).Msg("purged stale page cache entries")
			}
			if n, err := cache.PurgeResultCacheByAge(cfg.ResultCacheDir(), cfg.CacheMaxAge); err == nil && n > 0 {
				log.Info().Int("removed", n).Msg("purged stale answers")
			}
		}
		if cfg.HTTPCacheMaxBytes > 0 {
			_, _ = cache.EnforceHTTPCacheLimits(cfg.HTTPCacheDir(), cfg.HTTPCacheMaxBytes, 0)
		}
		a.httpCache = &cache.HTTPCache{Dir: cfg.HTTPCacheDir(), StrictPerms: cfg.CacheStrictPerms}
	}

	base := cfg.ServiceConfig()
	a.service = &searchgpt.Service{
		Base:       base,
		Tracker:    a.tracker,
		HTTPClient: httpClient,
		Fetcher: &fetch.Client{
			HTTPClient:        httpClient,
			UserAgent:         base.Fetch.UserAgent,
			MaxAttempts:       base.Fetch.MaxAttempts,
			PerRequestTimeout: base.Fetch.Timeout,
			Cache:             a.httpCache,
			RedirectMaxHops:   5,
			MaxConcurrent:     base.Fetch.MaxConcurrent,
			Robots:            robotsManager(cfg, httpClient, a.httpCache),
		},
	}
	model := base.Model()
	a.server = server.New(a.service, a.tracker, server.Options{
		DefaultProvider: base.LLM.Provider,
		DefaultModel:    model.Model,
		Version:         BuildVersion,
	})

	preflight(ctx, base.LLM.Provider, model, httpClient)
	return a, nil
}

func robotsManager(cfg Config, hc *http.Client, hcache *cache.HTTPCache) *robots.Manager {
	if cfg.IgnoreRobots {
		log.Warn().Msg("robots.txt checks disabled")
		return nil
	}
	return &robots.Manager{HTTPClient: hc, Cache: hcache, UserAgent: cfg.UserAgent, EntryExpiry: 30 * time.Minute}
}

// preflight lists models on the default provider. It only logs: the form
// may supply a key the server lacks.
func preflight(ctx context.Context, provider string, m searchgpt.ModelConfig, hc *http.Client) {
	if strings.TrimSpace(m.APIKey) == "" {
		log.Info().Str("provider", provider).Msg("no server-side LLM key; requests must supply one")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := llm.New(m.BaseURL, m.APIKey, hc).ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) == 0 {
		log.Warn().Str("provider", provider).Msg("LLM returned zero models")
		return
	}
	found := false
	for _, mm := range models.Models {
		if mm.ID == m.Model {
			found = true
			break
		}
	}
	log.Info().Int("count", len(models.Models)).Str("model", m.Model).Bool("model_listed", found).Msg("LLM models available")
}

// Handler returns the HTTP handler serving the page and the API.
func (a *App) Handler() http.Handler { return a.server }

// Tracker exposes the progress tracker.
func (a *App) Tracker() *progress.Tracker { return a.tracker }

// Close trims the page cache back to HTTPCacheMaxBytes. Pages fetched while
// serving are only bounded at startup otherwise.
func (a *App) Close() {
	if a.httpCache == nil || a.cfg.HTTPCacheMaxBytes <= 0 {
		return
	}
	n, err := cache.EnforceHTTPCacheLimits(a.cfg.HTTPCacheDir(), a.cfg.HTTPCacheMaxBytes, 0)
	if err != nil {
		log.Warn().Err(err).Msg("trim page cache")
		return
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("trimmed page cache")
	}
}

// Run serves HTTP on cfg.Addr until ctx is cancelled, then shuts down
// gracefully. Finished progress entries are swept every minute.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", BuildVersion).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	ttl := a.cfg.ProgressTTL
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-sweep.C:
			if n := a.tracker.Sweep(ttl); n > 0 {
				log.Debug().Int("removed", n).Msg("swept finished progress entries")
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Info().Msg("shutting down")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		}
	}
}
