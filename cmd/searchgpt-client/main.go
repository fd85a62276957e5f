// Command searchgpt-client submits one search to a running server the way
// the search page does: it fills an in-memory page, dispatches the form and
// prints progress updates until the answer arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/searchgpt/internal/app"
	"github.com/hyperifyio/searchgpt/internal/client"
	"github.com/hyperifyio/searchgpt/internal/extract"
	"github.com/hyperifyio/searchgpt/internal/ui"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := app.LoadEnvFiles(".env", ".env.local"); err != nil {
		log.Warn().Err(err).Msg("load .env")
	}

	var (
		serverURL   string
		query       string
		requestID   string
		bingKey     string
		llmKey      string
		noSource    bool
		provider    string
		model       string
		keepPolling bool
		interval    time.Duration
		ticks       int
		timeout     time.Duration
		rawHTML     bool
		explain     bool
		verbose     bool
	)
	flag.StringVar(&serverURL, "server", envOr("SEARCHGPT_URL", "http://localhost:8080"), "searchgpt server base URL")
	flag.StringVar(&query, "q", "", "Search text (default: remaining arguments)")
	flag.StringVar(&requestID, "request-id", "", "Request id used for progress polling (default: random UUID)")
	flag.StringVar(&bingKey, "bing.key", os.Getenv("BING_SEARCH_SUBSCRIPTION_KEY"), "Bing subscription key sent as a header")
	flag.StringVar(&llmKey, "llm.key", os.Getenv("OPENAI_API_KEY"), "LLM API key sent as a header")
	flag.BoolVar(&noSource, "no-source", false, "Answer without web or document sources")
	flag.StringVar(&provider, "provider", "", "LLM provider override: openai or goose_ai")
	flag.StringVar(&model, "model", "", "LLM model override")
	flag.BoolVar(&keepPolling, "keep-polling", false, "Keep polling progress after the answer arrives")
	flag.DurationVar(&interval, "poll.interval", ui.DefaultInterval, "Progress poll interval")
	flag.IntVar(&ticks, "poll.ticks", ui.DefaultTicks, "Number of progress polls")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout")
	flag.BoolVar(&rawHTML, "html", false, "Print HTML fragments instead of text")
	flag.BoolVar(&explain, "explain", false, "Also print the sources used")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if query == "" {
		query = strings.Join(flag.Args(), " ")
	}
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "usage: searchgpt-client [flags] <query>")
		os.Exit(2)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	el := ui.DefaultElements()
	doc := ui.NewDocument()
	doc.SetValue(el.RequestID, requestID)
	doc.SetValue(el.Query, query)
	doc.SetValue(el.SubscriptionKey, bingKey)
	doc.SetValue(el.APIKey, llmKey)
	doc.SetChecked(el.UseSource, !noSource)
	doc.SetValue(el.Provider, provider)
	doc.SetValue(el.Model, model)

	var (
		mu   sync.Mutex
		last string
	)
	doc.OnHTML = func(id, html string) {
		if id != el.Status {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if text := lastLine(html); text != "" && text != last {
			last = text
			log.Info().Str("request_id", requestID).Msg(text)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = client.WithRequestID(ctx, requestID)

	c := &ui.Controller{
		API:         &client.Client{BaseURL: serverURL, UserAgent: "searchgpt-client/" + app.BuildVersion},
		Page:        doc,
		Elements:    el,
		Ticks:       ticks,
		Interval:    interval,
		KeepPolling: keepPolling,
	}
	sub := c.Submit(ctx)
	err := sub.Wait()
	if keepPolling {
		<-sub.Poll().Done()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, render(doc.HTML(el.Explain), rawHTML))
		os.Exit(1)
	}
	fmt.Println(render(doc.HTML(el.Results), rawHTML))
	if explain {
		fmt.Println()
		fmt.Println(render(doc.HTML(el.Explain), rawHTML))
	}
}

func render(fragment string, raw bool) string {
	if raw {
		return fragment
	}
	return extract.FromHTML([]byte(fragment)).Text
}

// lastLine returns the newest step of a progress fragment as text.
func lastLine(fragment string) string {
	lines := strings.Split(strings.TrimSpace(extract.FromHTML([]byte(fragment)).Text), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
