// Command debugsearch queries one search engine and prints the hits that
// would be read for a question.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/searchgpt/internal/aggregate"
	"github.com/hyperifyio/searchgpt/internal/search"
	selecter "github.com/hyperifyio/searchgpt/internal/select"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	engine := flag.String("engine", "searxng", "bing, searxng or file")
	limit := flag.Int("n", 5, "Hits to select")
	perDomain := flag.Int("perDomain", 2, "Maximum hits per domain")
	flag.Parse()

	q := "What is love?"
	if flag.NArg() > 0 {
		q = strings.Join(flag.Args(), " ")
	}
	client := &http.Client{Timeout: 20 * time.Second}
	var prov search.Provider
	switch *engine {
	case "bing":
		prov = &search.Bing{Endpoint: os.Getenv("BING_SEARCH_ENDPOINT"), SubscriptionKey: os.Getenv("BING_SEARCH_SUBSCRIPTION_KEY"), HTTPClient: client, UserAgent: "debugsearch/1.0"}
	case "file":
		prov = &search.FileProvider{Path: os.Getenv("SEARCH_FILE")}
	default:
		base := os.Getenv("SEARX_URL")
		if base == "" {
			base = "http://localhost:8888"
		}
		prov = &search.SearxNG{BaseURL: base, HTTPClient: client, UserAgent: "debugsearch/1.0"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	res, err := prov.Search(ctx, q, *limit*2)
	if err != nil {
		log.Fatal().Err(err).Str("engine", prov.Name()).Msg("search failed")
	}
	selected := selecter.Select(aggregate.MergeAndNormalize(res), selecter.Options{MaxTotal: *limit, PerDomain: *perDomain})
	log.Info().Int("hits", len(res)).Int("selected", len(selected)).Str("engine", prov.Name()).Msg("search done")
	for i, r := range selected {
		fmt.Printf("%d. %s - %s\n", i+1, r.Title, r.URL)
	}
}
