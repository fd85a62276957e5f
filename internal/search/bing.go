package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBingEndpoint is the Bing Web Search v7 endpoint.
const DefaultBingEndpoint = "https://api.bing.microsoft.com/v7.0/search"

// ErrMissingSubscriptionKey is returned when Bing is queried without a key.
var ErrMissingSubscriptionKey = errors.New("bing subscription key is required")

// Bing implements Provider against the Bing Web Search API.
type Bing struct {
	Endpoint        string // optional, defaults to DefaultBingEndpoint
	SubscriptionKey string
	Market          string // optional, e.g. "en-US"
	HTTPClient      *http.Client
	UserAgent       string
}

func (b *Bing) Name() string { return "bing" }

func (b *Bing) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(b.SubscriptionKey) == "" {
		return nil, ErrMissingSubscriptionKey
	}
	if limit <= 0 {
		limit = 10
	}
	endpoint := b.Endpoint
	if endpoint == "" {
		endpoint = DefaultBingEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse bing endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(limit))
	q.Set("responseFilter", "Webpages")
	q.Set("textDecorations", "false")
	if b.Market != "" {
		q.Set("mkt", b.Market)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", b.SubscriptionKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	hc := b.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: b.Name(), Code: resp.StatusCode}
	}
	var br bingResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("decode bing response: %w", err)
	}
	out := make([]Result, 0, len(br.WebPages.Value))
	for _, v := range br.WebPages.Value {
		if v.URL == "" || v.Name == "" {
			continue
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(v.Name),
			URL:     strings.TrimSpace(v.URL),
			Snippet: strings.TrimSpace(v.Snippet),
			Source:  b.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}
