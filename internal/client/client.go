package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Header names used to carry caller-provided credentials and correlation ids.
const (
	HeaderSubscriptionKey = "X-Search-Subscription-Key"
	HeaderAPIKey          = "X-LLM-API-Key"
	HeaderRequestID       = "X-Request-ID"
)

// ErrEmptyQuery is returned by Search when the query has no text.
var ErrEmptyQuery = errors.New("empty query")

// Credentials are optional keys the server uses instead of its own defaults.
type Credentials struct {
	SubscriptionKey string
	APIKey          string
}

// SearchParams carries what the search form collects.
type SearchParams struct {
	RequestID   string
	Query       string
	Credentials Credentials
	UseSource   bool
	Provider    string
	Model       string
}

// SearchResponse is the body of a successful POST /search.
type SearchResponse struct {
	ID          string `json:"id"`
	HTML        string `json:"html"`
	ExplainHTML string `json:"explain_html"`
}

// ProgressResponse is the body of GET /progress.
type ProgressResponse struct {
	HTML string `json:"html"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, body)
}

// Client talks to the search server. It never retries.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// Search submits one search. Credentials travel as headers, never in the body.
func (c *Client) Search(ctx context.Context, p SearchParams) (SearchResponse, error) {
	var out SearchResponse
	if strings.TrimSpace(p.Query) == "" {
		return out, ErrEmptyQuery
	}
	form := url.Values{}
	form.Set("request_id", p.RequestID)
	form.Set("q", p.Query)
	form.Set("is_use_source", strconv.FormatBool(p.UseSource))
	form.Set("llm_service_provider", p.Provider)
	form.Set("llm_model", p.Model)

	u, err := c.endpoint("/search", nil)
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return out, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.Credentials.SubscriptionKey != "" {
		req.Header.Set(HeaderSubscriptionKey, p.Credentials.SubscriptionKey)
	}
	if p.Credentials.APIKey != "" {
		req.Header.Set(HeaderAPIKey, p.Credentials.APIKey)
	}
	if err := c.do(req, &out); err != nil {
		return out, fmt.Errorf("search: %w", err)
	}
	return out, nil
}

// Progress fetches the progress fragment for a request id.
func (c *Client) Progress(ctx context.Context, requestID string) (ProgressResponse, error) {
	var out ProgressResponse
	u, err := c.endpoint("/progress", url.Values{"request_id": {requestID}})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return out, fmt.Errorf("new request: %w", err)
	}
	if err := c.do(req, &out); err != nil {
		return out, fmt.Errorf("progress: %w", err)
	}
	return out, nil
}

func (c *Client) endpoint(path string, q url.Values) (string, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return "", errors.New("missing server base url")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) do(req *http.Request, v any) error {
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if id := RequestIDFrom(req.Context()); id != "" {
		req.Header.Set(HeaderRequestID, id)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID returns a context whose requests carry id in X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id stored by WithRequestID, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
