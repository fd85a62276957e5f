package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/searchgpt/internal/cache"
)

func TestApp_ServesPageAndRejectsMissingKeys(t *testing.T) {
	cfg := flagDefaults()
	cfg.CacheDir = t.TempDir()

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `id="request_id"`) {
		t.Fatalf("index page lacks request_id field")
	}

	form := url.Values{"request_id": {"abc"}, "q": {"hello"}}
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("search status=%d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress?request_id=abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status=%d", rec.Code)
	}
	var body struct{ HTML string }
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.HTML, "Failed") || !strings.Contains(body.HTML, "bing_search_subscription_key is required") {
		t.Fatalf("progress html=%q", body.HTML)
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := flagDefaults()
	cfg.Addr = "127.0.0.1:0"
	cfg.CacheDir = ""
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestApp_CloseTrimsPageCache(t *testing.T) {
	cfg := flagDefaults()
	cfg.CacheDir = t.TempDir()
	cfg.HTTPCacheMaxBytes = 10

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// Pages stored while serving can push the cache past its bound.
	hc := &cache.HTTPCache{Dir: cfg.HTTPCacheDir()}
	for i := 0; i < 3; i++ {
		u := fmt.Sprintf("https://example.com/page%d", i)
		if err := hc.Save(context.Background(), u, "text/html", "", "", []byte("12345678")); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if n := countBodies(t, cfg.HTTPCacheDir()); n != 3 {
		t.Fatalf("bodies before close=%d, want 3", n)
	}

	a.Close()

	if n := countBodies(t, cfg.HTTPCacheDir()); n != 1 {
		t.Fatalf("bodies after close=%d, want 1", n)
	}
}

func countBodies(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".body" {
			n++
		}
	}
	return n
}
