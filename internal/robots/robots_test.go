package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/searchgpt/internal/cache"
)

func TestManager_RevalidatesWithETag(t *testing.T) {
	t.Parallel()
	var hits, conditional int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&conditional, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	u := srv.URL + "/robots.txt"
	ctx := context.Background()

	m1 := &Manager{HTTPClient: srv.Client(), Cache: &cache.HTTPCache{Dir: dir}, UserAgent: "searchgpt-test/1.0", AllowPrivateHosts: true}
	rules, src, err := m1.Get(ctx, u)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if src != SourceNetwork {
		t.Fatalf("expected SourceNetwork, got %v", src)
	}
	if rules.IsAllowed("searchgpt", "/private/x") {
		t.Fatal("expected /private to be disallowed")
	}
	if _, src, _ := m1.Get(ctx, u); src != SourceMemory {
		t.Fatalf("expected SourceMemory, got %v", src)
	}

	// A fresh manager sharing the disk cache revalidates.
	m2 := &Manager{HTTPClient: srv.Client(), Cache: &cache.HTTPCache{Dir: dir}, UserAgent: "searchgpt-test/1.0", AllowPrivateHosts: true}
	rules, src, err = m2.Get(ctx, u)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if src != SourceCache304 {
		t.Fatalf("expected SourceCache304, got %v", src)
	}
	if rules.IsAllowed("searchgpt", "/private/x") {
		t.Fatal("cached rules lost the disallow")
	}
	if atomic.LoadInt32(&hits) != 2 || atomic.LoadInt32(&conditional) != 1 {
		t.Fatalf("hits=%d conditional=%d", hits, conditional)
	}
}

func TestManager_StatusPolicy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status  int
		allowed bool
	}{
		{http.StatusNotFound, true},
		{http.StatusGone, true},
		{http.StatusForbidden, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, c := range cases {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(c.status)
		}))
		m := &Manager{HTTPClient: srv.Client(), UserAgent: "searchgpt", EntryExpiry: time.Minute, AllowPrivateHosts: true}
		ok, err := m.Allowed(context.Background(), srv.URL+"/page")
		if err != nil {
			t.Fatalf("status %d: %v", c.status, err)
		}
		if ok != c.allowed {
			t.Fatalf("status %d: allowed=%v want %v", c.status, ok, c.allowed)
		}
		_, _ = m.Allowed(context.Background(), srv.URL+"/other")
		if n := atomic.LoadInt32(&hits); n != 1 {
			t.Fatalf("status %d: expected one robots fetch, got %d", c.status, n)
		}
		srv.Close()
	}
}

func TestManager_TimeoutDisallowsUntilExpiry(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	hc := *srv.Client()
	hc.Timeout = 50 * time.Millisecond

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Manager{HTTPClient: &hc, EntryExpiry: time.Minute, AllowPrivateHosts: true, now: func() time.Time { return now }}
	rules, _, err := m.Get(context.Background(), srv.URL+"/robots.txt")
	if err != nil {
		t.Fatalf("timeout should not surface as an error: %v", err)
	}
	if rules.IsAllowed("any", "/") {
		t.Fatal("expected disallow-all after a timeout")
	}
	if _, ok := m.loadMem(srv.URL + "/robots.txt"); !ok {
		t.Fatal("expected the disallow to be remembered")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := m.loadMem(srv.URL + "/robots.txt"); ok {
		t.Fatal("expected the entry to expire")
	}
}

func TestManager_PrivateHostsAllowedWithoutFetch(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	t.Cleanup(srv.Close)

	m := &Manager{HTTPClient: srv.Client()}
	ok, err := m.Allowed(context.Background(), srv.URL+"/x")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("private host robots.txt should not be fetched")
	}
}

func TestIsAllowed_AgentPrecedenceAndSpecificity(t *testing.T) {
	t.Parallel()
	rules := parseRobots(`User-agent: *
Disallow: /

User-agent: searchgpt # our bot
Disallow: /private
Allow: /private/public
`)
	if rules.IsAllowed("otherbot", "/index.html") {
		t.Fatal("wildcard group should disallow everything")
	}
	if !rules.IsAllowed("searchgpt/1.0", "/index.html") {
		t.Fatal("named group should apply to searchgpt")
	}
	if rules.IsAllowed("searchgpt/1.0", "/private/else") {
		t.Fatal("expected /private/else disallowed")
	}
	if !rules.IsAllowed("searchgpt/1.0", "/private/public/info") {
		t.Fatal("longer allow should win")
	}
}

func TestIsAllowed_WildcardsAndAnchors(t *testing.T) {
	t.Parallel()
	rules := parseRobots("User-agent: *\nDisallow: /*.zip$\nDisallow: /tmp*/cache\nAllow: /downloads/*.zip$\n")
	checks := map[string]bool{
		"/foo/file.zip":       false,
		"/foo/file.zip?x=1":   true,
		"/downloads/file.zip": true,
		"/tmp1/cache/a":       false,
		"/tmp/other":          true,
	}
	for path, want := range checks {
		if got := rules.IsAllowed("bot", path); got != want {
			t.Errorf("%s: got %v want %v", path, got, want)
		}
	}
}

func TestCrawlDelayFor(t *testing.T) {
	t.Parallel()
	rules := parseRobots("User-agent: searchgpt\nCrawl-delay: 2\n\nUser-agent: *\nCrawl-delay: 10\n")
	if d := rules.CrawlDelayFor("searchgpt"); d == nil || *d != 2*time.Second {
		t.Fatalf("expected 2s, got %v", d)
	}
	if d := rules.CrawlDelayFor("other"); d == nil || *d != 10*time.Second {
		t.Fatalf("expected 10s, got %v", d)
	}
}
