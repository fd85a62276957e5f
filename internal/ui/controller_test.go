package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/searchgpt/internal/client"
)

type manualTimer struct {
	offset  time.Duration
	f       func()
	fired   bool
	stopped bool
}

// manualScheduler records timers and fires them only when told to.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualScheduler) schedule(d time.Duration, f func()) func() bool {
	t := &manualTimer{offset: d, f: f}
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

func (m *manualScheduler) fireAll() {
	m.mu.Lock()
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			t.fired = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (m *manualScheduler) offsets() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, 0, len(m.timers))
	for _, t := range m.timers {
		out = append(out, t.offset)
	}
	return out
}

type fakeAPI struct {
	mu          sync.Mutex
	searches    []client.SearchParams
	progressIDs []string

	release  chan struct{}
	resp     client.SearchResponse
	err      error
	progress client.ProgressResponse
}

func (f *fakeAPI) Search(ctx context.Context, p client.SearchParams) (client.SearchResponse, error) {
	f.mu.Lock()
	f.searches = append(f.searches, p)
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return client.SearchResponse{}, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *fakeAPI) Progress(_ context.Context, id string) (client.ProgressResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressIDs = append(f.progressIDs, id)
	return f.progress, nil
}

func (f *fakeAPI) polledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.progressIDs...)
}

func newFormPage() *Document {
	el := DefaultElements()
	d := NewDocument()
	d.SetValue(el.RequestID, "req-1")
	d.SetValue(el.Query, "why is the sky blue")
	d.SetValue(el.SubscriptionKey, "bing-key")
	d.SetValue(el.APIKey, "openai-key")
	d.SetChecked(el.UseSource, true)
	d.SetValue(el.Provider, "openai")
	d.SetValue(el.Model, "gpt-3.5-turbo")
	d.SetVisible(el.Results, true)
	d.SetVisible(el.Explain, true)
	return d
}

func TestSubmit_DisablesButtonUntilSearchSettles(t *testing.T) {
	el := DefaultElements()
	api := &fakeAPI{
		release: make(chan struct{}),
		resp:    client.SearchResponse{ID: "r1", HTML: "<div>A</div>", ExplainHTML: "<p>B</p>"},
	}
	page := newFormPage()
	sched := &manualScheduler{}
	c := &Controller{API: api, Page: page, Schedule: sched.schedule}

	sub := c.Submit(context.Background())

	assert.True(t, page.Disabled(el.SubmitButton))
	assert.True(t, page.Visible(el.Spinner))
	assert.False(t, page.Visible(el.Results))
	assert.False(t, page.Visible(el.Explain))

	close(api.release)
	require.NoError(t, sub.Wait())

	assert.False(t, page.Disabled(el.SubmitButton))
	assert.False(t, page.Visible(el.Spinner))
	assert.True(t, page.Visible(el.Results))
	assert.True(t, page.Visible(el.Explain))
	assert.Equal(t, "<div>A</div>", page.HTML("r1"))
	assert.Equal(t, "<p>B</p>", page.HTML(el.Explain))
	assert.Zero(t, page.Navigations())
}

func TestSubmit_SendsFormFields(t *testing.T) {
	api := &fakeAPI{resp: client.SearchResponse{ID: "r1"}}
	c := &Controller{API: api, Page: newFormPage(), Schedule: (&manualScheduler{}).schedule}

	require.NoError(t, c.Submit(context.Background()).Wait())

	require.Len(t, api.searches, 1)
	assert.Equal(t, client.SearchParams{
		RequestID:   "req-1",
		Query:       "why is the sky blue",
		Credentials: client.Credentials{SubscriptionKey: "bing-key", APIKey: "openai-key"},
		UseSource:   true,
		Provider:    "openai",
		Model:       "gpt-3.5-turbo",
	}, api.searches[0])
}

func TestSubmit_SchedulesTenPollsOneSecondApart(t *testing.T) {
	el := DefaultElements()
	api := &fakeAPI{release: make(chan struct{}), progress: client.ProgressResponse{HTML: "<span>50%</span>"}}
	page := newFormPage()
	sched := &manualScheduler{}
	c := &Controller{API: api, Page: page, Schedule: sched.schedule}

	sub := c.Submit(context.Background())

	want := make([]time.Duration, 0, 10)
	for i := 0; i < 10; i++ {
		want = append(want, time.Duration(i)*time.Second)
	}
	assert.Equal(t, want, sched.offsets())

	sched.fireAll()
	assert.Len(t, api.polledIDs(), 10)
	assert.Equal(t, "<span>50%</span>", page.HTML(el.Status))

	close(api.release)
	require.NoError(t, sub.Wait())
}

func TestSubmit_TwoSubmissionsReadRequestIDAtFireTime(t *testing.T) {
	el := DefaultElements()
	api := &fakeAPI{release: make(chan struct{})}
	page := newFormPage()
	sched := &manualScheduler{}
	c := &Controller{API: api, Page: page, Schedule: sched.schedule, KeepPolling: true}

	first := c.Submit(context.Background())
	second := c.Submit(context.Background())
	require.Len(t, sched.offsets(), 20)

	page.SetValue(el.RequestID, "req-later")
	sched.fireAll()

	ids := api.polledIDs()
	require.Len(t, ids, 20)
	for _, id := range ids {
		assert.Equal(t, "req-later", id)
	}

	close(api.release)
	require.NoError(t, first.Wait())
	require.NoError(t, second.Wait())
}

func TestSubmit_StopsPollingWhenSearchSettles(t *testing.T) {
	api := &fakeAPI{release: make(chan struct{}), resp: client.SearchResponse{ID: "r1"}}
	sched := &manualScheduler{}
	c := &Controller{API: api, Page: newFormPage(), Schedule: sched.schedule}

	sub := c.Submit(context.Background())
	close(api.release)
	require.NoError(t, sub.Wait())

	select {
	case <-sub.Poll().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll schedule did not stop after the search settled")
	}
	sched.fireAll()
	assert.Empty(t, api.polledIDs())
}

func TestSubmit_KeepPollingRunsFullSchedule(t *testing.T) {
	api := &fakeAPI{resp: client.SearchResponse{ID: "r1"}}
	sched := &manualScheduler{}
	c := &Controller{API: api, Page: newFormPage(), Schedule: sched.schedule, KeepPolling: true}

	sub := c.Submit(context.Background())
	require.NoError(t, sub.Wait())
	sched.fireAll()

	assert.Len(t, api.polledIDs(), 10)
	select {
	case <-sub.Poll().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll schedule did not finish")
	}
}

func TestSubmit_FailureRendersFragmentAndReenables(t *testing.T) {
	el := DefaultElements()
	boom := errors.New("connection refused")
	api := &fakeAPI{err: boom}
	page := newFormPage()
	c := &Controller{API: api, Page: page, Schedule: (&manualScheduler{}).schedule}

	err := c.Submit(context.Background()).Wait()
	require.ErrorIs(t, err, boom)

	assert.Equal(t, FailureFragment(boom), page.HTML(el.Explain))
	assert.False(t, page.Disabled(el.SubmitButton))
	assert.False(t, page.Visible(el.Spinner))
	assert.True(t, page.Visible(el.Explain))
	assert.False(t, page.Visible(el.Results))
}

func TestSubmit_MissingRegionIDFallsBackToResults(t *testing.T) {
	el := DefaultElements()
	api := &fakeAPI{resp: client.SearchResponse{HTML: "<div>A</div>"}}
	page := newFormPage()
	c := &Controller{API: api, Page: page, Schedule: (&manualScheduler{}).schedule}

	require.NoError(t, c.Submit(context.Background()).Wait())
	assert.Equal(t, "<div>A</div>", page.HTML(el.Results))
}

func TestFailureFragment_EscapesMessage(t *testing.T) {
	got := FailureFragment(errors.New(`<script>alert("x")</script>`))
	assert.NotContains(t, got, "<script>")
	assert.Contains(t, got, "&lt;script&gt;")
	assert.Contains(t, FailureFragment(nil), "unknown error")
}
