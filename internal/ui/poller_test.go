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

func TestPoller_RealTimersFireEveryTick(t *testing.T) {
	el := DefaultElements()
	api := &fakeAPI{progress: client.ProgressResponse{HTML: "<span>done</span>"}}
	page := NewDocument()
	page.SetValue(el.RequestID, "abc")
	p := &Poller{API: api, Page: page, Elements: el, Ticks: 3, Interval: 5 * time.Millisecond, MaxElapsed: time.Second}

	h := p.Start(context.Background())
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish")
	}
	assert.Equal(t, []string{"abc", "abc", "abc"}, api.polledIDs())
	assert.Equal(t, "<span>done</span>", page.HTML(el.Status))
}

func TestPoller_MaxElapsedBoundsSchedule(t *testing.T) {
	sched := &manualScheduler{}
	p := &Poller{API: &fakeAPI{}, Page: NewDocument(), Elements: DefaultElements(), MaxElapsed: 3 * time.Second, Schedule: sched.schedule}

	h := p.Start(context.Background())
	defer h.Stop()
	assert.Equal(t, []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second}, sched.offsets())
}

func TestPollHandle_StopCancelsPendingTicks(t *testing.T) {
	api := &fakeAPI{}
	sched := &manualScheduler{}
	p := &Poller{API: api, Page: NewDocument(), Elements: DefaultElements(), Schedule: sched.schedule}

	h := p.Start(context.Background())
	h.Stop()
	h.Stop()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stopped poller never reported done")
	}
	sched.fireAll()
	assert.Empty(t, api.polledIDs())
}

func TestPoller_CancelledParentContextSkipsTicks(t *testing.T) {
	api := &fakeAPI{}
	sched := &manualScheduler{}
	p := &Poller{API: api, Page: NewDocument(), Elements: DefaultElements(), Schedule: sched.schedule}

	ctx, cancel := context.WithCancel(context.Background())
	h := p.Start(ctx)
	cancel()
	sched.fireAll()

	require.Eventually(t, func() bool {
		select {
		case <-h.Done():
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, api.polledIDs())
}

func TestDocument_OnHTMLHook(t *testing.T) {
	d := NewDocument()
	var seen []string
	d.OnHTML = func(id, html string) { seen = append(seen, id+"="+html) }
	d.SetHTML("status", "<b>1</b>")
	assert.Equal(t, []string{"status=<b>1</b>"}, seen)
	assert.Equal(t, "<b>1</b>", d.HTML("status"))
	assert.False(t, d.Visible("missing"))
}

// hangingAPI blocks every progress fetch until its context ends, unless err
// is set, in which case it fails at once.
type hangingAPI struct {
	err     error
	once    sync.Once
	started chan struct{}

	mu     sync.Mutex
	endErr error
}

func newHangingAPI(err error) *hangingAPI {
	return &hangingAPI{err: err, started: make(chan struct{})}
}

func (a *hangingAPI) Progress(ctx context.Context, _ string) (client.ProgressResponse, error) {
	a.once.Do(func() { close(a.started) })
	if a.err != nil {
		return client.ProgressResponse{}, a.err
	}
	<-ctx.Done()
	a.mu.Lock()
	a.endErr = ctx.Err()
	a.mu.Unlock()
	return client.ProgressResponse{HTML: "<span>late</span>"}, ctx.Err()
}

func (a *hangingAPI) fetchErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endErr
}

func waitDone(t *testing.T, h *PollHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish")
	}
}

func TestPollHandle_StopAbortsInFlightFetch(t *testing.T) {
	el := DefaultElements()
	api := newHangingAPI(nil)
	sched := &manualScheduler{}
	page := NewDocument()
	p := &Poller{API: api, Page: page, Elements: el, Ticks: 1, Schedule: sched.schedule}

	h := p.Start(context.Background())
	go sched.fireAll()
	select {
	case <-api.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	h.Stop()

	waitDone(t, h)
	assert.ErrorIs(t, api.fetchErr(), context.Canceled)
	assert.Equal(t, "", page.HTML(el.Status))
}

func TestPoller_MaxElapsedAbortsHungFetch(t *testing.T) {
	el := DefaultElements()
	api := newHangingAPI(nil)
	page := NewDocument()
	p := &Poller{API: api, Page: page, Elements: el, Ticks: 1, Interval: 10 * time.Millisecond, MaxElapsed: 20 * time.Millisecond}

	start := time.Now()
	h := p.Start(context.Background())
	waitDone(t, h)

	assert.ErrorIs(t, api.fetchErr(), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "", page.HTML(el.Status))
}

func TestPoller_FailedFetchKeepsPreviousStatus(t *testing.T) {
	el := DefaultElements()
	api := newHangingAPI(errors.New("connection refused"))
	sched := &manualScheduler{}
	page := NewDocument()
	page.SetHTML(el.Status, "<span>step 2</span>")
	p := &Poller{API: api, Page: page, Elements: el, Ticks: 2, Schedule: sched.schedule}

	h := p.Start(context.Background())
	sched.fireAll()
	waitDone(t, h)

	assert.Equal(t, "<span>step 2</span>", page.HTML(el.Status))
}

func TestDocument_NavigateCounts(t *testing.T) {
	d := NewDocument()
	assert.Zero(t, d.Navigations())
	d.Navigate()
	d.Navigate()
	assert.Equal(t, 2, d.Navigations())
}
