package ui

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/searchgpt/internal/client"
)

const (
	// DefaultTicks is the number of progress fetches per submission.
	DefaultTicks = 10
	// DefaultInterval separates consecutive progress fetches.
	DefaultInterval = time.Second
)

// Scheduler arranges for f to run once after d. The returned stop function
// cancels the call and reports whether it prevented f from running.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ProgressFetcher fetches the progress fragment for a request id.
type ProgressFetcher interface {
	Progress(ctx context.Context, requestID string) (client.ProgressResponse, error)
}

// Poller refreshes the status region on a fixed schedule of one-shot timers.
type Poller struct {
	API      ProgressFetcher
	Page     Page
	Elements Elements

	// Ticks is the number of fetches; zero means DefaultTicks.
	Ticks int
	// Interval separates fetches; the first fires immediately.
	Interval time.Duration
	// MaxElapsed bounds the schedule. Ticks whose offset exceeds it are
	// never scheduled and in-flight fetches are aborted one Interval after
	// it. Zero means Ticks*Interval.
	MaxElapsed time.Duration
	// Schedule creates the timers; nil means time.AfterFunc.
	Schedule Scheduler
}

// PollHandle controls one running schedule.
type PollHandle struct {
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}

	mu    sync.Mutex
	stops []func() bool
}

// Start schedules every tick and returns immediately.
func (p *Poller) Start(ctx context.Context) *PollHandle {
	ticks := p.Ticks
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxElapsed := p.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = time.Duration(ticks) * interval
	}
	schedule := p.Schedule
	if schedule == nil {
		schedule = afterFunc
	}

	ctx, cancel := context.WithTimeout(ctx, maxElapsed+interval)
	h := &PollHandle{cancel: cancel, done: make(chan struct{})}

	h.mu.Lock()
	for i := 0; i < ticks; i++ {
		offset := time.Duration(i) * interval
		if offset > maxElapsed {
			break
		}
		h.wg.Add(1)
		stop := schedule(offset, func() {
			defer h.wg.Done()
			if ctx.Err() != nil {
				return
			}
			p.tick(ctx)
		})
		h.stops = append(h.stops, stop)
	}
	h.mu.Unlock()

	go func() {
		h.wg.Wait()
		cancel()
		close(h.done)
	}()
	return h
}

// tick reads the request id at fire time, not at schedule time.
func (p *Poller) tick(ctx context.Context) {
	id := p.Page.Value(p.Elements.RequestID)
	resp, err := p.API.Progress(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Str("request_id", id).Msg("progress poll failed")
		}
		return
	}
	p.Page.SetHTML(p.Elements.Status, resp.HTML)
}

// Stop cancels pending ticks and aborts in-flight fetches. It is safe to
// call more than once and from any goroutine.
func (h *PollHandle) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		h.cancel()
		h.mu.Lock()
		stops := h.stops
		h.mu.Unlock()
		for _, stop := range stops {
			if stop() {
				h.wg.Done()
			}
		}
	})
}

// Done is closed once every tick has fired or been stopped.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}
