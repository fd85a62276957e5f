// Package ui drives a search page: it dispatches the search form to the
// server and keeps the status region fresh while the search runs.
package ui

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/searchgpt/internal/client"
)

// API is what the controller needs from the search server.
type API interface {
	ProgressFetcher
	Search(ctx context.Context, p client.SearchParams) (client.SearchResponse, error)
}

// Controller binds a Page to the search API.
type Controller struct {
	API      API
	Page     Page
	Elements Elements

	// Poll schedule; zero values take the Poller defaults.
	Ticks      int
	Interval   time.Duration
	MaxElapsed time.Duration
	Schedule   Scheduler

	// KeepPolling lets the schedule run to completion after the search
	// settles. By default the poller stops as soon as the search returns.
	KeepPolling bool
}

// Submission tracks one dispatched search.
type Submission struct {
	done chan struct{}
	err  error
	poll *PollHandle
}

// Wait blocks until the search call settles and returns its error.
func (s *Submission) Wait() error {
	<-s.done
	return s.err
}

// Done is closed when the search call settles.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Poll returns the progress schedule started with the submission.
func (s *Submission) Poll() *PollHandle { return s.poll }

// Submit handles one form submission. The page never navigates; instead the
// submit control is disabled, the busy indicator shown and the result
// regions hidden until the search settles.
func (c *Controller) Submit(ctx context.Context) *Submission {
	el := c.elements()
	params := client.SearchParams{
		RequestID: c.Page.Value(el.RequestID),
		Query:     c.Page.Value(el.Query),
		Credentials: client.Credentials{
			SubscriptionKey: c.Page.Value(el.SubscriptionKey),
			APIKey:          c.Page.Value(el.APIKey),
		},
		UseSource: c.Page.Checked(el.UseSource),
		Provider:  c.Page.Value(el.Provider),
		Model:     c.Page.Value(el.Model),
	}

	c.Page.SetDisabled(el.SubmitButton, true)
	c.Page.SetVisible(el.Spinner, true)
	c.Page.SetVisible(el.Results, false)
	c.Page.SetVisible(el.Explain, false)

	poller := &Poller{
		API:        c.API,
		Page:       c.Page,
		Elements:   el,
		Ticks:      c.Ticks,
		Interval:   c.Interval,
		MaxElapsed: c.MaxElapsed,
		Schedule:   c.Schedule,
	}
	s := &Submission{done: make(chan struct{})}
	s.poll = poller.Start(ctx)

	go func() {
		defer close(s.done)
		resp, err := c.API.Search(ctx, params)
		if err != nil {
			c.fail(el, params, err)
		} else {
			c.succeed(el, resp)
		}
		s.err = err
		if !c.KeepPolling {
			s.poll.Stop()
		}
	}()
	return s
}

func (c *Controller) succeed(el Elements, resp client.SearchResponse) {
	region := resp.ID
	if region == "" {
		log.Warn().Str("fallback", el.Results).Msg("search response has no region id")
		region = el.Results
	}
	c.Page.SetHTML(region, resp.HTML)
	c.Page.SetHTML(el.Explain, resp.ExplainHTML)
	c.settle(el)
	c.Page.SetVisible(el.Results, true)
	c.Page.SetVisible(el.Explain, true)
}

func (c *Controller) fail(el Elements, params client.SearchParams, err error) {
	log.Error().Err(err).Str("request_id", params.RequestID).Msg("search failed")
	c.Page.SetHTML(el.Explain, FailureFragment(err))
	c.settle(el)
	c.Page.SetVisible(el.Explain, true)
}

func (c *Controller) settle(el Elements) {
	c.Page.SetDisabled(el.SubmitButton, false)
	c.Page.SetVisible(el.Spinner, false)
}

func (c *Controller) elements() Elements {
	if c.Elements == (Elements{}) {
		return DefaultElements()
	}
	return c.Elements
}

// FailureFragment renders the explanation shown when a search fails.
func FailureFragment(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return `<div class="alert alert-danger" role="alert">Search failed: ` + html.EscapeString(msg) + `</div>`
}
