// Package progress records what each in-flight search is doing so the page
// can poll for it by request id.
package progress

import (
	"bytes"
	"html/template"
	"sync"
	"time"
)

// Step is one recorded stage of a search.
type Step struct {
	Message string
	At      time.Time
}

type entry struct {
	query    string
	started  time.Time
	steps    []Step
	finished time.Time
	err      string
}

// Tracker is safe for concurrent use. The zero value is not usable; call New.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{entries: map[string]*entry{}, now: time.Now}
}

// Begin starts (or restarts) tracking id.
func (t *Tracker) Begin(id, query string) {
	if id == "" {
		return
	}
	now := t.now()
	t.mu.Lock()
	t.entries[id] = &entry{query: query, started: now, steps: []Step{{Message: "Request received", At: now}}}
	t.mu.Unlock()
}

// Step appends a stage message. Unknown ids are ignored.
func (t *Tracker) Step(id, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || !e.finished.IsZero() {
		return
	}
	e.steps = append(e.steps, Step{Message: msg, At: t.now()})
}

// Finish marks id as done. A non-nil err is shown as the last step.
func (t *Tracker) Finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || !e.finished.IsZero() {
		return
	}
	now := t.now()
	e.finished = now
	if err != nil {
		e.err = err.Error()
		e.steps = append(e.steps, Step{Message: "Failed", At: now})
		return
	}
	e.steps = append(e.steps, Step{Message: "Done", At: now})
}

// Steps returns a copy of the recorded steps for id.
func (t *Tracker) Steps(id string) []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	return append([]Step(nil), e.steps...)
}

// Sweep drops entries that finished more than ttl ago and returns how many
// were removed.
func (t *Tracker) Sweep(ttl time.Duration) int {
	cutoff := t.now().Add(-ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, e := range t.entries {
		if !e.finished.IsZero() && e.finished.Before(cutoff) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

var stepsTemplate = template.Must(template.New("steps").Parse(
	`<ol class="list-group list-group-numbered">{{range .Steps}}<li class="list-group-item">{{.Message}} <small class="text-muted">{{.Elapsed}}</small></li>{{end}}</ol>` +
		`{{if .Err}}<div class="text-danger">{{.Err}}</div>{{end}}`))

type stepView struct {
	Message string
	Elapsed string
}

// HTML renders the steps of id as a fragment. Unknown ids render as "".
func (t *Tracker) HTML(id string) string {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return ""
	}
	view := struct {
		Steps []stepView
		Err   string
	}{Err: e.err}
	for _, s := range e.steps {
		view.Steps = append(view.Steps, stepView{Message: s.Message, Elapsed: s.At.Sub(e.started).Round(100 * time.Millisecond).String()})
	}
	t.mu.Unlock()

	var buf bytes.Buffer
	if err := stepsTemplate.Execute(&buf, view); err != nil {
		return ""
	}
	return buf.String()
}
