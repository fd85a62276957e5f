package ui

import "sync"

// Elements names the page elements the controller reads and writes.
type Elements struct {
	RequestID       string
	Query           string
	SubscriptionKey string
	APIKey          string
	UseSource       string
	Provider        string
	Model           string

	SubmitButton string
	Spinner      string
	Results      string
	Explain      string
	Status       string
}

// DefaultElements returns the element ids used by the served search page.
func DefaultElements() Elements {
	return Elements{
		RequestID:       "request_id",
		Query:           "form1",
		SubscriptionKey: "bing_search_subscription_key",
		APIKey:          "openai_api_key",
		UseSource:       "is_use_source",
		Provider:        "llm_service_provider",
		Model:           "llm_model",
		SubmitButton:    "search-btn",
		Spinner:         "search-result-spinner",
		Results:         "search-results",
		Explain:         "explain_results",
		Status:          "search-result-step",
	}
}

// Page is the part of a rendered search page the controller touches.
// Implementations must be safe for concurrent use.
type Page interface {
	Value(id string) string
	Checked(id string) bool
	SetHTML(id, html string)
	SetVisible(id string, visible bool)
	SetDisabled(id string, disabled bool)
}

// Document is an in-memory Page. Unknown ids read as empty, hidden and
// enabled; writes to unknown ids create them.
type Document struct {
	mu          sync.RWMutex
	values      map[string]string
	checked     map[string]bool
	html        map[string]string
	visible     map[string]bool
	disabled    map[string]bool
	navigations int

	// OnHTML, when set, is called after every SetHTML outside the lock.
	OnHTML func(id, html string)
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		values:   map[string]string{},
		checked:  map[string]bool{},
		html:     map[string]string{},
		visible:  map[string]bool{},
		disabled: map[string]bool{},
	}
}

func (d *Document) Value(id string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.values[id]
}

func (d *Document) SetValue(id, v string) {
	d.mu.Lock()
	d.values[id] = v
	d.mu.Unlock()
}

func (d *Document) Checked(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.checked[id]
}

func (d *Document) SetChecked(id string, on bool) {
	d.mu.Lock()
	d.checked[id] = on
	d.mu.Unlock()
}

func (d *Document) HTML(id string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.html[id]
}

func (d *Document) SetHTML(id, html string) {
	d.mu.Lock()
	d.html[id] = html
	hook := d.OnHTML
	d.mu.Unlock()
	if hook != nil {
		hook(id, html)
	}
}

func (d *Document) Visible(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.visible[id]
}

func (d *Document) SetVisible(id string, visible bool) {
	d.mu.Lock()
	d.visible[id] = visible
	d.mu.Unlock()
}

func (d *Document) Disabled(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disabled[id]
}

func (d *Document) SetDisabled(id string, disabled bool) {
	d.mu.Lock()
	d.disabled[id] = disabled
	d.mu.Unlock()
}

// Navigate records a page navigation. The controller never calls it; a
// non-zero count after a submission means something followed the form's
// default action.
func (d *Document) Navigate() {
	d.mu.Lock()
	d.navigations++
	d.mu.Unlock()
}

// Navigations reports how many times the document navigated away.
func (d *Document) Navigations() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.navigations
}
