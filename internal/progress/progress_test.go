package progress

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestTracker() (*Tracker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := New()
	tr.now = clk.now
	return tr, clk
}

func TestTracker_StepsInOrder(t *testing.T) {
	tr, clk := newTestTracker()
	tr.Begin("r1", "q")
	clk.t = clk.t.Add(time.Second)
	tr.Step("r1", "Searching the web")
	clk.t = clk.t.Add(2 * time.Second)
	tr.Finish("r1", nil)

	steps := tr.Steps("r1")
	require.Len(t, steps, 3)
	assert.Equal(t, "Request received", steps[0].Message)
	assert.Equal(t, "Searching the web", steps[1].Message)
	assert.Equal(t, "Done", steps[2].Message)

	html := tr.HTML("r1")
	assert.True(t, strings.Index(html, "Searching the web") < strings.Index(html, "Done"))
	assert.Contains(t, html, "3s")
}

func TestTracker_UnknownIDRendersEmpty(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Step("nope", "ignored")
	assert.Equal(t, "", tr.HTML("nope"))
	assert.Nil(t, tr.Steps("nope"))
}

func TestTracker_FinishWithErrorEscapes(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Begin("r1", "q")
	tr.Finish("r1", errors.New("<b>bad</b>"))
	tr.Step("r1", "after finish")

	html := tr.HTML("r1")
	assert.Contains(t, html, "Failed")
	assert.Contains(t, html, "&lt;b&gt;bad&lt;/b&gt;")
	assert.NotContains(t, html, "after finish")
}

func TestTracker_SweepDropsOldFinished(t *testing.T) {
	tr, clk := newTestTracker()
	tr.Begin("done", "q")
	tr.Finish("done", nil)
	tr.Begin("running", "q")
	clk.t = clk.t.Add(time.Hour)

	assert.Equal(t, 1, tr.Sweep(10*time.Minute))
	assert.Nil(t, tr.Steps("done"))
	assert.NotNil(t, tr.Steps("running"))
}
