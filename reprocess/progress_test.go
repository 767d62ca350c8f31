package reprocess

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 4, 2)

	tracker.Start()
	assert.True(t, tracker.started, "should be started")

	tracker.Record(true)
	tracker.Record(false)
	tracker.Record(true)
	tracker.Record(true)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	output := buf.String()
	assert.Contains(t, output, "2/4")
	assert.Contains(t, output, "4/4")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "1 failed")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 100)

	tracker.Start()
	tracker.Record(true)
	assert.Empty(t, buf.String(), "interval not reached")

	tracker.Finish()
	output := buf.String()
	assert.Contains(t, output, "1/10")
	assert.Contains(t, output, "\n", "finish should print newline")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Record(true)
	tracker.Finish()

	assert.Empty(t, buf.String())
	assert.Zero(t, tracker.Elapsed())
}

func TestProgressTracker_RecordBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1, 1)

	tracker.Start()
	tracker.Record(true)
	tracker.Record(true)

	assert.NotContains(t, buf.String(), "2/1")
}
