package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := NewLogger(&Config{Level: DebugLevel, Format: TextFormat, Writer: &buf, DisableTimestamp: true})
	require.NoError(t, err)
	return log, &buf
}

func TestProgressTracker(t *testing.T) {
	log, buf := newBufferLogger(t)

	tracker := NewProgressTracker(ProgressConfig{Operation: "reclassify_statements", Total: 4, Logger: log})
	tracker.Increment()
	tracker.Increment()
	tracker.Fail()

	stats := tracker.Stats()
	assert.Equal(t, 2, stats.Done)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 50.0, stats.Percentage, 0.001)
	assert.Contains(t, stats.String(), "reclassify_statements: 2/4")

	final := tracker.Complete()
	assert.Equal(t, 2, final.Done)
	assert.Contains(t, buf.String(), "Operation completed")
	assert.Contains(t, buf.String(), "50.0%")
}

func TestProgressTracker_NoTotal(t *testing.T) {
	log, buf := newBufferLogger(t)

	tracker := NewProgressTracker(ProgressConfig{Operation: "scan", Logger: log})
	tracker.Increment()
	stats := tracker.CompleteWithError(errors.New("disk gone"))

	assert.Zero(t, stats.Percentage)
	assert.Equal(t, "scan: 1 processed in "+stats.Duration.String(), stats.String())
	assert.Contains(t, buf.String(), "disk gone")
}

func TestTimedOperation(t *testing.T) {
	log, buf := newBufferLogger(t)

	require.NoError(t, TimedOperation("rekey_patterns", log, func() error { return nil }))
	assert.Contains(t, buf.String(), "operation=rekey_patterns")

	buf.Reset()
	boom := errors.New("boom")
	err := TimedOperation("import_patterns", log, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "Operation failed")
}
