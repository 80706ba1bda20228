package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStep runs a canned function under a fixed name.
type fakeStep struct {
	name string
	fn   func(ctx context.Context) error
}

func (s *fakeStep) Name() string                  { return s.name }
func (s *fakeStep) Run(ctx context.Context) error { return s.fn(ctx) }

func ok(name string) *fakeStep {
	return &fakeStep{name: name, fn: func(ctx context.Context) error { return nil }}
}

// memJournal records journal calls in memory.
type memJournal struct {
	began    []string
	finished map[string]string
	steps    []recordedStep
}

type recordedStep struct {
	name   string
	seq    int
	status string
	err    string
}

func newMemJournal() *memJournal {
	return &memJournal{finished: map[string]string{}}
}

func (j *memJournal) BeginRun(runID string) error {
	j.began = append(j.began, runID)
	return nil
}

func (j *memJournal) RecordStep(runID, step string, seq int, status string, stepErr string, took time.Duration) error {
	j.steps = append(j.steps, recordedStep{name: step, seq: seq, status: status, err: stepErr})
	return nil
}

func (j *memJournal) FinishRun(runID, status string) error {
	j.finished[runID] = status
	return nil
}

func TestWarn(t *testing.T) {
	assert.Nil(t, Warn(nil))

	err := Warnf("disk %s almost full", "sda")
	require.Error(t, err)
	assert.True(t, IsWarning(err))
	assert.Equal(t, "disk sda almost full", err.Error())

	assert.False(t, IsWarning(errors.New("plain")))

	wrapped := errors.New("inner")
	assert.ErrorIs(t, Warn(wrapped), wrapped)
}

func TestRunner_AllStepsSucceed(t *testing.T) {
	journal := newMemJournal()
	runner := NewRunner(testLogger(), journal, nil)

	err := runner.Run(context.Background(), "run-1", []Step{ok("a"), ok("b"), ok("c")})
	require.NoError(t, err)

	assert.Equal(t, []string{"run-1"}, journal.began)
	assert.Equal(t, StatusOK, journal.finished["run-1"])
	require.Len(t, journal.steps, 3)
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, journal.steps[i].name)
		assert.Equal(t, i, journal.steps[i].seq)
		assert.Equal(t, StatusOK, journal.steps[i].status)
	}
}

func TestRunner_FatalErrorAborts(t *testing.T) {
	journal := newMemJournal()
	runner := NewRunner(testLogger(), journal, nil)

	boom := errors.New("boom")
	ran := false
	steps := []Step{
		ok("a"),
		&fakeStep{name: "b", fn: func(ctx context.Context) error { return boom }},
		&fakeStep{name: "c", fn: func(ctx context.Context) error { ran = true; return nil }},
	}

	err := runner.Run(context.Background(), "run-1", steps)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step b failed")

	assert.False(t, ran, "steps after a fatal error must not run")
	assert.Equal(t, StatusFailed, journal.finished["run-1"])
	require.Len(t, journal.steps, 2)
	assert.Equal(t, StatusFailed, journal.steps[1].status)
	assert.Equal(t, "boom", journal.steps[1].err)
}

func TestRunner_WarningContinues(t *testing.T) {
	journal := newMemJournal()
	runner := NewRunner(testLogger(), journal, nil)

	steps := []Step{
		ok("a"),
		&fakeStep{name: "b", fn: func(ctx context.Context) error { return Warnf("skipped") }},
		ok("c"),
	}

	err := runner.Run(context.Background(), "run-1", steps)
	require.NoError(t, err, "warnings must not fail the run")

	assert.Equal(t, StatusOK, journal.finished["run-1"])
	require.Len(t, journal.steps, 3)
	assert.Equal(t, StatusWarning, journal.steps[1].status)
	assert.Equal(t, "skipped", journal.steps[1].err)
	assert.Equal(t, StatusOK, journal.steps[2].status)
}

func TestRunner_CancelledContext(t *testing.T) {
	journal := newMemJournal()
	runner := NewRunner(testLogger(), journal, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runner.Run(ctx, "run-1", []Step{ok("a")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, journal.finished["run-1"])
}

func TestRunner_NilJournalAndObserver(t *testing.T) {
	runner := NewRunner(testLogger(), nil, nil)
	err := runner.Run(context.Background(), "run-1", []Step{ok("a")})
	assert.NoError(t, err)
}

type memObserver struct {
	observed []string
}

func (o *memObserver) ObserveStep(step, status string, took time.Duration) {
	o.observed = append(o.observed, step+":"+status)
}

func TestRunner_ObserverNotified(t *testing.T) {
	observer := &memObserver{}
	runner := NewRunner(testLogger(), nil, observer)

	steps := []Step{
		ok("a"),
		&fakeStep{name: "b", fn: func(ctx context.Context) error { return Warnf("w") }},
	}
	require.NoError(t, runner.Run(context.Background(), "run-1", steps))
	assert.Equal(t, []string{"a:ok", "b:warning"}, observer.observed)
}
