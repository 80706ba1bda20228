// Package pipeline runs the ordered provisioning steps. Each step yields a
// typed outcome: success, warning (journaled, pipeline continues) or fatal
// error (pipeline aborts, journal marked failed). There is no rollback;
// re-running the whole pipeline is the recovery path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Step is a single provisioning action. Step names are part of the journal
// contract and must stay stable across releases.
type Step interface {
	Name() string
	Run(ctx context.Context) error
}

// warning wraps an error a step considers non-fatal.
type warning struct {
	err error
}

func (w *warning) Error() string { return w.err.Error() }
func (w *warning) Unwrap() error { return w.err }

// Warn marks an error as a non-fatal pipeline warning.
func Warn(err error) error {
	if err == nil {
		return nil
	}
	return &warning{err: err}
}

// Warnf formats a non-fatal pipeline warning.
func Warnf(format string, args ...any) error {
	return Warn(fmt.Errorf(format, args...))
}

// IsWarning reports whether err was produced by Warn.
func IsWarning(err error) bool {
	var w *warning
	return errors.As(err, &w)
}

// Journal records run and step outcomes. Implemented by the state package;
// a nil Journal disables recording.
type Journal interface {
	BeginRun(runID string) error
	RecordStep(runID, step string, seq int, status string, stepErr string, took time.Duration) error
	FinishRun(runID, status string) error
}

// Observer is notified of step outcomes, for metrics.
type Observer interface {
	ObserveStep(step, status string, took time.Duration)
}

// Step and run statuses stored in the journal.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusFailed  = "failed"
)

// Runner executes steps in order.
type Runner struct {
	log      *slog.Logger
	journal  Journal
	observer Observer
}

// NewRunner creates a pipeline runner. journal and observer may be nil.
func NewRunner(log *slog.Logger, journal Journal, observer Observer) *Runner {
	return &Runner{log: log, journal: journal, observer: observer}
}

// Run executes the steps sequentially. The first fatal step error aborts the
// run and is returned; warnings are logged and recorded but do not stop the
// pipeline. The journal retains which step failed, so a partial run leaves a
// machine-readable marker.
func (r *Runner) Run(ctx context.Context, runID string, steps []Step) error {
	if r.journal != nil {
		if err := r.journal.BeginRun(runID); err != nil {
			return fmt.Errorf("could not journal run start: %w", err)
		}
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			r.finish(runID, StatusFailed)
			return fmt.Errorf("pipeline interrupted before step %s: %w", step.Name(), err)
		}

		r.log.Info("Running step", "step", step.Name(), "seq", i+1, "total", len(steps))
		start := time.Now()
		err := step.Run(ctx)
		took := time.Since(start)

		switch {
		case err == nil:
			r.record(runID, step.Name(), i, StatusOK, "", took)
			r.log.Info("Step complete", "step", step.Name(), "took", took.Round(time.Millisecond))
		case IsWarning(err):
			r.record(runID, step.Name(), i, StatusWarning, err.Error(), took)
			r.log.Warn("Step finished with warning", "step", step.Name(), "warning", err.Error())
		default:
			r.record(runID, step.Name(), i, StatusFailed, err.Error(), took)
			r.finish(runID, StatusFailed)
			r.log.Error("Step failed, aborting pipeline", "step", step.Name(), "err", err)
			return fmt.Errorf("step %s failed: %w", step.Name(), err)
		}
	}

	r.finish(runID, StatusOK)
	return nil
}

func (r *Runner) record(runID, step string, seq int, status, stepErr string, took time.Duration) {
	if r.observer != nil {
		r.observer.ObserveStep(step, status, took)
	}
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordStep(runID, step, seq, status, stepErr, took); err != nil {
		r.log.Warn("Could not journal step outcome", "step", step, "err", err)
	}
}

func (r *Runner) finish(runID, status string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.FinishRun(runID, status); err != nil {
		r.log.Warn("Could not journal run completion", "err", err)
	}
}
