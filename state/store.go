// Package state journals deployment runs and step outcomes to SQLite. The
// journal is the machine-readable marker of partial completion: after an
// aborted run it names the failed step, and the status/history subcommands
// read it back.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS deployments (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deployment_steps (
	deployment_id TEXT NOT NULL REFERENCES deployments(id),
	seq INTEGER NOT NULL,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (deployment_id, seq)
);
`

// Run is a single pipeline invocation.
type Run struct {
	ID         string     `db:"id"`
	Status     string     `db:"status"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

// StepRecord is the outcome of one step within a run.
type StepRecord struct {
	DeploymentID string    `db:"deployment_id"`
	Seq          int       `db:"seq"`
	Name         string    `db:"name"`
	Status       string    `db:"status"`
	Error        string    `db:"error"`
	DurationMS   int64     `db:"duration_ms"`
	RecordedAt   time.Time `db:"recorded_at"`
}

// Store wraps the SQLite connection.
type Store struct {
	db *sqlx.DB
}

// Open connects to the journal database, creating the file and schema on
// first use.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("could not create state directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a pipeline run with status "running".
func (s *Store) BeginRun(runID string) error {
	_, err := s.db.Exec(
		`INSERT INTO deployments (id, status, started_at) VALUES ($1, 'running', $2)`,
		runID, time.Now().UTC())
	return err
}

// RecordStep journals a step outcome.
func (s *Store) RecordStep(runID, step string, seq int, status string, stepErr string, took time.Duration) error {
	_, err := s.db.Exec(
		`INSERT INTO deployment_steps (deployment_id, seq, name, status, error, duration_ms, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (deployment_id, seq) DO UPDATE SET status = $4, error = $5, duration_ms = $6, recorded_at = $7`,
		runID, seq, step, status, stepErr, took.Milliseconds(), time.Now().UTC())
	return err
}

// FinishRun records the terminal status of a run.
func (s *Store) FinishRun(runID, status string) error {
	_, err := s.db.Exec(
		`UPDATE deployments SET status = $1, finished_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), runID)
	return err
}

// LastRun returns the most recently started run, or nil when the journal is
// empty.
func (s *Store) LastRun() (*Run, error) {
	var run Run
	err := s.db.Get(&run, `SELECT * FROM deployments ORDER BY started_at DESC LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// Runs returns up to limit recent runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := s.db.Select(&runs, `SELECT * FROM deployments ORDER BY started_at DESC LIMIT $1`, limit)
	return runs, err
}

// Steps returns the step records for a run in execution order.
func (s *Store) Steps(runID string) ([]StepRecord, error) {
	var steps []StepRecord
	err := s.db.Select(&steps,
		`SELECT * FROM deployment_steps WHERE deployment_id = $1 ORDER BY seq`, runID)
	return steps, err
}
