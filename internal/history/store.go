// Package history persists batch runs and their per-world outcomes.
//
// The conversion engine stays persistence-free; callers feed its event
// stream into a Store from the outside.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

// Run is one recorded batch
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     domain.RunStatus
	Total      int
	Succeeded  int
	Cancelled  bool
	Format     string
	OutputRoot string
}

// Outcome is one recorded world conversion
type Outcome struct {
	RunID    string
	Position int
	World    string
	Success  bool
	Message  string
	Warnings int
	Duration time.Duration
}

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// New opens the history database at dbPath, creating the schema if needed
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart registers a new run as running
func (s *Store) RecordStart(runID string, startedAt time.Time, total int, cfg domain.ConversionConfig) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, status, total, format, output_root)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, startedAt, string(domain.StatusRunning), total, cfg.Format, cfg.OutputRoot)
	return err
}

// RecordOutcome appends one world's outcome to a run. Position is the
// world's index in submission order.
func (s *Store) RecordOutcome(runID string, position int, o domain.ConversionOutcome) error {
	_, err := s.db.Exec(`
		INSERT INTO outcomes (run_id, position, world, success, message, warnings, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, position, o.World, o.Success, o.Message, len(o.Warnings), o.Duration.Milliseconds())
	return err
}

// RecordFinish closes a run with its final result
func (s *Store) RecordFinish(runID string, finishedAt time.Time, status domain.RunStatus, result domain.BatchResult) error {
	res, err := s.db.Exec(`
		UPDATE runs
		SET finished_at = ?, status = ?, succeeded = ?, cancelled = ?
		WHERE id = ?
	`, finishedAt, string(status), result.Succeeded, result.Cancelled, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun retrieves one run by ID
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, finished_at, status, total, succeeded, cancelled, format, output_root
		FROM runs WHERE id = ?
	`, runID)
	return scanRun(row)
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, status, total, succeeded, cancelled, format, output_root
		FROM runs ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunOutcomes returns a run's outcomes in submission order
func (s *Store) RunOutcomes(runID string) ([]*Outcome, error) {
	rows, err := s.db.Query(`
		SELECT run_id, position, world, success, message, warnings, duration_ms
		FROM outcomes WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*Outcome
	for rows.Next() {
		var o Outcome
		var message sql.NullString
		var durationMS int64
		if err := rows.Scan(&o.RunID, &o.Position, &o.World, &o.Success, &message, &o.Warnings, &durationMS); err != nil {
			return nil, err
		}
		if message.Valid {
			o.Message = message.String
		}
		o.Duration = time.Duration(durationMS) * time.Millisecond
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var status string
	var finished sql.NullTime
	var outputRoot sql.NullString

	err := row.Scan(&run.ID, &run.StartedAt, &finished, &status, &run.Total, &run.Succeeded, &run.Cancelled, &run.Format, &outputRoot)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if outputRoot.Valid {
		run.OutputRoot = outputRoot.String
	}
	return &run, nil
}
