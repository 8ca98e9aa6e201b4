package database

import (
	"database/sql"
	"fmt"
	"time"
)

type RunRepo struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Start records a run in the running state.
func (r *RunRepo) Start(id string) (*Run, error) {
	run := &Run{
		ID:        id,
		StartedAt: time.Now().UTC(),
		Status:    RunStatusRunning,
	}

	_, err := r.db.Exec(`
		INSERT INTO runs (id, started_at, status)
		VALUES (?, ?, ?)
	`, run.ID, formatTime(run.StartedAt), run.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	return run, nil
}

// Finish stores the final counters and status of a run.
func (r *RunRepo) Finish(run Run) error {
	finishedAt := time.Now().UTC()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	res, err := r.db.Exec(`
		UPDATE runs
		SET finished_at = ?, status = ?, fetched = ?, new_count = ?, known = ?,
		    existing = ?, unclassified = ?, failed = ?, error = ?
		WHERE id = ?
	`, formatTime(finishedAt), run.Status, run.Fetched, run.New, run.Known,
		run.Existing, run.Unclassified, run.Failed, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	return nil
}

// Recent returns the latest runs, newest first.
func (r *RunRepo) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(`
		SELECT id, started_at, finished_at, status, fetched, new_count, known,
		       existing, unclassified, failed, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt string
		var finishedAt sql.NullString
		err := rows.Scan(
			&run.ID, &startedAt, &finishedAt, &run.Status, &run.Fetched, &run.New,
			&run.Known, &run.Existing, &run.Unclassified, &run.Failed, &run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		run.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}
