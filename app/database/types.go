package database

import (
	"time"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       string
	Fetched      int
	New          int
	Known        int
	Existing     int
	Unclassified int
	Failed       int
	Error        string
}

func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Record mirrors one table row. Collection is the table name without extension.
type Record struct {
	Collection string
	Name       string
	Link       string
	Date       string
	Rating     string
	Status     string
	Comment    string
	IndexedAt  time.Time
}
