package api

import (
	"context"
	"time"

	"github.com/lysyi3m/douban-sync/app/database"
	"github.com/lysyi3m/douban-sync/app/feed"
	"github.com/lysyi3m/douban-sync/app/tasks"
)

type GeneratorInterface interface {
	Run(channel feed.Channel, records []feed.NormalizedRecord) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

// SyncRunner is one pull-triggered sync run.
type SyncRunner interface {
	Execute(ctx context.Context) error
	Result() tasks.Result
	GetID() string
}

var _ SyncRunner = (*tasks.SyncTask)(nil)

type Handler struct {
	user       string
	version    string
	profile    *feed.Profile
	writer     tasks.TableWriter
	generator  GeneratorInterface
	runRepo    database.RunRepository    // nil when the index is unavailable
	recordRepo database.RecordRepository // nil when the index is unavailable
	newSync    func() SyncRunner
}

type recordResponse struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Date    string `json:"date"`
	Rating  string `json:"rating"`
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

type indexedRecordResponse struct {
	recordResponse
	Collection string `json:"collection"`
}

type collectionResponse struct {
	Name string `json:"name"`
	File string `json:"file"`
	Type string `json:"type"`
	Rows int    `json:"rows"`
}

type runResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	Fetched      int        `json:"fetched"`
	New          int        `json:"new"`
	Known        int        `json:"known"`
	Existing     int        `json:"existing"`
	Unclassified int        `json:"unclassified"`
	Failed       int        `json:"failed"`
	Error        string     `json:"error,omitempty"`
}

type syncResponse struct {
	RunID        string `json:"run_id"`
	Fetched      int    `json:"fetched"`
	New          int    `json:"new"`
	Known        int    `json:"known"`
	Existing     int    `json:"existing"`
	Unclassified int    `json:"unclassified"`
	Failed       int    `json:"failed"`
	Error        string `json:"error,omitempty"`
}

func newRecordResponse(r feed.NormalizedRecord) recordResponse {
	return recordResponse{
		Title:   r.Name,
		URL:     r.Link,
		Date:    r.Date,
		Rating:  r.Rating,
		Status:  r.Status,
		Comment: r.Comment,
	}
}

func newRunResponse(r database.Run) runResponse {
	resp := runResponse{
		ID:           r.ID,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Fetched:      r.Fetched,
		New:          r.New,
		Known:        r.Known,
		Existing:     r.Existing,
		Unclassified: r.Unclassified,
		Failed:       r.Failed,
		Error:        r.Error,
	}
	if r.FinishedAt != nil {
		resp.Duration = r.Duration().String()
	}
	return resp
}
