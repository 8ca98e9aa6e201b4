package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/lysyi3m/douban-sync/app/database"
	"github.com/lysyi3m/douban-sync/app/feed"
	"github.com/lysyi3m/douban-sync/app/state"
)

var (
	ErrFetch         = errors.New("failed to fetch feed")
	ErrWriteFailures = errors.New("failed to write some records")
	ErrRunInProgress = errors.New("another sync run is in progress")
)

// DefaultMaxFeedSize caps the feed document read from the network.
const DefaultMaxFeedSize = 10 << 20

// Result counts what happened to each fetched entry.
type Result struct {
	Fetched      int
	New          int
	Known        int // skipped by the cursor
	Existing     int // already present in the table
	Unclassified int
	Failed       int
}

type SyncConfig struct {
	FeedURL   string
	UserAgent string
	Timeout   time.Duration
	LockFile  string // empty disables the run lock
	MaxSize   int64  // response body limit in bytes, DefaultMaxFeedSize when zero
}

type SyncTask struct {
	Task
	config     SyncConfig
	httpClient *http.Client
	parser     *feed.Parser
	classifier *feed.Classifier
	normalizer *feed.Normalizer
	store      CursorStore
	writer     TableWriter
	runRepo    database.RunRepository    // optional
	recordRepo database.RecordRepository // optional
	result     Result
}

func NewSyncTask(config SyncConfig, httpClient *http.Client, parser *feed.Parser, classifier *feed.Classifier,
	normalizer *feed.Normalizer, store CursorStore, writer TableWriter,
	runRepo database.RunRepository, recordRepo database.RecordRepository) *SyncTask {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SyncTask{
		Task:       NewTask(TaskTypeSync),
		config:     config,
		httpClient: httpClient,
		parser:     parser,
		classifier: classifier,
		normalizer: normalizer,
		store:      store,
		writer:     writer,
		runRepo:    runRepo,
		recordRepo: recordRepo,
	}
}

func (t *SyncTask) Result() Result {
	return t.result
}

func (t *SyncTask) Execute(ctx context.Context) (err error) {
	t.Start()
	t.result = Result{}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	unlock, err := t.lock()
	if err != nil {
		return err
	}
	defer unlock()

	run := t.startRun()
	defer func() { t.finishRun(run, err) }()

	data, err := t.fetchFeed(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	raws, err := t.parser.Run(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	t.result.Fetched = len(raws)

	cursor := t.store.Load()
	seen := make([]string, 0, len(raws))

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return err
		}

		seen = append(seen, raw.ID)
		if cursor.Contains(raw.ID) {
			t.result.Known++
			continue
		}

		rule, ok := t.classifier.Run(raw.Title)
		if !ok {
			t.result.Unclassified++
			slog.Info("Skipping unclassified entry", "title", raw.Title, "id", raw.ID)
			continue
		}

		record := t.normalizer.Run(raw, rule)
		written, err := t.writer.AppendIfAbsent(rule.File, record)
		if err != nil {
			t.result.Failed++
			slog.Error("Failed to append record", "file", rule.File, "link", record.Link, "error", err)
			continue
		}
		if !written {
			t.result.Existing++
			slog.Debug("Record already in table", "file", rule.File, "link", record.Link)
			continue
		}

		t.result.New++
		slog.Debug("Record appended", "file", rule.File, "name", record.Name, "status", record.Status)
		t.indexRecord(rule, record)
	}

	if t.result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrWriteFailures, t.result.Failed, t.result.Fetched)
	}

	if err := t.store.Save(state.NewCursor(seen, time.Now())); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}

	slog.Info("Task completed",
		"type", "Sync",
		"run_id", t.ID,
		"duration", t.GetDuration(),
		"fetched", t.result.Fetched,
		"known", t.result.Known,
		"existing", t.result.Existing,
		"unclassified", t.result.Unclassified,
		"new", t.result.New)

	return nil
}

func (t *SyncTask) lock() (func(), error) {
	if t.config.LockFile == "" {
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(t.config.LockFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fileLock := flock.New(t.config.LockFile)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrRunInProgress
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			slog.Warn("Failed to release run lock", "path", t.config.LockFile, "error", err)
		}
	}, nil
}

func (t *SyncTask) fetchFeed(ctx context.Context) ([]byte, error) {
	timeout := t.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, t.config.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if t.config.UserAgent != "" {
		req.Header.Set("User-Agent", t.config.UserAgent)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	maxSize := t.config.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFeedSize
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxSize)
	}

	return data, nil
}

func (t *SyncTask) indexRecord(rule feed.CategoryRule, record feed.NormalizedRecord) {
	if t.recordRepo == nil {
		return
	}

	err := t.recordRepo.Upsert(toIndexRecord(rule.Collection(), record))
	if err != nil {
		slog.Warn("Failed to index record", "collection", rule.Collection(), "link", record.Link, "error", err)
	}
}

func (t *SyncTask) startRun() *database.Run {
	if t.runRepo == nil {
		return nil
	}

	run, err := t.runRepo.Start(t.ID)
	if err != nil {
		slog.Warn("Failed to record run start", "run_id", t.ID, "error", err)
		return nil
	}
	return run
}

func (t *SyncTask) finishRun(run *database.Run, runErr error) {
	if run == nil {
		return
	}

	run.Status = database.RunStatusCompleted
	if runErr != nil {
		run.Status = database.RunStatusFailed
		run.Error = runErr.Error()
	}
	run.Fetched = t.result.Fetched
	run.New = t.result.New
	run.Known = t.result.Known
	run.Existing = t.result.Existing
	run.Unclassified = t.result.Unclassified
	run.Failed = t.result.Failed

	if err := t.runRepo.Finish(*run); err != nil {
		slog.Warn("Failed to record run result", "run_id", t.ID, "error", err)
	}
}

func toIndexRecord(collection string, record feed.NormalizedRecord) database.Record {
	return database.Record{
		Collection: collection,
		Name:       record.Name,
		Link:       record.Link,
		Date:       record.Date,
		Rating:     record.Rating,
		Status:     record.Status,
		Comment:    record.Comment,
		IndexedAt:  time.Now(),
	}
}
