package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/douban-sync/app/database"
	"github.com/lysyi3m/douban-sync/app/feed"
)

// ReindexTask rebuilds the search index from the tables, which stay authoritative.
type ReindexTask struct {
	Task
	collections []feed.Collection
	writer      TableWriter
	recordRepo  database.RecordRepository
	counts      map[string]int
}

func NewReindexTask(collections []feed.Collection, writer TableWriter, recordRepo database.RecordRepository) *ReindexTask {
	return &ReindexTask{
		Task:        NewTask(TaskTypeReindex),
		collections: collections,
		writer:      writer,
		recordRepo:  recordRepo,
	}
}

// Counts returns the number of rows indexed per collection by the last Execute.
func (t *ReindexTask) Counts() map[string]int {
	return t.counts
}

func (t *ReindexTask) Execute(ctx context.Context) error {
	t.Start()
	t.counts = make(map[string]int, len(t.collections))

	total := 0
	for _, collection := range t.collections {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := t.writer.ReadAll(collection.File)
		if err != nil {
			return fmt.Errorf("failed to read table %s: %w", collection.File, err)
		}

		now := time.Now()
		records := make([]database.Record, 0, len(rows))
		for _, row := range rows {
			record := toIndexRecord(collection.Name(), row)
			record.IndexedAt = now
			records = append(records, record)
		}

		if err := t.recordRepo.Replace(collection.Name(), records); err != nil {
			return fmt.Errorf("failed to index %s: %w", collection.Name(), err)
		}

		t.counts[collection.Name()] = len(records)
		total += len(records)
		slog.Debug("Collection indexed", "collection", collection.Name(), "rows", len(records))
	}

	slog.Info("Task completed",
		"type", "Reindex",
		"duration", t.GetDuration(),
		"collections", len(t.collections),
		"records", total)

	return nil
}
