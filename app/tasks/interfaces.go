package tasks

import (
	"github.com/lysyi3m/douban-sync/app/feed"
	"github.com/lysyi3m/douban-sync/app/state"
	"github.com/lysyi3m/douban-sync/app/table"
)

// CursorStore persists the ids seen by the last successful run.
type CursorStore interface {
	Load() state.Cursor
	Save(cursor state.Cursor) error
}

// TableWriter appends normalized records to per-collection tables.
type TableWriter interface {
	AppendIfAbsent(file string, record feed.NormalizedRecord) (bool, error)
	ReadAll(file string) ([]feed.NormalizedRecord, error)
}

var (
	_ CursorStore   = (*state.Store)(nil)
	_ TableWriter   = (*table.Writer)(nil)
	_ TaskInterface = (*SyncTask)(nil)
	_ TaskInterface = (*ReindexTask)(nil)
)
