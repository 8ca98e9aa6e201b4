package database

type RunRepository interface {
	Start(id string) (*Run, error)
	Finish(run Run) error
	Recent(limit int) ([]Run, error)
}

type RecordRepository interface {
	Upsert(record Record) error
	Replace(collection string, records []Record) error
	Search(query, collection string, limit int) ([]Record, error)
	CountByCollection() (map[string]int, error)
}

var (
	_ RunRepository    = (*RunRepo)(nil)
	_ RecordRepository = (*RecordRepo)(nil)
)
