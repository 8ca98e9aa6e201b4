package database

import (
	"fmt"
	"strings"
	"time"
)

const upsertRecordQuery = `
	INSERT INTO records (collection, link, name, date, rating, status, comment, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (link) DO UPDATE SET
		collection = excluded.collection,
		name = excluded.name,
		date = excluded.date,
		rating = excluded.rating,
		status = excluded.status,
		comment = excluded.comment,
		indexed_at = excluded.indexed_at
`

type RecordRepo struct {
	db *DB
}

func NewRecordRepository(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

func (r *RecordRepo) Upsert(record Record) error {
	_, err := r.db.Exec(upsertRecordQuery, recordArgs(record)...)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// Replace swaps every indexed row of a collection for the given records in one transaction.
func (r *RecordRepo) Replace(collection string, records []Record) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", collection, err)
	}

	stmt, err := tx.Prepare(upsertRecordQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		record.Collection = collection
		if _, err := stmt.Exec(recordArgs(record)...); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", record.Link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collection %s: %w", collection, err)
	}
	return nil
}

// Search matches query against name and comment. An empty collection searches all of them.
func (r *RecordRepo) Search(query, collection string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := r.db.Query(`
		SELECT collection, link, name, date, rating, status, comment, indexed_at
		FROM records
		WHERE (name LIKE ? ESCAPE '\' OR comment LIKE ? ESCAPE '\')
		  AND (? = '' OR collection = ?)
		ORDER BY date DESC, name
		LIMIT ?
	`, pattern, pattern, collection, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var indexedAt string
		err := rows.Scan(&record.Collection, &record.Link, &record.Name, &record.Date,
			&record.Rating, &record.Status, &record.Comment, &indexedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		record.IndexedAt = parseTime(indexedAt)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}

	return records, nil
}

func (r *RecordRepo) CountByCollection() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT collection, COUNT(*) FROM records GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var collection string
		var count int
		if err := rows.Scan(&collection, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[collection] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating count rows: %w", err)
	}

	return counts, nil
}

func recordArgs(record Record) []any {
	indexedAt := record.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}
	return []any{
		record.Collection, record.Link, record.Name, record.Date,
		record.Rating, record.Status, record.Comment, formatTime(indexedAt),
	}
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
