package database

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index", "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenRunsMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected re-running migrations to succeed, got: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected schema version 2, got %d", version)
	}
	if dirty {
		t.Error("Expected clean migration state")
	}

	for _, table := range []string{"runs", "records"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestRunRepository(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))

	first, err := repo.Start("run-1")
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	if first.Status != RunStatusRunning {
		t.Errorf("Expected status %s, got %s", RunStatusRunning, first.Status)
	}

	first.Status = RunStatusCompleted
	first.Fetched = 5
	first.New = 2
	first.Known = 1
	first.Existing = 1
	first.Unclassified = 1
	if err := repo.Finish(*first); err != nil {
		t.Fatalf("Failed to finish run: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	second, err := repo.Start("run-2")
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	second.Status = RunStatusFailed
	second.Error = "fetch failed"
	if err := repo.Finish(*second); err != nil {
		t.Fatalf("Failed to finish run: %v", err)
	}

	runs, err := repo.Recent(10)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}

	if runs[0].ID != "run-2" || runs[0].Error != "fetch failed" {
		t.Errorf("Expected newest run first, got %+v", runs[0])
	}
	if runs[1].Fetched != 5 || runs[1].New != 2 || runs[1].Unclassified != 1 {
		t.Errorf("Counters not stored: %+v", runs[1])
	}
	if runs[1].FinishedAt == nil {
		t.Error("Expected finished_at to be set")
	}
}

func TestRunRepositoryFinishUnknownRun(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))

	if err := repo.Finish(Run{ID: "missing", Status: RunStatusCompleted}); err == nil {
		t.Error("Expected error for unknown run")
	}
}

func TestRecordRepositoryUpsertAndSearch(t *testing.T) {
	repo := NewRecordRepository(openTestDB(t))

	records := []Record{
		{Collection: "书", Name: "三体", Link: "https://book.douban.com/subject/2567698/", Date: "2026-02-10", Status: "读过", Comment: "科幻经典"},
		{Collection: "影视", Name: "流浪地球", Link: "https://movie.douban.com/subject/26266893/", Date: "2026-02-11", Status: "看过", Comment: "改编自刘慈欣"},
		{Collection: "书", Name: "100%_test", Link: "https://book.douban.com/subject/1/", Date: "2026-01-01", Status: "想读"},
	}
	for _, record := range records {
		if err := repo.Upsert(record); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
	}

	results, err := repo.Search("科幻", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Name != "三体" {
		t.Errorf("Expected comment match for 三体, got %+v", results)
	}

	results, err = repo.Search("", "书", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 books, got %d", len(results))
	}
	if len(results) == 2 && results[0].Date != "2026-02-10" {
		t.Errorf("Expected newest record first, got %s", results[0].Date)
	}

	results, err = repo.Search("%", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Name != "100%_test" {
		t.Errorf("Expected literal %% match only, got %+v", results)
	}

	updated := records[0]
	updated.Rating = "★★★★★"
	if err := repo.Upsert(updated); err != nil {
		t.Fatal(err)
	}
	results, err = repo.Search("三体", "书", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Rating != "★★★★★" {
		t.Errorf("Expected upsert to update the existing row, got %+v", results)
	}
}

func TestRecordRepositoryReplaceAndCount(t *testing.T) {
	repo := NewRecordRepository(openTestDB(t))

	if err := repo.Upsert(Record{Collection: "书", Name: "stale", Link: "https://x/stale/"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(Record{Collection: "音乐", Name: "song", Link: "https://x/song/"}); err != nil {
		t.Fatal(err)
	}

	err := repo.Replace("书", []Record{
		{Name: "a", Link: "https://x/a/"},
		{Name: "b", Link: "https://x/b/"},
	})
	if err != nil {
		t.Fatalf("Failed to replace: %v", err)
	}

	counts, err := repo.CountByCollection()
	if err != nil {
		t.Fatal(err)
	}
	if counts["书"] != 2 {
		t.Errorf("Expected 2 books after replace, got %d", counts["书"])
	}
	if counts["音乐"] != 1 {
		t.Errorf("Expected other collections untouched, got %d", counts["音乐"])
	}

	results, err := repo.Search("stale", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("Expected stale row removed, got %+v", results)
	}
}
