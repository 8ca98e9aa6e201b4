package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/douban-sync/app/database"
	"github.com/lysyi3m/douban-sync/app/feed"
	"github.com/lysyi3m/douban-sync/app/table"
	"github.com/lysyi3m/douban-sync/app/tasks"
)

type stubSync struct {
	err    error
	result tasks.Result
}

func (s *stubSync) Execute(ctx context.Context) error {
	return s.err
}

func (s *stubSync) Result() tasks.Result {
	return s.result
}

func (s *stubSync) GetID() string {
	return "run-test"
}

type testEnv struct {
	engine  *gin.Engine
	writer  *table.Writer
	records *database.RecordRepo
	runs    *database.RunRepo
	sync    *stubSync
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	dir := t.TempDir()

	writer := table.NewWriter(dir)
	for _, record := range []feed.NormalizedRecord{
		{Name: "测试书籍A", Link: "https://book.douban.com/subject/1/", Date: "2026-02-10", Rating: "★★★★★", Status: "读过", Comment: "非常好看"},
		{Name: "测试书籍B", Link: "https://book.douban.com/subject/2/", Date: "2026-02-11", Status: "想读"},
	} {
		if _, err := writer.AppendIfAbsent("书.csv", record); err != nil {
			t.Fatal(err)
		}
	}

	db, err := database.Open(filepath.Join(dir, ".douban-index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		writer:  writer,
		records: database.NewRecordRepository(db),
		runs:    database.NewRunRepository(db),
		sync:    &stubSync{result: tasks.Result{Fetched: 3, New: 1, Known: 2}},
	}

	handler := NewHandler("alice", "1.0.0", feed.DefaultProfile(), writer, env.runs, env.records,
		func() SyncRunner { return env.sync })
	env.engine = NewServer(handler, apiKey)
	return env
}

func (e *testEnv) do(method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var body map[string]interface{}
	decode(t, w, &body)
	if body["user"] != "alice" || body["version"] != "1.0.0" {
		t.Errorf("Unexpected health body: %v", body)
	}
	if body["collections"] != float64(4) {
		t.Errorf("Expected 4 collections, got %v", body["collections"])
	}
}

func TestListCollections(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/collections", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var body struct {
		Collections []collectionResponse `json:"collections"`
	}
	decode(t, w, &body)

	rows := make(map[string]int)
	for _, c := range body.Collections {
		rows[c.Name] = c.Rows
	}
	if rows["书"] != 2 || rows["影视"] != 0 {
		t.Errorf("Unexpected row counts: %v", rows)
	}
}

func TestGetCollection(t *testing.T) {
	env := newTestEnv(t, "")

	for _, name := range []string{"书", "book", "书.csv"} {
		w := env.do(http.MethodGet, "/collections/"+url.PathEscape(name), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", name, w.Code)
		}

		var body struct {
			Records []recordResponse `json:"records"`
		}
		decode(t, w, &body)
		if len(body.Records) != 2 {
			t.Fatalf("%s: expected 2 records, got %d", name, len(body.Records))
		}
		if body.Records[0].Title != "测试书籍A" || body.Records[0].Rating != "★★★★★" {
			t.Errorf("%s: unexpected first record %+v", name, body.Records[0])
		}
	}

	if w := env.do(http.MethodGet, "/collections/unknown", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown collection, got %d", w.Code)
	}
}

func TestGetFeed(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/feeds/book", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Expected XML content type, got %s", ct)
	}
	if w.Header().Get("X-Feed-Items") != "2" {
		t.Errorf("Expected X-Feed-Items 2, got %s", w.Header().Get("X-Feed-Items"))
	}

	body := w.Body.String()
	if !strings.Contains(body, "<title>读过 测试书籍A</title>") {
		t.Errorf("Expected item title in feed:\n%s", body)
	}
	if !strings.Contains(body, `<atom:link href="http://example.com/feeds/book"`) {
		t.Errorf("Expected self link in feed:\n%s", body)
	}

	if w := env.do(http.MethodGet, "/feeds/unknown", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown feed, got %d", w.Code)
	}
}

func TestAPIAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	tests := []struct {
		name     string
		header   map[string]string
		expected int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer token", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/api/runs", tt.header)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}

	if w := env.do(http.MethodGet, "/collections", nil); w.Code != http.StatusOK {
		t.Errorf("Expected public routes to stay open, got %d", w.Code)
	}
}

func TestAPIRuns(t *testing.T) {
	env := newTestEnv(t, "")

	run, err := env.runs.Start("run-1")
	if err != nil {
		t.Fatal(err)
	}
	run.Status = database.RunStatusCompleted
	run.New = 4
	if err := env.runs.Finish(*run); err != nil {
		t.Fatal(err)
	}

	w := env.do(http.MethodGet, "/api/runs?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var body struct {
		Runs []runResponse `json:"runs"`
	}
	decode(t, w, &body)
	if len(body.Runs) != 1 || body.Runs[0].ID != "run-1" || body.Runs[0].New != 4 {
		t.Errorf("Unexpected runs: %+v", body.Runs)
	}
}

func TestAPISearch(t *testing.T) {
	env := newTestEnv(t, "")

	if err := env.records.Upsert(database.Record{Collection: "书", Name: "三体", Link: "https://book.douban.com/subject/9/", Comment: "科幻"}); err != nil {
		t.Fatal(err)
	}

	w := env.do(http.MethodGet, "/api/search?q="+url.QueryEscape("科幻")+"&collection=book", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var body struct {
		Records []indexedRecordResponse `json:"records"`
	}
	decode(t, w, &body)
	if len(body.Records) != 1 || body.Records[0].Title != "三体" || body.Records[0].Collection != "书" {
		t.Errorf("Unexpected search result: %+v", body.Records)
	}

	if w := env.do(http.MethodGet, "/api/search?q=x&collection=unknown", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown collection, got %d", w.Code)
	}
}

func TestAPISync(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"completed", nil, http.StatusOK},
		{"run in progress", tasks.ErrRunInProgress, http.StatusConflict},
		{"fetch failed", errors.Join(tasks.ErrFetch, errors.New("timeout")), http.StatusBadGateway},
		{"write failures", tasks.ErrWriteFailures, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.sync.err = tt.err

			w := env.do(http.MethodPost, "/api/sync", nil)
			if w.Code != tt.expected {
				t.Fatalf("Expected status %d, got %d", tt.expected, w.Code)
			}

			var body syncResponse
			decode(t, w, &body)
			if body.RunID != "run-test" || body.New != 1 || body.Known != 2 {
				t.Errorf("Unexpected sync response: %+v", body)
			}
			if (tt.err != nil) != (body.Error != "") {
				t.Errorf("Expected error field to reflect %v, got %q", tt.err, body.Error)
			}
		})
	}
}
