package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/douban-sync/app/database"
	"github.com/lysyi3m/douban-sync/app/feed"
	"github.com/lysyi3m/douban-sync/app/tasks"
)

const (
	defaultRunsLimit   = 20
	defaultSearchLimit = 50
	maxLimit           = 500
)

func NewHandler(user, version string, profile *feed.Profile, writer tasks.TableWriter,
	runRepo database.RunRepository, recordRepo database.RecordRepository,
	newSync func() SyncRunner) *Handler {
	return &Handler{
		user:       user,
		version:    version,
		profile:    profile,
		writer:     writer,
		generator:  feed.NewGenerator(version),
		runRepo:    runRepo,
		recordRepo: recordRepo,
		newSync:    newSync,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     h.version,
		"user":        h.user,
		"collections": len(h.profile.Collections()),
		"index":       h.recordRepo != nil,
	}

	if h.runRepo != nil {
		if runs, err := h.runRepo.Recent(1); err == nil && len(runs) > 0 {
			health["last_run"] = newRunResponse(runs[0])
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListCollections(c *gin.Context) {
	collections := h.profile.Collections()
	result := make([]collectionResponse, 0, len(collections))

	for _, collection := range collections {
		rows, err := h.writer.ReadAll(collection.File)
		if err != nil {
			slog.Error("Failed to read table", "file", collection.File, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read table"})
			return
		}
		result = append(result, collectionResponse{
			Name: collection.Name(),
			File: collection.File,
			Type: collection.MediaType,
			Rows: len(rows),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"collections": result,
		"total":       len(result),
	})
}

func (h *Handler) GetCollection(c *gin.Context) {
	collection, ok := h.profile.Collection(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Collection not found"})
		return
	}

	rows, err := h.writer.ReadAll(collection.File)
	if err != nil {
		slog.Error("Failed to read table", "file", collection.File, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read table"})
		return
	}

	records := make([]recordResponse, 0, len(rows))
	for _, row := range rows {
		records = append(records, newRecordResponse(row))
	}

	c.JSON(http.StatusOK, gin.H{
		"name":    collection.Name(),
		"type":    collection.MediaType,
		"records": records,
		"total":   len(records),
	})
}

func (h *Handler) GetFeed(c *gin.Context) {
	collection, ok := h.profile.Collection(c.Param("name"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	rows, err := h.writer.ReadAll(collection.File)
	if err != nil {
		slog.Error("Failed to read table", "file", collection.File, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	channel := feed.Channel{
		Title:       fmt.Sprintf("%s · %s", h.user, collection.Name()),
		Link:        fmt.Sprintf("https://www.douban.com/people/%s/", h.user),
		Description: fmt.Sprintf("Douban %s archive of %s", collection.Name(), h.user),
		SelfLink:    requestURL(c),
	}

	rss, err := h.generator.Run(channel, rows)
	if err != nil {
		slog.Error("RSS generation error", "collection", collection.Name(), "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(rows)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) APIListRuns(c *gin.Context) {
	if h.runRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Index is not available"})
		return
	}

	runs, err := h.runRepo.Recent(queryLimit(c, defaultRunsLimit))
	if err != nil {
		slog.Error("Database error", "operation", "recent_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		result = append(result, newRunResponse(run))
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  result,
		"total": len(result),
	})
}

func (h *Handler) APISearch(c *gin.Context) {
	if h.recordRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Index is not available"})
		return
	}

	collectionName := ""
	if name := c.Query("collection"); name != "" {
		collection, ok := h.profile.Collection(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Collection not found"})
			return
		}
		collectionName = collection.Name()
	}

	query := c.Query("q")
	records, err := h.recordRepo.Search(query, collectionName, queryLimit(c, defaultSearchLimit))
	if err != nil {
		slog.Error("Database error", "operation", "search", "query", query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]indexedRecordResponse, 0, len(records))
	for _, r := range records {
		result = append(result, indexedRecordResponse{
			recordResponse: recordResponse{
				Title:   r.Name,
				URL:     r.Link,
				Date:    r.Date,
				Rating:  r.Rating,
				Status:  r.Status,
				Comment: r.Comment,
			},
			Collection: r.Collection,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"records": result,
		"total":   len(result),
	})
}

func (h *Handler) APISync(c *gin.Context) {
	task := h.newSync()
	err := task.Execute(c.Request.Context())
	result := task.Result()

	resp := syncResponse{
		RunID:        task.GetID(),
		Fetched:      result.Fetched,
		New:          result.New,
		Known:        result.Known,
		Existing:     result.Existing,
		Unclassified: result.Unclassified,
		Failed:       result.Failed,
	}

	if err != nil {
		resp.Error = err.Error()
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, tasks.ErrRunInProgress):
			status = http.StatusConflict
		case errors.Is(err, tasks.ErrFetch):
			status = http.StatusBadGateway
		}
		slog.Error("Sync run failed", "run_id", task.GetID(), "error", err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func queryLimit(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return fallback
	}
	return min(limit, maxLimit)
}

func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, c.Request.URL.Path)
}
