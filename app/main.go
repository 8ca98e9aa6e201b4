package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/douban-sync/app/api"
	"github.com/lysyi3m/douban-sync/app/cfg"
	"github.com/lysyi3m/douban-sync/app/database"
	"github.com/lysyi3m/douban-sync/app/feed"
	"github.com/lysyi3m/douban-sync/app/report"
	"github.com/lysyi3m/douban-sync/app/state"
	"github.com/lysyi3m/douban-sync/app/table"
	"github.com/lysyi3m/douban-sync/app/tasks"
	"github.com/mattn/go-isatty"
)

type app struct {
	cfg        *cfg.Cfg
	profile    *feed.Profile
	writer     *table.Writer
	httpClient *http.Client
	db         *database.DB
	runRepo    database.RunRepository
	recordRepo database.RecordRepository
}

func main() {
	config, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if config == nil {
		return
	}

	setupLogger(config.Debug)

	if err := run(config); err != nil {
		slog.Error("Command failed", "command", config.Command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(config *cfg.Cfg) error {
	profile, err := feed.LoadProfile(config.ProfileFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:        config,
		profile:    profile,
		writer:     table.NewWriter(config.OutputDir),
		httpClient: &http.Client{},
	}
	defer a.close()

	slog.Debug("Configuration loaded",
		"command", config.Command,
		"user", config.User,
		"output_dir", config.OutputDir,
		"feed_url", config.FeedURL,
		"version", config.Version)

	switch config.Command {
	case cfg.CommandSync:
		a.tryOpenIndex()
		return a.sync(ctx)
	case cfg.CommandReindex:
		if err := a.openIndex(); err != nil {
			return err
		}
		return tasks.NewReindexTask(profile.Collections(), a.writer, a.recordRepo).Execute(ctx)
	case cfg.CommandStatus:
		a.tryOpenIndex()
		r, err := report.Build(profile.Collections(), a.writer, a.runRepo, a.recordRepo, 10)
		if err != nil {
			return err
		}
		return report.Render(os.Stdout, r)
	case cfg.CommandServe:
		a.tryOpenIndex()
		return a.serve(ctx)
	default:
		return fmt.Errorf("unknown command: %s", config.Command)
	}
}

// openIndex opens the SQLite index and wires the repositories.
func (a *app) openIndex() error {
	db, err := database.Open(a.cfg.IndexDB)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}

	a.db = db
	a.runRepo = database.NewRunRepository(db)
	a.recordRepo = database.NewRecordRepository(db)
	return nil
}

// tryOpenIndex is openIndex for commands that work without the index. The
// index mirrors the tables, so only reindex treats a failure as fatal.
func (a *app) tryOpenIndex() {
	if err := a.openIndex(); err != nil {
		slog.Warn("Index unavailable, continuing without it", "path", a.cfg.IndexDB, "error", err)
	}
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("Failed to close index", "error", err)
		}
	}
}

func (a *app) newSyncTask() *tasks.SyncTask {
	config := tasks.SyncConfig{
		FeedURL:   a.cfg.FeedURL,
		UserAgent: a.cfg.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
		LockFile:  a.cfg.LockFile,
	}
	return tasks.NewSyncTask(config, a.httpClient,
		feed.NewParser(),
		feed.NewClassifier(a.profile.Rules),
		feed.NewNormalizer(a.profile, a.cfg.Location),
		state.NewStore(a.cfg.StateFile),
		a.writer,
		a.runRepo,
		a.recordRepo)
}

func (a *app) sync(ctx context.Context) error {
	task := a.newSyncTask()
	if err := task.Execute(ctx); err != nil {
		return err
	}

	result := task.Result()
	fmt.Printf("Synced %s: %d new, %d known, %d already archived, %d unclassified (%d fetched)\n",
		a.cfg.User, result.New, result.Known, result.Existing, result.Unclassified, result.Fetched)
	return nil
}

func (a *app) serve(ctx context.Context) error {
	handler := api.NewHandler(a.cfg.User, a.cfg.Version, a.profile, a.writer, a.runRepo, a.recordRepo,
		func() api.SyncRunner { return a.newSyncTask() })
	server := api.NewServer(handler, a.cfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: a.cfg.FetchTimeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", a.cfg.Port, "user", a.cfg.User, "output_dir", a.cfg.OutputDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server")
	case err := <-serverErrChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}
