package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	feedURLTemplate = "https://www.douban.com/feed/people/%s/interests"
	stateFileName   = ".douban-rss-state.json"
	indexFileName   = ".douban-index.db"
	lockFileName    = ".douban-sync.lock"
)

var ErrUserRequired = errors.New("DOUBAN_USER environment variable or --user flag is required")

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Source feed
	User      string `long:"user" env:"DOUBAN_USER" description:"Douban user whose interests feed is archived (required)"`
	FeedURL   string `long:"feed-url" env:"FEED_URL" description:"Override the feed URL derived from the user"`
	Timeout   int    `long:"timeout" env:"FETCH_TIMEOUT" default:"30" description:"Feed fetch timeout in seconds"`
	UserAgent string `long:"user-agent" env:"USER_AGENT" description:"User agent string for HTTP requests"`

	// Storage
	BaseDir     string `long:"base-dir" env:"DOUBAN_OUTPUT_DIR" description:"Base directory; tables go to <base-dir>/<user> (default: ~/obsidian-vault/豆瓣)"`
	OutputDir   string `long:"output-dir" env:"OUTPUT_DIR" description:"Directory holding the CSV tables (overrides <base-dir>/<user>)"`
	StateFile   string `long:"state-file" env:"STATE_FILE" description:"Sync cursor file (default: <output-dir>/.douban-rss-state.json)"`
	IndexDB     string `long:"index-db" env:"INDEX_DB" description:"SQLite run ledger and search index (default: <output-dir>/.douban-index.db)"`
	ProfileFile string `long:"profile" env:"PROFILE_FILE" description:"YAML file with category rules and rating keywords (default: built-in)"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port for the serve command"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for /api endpoints (optional)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone used to derive calendar dates (e.g., UTC, Asia/Shanghai)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Sync    struct{} `command:"sync" description:"Fetch the feed and append new entries to the tables (default)"`
	Serve   struct{} `command:"serve" description:"Serve the archived tables over HTTP"`
	Reindex struct{} `command:"reindex" description:"Rebuild the search index from the tables"`
	Status  struct{} `command:"status" description:"Show recent runs and collection sizes"`
}

// Load parses command-line arguments and environment variables.
// It returns nil, nil when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.SubcommandsOptional = true

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	command := CommandSync
	if parser.Active != nil {
		command = Command(parser.Active.Name)
	}

	user := strings.TrimSpace(raw.User)
	if user == "" {
		return nil, ErrUserRequired
	}

	outputDir, err := resolveOutputDir(raw.OutputDir, raw.BaseDir, user)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cmp.Or(raw.Timezone, "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", raw.Timezone, err)
	}

	version := GetVersion()
	cfg := &Cfg{
		Command:      command,
		User:         user,
		FeedURL:      cmp.Or(raw.FeedURL, fmt.Sprintf(feedURLTemplate, user)),
		Timeout:      raw.Timeout,
		UserAgent:    cmp.Or(raw.UserAgent, fmt.Sprintf("Mozilla/5.0 (compatible; douban-sync/%s)", version)),
		OutputDir:    outputDir,
		StateFile:    cmp.Or(raw.StateFile, filepath.Join(outputDir, stateFileName)),
		IndexDB:      cmp.Or(raw.IndexDB, filepath.Join(outputDir, indexFileName)),
		LockFile:     filepath.Join(outputDir, lockFileName),
		ProfileFile:  raw.ProfileFile,
		Port:         raw.Port,
		APIAccessKey: raw.APIAccessKey,
		Timezone:     loc.String(),
		Location:     loc,
		Debug:        raw.Debug,
		Version:      version,
	}

	return cfg, nil
}

func resolveOutputDir(outputDir, baseDir, user string) (string, error) {
	if outputDir != "" {
		return outputDir, nil
	}
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		baseDir = filepath.Join(home, "obsidian-vault", "豆瓣")
	}
	return filepath.Join(baseDir, user), nil
}
