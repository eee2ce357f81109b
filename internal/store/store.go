// Package store is the sqlite persistence layer: sources, videos, pages and
// the versioned config blob.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// Config defines the sqlite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig matches the daemon's WAL profile.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  90 * time.Second,
		MaxOpenConns: 100,
	}
}

// Store wraps the connection pool.
type Store struct {
	db *sql.DB
}

// Open initializes the pool with mandatory pragmas applied to every
// connection via the DSN, then runs migrations.
func Open(ctx context.Context, dbPath string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close shuts the pool down.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for the control API's health check.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS video_source (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		f_id INTEGER NOT NULL DEFAULT 0,
		upper_id INTEGER NOT NULL DEFAULT 0,
		collection_id INTEGER NOT NULL DEFAULT 0,
		collection_kind TEXT NOT NULL DEFAULT '',
		season_id INTEGER NOT NULL DEFAULT 0,
		media_id INTEGER NOT NULL DEFAULT 0,
		ep_id INTEGER NOT NULL DEFAULT 0,
		download_all_seasons INTEGER NOT NULL DEFAULT 0,
		rule TEXT NOT NULL DEFAULT '',
		latest_row_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE (kind, f_id, upper_id, collection_id, collection_kind, season_id, media_id, ep_id)
	)`,
	`CREATE TABLE IF NOT EXISTS video (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES video_source(id),
		bvid TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		intro TEXT NOT NULL DEFAULT '',
		cover TEXT NOT NULL DEFAULT '',
		category INTEGER NOT NULL DEFAULT 2,
		upper_id INTEGER NOT NULL DEFAULT 0,
		upper_name TEXT NOT NULL DEFAULT '',
		upper_face TEXT NOT NULL DEFAULT '',
		ctime INTEGER NOT NULL DEFAULT 0,
		pubtime INTEGER NOT NULL DEFAULT 0,
		favtime INTEGER NOT NULL DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '[]',
		single_page INTEGER,
		path TEXT NOT NULL DEFAULT '',
		download_status INTEGER NOT NULL DEFAULT 0,
		should_download INTEGER NOT NULL DEFAULT 1,
		valid INTEGER NOT NULL DEFAULT 1,
		UNIQUE (source_id, bvid)
	)`,
	`CREATE TABLE IF NOT EXISTS page (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id INTEGER NOT NULL REFERENCES video(id),
		cid INTEGER NOT NULL,
		pid INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		duration INTEGER NOT NULL DEFAULT 0,
		image TEXT NOT NULL DEFAULT '',
		download_status INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL DEFAULT '',
		UNIQUE (video_id, pid)
	)`,
	`CREATE TABLE IF NOT EXISTS config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		payload TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_video_source_status ON video(source_id, download_status)`,
	`CREATE INDEX IF NOT EXISTS idx_page_video ON page(video_id)`,
}
