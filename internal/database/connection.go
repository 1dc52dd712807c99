package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/tutorbot/internal/config"
)

// Open connects to the configured database and creates the schema
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Type {
	case "sqlite", "":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		db, err = sqlx.Connect("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	case "postgres":
		db, err = sqlx.Connect("postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// column types that differ between the two drivers
func schemaReplacer(driver string) *strings.Replacer {
	if driver == "postgres" {
		return strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{ts}}", "TIMESTAMPTZ",
			"{{float}}", "DOUBLE PRECISION",
		)
	}
	return strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ts}}", "TIMESTAMP",
		"{{float}}", "REAL",
	)
}

var schema = []struct {
	name string
	ddl  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			current_level TEXT NOT NULL DEFAULT 'beginner'
				CHECK (current_level IN ('beginner', 'intermediate', 'advanced')),
			streak_count INTEGER NOT NULL DEFAULT 0 CHECK (streak_count >= 0),
			last_active {{ts}},
			frequency TEXT NOT NULL DEFAULT 'once'
				CHECK (frequency IN ('once', 'twice', 'three')),
			last_dispatch_slot TEXT NOT NULL DEFAULT '',
			created_at {{ts}} NOT NULL
		)`},
	{"topics", `
		CREATE TABLE IF NOT EXISTS topics (
			id {{pk}},
			title TEXT NOT NULL UNIQUE,
			difficulty TEXT NOT NULL
				CHECK (difficulty IN ('beginner', 'intermediate', 'advanced')),
			prerequisites TEXT NOT NULL DEFAULT '[]',
			content TEXT NOT NULL DEFAULT '',
			created_at {{ts}} NOT NULL
		)`},
	{"progress_records", `
		CREATE TABLE IF NOT EXISTS progress_records (
			id {{pk}},
			user_id BIGINT NOT NULL REFERENCES users(id),
			topic_id BIGINT NOT NULL REFERENCES topics(id),
			mastery {{float}} NOT NULL DEFAULT 0 CHECK (mastery >= 0 AND mastery <= 1),
			times_practiced INTEGER NOT NULL DEFAULT 0 CHECK (times_practiced >= 0),
			last_practiced {{ts}},
			next_review {{ts}},
			is_bookmarked BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (user_id, topic_id)
		)`},
	{"achievements", `
		CREATE TABLE IF NOT EXISTS achievements (
			id {{pk}},
			user_id BIGINT NOT NULL REFERENCES users(id),
			kind TEXT NOT NULL,
			awarded_at {{ts}} NOT NULL,
			details TEXT NOT NULL DEFAULT '{}',
			UNIQUE (user_id, kind)
		)`},
	{"topic title index", `CREATE UNIQUE INDEX IF NOT EXISTS idx_topics_title_lower ON topics(LOWER(title))`},
	{"progress index", `CREATE INDEX IF NOT EXISTS idx_progress_records_user ON progress_records(user_id)`},
	{"achievements index", `CREATE INDEX IF NOT EXISTS idx_achievements_user ON achievements(user_id)`},
}

// Migrate creates missing tables; it is safe to run on every start
func Migrate(db *sqlx.DB) error {
	r := schemaReplacer(db.DriverName())
	for _, t := range schema {
		if _, err := db.Exec(r.Replace(t.ddl)); err != nil {
			return fmt.Errorf("failed to create %s: %w", t.name, err)
		}
	}
	return nil
}
