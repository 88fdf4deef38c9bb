package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// PrefixKey is the config key holding the command prefix shared by every
// module that registers command triggers.
const PrefixKey = "command_prefix"

// DefaultPrefix is used when PrefixKey is unset.
const DefaultPrefix = "."

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Seeded event_channels with one row per day of week
const currentSchemaVersion = 1

// Store provides durable storage for Willow's configuration and event state.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	mu       sync.Mutex
	watchers   map[string]map[int]func(key, value string)
	watcherSeq int
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:       db,
		log:      log,
		watchers: make(map[string]map[int]func(key, value string)),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB, log *slog.Logger) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db, log); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 backfills the seven day-schedule rows for databases created
// before the schedule table was seeded in schema.sql.
func migrateToV1(db *sql.DB, log *slog.Logger) error {
	log.Debug("migrating database to v1")
	for day := 0; day < 7; day++ {
		if _, err := db.Exec(
			"INSERT OR IGNORE INTO event_channels (day_of_week, channel_id) VALUES (?, NULL)", day,
		); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

// isMissingTable reports whether err is SQLite's missing-table error.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// exec runs a statement, lazily re-applying the schema and retrying once if
// the backing table is missing.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if isMissingTable(err) {
		s.log.Warn("table missing, re-applying schema", "error", err)
		if schemaErr := applySchema(s.db, s.log); schemaErr != nil {
			return nil, schemaErr
		}
		return s.db.ExecContext(ctx, query, args...)
	}
	return res, err
}

// queryRow runs a single-row query with the same retry-once discipline as
// exec. The scan error (including sql.ErrNoRows) is returned to the caller.
func (s *Store) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	err := s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	if isMissingTable(err) {
		s.log.Warn("table missing, re-applying schema", "error", err)
		if schemaErr := applySchema(s.db, s.log); schemaErr != nil {
			return schemaErr
		}
		return s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	}
	return err
}
