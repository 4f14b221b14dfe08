package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// maxAllocAttempts bounds retries when another process wins a slot.
	maxAllocAttempts = 8

	instanceSuffix = "/ClassAndVrmInstance"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
	path       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS class_instances (
	class    TEXT NOT NULL,
	instance INTEGER NOT NULL,
	path     TEXT NOT NULL UNIQUE,
	UNIQUE (class, instance)
);`

// StoreConfig configures a SQLiteStore.
type StoreConfig struct {
	// Path is the SQLite database file. The directory is created if needed.
	Path string

	// BusyTimeout is how long to wait for a lock held by another process.
	BusyTimeout time.Duration
}

// SQLiteStore is a local settings collaborator backed by SQLite.
//
// Instance settings (paths ending in /ClassAndVrmInstance) are allocated so
// that no two paths share a "<class>:<instance>" value: a new path gets the
// lowest free instance at or above the requested default. Allocation runs in
// an immediate transaction, so concurrent processes sharing the file never
// hand out the same slot.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenStore opens or creates a settings database.
func OpenStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrInvalidRequest)
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening settings database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying settings database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("creating settings schema: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions)

	return &SQLiteStore{db: db, path: cfg.Path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing settings database: %w", err)
	}
	return nil
}

// AddSetting ensures the setting exists. An existing setting is returned in
// the AddSettings result shape. A new one is returned as its bare value,
// which the bus settings service never does.
func (s *SQLiteStore) AddSetting(ctx context.Context, req Request) ([]any, error) {
	path := normalizePath(req.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	typ := req.Type
	if typ == "" {
		typ = defaultValueType
	}

	var lastErr error
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		reply, err := s.addOnce(ctx, path, req.Default, typ)
		if err == nil {
			return reply, nil
		}
		if !isConstraint(err) {
			return nil, fmt.Errorf("%w: %v", ErrCollaborator, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: allocation for %s kept conflicting: %v", ErrCollaborator, path, lastErr)
}

func (s *SQLiteStore) addOnce(ctx context.Context, path, def, typ string) ([]any, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE path = ?`, path).Scan(&existing)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing: %w", err)
		}
		return existingReply(path, existing), nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	value := def
	if class, slot, ok := parseInstanceValue(def); ok && strings.HasSuffix(path, instanceSuffix) {
		instance, err := nextFreeInstance(ctx, tx, class, slot)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO class_instances (class, instance, path) VALUES (?, ?, ?)`,
			class, instance, path); err != nil {
			return nil, err
		}
		value = fmt.Sprintf("%s:%d", class, instance)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO settings (path, value, type) VALUES (?, ?, ?)`, path, value, typ); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	return createdReply(value), nil
}

// nextFreeInstance returns the lowest instance >= slot not taken in class.
func nextFreeInstance(ctx context.Context, tx *sql.Tx, class string, slot int32) (int32, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT instance FROM class_instances WHERE class = ? AND instance >= ? ORDER BY instance`,
		class, slot)
	if err != nil {
		return 0, fmt.Errorf("listing %s instances: %w", class, err)
	}
	defer rows.Close()

	next := slot
	for rows.Next() {
		var taken int32
		if err := rows.Scan(&taken); err != nil {
			return 0, fmt.Errorf("scanning instance: %w", err)
		}
		if taken > next {
			break
		}
		next = taken + 1
	}
	return next, rows.Err()
}

// Get returns the stored value of a setting.
func (s *SQLiteStore) Get(ctx context.Context, path string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE path = ?`, normalizePath(path)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", path, err)
	}
	return value, true, nil
}

// Instances returns the allocated instances of a class keyed by setting path.
func (s *SQLiteStore) Instances(ctx context.Context, class string) (map[string]int32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, instance FROM class_instances WHERE class = ? ORDER BY instance`, class)
	if err != nil {
		return nil, fmt.Errorf("listing %s instances: %w", class, err)
	}
	defer rows.Close()

	out := make(map[string]int32)
	for rows.Next() {
		var path string
		var instance int32
		if err := rows.Scan(&path, &instance); err != nil {
			return nil, fmt.Errorf("scanning instance: %w", err)
		}
		out[path] = instance
	}
	return out, rows.Err()
}

func existingReply(path, value string) []any {
	return []any{[]map[string]any{{
		"path":  "/" + path,
		"value": value,
		"error": int32(0),
	}}}
}

func createdReply(value string) []any {
	return []any{value}
}

func parseInstanceValue(v string) (string, int32, bool) {
	class, suffix, ok := strings.Cut(v, ":")
	if !ok || class == "" {
		return "", 0, false
	}
	n, err := strconv.ParseInt(suffix, 10, 32)
	if err != nil || n < 0 {
		return "", 0, false
	}
	return class, int32(n), true
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

var _ Collaborator = (*SQLiteStore)(nil)
