// Package store persists dynamic intent registrations in SQLite so learned
// vocabulary survives restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lehdermann/ontomed/internal/logging"
	"github.com/lehdermann/ontomed/internal/nlp"
)

// LocalStore is a SQLite-backed nlp.RegistrationStore. A single connection
// with WAL keeps writers serialized without blocking readers.
type LocalStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewLocalStore opens (and migrates) the database at path, creating parent
// directories as needed.
func NewLocalStore(path string) (*LocalStore, error) {
	log := logging.Get(logging.CategoryStore)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debugw("pragma failed", "pragma", pragma, "error", err)
		}
	}

	s := &LocalStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Infow("registration store opened", "path", path)
	return s, nil
}

func (s *LocalStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS dynamic_intents (
			name        TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			payload     TEXT NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS intent_keywords (
			intent  TEXT NOT NULL,
			keyword TEXT NOT NULL,
			PRIMARY KEY (intent, keyword)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_mappings (
			tag    TEXT PRIMARY KEY,
			intent TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate registration store: %w", err)
		}
	}
	return nil
}

// SaveRegistration upserts one registration. The full payload is stored as
// JSON; keywords and entity tags are also broken out into queryable rows.
func (s *LocalStore) SaveRegistration(ctx context.Context, di nlp.DynamicIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(di)
	if err != nil {
		return fmt.Errorf("encode registration %q: %w", di.Name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dynamic_intents (name, description, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   description = excluded.description,
		   payload     = excluded.payload,
		   updated_at  = excluded.updated_at`,
		di.Name, di.Description, string(payload), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("save registration %q: %w", di.Name, err)
	}

	for _, kw := range di.Keywords {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO intent_keywords (intent, keyword) VALUES (?, ?)`,
			di.Name, kw,
		); err != nil {
			return fmt.Errorf("save keyword %q: %w", kw, err)
		}
	}
	for _, tag := range di.ExpectedEntities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_mappings (tag, intent) VALUES (?, ?)
			 ON CONFLICT(tag) DO UPDATE SET intent = excluded.intent`,
			tag, di.Name,
		); err != nil {
			return fmt.Errorf("save entity mapping %q: %w", tag, err)
		}
	}

	return tx.Commit()
}

// LoadRegistrations returns every persisted registration, oldest first.
func (s *LocalStore) LoadRegistrations(ctx context.Context) ([]nlp.DynamicIntent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM dynamic_intents ORDER BY updated_at, name`)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}
	defer rows.Close()

	var out []nlp.DynamicIntent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		var di nlp.DynamicIntent
		if err := json.Unmarshal([]byte(payload), &di); err != nil {
			logging.Get(logging.CategoryStore).Warnw("skipping corrupt registration payload", "error", err)
			continue
		}
		out = append(out, di)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *LocalStore) Close() error {
	return s.db.Close()
}
