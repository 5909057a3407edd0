// Package prefs persists the small key-value state the web surface keeps in
// browser storage: the chat mode preference and the pending agent prompt.
package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ModePreference is the persisted routing choice.
type ModePreference string

const (
	ModeChat     ModePreference = "chat"     // Fire-and-forget single response
	ModeExecute  ModePreference = "execute"  // Full agent run
	ModeAdaptive ModePreference = "adaptive" // Classify, then maybe run
)

// DefaultMode is used when nothing is persisted or the value is unknown.
const DefaultMode = ModeAdaptive

const (
	// KeyModePreference matches the web surface's storage key so both
	// clients read the same preference.
	KeyModePreference = "iris-chat-mode-preference"

	// KeyPendingPrompt is the session-scoped prompt consumed on mount.
	KeyPendingPrompt = "pendingAgentPrompt"
)

// Store is a SQLite-backed key-value store. WAL mode makes writes visible to
// peer processes, which stands in for the browser's cross-tab storage events.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at the given path.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping preference store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set writes a key. The write is durable before Set returns, so a submit
// issued afterwards observes the new value from any process.
func (s *Store) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Get reads a key. Missing keys return ("", nil).
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Mode returns the persisted mode preference. Absent or unrecognized values
// fall back to the default rather than erroring.
func (s *Store) Mode(ctx context.Context) ModePreference {
	value, err := s.Get(ctx, KeyModePreference)
	if err != nil {
		return DefaultMode
	}
	switch ModePreference(value) {
	case ModeChat, ModeExecute, ModeAdaptive:
		return ModePreference(value)
	default:
		return DefaultMode
	}
}

// SetMode persists the mode preference.
func (s *Store) SetMode(ctx context.Context, m ModePreference) error {
	return s.Set(ctx, KeyModePreference, string(m))
}

// TakePendingPrompt consumes and deletes the pending prompt, if any.
func (s *Store) TakePendingPrompt(ctx context.Context) (string, bool, error) {
	value, err := s.Get(ctx, KeyPendingPrompt)
	if err != nil {
		return "", false, err
	}
	if value == "" {
		return "", false, nil
	}
	if err := s.Delete(ctx, KeyPendingPrompt); err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetPendingPrompt stores a prompt for the next mount to pick up.
func (s *Store) SetPendingPrompt(ctx context.Context, prompt string) error {
	return s.Set(ctx, KeyPendingPrompt, prompt)
}
