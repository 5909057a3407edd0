// Package history archives finished chat sessions locally and makes their
// transcripts searchable.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ThreadRecord is one archived session.
type ThreadRecord struct {
	ThreadID   string
	ProjectID  string
	Prompt     string
	Transcript string
	Mode       string
	CreatedAt  int64
}

// Archive stores finished sessions in SQLite and mirrors their transcripts
// into a full-text index.
type Archive struct {
	db    *sql.DB
	index *Index
}

// Open creates or opens the archive at dbPath. The search index lives next
// to it at dbPath + ".bleve".
func Open(ctx context.Context, dbPath string) (*Archive, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history archive: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping history archive: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		thread_id  TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		prompt     TEXT NOT NULL,
		transcript TEXT NOT NULL,
		mode       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_threads_project ON threads(project_id);
	CREATE INDEX IF NOT EXISTS idx_threads_created ON threads(created_at);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	index, err := OpenIndex(dbPath + ".bleve")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Archive{db: db, index: index}, nil
}

// Close closes the database and the search index.
func (a *Archive) Close() error {
	ierr := a.index.Close()
	derr := a.db.Close()
	if derr != nil {
		return derr
	}
	return ierr
}

// Save upserts an archived thread and reindexes its transcript.
func (a *Archive) Save(ctx context.Context, rec ThreadRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	query := `
		INSERT INTO threads (thread_id, project_id, prompt, transcript, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			transcript = excluded.transcript,
			prompt = excluded.prompt,
			mode = excluded.mode
	`
	_, err := a.db.ExecContext(ctx, query, rec.ThreadID, rec.ProjectID, rec.Prompt, rec.Transcript, rec.Mode, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to archive thread %s: %w", rec.ThreadID, err)
	}

	return a.index.IndexThread(rec)
}

// Get loads one archived thread.
func (a *Archive) Get(ctx context.Context, threadID string) (*ThreadRecord, error) {
	query := `SELECT thread_id, project_id, prompt, transcript, mode, created_at FROM threads WHERE thread_id = ?`
	var rec ThreadRecord
	err := a.db.QueryRowContext(ctx, query, threadID).Scan(
		&rec.ThreadID, &rec.ProjectID, &rec.Prompt, &rec.Transcript, &rec.Mode, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns archived threads, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]ThreadRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT thread_id, project_id, prompt, transcript, mode, created_at
		FROM threads ORDER BY created_at DESC LIMIT ?
	`
	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var out []ThreadRecord
	for rows.Next() {
		var rec ThreadRecord
		if err := rows.Scan(&rec.ThreadID, &rec.ProjectID, &rec.Prompt, &rec.Transcript, &rec.Mode, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search runs a full-text query over archived transcripts and resolves the
// hits back to their records.
func (a *Archive) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	hits, err := a.index.Search(query, k)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		rec, err := a.Get(ctx, hit.ThreadID)
		if err == sql.ErrNoRows {
			continue // Index ahead of the table; drop the orphan
		}
		if err != nil {
			return nil, err
		}
		hit.Prompt = rec.Prompt
		hit.ProjectID = rec.ProjectID
		out = append(out, hit)
	}
	return out, nil
}
