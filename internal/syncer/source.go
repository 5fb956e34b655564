// Package syncer keeps the in-memory indexes current with the agent
// runtime's SQLite memory log. The log is the source of truth; the syncer
// tails it with a resumable rowid cursor, embedding and upserting new
// records in batches.
package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yoniassia/memclawz/internal/errors"
)

// DefaultFetchLimit caps the number of log rows read per fetch.
const DefaultFetchLimit = 500

// Record is one row of the memory log.
type Record struct {
	RowID     int64
	ID        string
	Path      string
	Source    string
	StartLine int
	EndLine   int
	Text      string
	Embedding []float32
	Shared    bool
	UpdatedAt time.Time
}

// Source supplies memory log records beyond a cursor.
type Source interface {
	// Fetch returns up to limit records with rowid greater than cursor,
	// in rowid order.
	Fetch(ctx context.Context, cursor int64, limit int) ([]*Record, error)

	// MaxRowID returns the largest rowid in the log, or 0 when empty.
	MaxRowID(ctx context.Context) (int64, error)

	Close() error
}

// SQLiteSource reads the agent runtime's SQLite memory log.
type SQLiteSource struct {
	db   *sql.DB
	path string
}

var _ Source = (*SQLiteSource)(nil)

// NewSQLiteSource opens the memory log read-only. A missing file is a
// retryable condition reported on the first Fetch, not here, because the
// runtime may create the log after we start.
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	if path == "" {
		return nil, errors.ValidationError("source path is required", nil)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.New(errors.ErrCodeSourceUnavailable,
			fmt.Sprintf("cannot open memory log at %s", path), err)
	}
	db.SetMaxOpenConns(1)

	return &SQLiteSource{db: db, path: path}, nil
}

// Fetch returns up to limit records past the cursor in rowid order. Rows
// whose embedding cannot be decoded come back with a nil Embedding so the
// caller can re-embed them from text.
func (s *SQLiteSource) Fetch(ctx context.Context, cursor int64, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	if err := s.available(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, id, path, source, start_line, end_line, text, embedding, shared, updated_at
		FROM chunks
		WHERE rowid > ?
		ORDER BY rowid
		LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSourceUnavailable,
			fmt.Sprintf("memory log query failed at %s", s.path), err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		var (
			r         Record
			path      sql.NullString
			source    sql.NullString
			text      sql.NullString
			startLine sql.NullInt64
			endLine   sql.NullInt64
			embedding sql.NullString
			shared    sql.NullInt64
			updatedAt sql.NullString
		)
		if err := rows.Scan(&r.RowID, &r.ID, &path, &source, &startLine, &endLine,
			&text, &embedding, &shared, &updatedAt); err != nil {
			return nil, errors.New(errors.ErrCodeSourceUnavailable, "memory log scan failed", err)
		}

		r.Path = path.String
		r.Source = source.String
		r.Text = text.String
		r.StartLine = int(startLine.Int64)
		r.EndLine = int(endLine.Int64)
		r.Shared = shared.Int64 == 1
		if updatedAt.Valid {
			if ts, parseErr := time.Parse(time.RFC3339, updatedAt.String); parseErr == nil {
				r.UpdatedAt = ts
			}
		}
		if embedding.Valid && embedding.String != "" {
			// Embeddings are stored as JSON arrays. Undecodable ones are
			// left nil and regenerated from text downstream.
			var vec []float32
			if jsonErr := json.Unmarshal([]byte(embedding.String), &vec); jsonErr == nil {
				r.Embedding = vec
			}
		}

		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeSourceUnavailable, "memory log iteration failed", err)
	}

	return records, nil
}

// MaxRowID returns the largest rowid in the log.
func (s *SQLiteSource) MaxRowID(ctx context.Context) (int64, error) {
	if err := s.available(); err != nil {
		return 0, err
	}

	var maxID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(rowid) FROM chunks`).Scan(&maxID)
	if err != nil {
		return 0, errors.New(errors.ErrCodeSourceUnavailable,
			fmt.Sprintf("memory log query failed at %s", s.path), err)
	}
	return maxID.Int64, nil
}

// available reports whether the log file exists yet.
func (s *SQLiteSource) available() error {
	if _, err := os.Stat(s.path); err != nil {
		return errors.New(errors.ErrCodeSourceUnavailable,
			fmt.Sprintf("memory log not found at %s", s.path), err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
