// Package history keeps a DuckDB log of answered questions.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/marcboeker/go-duckdb"

	"github.com/ada-analyst/console/internal/models"
)

// DefaultLimit is the number of entries returned when List is called with a
// non-positive limit.
const DefaultLimit = 10

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS history_seq`,
	`CREATE TABLE IF NOT EXISTS history (
		id           BIGINT PRIMARY KEY DEFAULT nextval('history_seq'),
		session_id   VARCHAR NOT NULL,
		dataset_id   VARCHAR NOT NULL,
		question     VARCHAR NOT NULL,
		answer       VARCHAR,
		has_chart    BOOLEAN NOT NULL,
		preview_rows INTEGER NOT NULL,
		asked_at     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_id, dataset_id)`,
}

// Recorder is the subset of Store the console depends on.
type Recorder interface {
	Record(ctx context.Context, e models.HistoryEntry) error
	List(ctx context.Context, sessionID, datasetID string, limit int) ([]models.HistoryEntry, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Store is a DuckDB-backed question history.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	closeOnce sync.Once
}

// Open opens or creates the history database at path. An empty path keeps the
// history in memory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create history table: %w", err)
		}
	}

	logger.Info("history store opened", "path", displayPath(path))
	return &Store{db: db, path: path, logger: logger}, nil
}

// Record appends one answered question.
func (s *Store) Record(ctx context.Context, e models.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (session_id, dataset_id, question, answer, has_chart, preview_rows, asked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.DatasetID, e.Question, e.Answer, e.HasChart, e.PreviewRows, e.AskedAt)
	if err != nil {
		return fmt.Errorf("recording history: %w", err)
	}
	return nil
}

// List returns the most recent entries of a session, newest first. An empty
// datasetID matches every dataset of the session.
func (s *Store) List(ctx context.Context, sessionID, datasetID string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, dataset_id, question, COALESCE(answer, ''), has_chart, preview_rows, asked_at
		FROM history
		WHERE session_id = ? AND (? = '' OR dataset_id = ?)
		ORDER BY asked_at DESC, id DESC
		LIMIT ?`,
		sessionID, datasetID, datasetID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.SessionID, &e.DatasetID, &e.Question, &e.Answer, &e.HasChart, &e.PreviewRows, &e.AskedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteSession drops every entry of a session and returns how many were
// removed.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the total number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting history: %w", err)
	}
	return n, nil
}

// Close releases the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}
