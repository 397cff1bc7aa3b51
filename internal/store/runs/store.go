package runs

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"tidemark/internal/executor"
)

// Store persists execution run records in a dedicated append-heavy database,
// separate from the main ledger file so audit writes never contend with the
// coordination updates.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("runs store root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS execution_runs (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			closed_candle_time INTEGER NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			started_at_ms INTEGER NOT NULL,
			finished_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_execution_runs_bot ON execution_runs(bot_id, closed_candle_time);`,
		`CREATE INDEX IF NOT EXISTS idx_execution_runs_status ON execution_runs(status);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure runs schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Record(ctx context.Context, rec executor.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("runs store is closed")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_runs
			(id, bot_id, symbol, timeframe, closed_candle_time, status, message, started_at_ms, finished_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.BotID, rec.Symbol, rec.Timeframe, rec.ClosedCandleTime,
		rec.Status, rec.Message, rec.StartedAtMs, rec.FinishedAtMs)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the newest runs for one bot, or every bot when botID is
// empty. Used by the ops endpoints.
func (s *Store) Recent(ctx context.Context, botID string, limit int) ([]executor.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("runs store is closed")
	}
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, bot_id, symbol, timeframe, closed_candle_time, status, message, started_at_ms, finished_at_ms
		FROM execution_runs`
	args := []any{}
	if botID != "" {
		query += ` WHERE bot_id = ?`
		args = append(args, botID)
	}
	query += ` ORDER BY started_at_ms DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []executor.RunRecord
	for rows.Next() {
		var rec executor.RunRecord
		var message sql.NullString
		if err := rows.Scan(&rec.ID, &rec.BotID, &rec.Symbol, &rec.Timeframe, &rec.ClosedCandleTime,
			&rec.Status, &message, &rec.StartedAtMs, &rec.FinishedAtMs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Message = message.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
