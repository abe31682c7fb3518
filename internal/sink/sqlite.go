package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	_ "github.com/mattn/go-sqlite3"

	"liqsim/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_params (
	run_id      TEXT NOT NULL,
	scenario_id TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS step_records (
	run_id      TEXT NOT NULL,
	scenario_id TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS step_metrics (
	run_id      TEXT NOT NULL,
	scenario_id TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_step_records_run ON step_records(run_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_step_metrics_run ON step_metrics(run_id, timestamp);
`

// SQLiteSink persists simulation records to a SQLite database. Records are
// append-only; rows are tagged with run and scenario ids and JSON payloads.
// Writes are serialized by a mutex since SQLite allows one writer at a time,
// and retried on transient failures.
type SQLiteSink struct {
	db    *sql.DB
	mu    sync.Mutex
	retry retrypolicy.RetryPolicy[any]
}

// NewSQLiteSink opens (or creates) the database at dbPath, enables WAL mode
// and ensures the schema exists.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL keeps readers unblocked while pipelines append
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	retry := retrypolicy.Builder[any]().
		WithBackoff(50*time.Millisecond, time.Second).
		WithMaxRetries(3).
		Build()

	return &SQLiteSink{db: db, retry: retry}, nil
}

func (s *SQLiteSink) WriteRunParams(ctx context.Context, rec core.RunParams) error {
	return s.insert(ctx,
		`INSERT INTO run_params (run_id, scenario_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		rec, rec.RunID, rec.ScenarioID)
}

func (s *SQLiteSink) WriteStepRecord(ctx context.Context, rec core.StepRecord) error {
	return s.insertStep(ctx,
		`INSERT INTO step_records (run_id, scenario_id, timestamp, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec, rec.RunID, rec.ScenarioID, rec.Timestamp)
}

func (s *SQLiteSink) WriteStepMetrics(ctx context.Context, rec core.StepMetrics) error {
	return s.insertStep(ctx,
		`INSERT INTO step_metrics (run_id, scenario_id, timestamp, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec, rec.RunID, rec.ScenarioID, rec.Timestamp)
}

func (s *SQLiteSink) insert(ctx context.Context, query string, payload interface{}, runID, scenarioID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return failsafe.Run(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.ExecContext(ctx, query, runID, scenarioID, string(data), time.Now().UnixNano())
		return err
	}, s.retry)
}

func (s *SQLiteSink) insertStep(ctx context.Context, query string, payload interface{}, runID, scenarioID string, ts int64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return failsafe.Run(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.ExecContext(ctx, query, runID, scenarioID, ts, string(data), time.Now().UnixNano())
		return err
	}, s.retry)
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
