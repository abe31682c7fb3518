package sink

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liqsim/internal/core"
)

func TestSQLiteSink_PersistsRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "results.db")
	s, err := NewSQLiteSink(dbPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.WriteRunParams(ctx, core.RunParams{RunID: "run-1", ScenarioID: "scenario-00000", Accounts: 2}))
	require.NoError(t, s.WriteStepRecord(ctx, sampleStep("run-1", 100)))
	require.NoError(t, s.WriteStepRecord(ctx, sampleStep("run-1", 200)))
	require.NoError(t, s.WriteStepMetrics(ctx, core.StepMetrics{RunID: "run-1", ScenarioID: "scenario-00000", Timestamp: 100}))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	count := func(table string) int {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		return n
	}
	assert.Equal(t, 1, count("run_params"))
	assert.Equal(t, 2, count("step_records"))
	assert.Equal(t, 1, count("step_metrics"))

	var payload string
	require.NoError(t, db.QueryRow("SELECT payload FROM step_records WHERE timestamp = 100").Scan(&payload))
	assert.Contains(t, payload, `"liquidator-1"`)
}

func TestSQLiteSink_SchemaIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "results.db")

	s1, err := NewSQLiteSink(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.WriteRunParams(context.Background(), core.RunParams{RunID: "run-1"}))
	require.NoError(t, s1.Close())

	// reopening an existing database keeps prior rows
	s2, err := NewSQLiteSink(dbPath)
	require.NoError(t, err)
	require.NoError(t, s2.WriteRunParams(context.Background(), core.RunParams{RunID: "run-2"}))
	require.NoError(t, s2.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM run_params").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestSQLiteSink_BadPath(t *testing.T) {
	_, err := NewSQLiteSink("/nonexistent-dir/sub/results.db")
	assert.Error(t, err)
}
