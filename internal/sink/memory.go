// Package sink provides the append-only result stores pipelines write to.
package sink

import (
	"context"
	"sync"

	"liqsim/internal/core"
)

// MemorySink implements core.IResultSink in memory. Safe for concurrent
// append from multiple pipelines; used by tests and small batches.
type MemorySink struct {
	mu      sync.Mutex
	params  []core.RunParams
	steps   []core.StepRecord
	metrics []core.StepMetrics
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) WriteRunParams(_ context.Context, rec core.RunParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = append(s.params, rec)
	return nil
}

func (s *MemorySink) WriteStepRecord(_ context.Context, rec core.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, rec)
	return nil
}

func (s *MemorySink) WriteStepMetrics(_ context.Context, rec core.StepMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, rec)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// RunParams returns a copy of every run-params record written so far.
func (s *MemorySink) RunParams() []core.RunParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RunParams, len(s.params))
	copy(out, s.params)
	return out
}

// StepRecords returns a copy of every step record written so far.
func (s *MemorySink) StepRecords() []core.StepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.StepRecord, len(s.steps))
	copy(out, s.steps)
	return out
}

// StepMetrics returns a copy of every metrics record written so far.
func (s *MemorySink) StepMetrics() []core.StepMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.StepMetrics, len(s.metrics))
	copy(out, s.metrics)
	return out
}
