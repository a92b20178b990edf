package recorder

import "context"

// NoopRecorder is a no-op implementation used when PostgreSQL is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ context.Context, _ *RunRecord, _ []*TickerOutcome) error {
	return nil
}
func (n *NoopRecorder) Close() error { return nil }
