package recorder

import (
	"context"
	"time"
)

// RunRecord summarizes one analysis run.
type RunRecord struct {
	RunID      string    `db:"run_id"`
	Period     string    `db:"period"`
	StartedAt  time.Time `db:"started_at"`
	DurationMS int64     `db:"duration_ms"`
	Requested  int       `db:"requested"`
	Succeeded  int       `db:"succeeded"`
	Failed     int       `db:"failed"`
	CacheHits  int       `db:"cache_hits"`
}

// TickerOutcome holds the result for a single ticker within a run. For
// failed tickers the metric columns stay zero and FailureReason is set.
type TickerOutcome struct {
	RunID                string  `db:"run_id"`
	Ticker               string  `db:"ticker"`
	SharpeRatio          float64 `db:"sharpe_ratio"`
	AnnualizedReturn     float64 `db:"annualized_return"`
	AnnualizedVolatility float64 `db:"annualized_volatility"`
	SampleSize           int     `db:"sample_size"`
	Partial              bool    `db:"partial"`
	Retries              int     `db:"retries"`
	FromCache            bool    `db:"from_cache"`
	FailureReason        string  `db:"failure_reason"`
}

// Recorder persists run history for later analysis.
type Recorder interface {
	RecordRun(ctx context.Context, run *RunRecord, outcomes []*TickerOutcome) error
	Close() error
}
