package recorder

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresRecorder persists run history to a PostgreSQL database.
type PostgresRecorder struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewPostgresRecorder connects to PostgreSQL and runs migrations.
func NewPostgresRecorder(dsn string) (*PostgresRecorder, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Println("[INFO] postgres recorder connected")
	return r, nil
}

func (r *PostgresRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id      TEXT PRIMARY KEY,
			period      TEXT NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			requested   INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			cache_hits  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ticker_outcomes (
			id                    BIGSERIAL PRIMARY KEY,
			run_id                TEXT NOT NULL REFERENCES analysis_runs(run_id),
			ticker                TEXT NOT NULL,
			sharpe_ratio          DOUBLE PRECISION,
			annualized_return     DOUBLE PRECISION,
			annualized_volatility DOUBLE PRECISION,
			sample_size           INTEGER,
			partial               BOOLEAN,
			retries               INTEGER,
			from_cache            BOOLEAN,
			failure_reason        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run ON ticker_outcomes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_ticker ON ticker_outcomes(ticker)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun writes the run summary and all per-ticker outcomes in a single
// transaction.
func (r *PostgresRecorder) RecordRun(ctx context.Context, run *RunRecord, outcomes []*TickerOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `INSERT INTO analysis_runs
		(run_id, period, started_at, duration_ms, requested, succeeded, failed, cache_hits)
		VALUES (:run_id, :period, :started_at, :duration_ms, :requested, :succeeded, :failed, :cache_hits)`,
		run,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, out := range outcomes {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO ticker_outcomes
			(run_id, ticker, sharpe_ratio, annualized_return, annualized_volatility,
			 sample_size, partial, retries, from_cache, failure_reason)
			VALUES (:run_id, :ticker, :sharpe_ratio, :annualized_return, :annualized_volatility,
			 :sample_size, :partial, :retries, :from_cache, :failure_reason)`,
			out,
		); err != nil {
			return fmt.Errorf("insert outcome %s: %w", out.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Close() error {
	log.Println("[INFO] closing postgres recorder")
	return r.db.Close()
}
