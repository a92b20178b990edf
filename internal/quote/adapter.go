package quote

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sharpefeed/internal/model"
)

// AdapterOptions bounds the adapter's time and parallelism budgets.
type AdapterOptions struct {
	Timeout       time.Duration // per logical fetch, default 30s
	BulkTimeout   time.Duration // whole FetchBulk call, default 5m
	MaxConcurrent int           // parallel fetches in FetchBulk, default 10
}

// Adapter wraps a Source with retries, a circuit breaker and call stats.
// One adapter (and therefore one breaker) is shared process-wide per source.
type Adapter struct {
	source  Source
	retry   RetryPolicy
	breaker *CircuitBreaker
	opts    AdapterOptions

	calls    atomic.Uint64
	failures atomic.Uint64
	retries  atomic.Uint64
}

// NewAdapter creates an Adapter around source.
func NewAdapter(source Source, retry RetryPolicy, breaker *CircuitBreaker, opts AdapterOptions) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BulkTimeout <= 0 {
		opts.BulkTimeout = 5 * time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	return &Adapter{source: source, retry: retry, breaker: breaker, opts: opts}
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Fetch retrieves the price history for one ticker, retrying transient
// failures per the retry policy. The breaker sees exactly one outcome per
// logical fetch: retry exhaustion counts as a failure, a permanent error
// counts as a success (the source answered), cancellation counts as nothing.
func (a *Adapter) Fetch(ctx context.Context, ticker string, period model.Period) (*model.QuoteSeries, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, ErrInvalidTicker
	}
	if !period.Valid() {
		return nil, fmt.Errorf("period %q: %w", period, ErrInvalidPeriod)
	}
	if err := a.breaker.Allow(); err != nil {
		return nil, err
	}

	a.calls.Add(1)
	var series *model.QuoteSeries
	retries, err := a.retry.Do(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
		s, ferr := a.source.FetchHistory(cctx, ticker, period)
		if ferr != nil {
			return ferr
		}
		series = s
		return nil
	})
	a.retries.Add(uint64(retries))

	if err != nil {
		if ctx.Err() != nil {
			// caller gave up, no verdict about the source
			a.breaker.CancelTrial()
			return nil, err
		}
		a.failures.Add(1)
		if IsTransient(err) {
			a.breaker.RecordFailure()
			log.Printf("[WARN] fetch %s gave up after %d retries: %v", ticker, retries, err)
			return nil, &DataSourceError{Ticker: ticker, Attempts: retries + 1, Err: err}
		}
		a.breaker.RecordSuccess()
		return nil, err
	}

	a.breaker.RecordSuccess()
	series.Retries = retries
	return series, nil
}

// FetchBulk fetches many tickers with bounded parallelism. It never fails
// wholesale: every requested ticker lands in exactly one of the returned maps.
func (a *Adapter) FetchBulk(ctx context.Context, tickers []string, period model.Period) (map[string]*model.QuoteSeries, map[string]error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.BulkTimeout)
	defer cancel()

	results := make(map[string]*model.QuoteSeries)
	errs := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, a.opts.MaxConcurrent)

	for _, t := range dedupe(tickers) {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				errs[ticker] = ctx.Err()
				mu.Unlock()
				return
			}
			series, err := a.Fetch(ctx, ticker, period)
			mu.Lock()
			if err != nil {
				errs[ticker] = err
			} else {
				results[ticker] = series
			}
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	return results, errs
}

// dedupe normalizes tickers and drops blanks and repeats, keeping order.
func dedupe(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = NormalizeTicker(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AdapterStats is a point-in-time snapshot of adapter activity.
type AdapterStats struct {
	Calls        uint64
	Failures     uint64
	Retries      uint64
	SuccessRate  float64
	CircuitState CircuitState
}

// Stats reports cumulative fetch counters and the breaker position.
func (a *Adapter) Stats() AdapterStats {
	calls := a.calls.Load()
	failures := a.failures.Load()
	rate := 0.0
	if calls > 0 {
		rate = float64(calls-failures) / float64(calls)
	}
	return AdapterStats{
		Calls:        calls,
		Failures:     failures,
		Retries:      a.retries.Load(),
		SuccessRate:  rate,
		CircuitState: a.breaker.State(),
	}
}

// SourceName reports which provider this adapter fetches from.
func (a *Adapter) SourceName() string { return a.source.Name() }
