package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"sharpefeed/internal/analyzer"
	"sharpefeed/internal/cache"
	"sharpefeed/internal/model"
	"sharpefeed/internal/quote"
	"sharpefeed/internal/recorder"
)

// Options tune a pipeline run. Zero concurrency, TTL and timeout fall
// back to sane defaults; a zero risk-free rate is meaningful and kept
// as is.
type Options struct {
	RiskFreeRate  float64
	CacheTTL      time.Duration
	MaxConcurrent int
	RunTimeout    time.Duration
}

// Orchestrator drives the fetch, cache and analyze pipeline for a set
// of tickers.
type Orchestrator struct {
	adapter  *quote.Adapter
	cache    *cache.TieredCache[*model.QuoteSeries]
	analyzer *analyzer.Analyzer
	recorder recorder.Recorder
	opts     Options
}

// Result aggregates one full pipeline run.
type Result struct {
	RunID     string
	Period    model.Period
	Metrics   map[string]*model.PerformanceMetrics
	Errors    map[string]error
	CacheHits int
	StartedAt time.Time
	Duration  time.Duration
}

// New wires the pipeline together. A nil recorder disables run history.
func New(ad *quote.Adapter, tc *cache.TieredCache[*model.QuoteSeries], an *analyzer.Analyzer, rec recorder.Recorder, opts Options) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Orchestrator{adapter: ad, cache: tc, analyzer: an, recorder: rec, opts: opts}
}

// AnalyzeTickers runs the pipeline for every distinct ticker. Per-ticker
// failures land in Result.Errors; the run itself only fails on bad input.
func (o *Orchestrator) AnalyzeTickers(ctx context.Context, tickers []string, period model.Period) (*Result, error) {
	distinct := dedupe(tickers)
	if len(distinct) == 0 {
		return nil, fmt.Errorf("no tickers to analyze")
	}
	if !period.Valid() {
		return nil, fmt.Errorf("period %q: %w", period, quote.ErrInvalidPeriod)
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancel()

	res := &Result{
		RunID:     uuid.New().String(),
		Period:    period,
		Metrics:   make(map[string]*model.PerformanceMetrics, len(distinct)),
		Errors:    make(map[string]error),
		StartedAt: time.Now(),
	}
	log.Printf("[INFO] run %s: analyzing %d tickers over %s", res.RunID, len(distinct), period)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		sem      = make(chan struct{}, o.opts.MaxConcurrent)
		outcomes = make([]*recorder.TickerOutcome, 0, len(distinct))
	)

	for _, ticker := range distinct {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()

			var tr *tickerResult
			select {
			case sem <- struct{}{}:
				tr = o.analyzeOne(ctx, ticker, period)
				<-sem
			case <-ctx.Done():
				tr = &tickerResult{ticker: ticker, err: ctx.Err()}
			}

			mu.Lock()
			defer mu.Unlock()
			if tr.err != nil {
				res.Errors[ticker] = tr.err
			} else {
				res.Metrics[ticker] = tr.metrics
			}
			if tr.fromCache {
				res.CacheHits++
			}
			outcomes = append(outcomes, tr.outcome(res.RunID))
		}(ticker)
	}
	wg.Wait()

	res.Duration = time.Since(res.StartedAt)
	log.Printf("[INFO] run %s: %d succeeded, %d failed, %d cache hits in %s",
		res.RunID, len(res.Metrics), len(res.Errors), res.CacheHits, res.Duration.Round(time.Millisecond))

	o.record(res, outcomes)
	return res, nil
}

type tickerResult struct {
	ticker    string
	metrics   *model.PerformanceMetrics
	retries   int
	fromCache bool
	err       error
}

func (o *Orchestrator) analyzeOne(ctx context.Context, ticker string, period model.Period) *tickerResult {
	tr := &tickerResult{ticker: ticker}

	fetched := false
	series, err := o.cache.GetOrFetch(ctx, cacheKey(ticker, period), o.opts.CacheTTL,
		func(ctx context.Context) (*model.QuoteSeries, error) {
			fetched = true
			return o.adapter.Fetch(ctx, ticker, period)
		})
	if err != nil {
		tr.err = err
		return tr
	}
	tr.fromCache = !fetched
	if series != nil {
		tr.retries = series.Retries
	}

	// a nil series falls through: the analyzer answers it with a typed error
	m, err := o.analyzer.ComputeSharpe(series, o.opts.RiskFreeRate)
	if err != nil {
		tr.err = err
		return tr
	}
	tr.metrics = m
	return tr
}

func (tr *tickerResult) outcome(runID string) *recorder.TickerOutcome {
	out := &recorder.TickerOutcome{
		RunID:     runID,
		Ticker:    tr.ticker,
		Retries:   tr.retries,
		FromCache: tr.fromCache,
	}
	if tr.err != nil {
		out.FailureReason = tr.err.Error()
		return out
	}
	out.SharpeRatio = tr.metrics.SharpeRatio
	out.AnnualizedReturn = tr.metrics.AnnualizedReturn
	out.AnnualizedVolatility = tr.metrics.AnnualizedVolatility
	out.SampleSize = tr.metrics.SampleSize
	out.Partial = tr.metrics.Partial
	return out
}

// record persists the audit row on its own context so a run that hit
// its deadline still leaves a trace.
func (o *Orchestrator) record(res *Result, outcomes []*recorder.TickerOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	run := &recorder.RunRecord{
		RunID:      res.RunID,
		Period:     string(res.Period),
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
		Requested:  len(res.Metrics) + len(res.Errors),
		Succeeded:  len(res.Metrics),
		Failed:     len(res.Errors),
		CacheHits:  res.CacheHits,
	}
	if err := o.recorder.RecordRun(ctx, run, outcomes); err != nil {
		log.Printf("[ERROR] record run %s: %v", res.RunID, err)
	}
}

func cacheKey(ticker string, period model.Period) string {
	return ticker + "|" + string(period)
}

func dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		norm := quote.NormalizeTicker(t)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}
