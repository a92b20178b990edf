package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"sharpefeed/internal/model"
)

func testBreaker() *CircuitBreaker {
	return NewCircuitBreaker("mock", 20, 0.5, time.Hour)
}

func TestAdapterFetch_Success(t *testing.T) {
	src := &MockSource{}
	a := NewAdapter(src, testPolicy(5), testBreaker(), AdapterOptions{})

	series, err := a.Fetch(context.Background(), "aapl", model.Period5Y)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Ticker != "AAPL" {
		t.Errorf("expected normalized ticker AAPL, got %s", series.Ticker)
	}
	if series.Retries != 0 {
		t.Errorf("expected 0 retries, got %d", series.Retries)
	}
	stats := a.Stats()
	if stats.Calls != 1 || stats.Failures != 0 {
		t.Errorf("expected 1 call / 0 failures, got %d / %d", stats.Calls, stats.Failures)
	}
	if stats.SuccessRate != 1 {
		t.Errorf("expected success rate 1, got %.2f", stats.SuccessRate)
	}
}

func TestAdapterFetch_RetriesThenSucceeds(t *testing.T) {
	src := &MockSource{Fail: map[string]int{"AAPL": 2}}
	a := NewAdapter(src, testPolicy(5), testBreaker(), AdapterOptions{})

	series, err := a.Fetch(context.Background(), "AAPL", model.Period5Y)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Retries != 2 {
		t.Errorf("expected 2 retries recorded, got %d", series.Retries)
	}
	if src.Calls() != 3 {
		t.Errorf("expected 3 source calls, got %d", src.Calls())
	}
}

func TestAdapterFetch_ExhaustionGivesDataSourceError(t *testing.T) {
	src := &MockSource{Fail: map[string]int{"AAPL": 100}}
	a := NewAdapter(src, testPolicy(3), testBreaker(), AdapterOptions{})

	_, err := a.Fetch(context.Background(), "AAPL", model.Period5Y)
	var dsErr *DataSourceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected DataSourceError, got %v", err)
	}
	if dsErr.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", dsErr.Attempts)
	}
	if src.Calls() != 4 {
		t.Errorf("expected 4 source calls, got %d", src.Calls())
	}
	stats := a.Stats()
	if stats.Failures != 1 || stats.Retries != 3 {
		t.Errorf("expected 1 failure / 3 retries, got %d / %d", stats.Failures, stats.Retries)
	}
}

func TestAdapterFetch_PermanentSkipsRetry(t *testing.T) {
	src := &MockSource{NotFound: map[string]bool{"NOPE": true}}
	a := NewAdapter(src, testPolicy(5), testBreaker(), AdapterOptions{})

	_, err := a.Fetch(context.Background(), "NOPE", model.Period5Y)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if src.Calls() != 1 {
		t.Errorf("expected a single source call, got %d", src.Calls())
	}
}

func TestAdapterFetch_RejectsBadInput(t *testing.T) {
	src := &MockSource{}
	a := NewAdapter(src, testPolicy(5), testBreaker(), AdapterOptions{})

	if _, err := a.Fetch(context.Background(), "   ", model.Period5Y); !errors.Is(err, ErrInvalidTicker) {
		t.Errorf("expected ErrInvalidTicker, got %v", err)
	}
	if _, err := a.Fetch(context.Background(), "AAPL", model.Period("3w")); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
	if src.Calls() != 0 {
		t.Errorf("expected no source calls, got %d", src.Calls())
	}
}

func TestAdapterFetch_OpenCircuitShortCircuits(t *testing.T) {
	src := &MockSource{Fail: map[string]int{"AAPL": 100}}
	breaker := NewCircuitBreaker("mock", 1, 0.4, time.Hour)
	a := NewAdapter(src, testPolicy(0), breaker, AdapterOptions{})

	if _, err := a.Fetch(context.Background(), "AAPL", model.Period5Y); err == nil {
		t.Fatal("expected the tripping fetch to fail")
	}
	if state := breaker.State(); state != CircuitOpen {
		t.Fatalf("expected OPEN breaker, got %s", state)
	}

	callsBefore := src.Calls()
	_, err := a.Fetch(context.Background(), "AAPL", model.Period5Y)
	var unavailable *ServiceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ServiceUnavailableError, got %v", err)
	}
	if src.Calls() != callsBefore {
		t.Errorf("open circuit must not contact the source: %d calls before, %d after", callsBefore, src.Calls())
	}
	if stats := a.Stats(); stats.CircuitState != CircuitOpen {
		t.Errorf("expected OPEN in stats, got %s", stats.CircuitState)
	}
}

func TestAdapterFetch_BreakerRecovers(t *testing.T) {
	src := &MockSource{Fail: map[string]int{"AAPL": 1}}
	breaker := NewCircuitBreaker("mock", 1, 0.4, 30*time.Millisecond)
	a := NewAdapter(src, testPolicy(0), breaker, AdapterOptions{})

	if _, err := a.Fetch(context.Background(), "AAPL", model.Period5Y); err == nil {
		t.Fatal("expected the tripping fetch to fail")
	}

	time.Sleep(40 * time.Millisecond)
	series, err := a.Fetch(context.Background(), "AAPL", model.Period5Y)
	if err != nil {
		t.Fatalf("expected the trial fetch to succeed, got %v", err)
	}
	if series == nil {
		t.Fatal("expected a series from the trial fetch")
	}
	if state := breaker.State(); state != CircuitClosed {
		t.Errorf("expected CLOSED after trial success, got %s", state)
	}
}

func TestAdapterFetch_CancelledFetchReleasesTrial(t *testing.T) {
	src := &MockSource{Fail: map[string]int{"AAPL": 2}}
	breaker := NewCircuitBreaker("mock", 1, 0.4, 30*time.Millisecond)
	a := NewAdapter(src, testPolicy(0), breaker, AdapterOptions{})

	if _, err := a.Fetch(context.Background(), "AAPL", model.Period5Y); err == nil {
		t.Fatal("expected the tripping fetch to fail")
	}
	if state := breaker.State(); state != CircuitOpen {
		t.Fatalf("expected OPEN breaker, got %s", state)
	}

	// the half-open trial runs under an already-cancelled context and
	// ends without a verdict
	time.Sleep(40 * time.Millisecond)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Fetch(cancelled, "AAPL", model.Period5Y); err == nil {
		t.Fatal("expected the abandoned trial to fail")
	}

	// the permit is free again: the next caller probes and recovers
	series, err := a.Fetch(context.Background(), "AAPL", model.Period5Y)
	if err != nil {
		t.Fatalf("expected the follow-up trial to succeed, got %v", err)
	}
	if series == nil || series.Ticker != "AAPL" {
		t.Fatalf("unexpected series: %+v", series)
	}
	if state := breaker.State(); state != CircuitClosed {
		t.Errorf("expected CLOSED after trial success, got %s", state)
	}
	if src.Calls() != 3 {
		t.Errorf("expected 3 source calls, got %d", src.Calls())
	}
}

func TestAdapterFetchBulk_FlakyTickersRecover(t *testing.T) {
	src := &MockSource{Fail: map[string]int{"MSFT": 2, "NVDA": 2}}
	a := NewAdapter(src, testPolicy(5), testBreaker(), AdapterOptions{MaxConcurrent: 3})

	tickers := []string{"AAPL", "MSFT", "GOOG", "NVDA", "AMZN"}
	results, errs := a.FetchBulk(context.Background(), tickers, model.Period5Y)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 series, got %d", len(results))
	}
	for _, ticker := range []string{"MSFT", "NVDA"} {
		if got := results[ticker].Retries; got != 2 {
			t.Errorf("%s: expected 2 retries recorded, got %d", ticker, got)
		}
	}
	for _, ticker := range []string{"AAPL", "GOOG", "AMZN"} {
		if got := results[ticker].Retries; got != 0 {
			t.Errorf("%s: expected 0 retries, got %d", ticker, got)
		}
	}
	if src.Calls() != 9 {
		t.Errorf("expected 9 source calls (5 + 4 retries), got %d", src.Calls())
	}
}

func TestAdapterFetchBulk_CollectsPartialFailures(t *testing.T) {
	src := &MockSource{NotFound: map[string]bool{"BAD": true}}
	a := NewAdapter(src, testPolicy(5), testBreaker(), AdapterOptions{})

	results, errs := a.FetchBulk(context.Background(), []string{"AAPL", "BAD", "MSFT"}, model.Period5Y)
	if len(results) != 2 {
		t.Errorf("expected 2 series, got %d", len(results))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !errors.Is(errs["BAD"], ErrNotFound) {
		t.Errorf("expected ErrNotFound for BAD, got %v", errs["BAD"])
	}
}

func TestAdapterFetchBulk_DedupesInput(t *testing.T) {
	src := &MockSource{}
	a := NewAdapter(src, testPolicy(5), testBreaker(), AdapterOptions{})

	results, errs := a.FetchBulk(context.Background(), []string{"aapl", "AAPL", " aapl ", ""}, model.Period5Y)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 series after dedupe, got %d", len(results))
	}
	if src.Calls() != 1 {
		t.Errorf("expected 1 source call, got %d", src.Calls())
	}
}
