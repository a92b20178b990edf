package analyzer

import (
	"errors"
	"math"
	"testing"
	"time"

	"sharpefeed/internal/model"
)

func seriesFromReturns(ticker string, returns []float64) *model.QuoteSeries {
	points := make([]model.PricePoint, len(returns)+1)
	day := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	points[0] = model.PricePoint{Date: day, AdjClose: price}
	for i, r := range returns {
		price *= math.Exp(r)
		points[i+1] = model.PricePoint{Date: day.AddDate(0, 0, i + 1), AdjClose: price}
	}
	return &model.QuoteSeries{Ticker: ticker, Points: points, FetchedAt: time.Now(), Source: "test", Quality: 1}
}

// alternating builds n log returns cycling between a and b.
func alternating(n int, a, b float64) []float64 {
	returns := make([]float64, n)
	for i := range returns {
		if i%2 == 0 {
			returns[i] = a
		} else {
			returns[i] = b
		}
	}
	return returns
}

func TestComputeSharpe_KnownValue(t *testing.T) {
	// 250 returns of 1% and 250 of 3%: mean 0.02, variance 0.05/499.
	a := New(252, 756)
	series := seriesFromReturns("AAPL", alternating(500, 0.01, 0.03))

	m, err := a.ComputeSharpe(series, 0.015)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sigma := math.Sqrt(0.05 / 499.0)
	wantSharpe := (0.02 - 0.015/252.0) / sigma * math.Sqrt(252)
	if math.Abs(m.SharpeRatio-wantSharpe) > 1e-9 {
		t.Errorf("sharpe: expected %.12f, got %.12f", wantSharpe, m.SharpeRatio)
	}
	if math.Abs(m.AnnualizedReturn-0.02*252) > 1e-9 {
		t.Errorf("annualized return: expected %.6f, got %.6f", 0.02*252, m.AnnualizedReturn)
	}
	if math.Abs(m.AnnualizedVolatility-sigma*math.Sqrt(252)) > 1e-9 {
		t.Errorf("annualized volatility: expected %.6f, got %.6f", sigma*math.Sqrt(252), m.AnnualizedVolatility)
	}
	if m.SampleSize != 500 {
		t.Errorf("expected sample size 500, got %d", m.SampleSize)
	}
	if !m.Partial {
		t.Error("expected partial flag for 500 returns")
	}
	if m.Ticker != "AAPL" {
		t.Errorf("expected ticker AAPL, got %s", m.Ticker)
	}
}

func TestComputeSharpe_ZeroExcessReturn(t *testing.T) {
	// Symmetric returns with a zero risk-free rate: mean is zero, so the
	// ratio must be zero regardless of volatility.
	a := New(252, 756)
	series := seriesFromReturns("SPY", alternating(400, 0.01, -0.01))

	m, err := a.ComputeSharpe(series, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(m.SharpeRatio) > 1e-9 {
		t.Errorf("expected zero sharpe, got %.12f", m.SharpeRatio)
	}
}

func TestComputeSharpe_Deterministic(t *testing.T) {
	a := New(252, 756)
	series := seriesFromReturns("MSFT", alternating(300, 0.004, -0.002))

	m1, err := a.ComputeSharpe(series, 0.015)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m2, err := a.ComputeSharpe(series, 0.015)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m1.SharpeRatio != m2.SharpeRatio || m1.AnnualizedVolatility != m2.AnnualizedVolatility {
		t.Errorf("expected identical results, got %.15f vs %.15f", m1.SharpeRatio, m2.SharpeRatio)
	}
}

func TestComputeSharpe_SampleBoundaries(t *testing.T) {
	a := New(252, 756)
	tests := []struct {
		returns     int
		wantErr     bool
		wantPartial bool
	}{
		{200, true, false},
		{251, true, false},
		{252, false, true},
		{500, false, true},
		{755, false, true},
		{756, false, false},
	}
	for _, tt := range tests {
		series := seriesFromReturns("X", alternating(tt.returns, 0.01, -0.005))
		m, err := a.ComputeSharpe(series, 0.015)
		if tt.wantErr {
			var insufficient *InsufficientDataError
			if !errors.As(err, &insufficient) {
				t.Errorf("%d returns: expected InsufficientDataError, got %v", tt.returns, err)
				continue
			}
			if insufficient.SampleSize != tt.returns || insufficient.MinRequired != 252 {
				t.Errorf("%d returns: bad error detail: %+v", tt.returns, insufficient)
			}
			continue
		}
		if err != nil {
			t.Errorf("%d returns: unexpected error: %v", tt.returns, err)
			continue
		}
		if m.Partial != tt.wantPartial {
			t.Errorf("%d returns: expected partial=%v, got %v", tt.returns, tt.wantPartial, m.Partial)
		}
		if m.SampleSize != tt.returns {
			t.Errorf("%d returns: expected sample size %d, got %d", tt.returns, tt.returns, m.SampleSize)
		}
	}
}

func TestComputeSharpe_ConstantPriceUndefined(t *testing.T) {
	a := New(252, 756)
	points := make([]model.PricePoint, 300)
	day := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range points {
		points[i] = model.PricePoint{Date: day.AddDate(0, 0, i), AdjClose: 50}
	}
	series := &model.QuoteSeries{Ticker: "FLAT", Points: points}

	_, err := a.ComputeSharpe(series, 0.015)
	var calc *CalculationError
	if !errors.As(err, &calc) {
		t.Fatalf("expected CalculationError for zero volatility, got %v", err)
	}
	if calc.Ticker != "FLAT" {
		t.Errorf("expected ticker FLAT in error, got %s", calc.Ticker)
	}
}

func TestComputeSharpe_OverflowingReturnRejected(t *testing.T) {
	// Both prices pass the usable check, but their ratio overflows float64
	// and drives the return statistics non-finite.
	a := New(252, 756)
	series := seriesFromReturns("WILD", alternating(253, 0.01, -0.004))
	series.Points[100].AdjClose = 1e-308
	series.Points[101].AdjClose = 1e308

	m, err := a.ComputeSharpe(series, 0.015)
	var calc *CalculationError
	if !errors.As(err, &calc) {
		t.Fatalf("expected CalculationError for overflowing returns, got metrics %+v, err %v", m, err)
	}
	if calc.Ticker != "WILD" {
		t.Errorf("expected ticker WILD in error, got %s", calc.Ticker)
	}
}

func TestComputeSharpe_DropsUnusablePrices(t *testing.T) {
	a := New(252, 756)
	series := seriesFromReturns("TSLA", alternating(600, 0.01, -0.004))

	// Corrupt three interior points; each one invalidates the pair on
	// both sides, so six returns disappear.
	series.Points[10].AdjClose = math.NaN()
	series.Points[50].AdjClose = 0
	series.Points[90].AdjClose = -3.5

	m, err := a.ComputeSharpe(series, 0.015)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.SampleSize != 594 {
		t.Errorf("expected 594 valid returns after drops, got %d", m.SampleSize)
	}
	if math.IsNaN(m.SharpeRatio) || math.IsInf(m.SharpeRatio, 0) {
		t.Errorf("expected finite sharpe, got %v", m.SharpeRatio)
	}
}

func TestComputeSharpe_MostlyMissingRejected(t *testing.T) {
	// 400 raw points but every other price is missing, so no pair survives.
	a := New(252, 756)
	points := make([]model.PricePoint, 400)
	day := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	for i := range points {
		price := 100.0
		if i%2 == 1 {
			price = math.NaN()
		}
		points[i] = model.PricePoint{Date: day.AddDate(0, 0, i), AdjClose: price}
	}
	series := &model.QuoteSeries{Ticker: "GAPPY", Points: points}

	_, err := a.ComputeSharpe(series, 0.015)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.SampleSize != 0 {
		t.Errorf("expected 0 valid returns, got %d", insufficient.SampleSize)
	}
}

func TestComputeSharpe_RiskFreeRateBounds(t *testing.T) {
	a := New(252, 756)
	series := seriesFromReturns("V", alternating(300, 0.01, -0.005))

	tests := []struct {
		rate    float64
		wantErr bool
	}{
		{-0.01, true},
		{0, false},
		{0.015, false},
		{0.3, false},
		{0.31, true},
	}
	for _, tt := range tests {
		_, err := a.ComputeSharpe(series, tt.rate)
		var calc *CalculationError
		if tt.wantErr && !errors.As(err, &calc) {
			t.Errorf("rate %.2f: expected CalculationError, got %v", tt.rate, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("rate %.2f: unexpected error: %v", tt.rate, err)
		}
	}
}

func TestComputeSharpe_NilSeries(t *testing.T) {
	a := New(252, 756)
	_, err := a.ComputeSharpe(nil, 0.015)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError for nil series, got %v", err)
	}
}

func TestComputeBulk_IsolatesFailures(t *testing.T) {
	a := New(252, 756)

	flat := make([]model.PricePoint, 300)
	day := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	for i := range flat {
		flat[i] = model.PricePoint{Date: day.AddDate(0, 0, i), AdjClose: 10}
	}

	input := map[string]*model.QuoteSeries{
		"GOOD":  seriesFromReturns("GOOD", alternating(400, 0.01, -0.002)),
		"SHORT": seriesFromReturns("SHORT", alternating(100, 0.01, -0.002)),
		"FLAT":  {Ticker: "FLAT", Points: flat},
	}

	metrics, errs := a.ComputeBulk(input, 0.015)
	if len(metrics) != 1 || len(errs) != 2 {
		t.Fatalf("expected 1 metric and 2 errors, got %d and %d", len(metrics), len(errs))
	}
	if _, ok := metrics["GOOD"]; !ok {
		t.Error("expected metrics for GOOD")
	}
	var insufficient *InsufficientDataError
	if !errors.As(errs["SHORT"], &insufficient) {
		t.Errorf("SHORT: expected InsufficientDataError, got %v", errs["SHORT"])
	}
	var calc *CalculationError
	if !errors.As(errs["FLAT"], &calc) {
		t.Errorf("FLAT: expected CalculationError, got %v", errs["FLAT"])
	}
}

func TestDailyReturns_LogValues(t *testing.T) {
	day := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	points := []model.PricePoint{
		{Date: day, AdjClose: 100},
		{Date: day.AddDate(0, 0, 1), AdjClose: 110},
		{Date: day.AddDate(0, 0, 2), AdjClose: 99},
	}
	returns := DailyReturns(points)
	if len(returns) != 2 {
		t.Fatalf("expected 2 returns, got %d", len(returns))
	}
	if math.Abs(returns[0]-math.Log(1.1)) > 1e-12 {
		t.Errorf("expected log(1.1), got %.12f", returns[0])
	}
	if math.Abs(returns[1]-math.Log(99.0/110.0)) > 1e-12 {
		t.Errorf("expected log(0.9), got %.12f", returns[1])
	}
}
