package quote

import (
	"context"
	"math"
	"sync"
	"time"

	"sharpefeed/internal/model"
)

// MockSource returns controllable synthetic data for development and testing.
type MockSource struct {
	Series   map[string]*model.QuoteSeries // fixed responses per ticker
	Fail     map[string]int                // remaining scripted failures per ticker
	FailWith error                         // error for scripted failures, default 503
	NotFound map[string]bool               // tickers answered with ErrNotFound
	Days     int                           // synthetic history length, default 760

	mu    sync.Mutex
	calls int
}

func (m *MockSource) Name() string { return "mock" }

// Calls reports how many fetches actually reached the source.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockSource) FetchHistory(_ context.Context, ticker string, _ model.Period) (*model.QuoteSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.NotFound[ticker] {
		return nil, ErrNotFound
	}
	if n := m.Fail[ticker]; n > 0 {
		m.Fail[ticker] = n - 1
		if m.FailWith != nil {
			return nil, m.FailWith
		}
		return nil, &StatusError{Code: 503, Body: "scripted failure"}
	}
	if s, ok := m.Series[ticker]; ok {
		return s, nil
	}

	days := m.Days
	if days == 0 {
		days = 760
	}
	return &model.QuoteSeries{
		Ticker:    ticker,
		Points:    generateMockPoints(100, days),
		FetchedAt: time.Now().UTC(),
		Source:    "mock",
		Quality:   1,
	}, nil
}

func generateMockPoints(basePrice float64, count int) []model.PricePoint {
	points := make([]model.PricePoint, count)
	start := time.Now().UTC().Truncate(24 * time.Hour)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001 + 0.02*math.Sin(float64(i)/9))
		points[i] = model.PricePoint{
			Date:     start.AddDate(0, 0, -(count - i)),
			AdjClose: p,
		}
	}
	return points
}
