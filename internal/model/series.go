package model

import "time"

// PricePoint is one daily observation of a ticker's adjusted close.
type PricePoint struct {
	Date     time.Time `json:"date"`
	AdjClose float64   `json:"adj_close"`
}

// QuoteSeries holds the fetched price history for a single ticker.
// It is immutable once built; a newer fetch replaces the whole series.
type QuoteSeries struct {
	Ticker    string       `json:"ticker"`
	Points    []PricePoint `json:"points"`
	FetchedAt time.Time    `json:"fetched_at"`
	Source    string       `json:"source"`
	Retries   int          `json:"retries"`
	Quality   float64      `json:"quality"` // fraction of remote rows with a usable close, 0.0 ~ 1.0
}
