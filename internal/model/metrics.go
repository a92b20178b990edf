package model

import "time"

// PerformanceMetrics is the analyzer output for a single ticker.
type PerformanceMetrics struct {
	Ticker               string
	SharpeRatio          float64
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	SampleSize           int  // valid daily returns used
	Partial              bool // history shorter than the full threshold
	ComputedAt           time.Time
}
