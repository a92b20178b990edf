package analyzer

import "fmt"

// InsufficientDataError reports a series too short to analyze.
type InsufficientDataError struct {
	Ticker      string
	SampleSize  int
	MinRequired int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %d valid daily returns, need at least %d", e.Ticker, e.SampleSize, e.MinRequired)
}

// CalculationError reports inputs on which a finite ratio cannot be computed.
type CalculationError struct {
	Ticker string
	Reason string
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Ticker, e.Reason)
}
