package model

// Period selects how much history a fetch requests from the remote source.
type Period string

const (
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
	Period5Y  Period = "5y"
	Period10Y Period = "10y"
	PeriodMax Period = "max"
)

// Valid reports whether p is a recognized history range.
func (p Period) Valid() bool {
	switch p {
	case Period1Y, Period2Y, Period5Y, Period10Y, PeriodMax:
		return true
	}
	return false
}
