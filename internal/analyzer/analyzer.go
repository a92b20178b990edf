package analyzer

import (
	"fmt"
	"math"
	"time"

	"sharpefeed/internal/model"
)

const (
	// TradingDaysPerYear is the annualization base for daily returns.
	TradingDaysPerYear = 252

	// volatilityEpsilon is the smallest standard deviation considered
	// usable. Below it the ratio would blow up instead of meaning anything.
	volatilityEpsilon = 1e-12

	maxRiskFreeRate = 0.3
)

// Analyzer computes risk-adjusted performance metrics from quote series.
type Analyzer struct {
	MinHistoryDays  int // fewest valid daily returns accepted
	FullHistoryDays int // valid returns needed before results stop being partial
}

// New creates an Analyzer. Non-positive thresholds fall back to one and
// three trading years.
func New(minHistoryDays, fullHistoryDays int) *Analyzer {
	if minHistoryDays <= 0 {
		minHistoryDays = TradingDaysPerYear
	}
	if fullHistoryDays <= 0 {
		fullHistoryDays = 3 * TradingDaysPerYear
	}
	return &Analyzer{MinHistoryDays: minHistoryDays, FullHistoryDays: fullHistoryDays}
}

// ComputeSharpe computes the annualized Sharpe ratio for a single series.
// riskFreeRate is annual, e.g. 0.015 for 1.5%. Results are always finite:
// degenerate inputs come back as typed errors, never as NaN or Inf.
func (a *Analyzer) ComputeSharpe(series *model.QuoteSeries, riskFreeRate float64) (*model.PerformanceMetrics, error) {
	if series == nil {
		return nil, &InsufficientDataError{MinRequired: a.MinHistoryDays}
	}
	if riskFreeRate < 0 || riskFreeRate > maxRiskFreeRate {
		return nil, &CalculationError{
			Ticker: series.Ticker,
			Reason: fmt.Sprintf("risk-free rate %.4f outside [0, %.1f]", riskFreeRate, maxRiskFreeRate),
		}
	}

	returns := DailyReturns(series.Points)
	if len(returns) < a.MinHistoryDays {
		return nil, &InsufficientDataError{
			Ticker:      series.Ticker,
			SampleSize:  len(returns),
			MinRequired: a.MinHistoryDays,
		}
	}

	meanReturn := mean(returns)
	vol := sampleStdDev(returns, meanReturn)
	// a ratio of two usable prices can still overflow float64, and NaN
	// slips past the epsilon comparison below
	if math.IsNaN(meanReturn) || math.IsInf(meanReturn, 0) || math.IsNaN(vol) || math.IsInf(vol, 0) {
		return nil, &CalculationError{Ticker: series.Ticker, Reason: "returns overflow, statistics undefined"}
	}
	if vol < volatilityEpsilon {
		return nil, &CalculationError{Ticker: series.Ticker, Reason: "volatility is zero, ratio undefined"}
	}

	dailyRiskFree := riskFreeRate / TradingDaysPerYear
	annualize := math.Sqrt(TradingDaysPerYear)

	return &model.PerformanceMetrics{
		Ticker:               series.Ticker,
		SharpeRatio:          (meanReturn - dailyRiskFree) / vol * annualize,
		AnnualizedReturn:     meanReturn * TradingDaysPerYear,
		AnnualizedVolatility: vol * annualize,
		SampleSize:           len(returns),
		Partial:              len(returns) < a.FullHistoryDays,
		ComputedAt:           time.Now().UTC(),
	}, nil
}

// ComputeBulk computes metrics for many series, isolating per-ticker
// failures. Every input ticker lands in exactly one of the returned maps.
func (a *Analyzer) ComputeBulk(series map[string]*model.QuoteSeries, riskFreeRate float64) (map[string]*model.PerformanceMetrics, map[string]error) {
	metrics := make(map[string]*model.PerformanceMetrics, len(series))
	errs := make(map[string]error)
	for ticker, s := range series {
		m, err := a.ComputeSharpe(s, riskFreeRate)
		if err != nil {
			errs[ticker] = err
			continue
		}
		metrics[ticker] = m
	}
	return metrics, errs
}

// DailyReturns computes log returns over consecutive price points. Pairs
// with a non-finite or non-positive price are dropped, never interpolated.
func DailyReturns(points []model.PricePoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1].AdjClose, points[i].AdjClose
		if !usablePrice(prev) || !usablePrice(cur) {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	return returns
}

func usablePrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 1)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev uses the n-1 denominator.
func sampleStdDev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
