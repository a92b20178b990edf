package quote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for permanent fetch failures. They are never retried.
var (
	ErrInvalidTicker = errors.New("invalid ticker")
	ErrInvalidPeriod = errors.New("invalid period")
	ErrNotFound      = errors.New("ticker not found")
	ErrNoData        = errors.New("no price data returned")
)

// StatusError reports a non-200 response from the source. Only 429 and
// 5xx codes are considered transient.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// DataSourceError is returned once the retry budget for a fetch is spent.
type DataSourceError struct {
	Ticker   string
	Attempts int
	Err      error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Ticker, e.Attempts, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// ServiceUnavailableError is returned without contacting the source while
// the circuit is open.
type ServiceUnavailableError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: circuit open, retry in %s", e.Source, e.RetryAfter.Round(time.Millisecond))
}

// IsTransient reports whether err is worth retrying. Transport failures
// (timeouts, refused or reset connections) surface as net.Error; per-attempt
// deadline overruns count too. Unknown tickers, empty or malformed responses
// and non-429 4xx codes are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Code == http.StatusTooManyRequests || serr.Code >= 500
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
