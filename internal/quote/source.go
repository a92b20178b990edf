package quote

import (
	"context"

	"sharpefeed/internal/model"
)

// Source defines the interface for fetching price history from a remote provider.
type Source interface {
	FetchHistory(ctx context.Context, ticker string, period model.Period) (*model.QuoteSeries, error)
	Name() string
}
