package collector

import (
	"context"
	"errors"
	"time"

	"ExtremaSentinel/internal/model"
)

// ErrSourceUnavailable wraps every network or provider failure. Callers treat
// it as "skip this run, try again on the next one".
var ErrSourceUnavailable = errors.New("market data source unavailable")

// Fetcher defines the interface for fetching intraday bars.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, interval, lookback time.Duration) ([]model.Bar, error)
	Name() string
}
