package provider

import (
	"context"

	"github.com/yourorg/chart-trader/internal/model"
)

// MarketDataProvider is the abstract source of historical and live candles.
// All methods return errors classified at the boundary (see model.ErrorKind).
type MarketDataProvider interface {
	// FetchLatestCandle returns the newest (possibly still-forming) candle
	// for the series, or nil when the provider has none.
	FetchLatestCandle(ctx context.Context, series model.SeriesID) (*model.Candle, error)

	// FetchCandlesSince returns candles from sinceTimestamp (inclusive, so a
	// still-open candle at that timestamp is refreshed) forward.
	FetchCandlesSince(ctx context.Context, series model.SeriesID, sinceTimestamp int64) ([]model.Candle, error)

	// FetchCandlesBackward returns up to one page of the most recent candles
	// strictly before upperBoundExclusive. The provider does not bound the
	// start; callers filter to their range.
	FetchCandlesBackward(ctx context.Context, series model.SeriesID, lowerBound, upperBoundExclusive int64) ([]model.Candle, error)

	// FetchCandlesInRange returns all candles in [start, end], paginating
	// internally as needed.
	FetchCandlesInRange(ctx context.Context, series model.SeriesID, start, end int64) ([]model.Candle, error)

	// CheckEarliestAvailableTimestamp returns the oldest timestamp the
	// provider has for the series, or 0 when it has none.
	CheckEarliestAvailableTimestamp(ctx context.Context, series model.SeriesID) (int64, error)
}
