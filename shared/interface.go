package shared

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
)

// MarketFetcher defines the requirements for fetching daily market data.
type MarketFetcher interface {
	// FetchDailyHistorical fetches daily historical market data for the
	// provided symbol over the provided date range.
	FetchDailyHistorical(ctx context.Context, symbol string, start time.Time, end time.Time) ([]gjson.Result, error)
}
