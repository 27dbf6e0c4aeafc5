package shared

import (
	"fmt"
	"math"
	"time"
)

const (
	// DateLayout is the format layout for parsing daily bar dates.
	DateLayout = "2006-01-02"
	// NewYorkLocation is the exchange timezone for tracked markets.
	NewYorkLocation = "America/New_York"
)

// Bar represents one trading day of market data for a symbol.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Date   time.Time
}

// NewYorkTime returns the current time in new york (EST/EDT adjusted automatically).
func NewYorkTime() (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(NewYorkLocation)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading new york timezone: %w", err)
	}

	now := time.Now().In(loc)
	return now, loc, nil
}

// isFinite reports whether the provided value is a usable price or volume.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateBars asserts the provided bars form a well-formed daily sequence:
// strictly increasing dates, finite positive prices, a price range covering
// the open and close, and non-negative volume.
func ValidateBars(bars []Bar) error {
	for idx := range bars {
		bar := &bars[idx]
		date := bar.Date.Format(DateLayout)

		if !isFinite(bar.Open) || !isFinite(bar.High) || !isFinite(bar.Low) ||
			!isFinite(bar.Close) || !isFinite(bar.Volume) {
			return fmt.Errorf("%w: non-finite field on %s", ErrMalformedInput, date)
		}

		if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
			return fmt.Errorf("%w: non-positive price on %s", ErrMalformedInput, date)
		}

		if bar.Low > math.Min(bar.Open, bar.Close) || bar.High < math.Max(bar.Open, bar.Close) {
			return fmt.Errorf("%w: price range does not cover open/close on %s",
				ErrMalformedInput, date)
		}

		if bar.Volume < 0 {
			return fmt.Errorf("%w: negative volume on %s", ErrMalformedInput, date)
		}

		if idx > 0 && !bars[idx-1].Date.Before(bar.Date) {
			return fmt.Errorf("%w: dates not strictly increasing at %s",
				ErrMalformedInput, date)
		}
	}

	return nil
}
