package indicator

import (
	"math"

	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
)

// HeikinAshi derives the smoothed candle sequence for the provided bars.
// The derivation is a sequential fold: each derived open averages the
// previous derived open and close, seeded from the first source open, so
// the output at an index depends on the output immediately before it.
// Dates and volumes pass through unchanged.
func HeikinAshi(bars []shared.Bar) ([]shared.Bar, error) {
	if err := shared.ValidateBars(bars); err != nil {
		return nil, err
	}

	smoothed := make([]shared.Bar, len(bars))
	for idx := range bars {
		bar := bars[idx]

		haClose := (bar.Open + bar.High + bar.Low + bar.Close) / 4
		haOpen := bar.Open
		if idx > 0 {
			haOpen = (smoothed[idx-1].Open + smoothed[idx-1].Close) / 2
		}

		smoothed[idx] = shared.Bar{
			Open:   haOpen,
			High:   math.Max(bar.High, math.Max(haOpen, haClose)),
			Low:    math.Min(bar.Low, math.Min(haOpen, haClose)),
			Close:  haClose,
			Volume: bar.Volume,
			Date:   bar.Date,
		}
	}

	return smoothed, nil
}
