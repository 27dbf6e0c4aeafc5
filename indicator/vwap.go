package indicator

import (
	"fmt"
	"time"

	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
)

// VWAP represents a unit VWAP entry for a market.
type VWAP struct {
	Value float64
	Date  time.Time
}

// AnchoredVWAP computes the volume weighted average price of the provided
// bars, accumulated from an anchor anchorDays bars before the end of the
// sequence. An anchor deeper than the available history clamps to the start
// of the sequence, so the output length is min(anchorDays, len(bars)).
// While the cumulative volume from the anchor is still zero the emitted
// value is 0 rather than a non-finite quotient.
func AnchoredVWAP(bars []shared.Bar, anchorDays int) ([]VWAP, error) {
	if anchorDays < 1 {
		return nil, fmt.Errorf("anchor days must be positive, got %d", anchorDays)
	}

	if err := shared.ValidateBars(bars); err != nil {
		return nil, err
	}

	anchorIdx := 0
	if len(bars) > anchorDays {
		anchorIdx = len(bars) - anchorDays
	}

	points := make([]VWAP, 0, len(bars)-anchorIdx)

	var typicalPriceVolume, volume float64
	for idx := anchorIdx; idx < len(bars); idx++ {
		bar := bars[idx]

		typicalPrice := (bar.High + bar.Low + bar.Close) / 3
		typicalPriceVolume += typicalPrice * bar.Volume
		volume += bar.Volume

		point := VWAP{
			Date: bar.Date,
		}
		if volume > 0 {
			point.Value = typicalPriceVolume / volume
		}

		points = append(points, point)
	}

	return points, nil
}
