package chart

import (
	"fmt"

	"github.com/incrementalcapitalist/smh-versus-the-broader-market/indicator"
	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
)

const (
	// DefaultLongAnchorDays is the anchor window for the long run vwap line.
	DefaultLongAnchorDays = 365
	// DefaultShortAnchorDays is the anchor window for the short run vwap line.
	DefaultShortAnchorDays = 100
	// visibleWindowDays caps how many trailing candles the initial view shows.
	visibleWindowDays = 365

	// upVolumeColor marks sessions closing at or above their open.
	upVolumeColor = "#26a69a"
	// downVolumeColor marks sessions closing below their open.
	downVolumeColor = "#ef5350"
)

// CandlePoint is one candle of a rendered OHLC series.
type CandlePoint struct {
	Time  string  `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// VolumePoint is one colored column of a rendered volume histogram.
type VolumePoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// LinePoint is one point of a rendered line series.
type LinePoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Range is a logical index range hint for the rendering widget.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Feed carries every series the rendering widget consumes for one symbol.
type Feed struct {
	Candles      []CandlePoint `json:"candles"`
	Volume       []VolumePoint `json:"volume"`
	VWAPLong     []LinePoint   `json:"vwapLong"`
	VWAPShort    []LinePoint   `json:"vwapShort"`
	VisibleRange Range         `json:"visibleRange"`
}

// AssemblerConfig represents the configuration for the feed assembler.
type AssemblerConfig struct {
	// LongAnchorDays is the anchor window for the long run vwap line.
	LongAnchorDays int
	// ShortAnchorDays is the anchor window for the short run vwap line.
	ShortAnchorDays int
}

// Assembler composes derived series into the chart feed.
type Assembler struct {
	cfg *AssemblerConfig
}

// NewAssembler initializes a new feed assembler.
func NewAssembler(cfg *AssemblerConfig) (*Assembler, error) {
	if cfg.LongAnchorDays == 0 {
		cfg.LongAnchorDays = DefaultLongAnchorDays
	}
	if cfg.ShortAnchorDays == 0 {
		cfg.ShortAnchorDays = DefaultShortAnchorDays
	}
	if cfg.LongAnchorDays < 1 || cfg.ShortAnchorDays < 1 {
		return nil, fmt.Errorf("anchor windows must be positive: long %d, short %d",
			cfg.LongAnchorDays, cfg.ShortAnchorDays)
	}

	return &Assembler{cfg: cfg}, nil
}

// linePoints shapes vwap entries into a rendered line series.
func linePoints(points []indicator.VWAP) []LinePoint {
	line := make([]LinePoint, 0, len(points))
	for idx := range points {
		line = append(line, LinePoint{
			Time:  points[idx].Date.Format(shared.DateLayout),
			Value: points[idx].Value,
		})
	}

	return line
}

// Assemble derives the full chart feed from the provided bars: smoothed
// candles, a volume histogram colored off the original bars, both vwap
// lines and the default visible range hint. Empty input yields empty
// series and a zero range.
func (a *Assembler) Assemble(bars []shared.Bar) (*Feed, error) {
	smoothed, err := indicator.HeikinAshi(bars)
	if err != nil {
		return nil, fmt.Errorf("assembling candle series: %w", err)
	}

	vwapLong, err := indicator.AnchoredVWAP(bars, a.cfg.LongAnchorDays)
	if err != nil {
		return nil, fmt.Errorf("assembling long vwap series: %w", err)
	}

	vwapShort, err := indicator.AnchoredVWAP(bars, a.cfg.ShortAnchorDays)
	if err != nil {
		return nil, fmt.Errorf("assembling short vwap series: %w", err)
	}

	feed := &Feed{
		Candles:   make([]CandlePoint, 0, len(smoothed)),
		Volume:    make([]VolumePoint, 0, len(bars)),
		VWAPLong:  linePoints(vwapLong),
		VWAPShort: linePoints(vwapShort),
	}

	for idx := range smoothed {
		feed.Candles = append(feed.Candles, CandlePoint{
			Time:  smoothed[idx].Date.Format(shared.DateLayout),
			Open:  smoothed[idx].Open,
			High:  smoothed[idx].High,
			Low:   smoothed[idx].Low,
			Close: smoothed[idx].Close,
		})
	}

	for idx := range bars {
		// Column color keys off the original bar, not the smoothed one.
		color := downVolumeColor
		if bars[idx].Close >= bars[idx].Open {
			color = upVolumeColor
		}

		feed.Volume = append(feed.Volume, VolumePoint{
			Time:  bars[idx].Date.Format(shared.DateLayout),
			Value: bars[idx].Volume,
			Color: color,
		})
	}

	if n := len(feed.Candles); n > 0 {
		from := 0
		if n > visibleWindowDays {
			from = n - visibleWindowDays
		}

		feed.VisibleRange = Range{From: from, To: n - 1}
	}

	return feed, nil
}
