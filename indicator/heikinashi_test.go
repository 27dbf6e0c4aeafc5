package indicator

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
	"github.com/peterldowns/testy/assert"
)

func date(t *testing.T, value string) time.Time {
	t.Helper()

	dt, err := time.Parse(shared.DateLayout, value)
	assert.NoError(t, err)

	return dt
}

// dailyBars generates a well-formed daily bar sequence of the provided length.
func dailyBars(t *testing.T, n int) []shared.Bar {
	t.Helper()

	start := date(t, "2024-01-01")
	bars := make([]shared.Bar, 0, n)
	for idx := 0; idx < n; idx++ {
		base := 100 + float64(idx%7)
		bars = append(bars, shared.Bar{
			Open:   base,
			High:   base + 3,
			Low:    base - 2,
			Close:  base + float64(idx%3) - 1,
			Volume: float64(100 + idx),
			Date:   start.AddDate(0, 0, idx),
		})
	}

	return bars
}

func TestHeikinAshi(t *testing.T) {
	bars := []shared.Bar{
		{Open: 10, High: 12, Low: 9, Close: 11, Volume: 100, Date: date(t, "2024-01-01")},
		{Open: 11, High: 13, Low: 10, Close: 12, Volume: 200, Date: date(t, "2024-01-02")},
	}

	smoothed, err := HeikinAshi(bars)
	assert.NoError(t, err)
	assert.Equal(t, len(smoothed), 2)

	// Ensure the first smoothed bar seeds its open from the source open.
	assert.Equal(t, smoothed[0].Open, float64(10))
	assert.Equal(t, smoothed[0].Close, float64(10.5))
	assert.Equal(t, smoothed[0].High, float64(12))
	assert.Equal(t, smoothed[0].Low, float64(9))

	// Ensure subsequent opens average the previous derived open and close.
	assert.Equal(t, smoothed[1].Open, float64(10.25))
	assert.Equal(t, smoothed[1].Close, float64(11.5))
	assert.Equal(t, smoothed[1].High, float64(13))
	assert.Equal(t, smoothed[1].Low, float64(10))
}

func TestHeikinAshiPreservesDatesAndVolumes(t *testing.T) {
	bars := dailyBars(t, 40)

	smoothed, err := HeikinAshi(bars)
	assert.NoError(t, err)
	assert.Equal(t, len(smoothed), len(bars))

	for idx := range smoothed {
		assert.Equal(t, smoothed[idx].Date, bars[idx].Date)
		assert.Equal(t, smoothed[idx].Volume, bars[idx].Volume)
	}
}

func TestHeikinAshiInvariants(t *testing.T) {
	bars := dailyBars(t, 60)

	smoothed, err := HeikinAshi(bars)
	assert.NoError(t, err)

	for idx := range smoothed {
		bar := smoothed[idx]

		// Ensure the derived range covers the derived open and close.
		assert.True(t, bar.Low <= bar.Open)
		assert.True(t, bar.Low <= bar.Close)
		assert.True(t, bar.High >= bar.Open)
		assert.True(t, bar.High >= bar.Close)

		// Ensure the recurrence holds for every step after the seed.
		if idx > 0 {
			want := (smoothed[idx-1].Open + smoothed[idx-1].Close) / 2
			assert.Equal(t, bar.Open, want)
		}

		want := (bars[idx].Open + bars[idx].High + bars[idx].Low + bars[idx].Close) / 4
		assert.Equal(t, bar.Close, want)
	}
}

func TestHeikinAshiIdempotence(t *testing.T) {
	bars := dailyBars(t, 25)

	first, err := HeikinAshi(bars)
	assert.NoError(t, err)

	second, err := HeikinAshi(bars)
	assert.NoError(t, err)

	if !cmp.Equal(first, second) {
		t.Fatalf("mismatching smoothed sequences: %v", cmp.Diff(first, second))
	}
}

func TestHeikinAshiEmptyInput(t *testing.T) {
	smoothed, err := HeikinAshi(nil)
	assert.NoError(t, err)
	assert.Equal(t, len(smoothed), 0)
}

func TestHeikinAshiMalformedInput(t *testing.T) {
	bars := []shared.Bar{
		{Open: 10, High: 12, Low: 9, Close: 11, Volume: 100, Date: date(t, "2024-01-02")},
		{Open: 11, High: 13, Low: 10, Close: 12, Volume: 200, Date: date(t, "2024-01-01")},
	}

	_, err := HeikinAshi(bars)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrMalformedInput))
}

func ExampleHeikinAshi() {
	start, _ := time.Parse(shared.DateLayout, "2024-01-01")
	bars := []shared.Bar{
		{Open: 10, High: 12, Low: 9, Close: 11, Volume: 100, Date: start},
		{Open: 11, High: 13, Low: 10, Close: 12, Volume: 200, Date: start.AddDate(0, 0, 1)},
	}

	smoothed, _ := HeikinAshi(bars)
	fmt.Printf("%.2f %.2f\n", smoothed[1].Open, smoothed[1].Close)
	// Output: 10.25 11.50
}
