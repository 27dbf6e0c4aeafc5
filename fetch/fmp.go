package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the FMP service base url.
	BaseURL = "https://financialmodelingprep.com/stable"
	// lookbackMonths is the fixed trailing calendar span fetched per symbol.
	lookbackMonths = 24
	// resultCap bounds the number of daily records requested per fetch.
	resultCap = 800
	// defaultRequestTimeout bounds the provider round trip when no timeout
	// is configured.
	defaultRequestTimeout = time.Second * 5
)

// FMPConfig represents the configuration for the FMP client.
type FMPConfig struct {
	// APIKey is the FMP API Key.
	APIKey string
	// BaseURL is the FMP service base url.
	BaseURL string
	// Timeout bounds the provider round trip.
	Timeout time.Duration
}

// FMPClient represents the Financial Modeling Preparation (FMP) API client.
type FMPClient struct {
	cfg   *FMPConfig
	httpc http.Client
}

// Ensure the FMPClient implements the MarketFetcher interface.
var _ shared.MarketFetcher = (*FMPClient)(nil)

// NewFMPClient instantiates a new FMP client.
func NewFMPClient(cfg *FMPConfig) *FMPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	return &FMPClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: cfg.Timeout},
	}
}

// formURL creates full urls including parameters for the api.
func (c *FMPClient) formURL(path string, params string) string {
	var buf strings.Builder
	buf.WriteString(c.cfg.BaseURL)
	buf.WriteString(path)
	buf.WriteString("?")
	buf.WriteString(params)

	return buf.String()
}

// ParseBars parses daily bars from the provided json data, sorted ascending
// by date regardless of the order the provider returned them in.
func ParseBars(data []gjson.Result) ([]shared.Bar, error) {
	bars := make([]shared.Bar, 0, len(data))

	for idx := range data {
		var bar shared.Bar

		bar.Open = data[idx].Get("open").Float()
		bar.Low = data[idx].Get("low").Float()
		bar.High = data[idx].Get("high").Float()
		bar.Close = data[idx].Get("close").Float()
		bar.Volume = data[idx].Get("volume").Float()

		// The provider timestamps records with a calendar date, optionally
		// carrying a time component which is discarded.
		raw := data[idx].Get("date").String()
		if len(raw) > len(shared.DateLayout) {
			raw = raw[:len(shared.DateLayout)]
		}

		dt, err := time.Parse(shared.DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing bar date: %v", shared.ErrMalformedInput, err)
		}

		bar.Date = dt
		bars = append(bars, bar)
	}

	slices.SortFunc(bars, func(a, b shared.Bar) int {
		switch {
		case a.Date.Before(b.Date):
			return -1
		case a.Date.After(b.Date):
			return 1
		default:
			return 0
		}
	})

	if err := shared.ValidateBars(bars); err != nil {
		return nil, err
	}

	return bars, nil
}

// FetchDailyHistorical fetches daily historical market data for the provided
// symbol over the provided date range.
func (c *FMPClient) FetchDailyHistorical(ctx context.Context, symbol string, start time.Time, end time.Time) ([]gjson.Result, error) {
	const dailyHistoricalPath = "/historical-price-eod/full"

	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("apikey", c.cfg.APIKey)
	params.Add("from", start.Format(shared.DateLayout))
	params.Add("limit", strconv.Itoa(resultCap))
	if !end.IsZero() {
		params.Add("to", end.Format(shared.DateLayout))
	}

	formedURL := c.formURL(dailyHistoricalPath, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating daily historical request for %s: %v",
			shared.ErrDataUnavailable, symbol, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching daily historical data for %s: %v",
			shared.ErrDataUnavailable, symbol, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", shared.ErrDataUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d for %s",
			shared.ErrDataUnavailable, resp.StatusCode, symbol)
	}

	parsed := gjson.ParseBytes(body)
	if msg := parsed.Get("Error Message"); msg.Exists() {
		return nil, fmt.Errorf("%w: provider error for %s: %s",
			shared.ErrDataUnavailable, symbol, msg.String())
	}

	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: expected a list of daily records for %s",
			shared.ErrDataUnavailable, symbol)
	}

	return parsed.Array(), nil
}

// LookbackStart returns the start of the fixed trailing fetch window relative
// to the provided time.
func LookbackStart(now time.Time) time.Time {
	return now.AddDate(0, -lookbackMonths, 0)
}
