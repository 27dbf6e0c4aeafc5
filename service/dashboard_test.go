package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/tidwall/gjson"
)

// mockFetcher is a market fetcher returning canned json records.
type mockFetcher struct {
	data string
	err  error
}

func (m *mockFetcher) FetchDailyHistorical(ctx context.Context, symbol string, start time.Time, end time.Time) ([]gjson.Result, error) {
	if m.err != nil {
		return nil, m.err
	}

	return gjson.Parse(m.data).Array(), nil
}

const barData = `[
	{"date":"2024-01-03","open":12,"high":14,"low":11,"close":13,"volume":300},
	{"date":"2024-01-02","open":11,"high":13,"low":10,"close":12,"volume":200},
	{"date":"2024-01-01","open":10,"high":12,"low":9,"close":11,"volume":100}]`

func newTestDashboard(t *testing.T, fetcher shared.MarketFetcher) *Dashboard {
	t.Helper()

	_, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dashboard, err := NewDashboard(&DashboardConfig{
		ListenAddr: "127.0.0.1:0",
		Fetcher:    fetcher,
		Cancel:     cancel,
	})
	assert.NoError(t, err)

	return dashboard
}

func TestDashboardConfigValidate(t *testing.T) {
	cancel := func() {}

	tests := []struct {
		name    string
		cfg     DashboardConfig
		wantErr []string
	}{
		{
			"valid config",
			DashboardConfig{
				FMPAPIKey:  "key",
				ListenAddr: ":8080",
				Cancel:     cancel,
			},
			nil,
		},
		{
			"fetcher override allows empty api key",
			DashboardConfig{
				ListenAddr: ":8080",
				Fetcher:    &mockFetcher{},
				Cancel:     cancel,
			},
			nil,
		},
		{
			"missing everything",
			DashboardConfig{},
			[]string{
				"fmp api key cannot be an empty string",
				"listen address cannot be an empty string",
				"context cancellation function cannot be nil",
			},
		},
		{
			"negative history limit",
			DashboardConfig{
				FMPAPIKey:    "key",
				ListenAddr:   ":8080",
				HistoryLimit: -1,
				Cancel:       cancel,
			},
			[]string{"history limit cannot be negative"},
		},
	}

	for _, test := range tests {
		err := test.cfg.Validate()
		if len(test.wantErr) == 0 {
			assert.NoError(t, err)
			continue
		}

		assert.Error(t, err)
		for _, want := range test.wantErr {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("%s: expected error to contain %q, got %v", test.name, want, err)
			}
		}
	}
}

func TestHandleChart(t *testing.T) {
	dashboard := newTestDashboard(t, &mockFetcher{data: barData})

	// Ensure a valid symbol yields the assembled feed.
	req := httptest.NewRequest(http.MethodGet, "/api/chart?symbol=SMH", nil)
	rec := httptest.NewRecorder()
	dashboard.handleChart(rec, req)

	assert.Equal(t, rec.Code, http.StatusOK)

	body := rec.Body.String()
	assert.Equal(t, gjson.Get(body, "candles.#").Int(), int64(3))
	assert.Equal(t, gjson.Get(body, "volume.#").Int(), int64(3))
	assert.Equal(t, gjson.Get(body, "candles.0.time").String(), "2024-01-01")
	assert.Equal(t, gjson.Get(body, "candles.0.open").Float(), float64(10))
	assert.Equal(t, gjson.Get(body, "visibleRange.to").Int(), int64(2))
	assert.True(t, gjson.Get(body, "vwapLong").IsArray())
	assert.True(t, gjson.Get(body, "vwapShort").IsArray())
}

func TestHandleChartMissingSymbol(t *testing.T) {
	dashboard := newTestDashboard(t, &mockFetcher{data: barData})

	req := httptest.NewRequest(http.MethodGet, "/api/chart", nil)
	rec := httptest.NewRecorder()
	dashboard.handleChart(rec, req)

	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestHandleChartUpstreamFailure(t *testing.T) {
	fetcher := &mockFetcher{err: shared.ErrDataUnavailable}
	dashboard := newTestDashboard(t, fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/chart?symbol=SMH", nil)
	rec := httptest.NewRecorder()
	dashboard.handleChart(rec, req)

	assert.Equal(t, rec.Code, http.StatusBadGateway)
}

func TestHandleOpinionValidation(t *testing.T) {
	dashboard := newTestDashboard(t, &mockFetcher{data: barData})

	// Ensure missing fields are rejected.
	req := httptest.NewRequest(http.MethodPost, "/api/opinion",
		strings.NewReader(`{"symbol":"SMH"}`))
	rec := httptest.NewRecorder()
	dashboard.handleOpinion(rec, req)
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	// Ensure unknown vendors are rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/opinion",
		strings.NewReader(`{"symbol":"SMH","prompt":"?","vendor":"grok"}`))
	rec = httptest.NewRecorder()
	dashboard.handleOpinion(rec, req)
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	// Ensure a configured-less vendor surfaces a failure rather than a panic.
	req = httptest.NewRequest(http.MethodPost, "/api/opinion",
		strings.NewReader(`{"symbol":"SMH","prompt":"?","vendor":"openai"}`))
	rec = httptest.NewRecorder()
	dashboard.handleOpinion(rec, req)
	assert.Equal(t, rec.Code, http.StatusInternalServerError)
}

func TestDashboardGracefulShutdown(t *testing.T) {
	dashboard := newTestDashboard(t, &mockFetcher{data: barData})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ensure the dashboard service can be run and gracefully terminated.
	time.AfterFunc(time.Millisecond*500, func() {
		cancel()
	})
	done := make(chan struct{})
	go func() {
		dashboard.Run(ctx)
		close(done)
	}()

	<-done
}
