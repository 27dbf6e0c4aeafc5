package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/incrementalcapitalist/smh-versus-the-broader-market/chart"
	"github.com/incrementalcapitalist/smh-versus-the-broader-market/fetch"
	"github.com/incrementalcapitalist/smh-versus-the-broader-market/opinion"
	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/tidwall/gjson"
)

const (
	// cacheInvalidationTime is when the daily bar cache refresh job runs
	// (in new york time, after the session close).
	cacheInvalidationTime = "17:10"
	// shutdownTimeout bounds the http server drain on termination.
	shutdownTimeout = time.Second * 5
	// maxOpinionBodyBytes bounds an opinion request body.
	maxOpinionBodyBytes = 1 << 16
	// opinionBarWindow is the number of trailing bars forwarded to a vendor.
	opinionBarWindow = 90
)

// DashboardConfig represents the configuration struct for the dashboard
// service.
type DashboardConfig struct {
	// FMPAPIKey is the FMP service API Key.
	FMPAPIKey string
	// ListenAddr is the http listen address.
	ListenAddr string
	// HistoryLimit is the number of trailing bars exposed per symbol.
	HistoryLimit int
	// LongAnchorDays is the anchor window for the long run vwap line.
	LongAnchorDays int
	// ShortAnchorDays is the anchor window for the short run vwap line.
	ShortAnchorDays int
	// FetchTimeout bounds an uncached market data fetch.
	FetchTimeout time.Duration
	// OpenAIAPIKey is the OpenAI API key.
	OpenAIAPIKey string
	// AnthropicAPIKey is the Anthropic API key.
	AnthropicAPIKey string
	// GeminiAPIKey is the Gemini API key.
	GeminiAPIKey string
	// Fetcher overrides the market data client, used by tests. When nil the
	// FMP client is used.
	Fetcher shared.MarketFetcher
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *DashboardConfig) Validate() error {
	var errs error

	if cfg.FMPAPIKey == "" && cfg.Fetcher == nil {
		errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
	}
	if cfg.ListenAddr == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be an empty string"))
	}
	if cfg.HistoryLimit < 0 {
		errs = errors.Join(errs, fmt.Errorf("history limit cannot be negative"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Dashboard represents the chart analysis dashboard service.
type Dashboard struct {
	cfg          *DashboardConfig
	store        *fetch.Store
	assembler    *chart.Assembler
	opinions     *opinion.Client
	httpServer   *http.Server
	jobScheduler *gocron.Scheduler
	logger       *zerolog.Logger
	wg           sync.WaitGroup
}

// NewDashboard initializes a new dashboard service.
func NewDashboard(cfg *DashboardConfig) (*Dashboard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "dashboard").Logger()

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewFMPClient(&fetch.FMPConfig{
			APIKey:  cfg.FMPAPIKey,
			BaseURL: fetch.BaseURL,
			Timeout: cfg.FetchTimeout,
		})
	}

	storeLogger := logger.With().Str("component", "barstore").Logger()
	store, err := fetch.NewStore(&fetch.StoreConfig{
		Fetcher:      fetcher,
		HistoryLimit: cfg.HistoryLimit,
		Timeout:      cfg.FetchTimeout,
		Logger:       &storeLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bar store: %w", err)
	}

	assembler, err := chart.NewAssembler(&chart.AssemblerConfig{
		LongAnchorDays:  cfg.LongAnchorDays,
		ShortAnchorDays: cfg.ShortAnchorDays,
	})
	if err != nil {
		return nil, fmt.Errorf("creating feed assembler: %w", err)
	}

	opinionLogger := logger.With().Str("component", "opinion").Logger()
	opinions := opinion.NewClient(&opinion.ClientConfig{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		Logger:          &opinionLogger,
	})

	_, loc, err := shared.NewYorkTime()
	if err != nil {
		return nil, fmt.Errorf("fetching new york time: %w", err)
	}

	dashboard := &Dashboard{
		cfg:          cfg,
		store:        store,
		assembler:    assembler,
		opinions:     opinions,
		jobScheduler: gocron.NewScheduler(loc),
		logger:       &logger,
	}

	// The cache has no expiry; a scheduled invalidation after the daily close
	// lets a long-running process pick up each new session.
	_, err = dashboard.jobScheduler.Every(1).Day().At(cacheInvalidationTime).Do(func() {
		store.InvalidateAll()
		logger.Info().Msg("bar cache invalidated after session close")
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling cache invalidation: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chart", dashboard.handleChart)
	mux.HandleFunc("POST /api/opinion", dashboard.handleOpinion)

	dashboard.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	return dashboard, nil
}

// writeJSON encodes the provided payload to the response.
func (d *Dashboard) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		d.logger.Error().Msgf("encoding response: %v", err)
	}
}

// writeError maps the provided error to an http status and encodes it.
func (d *Dashboard) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrDataUnavailable), errors.Is(err, shared.ErrMalformedInput):
		status = http.StatusBadGateway
	}

	d.logger.Error().Msgf("request failed: %v", err)
	d.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleChart serves the assembled chart feed for a symbol.
func (d *Dashboard) handleChart(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		d.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	bars, err := d.store.FetchBars(r.Context(), symbol)
	if err != nil {
		d.writeError(w, err)
		return
	}

	feed, err := d.assembler.Assemble(bars)
	if err != nil {
		d.writeError(w, err)
		return
	}

	d.writeJSON(w, http.StatusOK, feed)
}

// handleOpinion forwards a symbol's recent history and the user's prompt to
// the requested vendor.
func (d *Dashboard) handleOpinion(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOpinionBodyBytes))
	if err != nil {
		d.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading request body failed"})
		return
	}

	symbol := gjson.GetBytes(body, "symbol").String()
	prompt := gjson.GetBytes(body, "prompt").String()
	vendorName := gjson.GetBytes(body, "vendor").String()

	if symbol == "" || prompt == "" {
		d.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol and prompt are required"})
		return
	}

	vendor, err := opinion.ParseVendor(vendorName)
	if err != nil {
		d.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	bars, err := d.store.FetchBars(r.Context(), symbol)
	if err != nil {
		d.writeError(w, err)
		return
	}

	if len(bars) > opinionBarWindow {
		bars = bars[len(bars)-opinionBarWindow:]
	}

	op, err := d.opinions.RequestOpinion(r.Context(), vendor, &opinion.Request{
		Symbol: symbol,
		Prompt: prompt,
		Bars:   bars,
	})
	if err != nil {
		d.writeError(w, err)
		return
	}

	d.writeJSON(w, http.StatusOK, op)
}

// Run manages the lifecycle processes of the dashboard service.
func (d *Dashboard) Run(ctx context.Context) {
	d.jobScheduler.StartAsync()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		d.logger.Info().Msgf("listening on %s", d.cfg.ListenAddr)
		err := d.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Msgf("http server terminated: %v", err)
			d.cfg.Cancel()
		}
	}()

	<-ctx.Done()

	d.jobScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := d.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		d.logger.Error().Msgf("shutting down http server: %v", err)
	}

	d.wg.Wait()
	d.logger.Info().Msg("dashboard service stopped")
}
