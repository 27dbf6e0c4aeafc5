package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// defaultHistoryLimit is the number of trailing bars exposed per symbol
	// when no limit is configured.
	defaultHistoryLimit = 365
)

// StoreConfig represents the configuration for the bar store.
type StoreConfig struct {
	// Fetcher is the upstream market data client.
	Fetcher shared.MarketFetcher
	// HistoryLimit is the number of trailing bars exposed per symbol.
	HistoryLimit int
	// Timeout bounds an uncached fetch.
	Timeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// fetchCall tracks a single in-flight fetch so concurrent callers for the
// same uncached symbol share one outbound request.
type fetchCall struct {
	done chan struct{}
	bars []shared.Bar
	err  error
}

// Store caches daily bars per symbol for the lifetime of the process.
// Cached sequences are immutable once fetched and there is no expiry;
// Invalidate and InvalidateAll are the explicit refresh hooks.
type Store struct {
	cfg      *StoreConfig
	mtx      sync.Mutex
	cache    map[string][]shared.Bar
	inflight map[string]*fetchCall
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewStore initializes a new bar store.
func NewStore(cfg *StoreConfig) (*Store, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("market fetcher cannot be nil")
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.HistoryLimit < 0 {
		return nil, fmt.Errorf("history limit cannot be negative: %d", cfg.HistoryLimit)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	return &Store{
		cfg:      cfg,
		cache:    make(map[string][]shared.Bar),
		inflight: make(map[string]*fetchCall),
	}, nil
}

// tail returns the trailing history limit of the provided bars.
func (s *Store) tail(bars []shared.Bar) []shared.Bar {
	if len(bars) > s.cfg.HistoryLimit {
		return bars[len(bars)-s.cfg.HistoryLimit:]
	}

	return bars
}

// FetchBars returns the trailing daily bars for the provided symbol, fetching
// and caching the full lookback range on first use. The cache key is the
// symbol exactly as supplied. At most one outbound request is issued per
// symbol per process lifetime; concurrent first fetches share the in-flight
// call.
func (s *Store) FetchBars(ctx context.Context, symbol string) ([]shared.Bar, error) {
	s.mtx.Lock()

	if bars, ok := s.cache[symbol]; ok {
		s.mtx.Unlock()
		s.hits.Inc()
		return s.tail(bars), nil
	}

	if call, ok := s.inflight[symbol]; ok {
		s.mtx.Unlock()
		s.hits.Inc()

		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: awaiting in-flight fetch for %s: %v",
				shared.ErrDataUnavailable, symbol, ctx.Err())
		}

		if call.err != nil {
			return nil, call.err
		}

		return s.tail(call.bars), nil
	}

	call := &fetchCall{done: make(chan struct{})}
	s.inflight[symbol] = call
	s.mtx.Unlock()
	s.misses.Inc()

	call.bars, call.err = s.fetch(ctx, symbol)

	s.mtx.Lock()
	if call.err == nil {
		s.cache[symbol] = call.bars
	}
	delete(s.inflight, symbol)
	s.mtx.Unlock()
	close(call.done)

	if call.err != nil {
		return nil, call.err
	}

	return s.tail(call.bars), nil
}

// fetch performs the outbound request for the provided symbol and shapes the
// response into a validated ascending bar sequence.
func (s *Store) fetch(ctx context.Context, symbol string) ([]shared.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	now := time.Now().UTC()
	data, err := s.cfg.Fetcher.FetchDailyHistorical(ctx, symbol, LookbackStart(now), now)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: fetching bars for %s: %v",
				shared.ErrDataUnavailable, symbol, ctx.Err())
		}

		return nil, err
	}

	bars, err := ParseBars(data)
	if err != nil {
		return nil, fmt.Errorf("shaping bars for %s: %w", symbol, err)
	}

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info().Msgf("cached %d daily bars for %s", len(bars), symbol)
	}

	return bars, nil
}

// Invalidate drops the cached bars for the provided symbol, forcing the next
// fetch to go upstream.
func (s *Store) Invalidate(symbol string) {
	s.mtx.Lock()
	delete(s.cache, symbol)
	s.mtx.Unlock()
}

// InvalidateAll drops every cached sequence.
func (s *Store) InvalidateAll() {
	s.mtx.Lock()
	s.cache = make(map[string][]shared.Bar)
	s.mtx.Unlock()
}

// Stats returns the cache hit and miss counts.
func (s *Store) Stats() (hits int64, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
