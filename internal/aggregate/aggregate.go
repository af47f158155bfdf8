// Package aggregate builds the merged live funding-rate snapshot.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"funding-radar/internal/exchange"
	"funding-radar/internal/model"
)

// Snapshot is the merged current-rates payload served to clients and pushed
// to subscribers.
type Snapshot struct {
	Success bool               `json:"success"`
	Data    []model.RateRecord `json:"data"`
	Debug   Debug              `json:"debug"`
	Error   string             `json:"error,omitempty"`
}

// Debug carries per-exchange record counts before zero-rate filtering, plus
// the filtered total.
type Debug struct {
	BinanceCount     int `json:"binanceCount"`
	BybitCount       int `json:"bybitCount"`
	BitgetCount      int `json:"bitgetCount"`
	OkxCount         int `json:"okxCount"`
	GateioCount      int `json:"gateioCount"`
	HyperliquidCount int `json:"hyperliquidCount"`
	TotalCount       int `json:"totalCount"`
}

// Subscriber receives every freshly built snapshot. Delivery is
// fire-and-forget; a subscriber must not block.
type Subscriber func(Snapshot)

// Aggregator fans out to all exchange adapters, merges their records, and
// caches the result for a fixed window.
type Aggregator struct {
	adapters []exchange.Adapter
	ttl      time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	cached    *Snapshot
	expiresAt time.Time
	subs      []Subscriber
}

// New constructs an aggregator over the given adapters.
func New(adapters []exchange.Adapter, ttl time.Duration, logger zerolog.Logger) *Aggregator {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Aggregator{
		adapters: adapters,
		ttl:      ttl,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// Subscribe registers a listener for snapshot refreshes.
func (a *Aggregator) Subscribe(fn Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, fn)
}

// Snapshot returns the cached payload when fresh, otherwise triggers a full
// fan-out and replaces the cache. Two near-simultaneous expiries may both
// refresh; the later write wins and the race is harmless.
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	a.mu.Lock()
	if a.cached != nil && time.Now().Before(a.expiresAt) {
		snap := *a.cached
		a.mu.Unlock()
		return snap
	}
	a.mu.Unlock()

	snap := a.refresh(ctx)

	a.mu.Lock()
	a.cached = &snap
	a.expiresAt = time.Now().Add(a.ttl)
	subs := make([]Subscriber, len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}

	return snap
}

type fanResult struct {
	exchange model.Exchange
	records  []model.RateRecord
	err      error
}

func (a *Aggregator) refresh(ctx context.Context) Snapshot {
	results := make(chan fanResult, len(a.adapters))
	var wg sync.WaitGroup

	for _, adapter := range a.adapters {
		wg.Add(1)
		go func(ad exchange.Adapter) {
			defer wg.Done()
			records, err := ad.FetchCurrent(ctx)
			results <- fanResult{exchange: ad.Name(), records: records, err: err}
		}(adapter)
	}

	wg.Wait()
	close(results)

	byExchange := make(map[model.Exchange][]model.RateRecord, len(a.adapters))
	for result := range results {
		if result.err != nil {
			a.logger.Warn().Err(result.err).Str("exchange", string(result.exchange)).
				Msg("adapter returned no data")
			continue
		}
		byExchange[result.exchange] = result.records
	}

	var merged []model.RateRecord
	debug := Debug{}
	for _, ex := range model.All() {
		records := byExchange[ex]
		setCount(&debug, ex, len(records))
		for _, record := range records {
			if !model.ValidRate(record.CurrentRate) {
				continue
			}
			merged = append(merged, record)
		}
	}
	debug.TotalCount = len(merged)

	a.logger.Info().
		Int("binance", debug.BinanceCount).
		Int("bybit", debug.BybitCount).
		Int("bitget", debug.BitgetCount).
		Int("okx", debug.OkxCount).
		Int("gateio", debug.GateioCount).
		Int("hyperliquid", debug.HyperliquidCount).
		Int("total", debug.TotalCount).
		Msg("snapshot refreshed")

	return Snapshot{Success: true, Data: merged, Debug: debug}
}

func setCount(d *Debug, ex model.Exchange, n int) {
	switch ex {
	case model.Binance:
		d.BinanceCount = n
	case model.Bybit:
		d.BybitCount = n
	case model.Bitget:
		d.BitgetCount = n
	case model.OKX:
		d.OkxCount = n
	case model.GateIO:
		d.GateioCount = n
	case model.HyperLiquid:
		d.HyperliquidCount = n
	}
}
