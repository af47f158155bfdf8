// Package history reconciles per-exchange funding histories into one
// time-ordered series per symbol.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"funding-radar/internal/exchange"
	"funding-radar/internal/interval"
	"funding-radar/internal/model"
)

// Response is the history payload for one symbol.
type Response struct {
	Success bool               `json:"success"`
	Symbol  string             `json:"symbol"`
	Data    []model.RateRecord `json:"data"`
	Message string             `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ignoredSymbols lists symbol/exchange pairs with known upstream
// data-quality issues that must never be queried.
var ignoredSymbols = map[model.Exchange]map[string]string{
	model.OKX: {
		"CETUS": "OKX 返回的 CETUS 資金費率數據不準確，暫時忽略此幣種",
	},
}

// window maps a requested lookback onto a padded upstream fetch window; the
// padding guarantees enough samples land inside the nominal range.
type window struct {
	fetchSpan time.Duration
	limit     int
}

var windows = map[string]window{
	"24h": {fetchSpan: 5 * 24 * time.Hour, limit: 50},
	"7d":  {fetchSpan: 10 * 24 * time.Hour, limit: 100},
	"30d": {fetchSpan: 35 * 24 * time.Hour, limit: 200},
}

// Reconciler fetches and merges per-exchange history for one symbol.
type Reconciler struct {
	adapters       []exchange.Adapter
	hyper          *exchange.HyperLiquid
	includeCurrent bool
	logger         zerolog.Logger

	now func() time.Time
}

// New constructs a reconciler. The adapters slice holds the settled-funding
// exchanges (Binance, Bybit, Bitget, OKX); HyperLiquid's near-continuous
// series needs its own bucketing path and is passed separately.
func New(adapters []exchange.Adapter, hyper *exchange.HyperLiquid, includeCurrent bool, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		adapters:       adapters,
		hyper:          hyper,
		includeCurrent: includeCurrent,
		logger:         logger.With().Str("component", "history_reconciler").Logger(),
		now:            time.Now,
	}
}

// Fetch builds the unified series for one symbol over the requested
// lookback. exchangeFilter is "all" or one exchange name.
func (r *Reconciler) Fetch(ctx context.Context, symbol, timeRange, exchangeFilter string) Response {
	if notice, ok := ignoredSymbols[model.Exchange(exchangeFilter)][symbol]; ok {
		return Response{Success: true, Symbol: symbol, Data: []model.RateRecord{}, Message: notice}
	}

	win, ok := windows[timeRange]
	if !ok {
		win = windows["24h"]
	}
	now := r.now().UTC()
	fetchWindow := exchange.HistoryWindow{
		Start: now.Add(-win.fetchSpan),
		End:   now,
		Limit: win.limit,
	}

	series, rawHyper := r.fanOut(ctx, symbol, fetchWindow)

	// Bucket width for HyperLiquid: the smallest interval detected across
	// the settled-exchange series, defaulting to 8h.
	var detected []int
	for _, records := range series {
		if len(records) >= 2 {
			detected = append(detected, interval.Detect(sampleTimes(records)))
		}
	}
	bucketHours := interval.Min(detected)

	if len(rawHyper) > 0 {
		series[model.HyperLiquid] = bucketSamples(symbol, rawHyper, bucketHours)
	}

	if r.includeCurrent {
		r.attachCurrent(ctx, symbol, series, rawHyper, now)
	}

	var data []model.RateRecord
	for ex, records := range series {
		if exchangeFilter != "all" && string(ex) != exchangeFilter {
			continue
		}
		data = append(data, records...)
	}

	sort.SliceStable(data, func(i, j int) bool {
		if data[i].IsCurrent != data[j].IsCurrent {
			return data[i].IsCurrent
		}
		// RFC3339 UTC strings order lexicographically.
		return data[i].Time > data[j].Time
	})

	if data == nil {
		data = []model.RateRecord{}
	}

	return Response{Success: true, Symbol: symbol, Data: data}
}

func (r *Reconciler) fanOut(ctx context.Context, symbol string, win exchange.HistoryWindow) (map[model.Exchange][]model.RateRecord, []exchange.RawSample) {
	series := make(map[model.Exchange][]model.RateRecord)
	var rawHyper []exchange.RawSample

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, adapter := range r.adapters {
		if _, skip := ignoredSymbols[adapter.Name()][symbol]; skip {
			continue
		}
		wg.Add(1)
		go func(ad exchange.Adapter) {
			defer wg.Done()
			records, err := ad.FetchHistory(ctx, symbol, win)
			if err != nil {
				r.logger.Warn().Err(err).Str("exchange", string(ad.Name())).
					Str("symbol", symbol).Msg("history unavailable")
				return
			}
			mu.Lock()
			series[ad.Name()] = records
			mu.Unlock()
		}(adapter)
	}

	if r.hyper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples, err := r.hyper.FetchRawHistory(ctx, symbol, win)
			if err != nil {
				r.logger.Warn().Err(err).Str("symbol", symbol).Msg("hyperliquid history unavailable")
				return
			}
			mu.Lock()
			rawHyper = samples
			mu.Unlock()
		}()
	}

	wg.Wait()
	return series, rawHyper
}

// attachCurrent prepends one live record per exchange that has one.
// HyperLiquid's live value is the single most recent raw-hour sample, not a
// bucketed average.
func (r *Reconciler) attachCurrent(ctx context.Context, symbol string, series map[model.Exchange][]model.RateRecord, rawHyper []exchange.RawSample, now time.Time) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, adapter := range r.adapters {
		rater, ok := adapter.(exchange.SymbolRater)
		if !ok {
			continue
		}
		if _, skip := ignoredSymbols[adapter.Name()][symbol]; skip {
			continue
		}
		wg.Add(1)
		go func(ex model.Exchange, sr exchange.SymbolRater) {
			defer wg.Done()
			record, err := sr.FetchSymbolRate(ctx, symbol)
			if err != nil {
				r.logger.Debug().Err(err).Str("exchange", string(ex)).
					Str("symbol", symbol).Msg("current rate unavailable")
				return
			}
			if !model.ValidRate(record.CurrentRate) {
				return
			}
			record.IsCurrent = true
			record.Time = now.Format(time.RFC3339)
			mu.Lock()
			series[ex] = append([]model.RateRecord{record}, series[ex]...)
			mu.Unlock()
		}(adapter.Name(), rater)
	}

	wg.Wait()

	if len(rawHyper) > 0 {
		latest := rawHyper[0]
		for _, s := range rawHyper[1:] {
			if s.Time.After(latest.Time) {
				latest = s
			}
		}
		record := model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.HyperLiquid,
			CurrentRate:        exchange.PercentFixed(latest.Rate, exchange.HistoryPlaces),
			SettlementInterval: 1,
			IsSpecialInterval:  true,
			IsCurrent:          true,
			Time:               now.Format(time.RFC3339),
		}
		if model.ValidRate(record.CurrentRate) {
			series[model.HyperLiquid] = append([]model.RateRecord{record}, series[model.HyperLiquid]...)
		}
	}
}

// bucketSamples floor-aligns each sample onto bucketHours-wide windows and
// averages inside each bucket, keeping raw sub-samples for drill-down.
func bucketSamples(symbol string, samples []exchange.RawSample, bucketHours int) []model.RateRecord {
	type bucket struct {
		time    time.Time
		sum     decimal.Decimal
		count   int64
		samples []exchange.RawSample
	}

	buckets := make(map[time.Time]*bucket)
	for _, s := range samples {
		t := s.Time.UTC()
		aligned := time.Date(t.Year(), t.Month(), t.Day(), (t.Hour()/bucketHours)*bucketHours, 0, 0, 0, time.UTC)
		b, ok := buckets[aligned]
		if !ok {
			b = &bucket{time: aligned}
			buckets[aligned] = b
		}
		b.sum = b.sum.Add(s.Rate)
		b.count++
		b.samples = append(b.samples, s)
	}

	records := make([]model.RateRecord, 0, len(buckets))
	for _, b := range buckets {
		avg := b.sum.Div(decimal.NewFromInt(b.count))

		sort.Slice(b.samples, func(i, j int) bool { return b.samples[i].Time.After(b.samples[j].Time) })
		hourly := make([]model.HourlyRate, 0, len(b.samples))
		for _, s := range b.samples {
			hourly = append(hourly, model.HourlyRate{
				Time: s.Time.Format(time.RFC3339),
				Rate: exchange.PercentFixed(s.Rate, exchange.HistoryPlaces),
			})
		}

		records = append(records, model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.HyperLiquid,
			CurrentRate:        exchange.PercentFixed(avg, exchange.HistoryPlaces),
			SettlementInterval: float64(bucketHours),
			IsSpecialInterval:  bucketHours != interval.DefaultHours,
			Time:               b.time.Format(time.RFC3339),
			HourlyRates:        hourly,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Time > records[j].Time })
	return records
}

func sampleTimes(records []model.RateRecord) []time.Time {
	times := make([]time.Time, 0, len(records))
	for _, record := range records {
		if record.Time == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, record.Time); err == nil {
			times = append(times, t)
		}
	}
	return times
}
