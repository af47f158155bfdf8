package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"funding-radar/internal/model"
)

// HyperLiquid adapter. Funding accrues hourly, so the nominal settlement
// interval is 1h and every record is flagged as a special interval. The info
// endpoint multiplexes all queries through typed POST bodies.
type HyperLiquid struct {
	baseURL   string
	client    *Client
	limiter   *rate.Limiter
	batchSpan time.Duration
	pageLimit int
	logger    zerolog.Logger
}

// HyperLiquidOptions tune history pagination.
type HyperLiquidOptions struct {
	BaseURL           string
	BatchDays         int
	PageLimit         int
	RequestsPerSecond float64
}

// NewHyperLiquid constructs the HyperLiquid adapter.
func NewHyperLiquid(opts HyperLiquidOptions, client *Client, logger zerolog.Logger) *HyperLiquid {
	if opts.BatchDays <= 0 {
		opts.BatchDays = 7
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 500
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}

	return &HyperLiquid{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		batchSpan: time.Duration(opts.BatchDays) * 24 * time.Hour,
		pageLimit: opts.PageLimit,
		logger:    logger.With().Str("component", "hyperliquid_adapter").Logger(),
	}
}

func (h *HyperLiquid) Name() model.Exchange {
	return model.HyperLiquid
}

// FetchCurrent returns the live hourly funding rate for every listed asset.
// The response is a two-element tuple whose universe names align
// positionally with the asset contexts.
func (h *HyperLiquid) FetchCurrent(ctx context.Context) ([]model.RateRecord, error) {
	var tuple []json.RawMessage
	payload := map[string]string{"type": "metaAndAssetCtxs"}
	if err := h.client.PostJSON(ctx, h.baseURL+"/info", payload, &tuple); err != nil {
		return nil, fmt.Errorf("fetch meta and asset contexts: %w", err)
	}
	if len(tuple) < 2 {
		return nil, fmt.Errorf("meta and asset contexts: expected 2 elements, got %d", len(tuple))
	}

	var meta hyperMeta
	if err := json.Unmarshal(tuple[0], &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	var ctxs []hyperAssetCtx
	if err := json.Unmarshal(tuple[1], &ctxs); err != nil {
		return nil, fmt.Errorf("decode asset contexts: %w", err)
	}

	records := make([]model.RateRecord, 0, len(meta.Universe))
	for i, asset := range meta.Universe {
		if i >= len(ctxs) {
			break
		}
		rate, ok := parsePercent(ctxs[i].Funding, snapshotPlaces)
		if !ok {
			continue
		}
		records = append(records, model.RateRecord{
			Symbol:             asset.Name,
			Exchange:           model.HyperLiquid,
			CurrentRate:        rate,
			SettlementInterval: 1,
			IsSpecialInterval:  true,
		})
	}

	return records, nil
}

// FetchRawHistory returns unaggregated hourly samples for one symbol,
// paginated in fixed batches because the endpoint caps rows per call.
// Pagination stops when a batch comes back under the page cap or the window
// reaches the requested end.
func (h *HyperLiquid) FetchRawHistory(ctx context.Context, symbol string, window HistoryWindow) ([]RawSample, error) {
	var samples []RawSample

	start := window.Start
	for start.Before(window.End) {
		if err := h.limiter.Wait(ctx); err != nil {
			return samples, err
		}

		end := start.Add(h.batchSpan)
		if end.After(window.End) {
			end = window.End
		}

		payload := map[string]any{
			"type":      "fundingHistory",
			"coin":      symbol,
			"startTime": start.UnixMilli(),
			"endTime":   end.UnixMilli(),
		}

		var batch []hyperFundingSample
		if err := h.client.PostJSON(ctx, h.baseURL+"/info", payload, &batch); err != nil {
			return samples, fmt.Errorf("fetch funding history batch: %w", err)
		}

		for _, item := range batch {
			d, err := decimal.NewFromString(item.FundingRate)
			if err != nil {
				continue
			}
			samples = append(samples, RawSample{Time: timeFromMillis(item.Time), Rate: d})
		}

		if len(batch) >= h.pageLimit {
			// Row-capped batch: resume just past the last returned sample.
			start = timeFromMillis(batch[len(batch)-1].Time).Add(time.Millisecond)
			continue
		}
		if !end.Before(window.End) {
			break
		}
		start = end
	}

	return samples, nil
}

// FetchHistory maps the raw hourly samples onto rate records at the nominal
// 1h interval. Cross-exchange bucketing happens in the reconciler, which
// uses FetchRawHistory directly.
func (h *HyperLiquid) FetchHistory(ctx context.Context, symbol string, window HistoryWindow) ([]model.RateRecord, error) {
	samples, err := h.FetchRawHistory(ctx, symbol, window)
	if err != nil {
		return nil, err
	}

	records := make([]model.RateRecord, 0, len(samples))
	for _, s := range samples {
		records = append(records, model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.HyperLiquid,
			CurrentRate:        PercentFixed(s.Rate, HistoryPlaces),
			SettlementInterval: 1,
			IsSpecialInterval:  true,
			Time:               s.Time.Format(timeFormat),
		})
	}

	return records, nil
}

type hyperMeta struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

type hyperAssetCtx struct {
	Funding string `json:"funding"`
}

type hyperFundingSample struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Time        int64  `json:"time"`
}

var _ Adapter = (*HyperLiquid)(nil)
