package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"funding-radar/internal/model"
)

// Binance adapter. Current rates come from premiumIndex with settlement
// intervals joined in from the companion fundingInfo call; history comes
// from the fundingRate endpoint at a fixed 8h interval.
type Binance struct {
	baseURL string
	client  *Client
	logger  zerolog.Logger
}

// NewBinance constructs the Binance adapter.
func NewBinance(baseURL string, client *Client, logger zerolog.Logger) *Binance {
	return &Binance{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With().Str("component", "binance_adapter").Logger(),
	}
}

func (b *Binance) Name() model.Exchange {
	return model.Binance
}

// FetchCurrent returns the live funding rate for every USDT perpetual.
func (b *Binance) FetchCurrent(ctx context.Context) ([]model.RateRecord, error) {
	var indexes []binancePremiumIndex
	if err := b.client.GetJSON(ctx, b.baseURL+"/fapi/v1/premiumIndex", nil, &indexes); err != nil {
		return nil, fmt.Errorf("fetch premium index: %w", err)
	}

	// The interval join is best-effort; missing info falls back to 8h.
	intervals := make(map[string]float64)
	var infos []binanceFundingInfo
	if err := b.client.GetJSON(ctx, b.baseURL+"/fapi/v1/fundingInfo", nil, &infos); err != nil {
		b.logger.Warn().Err(err).Msg("funding info unavailable, defaulting intervals to 8h")
	} else {
		for _, info := range infos {
			if info.FundingIntervalHours > 0 {
				intervals[info.Symbol] = float64(info.FundingIntervalHours)
			}
		}
	}

	records := make([]model.RateRecord, 0, len(indexes))
	for _, item := range indexes {
		symbol, ok := stripSuffix(item.Symbol, "USDT")
		if !ok {
			continue
		}
		rate, ok := parsePercent(item.LastFundingRate, snapshotPlaces)
		if !ok {
			continue
		}
		interval := intervals[item.Symbol]
		if interval == 0 {
			interval = defaultIntervalHours
		}
		records = append(records, model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.Binance,
			CurrentRate:        rate,
			SettlementInterval: interval,
			IsSpecialInterval:  interval != defaultIntervalHours,
		})
	}

	return records, nil
}

// FetchHistory returns one sample per settlement inside the window. The
// interval-info join is not reapplied historically; entries are fixed at 8h.
func (b *Binance) FetchHistory(ctx context.Context, symbol string, window HistoryWindow) ([]model.RateRecord, error) {
	url := fmt.Sprintf("%s/fapi/v1/fundingRate?symbol=%sUSDT&startTime=%d&limit=%d",
		b.baseURL, symbol, window.Start.UnixMilli(), window.Limit)

	var samples []binanceFundingSample
	if err := b.client.GetJSON(ctx, url, nil, &samples); err != nil {
		return nil, fmt.Errorf("fetch funding history: %w", err)
	}

	records := make([]model.RateRecord, 0, len(samples))
	for _, item := range samples {
		rate, ok := parsePercent(item.FundingRate, HistoryPlaces)
		if !ok {
			continue
		}
		records = append(records, model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.Binance,
			CurrentRate:        rate,
			SettlementInterval: defaultIntervalHours,
			Time:               isoMillis(item.FundingTime),
		})
	}

	return records, nil
}

// FetchSymbolRate serves one symbol's live rate from the single-symbol
// premiumIndex form.
func (b *Binance) FetchSymbolRate(ctx context.Context, symbol string) (model.RateRecord, error) {
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%sUSDT", b.baseURL, symbol)

	var index binancePremiumIndex
	if err := b.client.GetJSON(ctx, url, nil, &index); err != nil {
		return model.RateRecord{}, fmt.Errorf("fetch premium index: %w", err)
	}

	rate, ok := parsePercent(index.LastFundingRate, HistoryPlaces)
	if !ok {
		return model.RateRecord{}, fmt.Errorf("funding rate not numeric for %s", symbol)
	}

	record := model.RateRecord{
		Symbol:             symbol,
		Exchange:           model.Binance,
		CurrentRate:        rate,
		SettlementInterval: defaultIntervalHours,
	}
	if index.NextFundingTime > 0 {
		record.NextFundingTime = isoMillis(index.NextFundingTime)
	}

	return record, nil
}

type binancePremiumIndex struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

type binanceFundingInfo struct {
	Symbol               string `json:"symbol"`
	FundingIntervalHours int    `json:"fundingIntervalHours"`
}

type binanceFundingSample struct {
	Symbol      string `json:"symbol"`
	FundingTime int64  `json:"fundingTime"`
	FundingRate string `json:"fundingRate"`
}

var (
	_ Adapter     = (*Binance)(nil)
	_ SymbolRater = (*Binance)(nil)
)
