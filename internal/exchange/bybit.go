package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"funding-radar/internal/model"
)

// Bybit adapter. Settlement intervals arrive in minutes from the
// instruments-info endpoint and are converted to hours.
type Bybit struct {
	baseURL string
	client  *Client
	logger  zerolog.Logger
}

// NewBybit constructs the Bybit adapter.
func NewBybit(baseURL string, client *Client, logger zerolog.Logger) *Bybit {
	return &Bybit{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With().Str("component", "bybit_adapter").Logger(),
	}
}

func (b *Bybit) Name() model.Exchange {
	return model.Bybit
}

// FetchCurrent returns live rates for linear USDT perpetuals.
func (b *Bybit) FetchCurrent(ctx context.Context) ([]model.RateRecord, error) {
	var tickers bybitResponse[bybitTicker]
	if err := b.client.GetJSON(ctx, b.baseURL+"/v5/market/tickers?category=linear", nil, &tickers); err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}
	if tickers.RetCode != 0 {
		return nil, fmt.Errorf("tickers rejected: %s", tickers.RetMsg)
	}

	intervals := make(map[string]float64)
	var instruments bybitResponse[bybitInstrument]
	if err := b.client.GetJSON(ctx, b.baseURL+"/v5/market/instruments-info?category=linear&limit=1000", nil, &instruments); err != nil {
		b.logger.Warn().Err(err).Msg("instruments info unavailable, defaulting intervals to 480m")
	} else {
		for _, inst := range instruments.Result.List {
			minutes := inst.FundingInterval
			if minutes <= 0 {
				minutes = 480
			}
			intervals[inst.Symbol] = float64(minutes) / 60
		}
	}

	records := make([]model.RateRecord, 0, len(tickers.Result.List))
	for _, item := range tickers.Result.List {
		if item.FundingRate == "" {
			continue
		}
		symbol, ok := stripSuffix(item.Symbol, "USDT")
		if !ok {
			continue
		}
		rate, ok := parsePercent(item.FundingRate, snapshotPlaces)
		if !ok {
			continue
		}
		interval := intervals[item.Symbol]
		if interval == 0 {
			interval = defaultIntervalHours
		}
		records = append(records, model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.Bybit,
			CurrentRate:        rate,
			SettlementInterval: interval,
			IsSpecialInterval:  interval != defaultIntervalHours,
		})
	}

	return records, nil
}

// FetchHistory returns settled funding samples. Samples whose timestamp does
// not fall exactly on the hour are duplicates from intra-hour resettlements
// and are discarded.
func (b *Bybit) FetchHistory(ctx context.Context, symbol string, window HistoryWindow) ([]model.RateRecord, error) {
	url := fmt.Sprintf("%s/v5/market/funding/history?category=linear&symbol=%sUSDT&limit=200", b.baseURL, symbol)

	var resp bybitResponse[bybitFundingSample]
	if err := b.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch funding history: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("funding history rejected: %s", resp.RetMsg)
	}

	records := make([]model.RateRecord, 0, len(resp.Result.List))
	for _, item := range resp.Result.List {
		ms, err := strconv.ParseInt(item.FundingRateTimestamp, 10, 64)
		if err != nil {
			continue
		}
		ts := timeFromMillis(ms)
		if ts.Minute() != 0 {
			continue
		}
		rate, ok := parsePercent(item.FundingRate, HistoryPlaces)
		if !ok {
			continue
		}
		records = append(records, model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.Bybit,
			CurrentRate:        rate,
			SettlementInterval: defaultIntervalHours,
			Time:               ts.Format(timeFormat),
		})
	}

	return records, nil
}

// FetchSymbolRate serves one symbol's live rate from the single-symbol
// tickers form.
func (b *Bybit) FetchSymbolRate(ctx context.Context, symbol string) (model.RateRecord, error) {
	url := fmt.Sprintf("%s/v5/market/tickers?category=linear&symbol=%sUSDT", b.baseURL, symbol)

	var resp bybitResponse[bybitTicker]
	if err := b.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return model.RateRecord{}, fmt.Errorf("fetch ticker: %w", err)
	}
	if resp.RetCode != 0 || len(resp.Result.List) == 0 {
		return model.RateRecord{}, fmt.Errorf("no ticker for %s: %s", symbol, resp.RetMsg)
	}

	rate, ok := parsePercent(resp.Result.List[0].FundingRate, HistoryPlaces)
	if !ok {
		return model.RateRecord{}, fmt.Errorf("funding rate not numeric for %s", symbol)
	}

	return model.RateRecord{
		Symbol:             symbol,
		Exchange:           model.Bybit,
		CurrentRate:        rate,
		SettlementInterval: defaultIntervalHours,
	}, nil
}

// bybitResponse is the v5 API envelope shared by all endpoints.
type bybitResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string `json:"category"`
		List     []T    `json:"list"`
	} `json:"result"`
}

type bybitTicker struct {
	Symbol          string `json:"symbol"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

type bybitInstrument struct {
	Symbol          string `json:"symbol"`
	FundingInterval int    `json:"fundingInterval"`
}

type bybitFundingSample struct {
	Symbol               string `json:"symbol"`
	FundingRate          string `json:"fundingRate"`
	FundingRateTimestamp string `json:"fundingRateTimestamp"`
}

var (
	_ Adapter     = (*Bybit)(nil)
	_ SymbolRater = (*Bybit)(nil)
)
