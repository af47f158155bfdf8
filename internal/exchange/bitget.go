package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"funding-radar/internal/model"
)

// Bitget adapter. Market calls carry a locale header the upstream expects;
// settlement intervals come from the companion contracts call.
type Bitget struct {
	baseURL string
	client  *Client
	logger  zerolog.Logger
}

// NewBitget constructs the Bitget adapter.
func NewBitget(baseURL string, client *Client, logger zerolog.Logger) *Bitget {
	return &Bitget{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With().Str("component", "bitget_adapter").Logger(),
	}
}

func (b *Bitget) Name() model.Exchange {
	return model.Bitget
}

func bitgetHeader() http.Header {
	h := http.Header{}
	h.Set("locale", "zh-CN")
	return h
}

// FetchCurrent returns live rates for USDT-margined futures.
func (b *Bitget) FetchCurrent(ctx context.Context) ([]model.RateRecord, error) {
	var tickers bitgetResponse[bitgetTicker]
	url := b.baseURL + "/api/v2/mix/market/tickers?productType=USDT-FUTURES"
	if err := b.client.GetJSON(ctx, url, bitgetHeader(), &tickers); err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}
	if tickers.Code != "00000" {
		return nil, fmt.Errorf("tickers rejected: %s - %s", tickers.Code, tickers.Msg)
	}

	intervals := make(map[string]float64)
	var contracts bitgetResponse[bitgetContract]
	contractsURL := b.baseURL + "/api/v2/mix/market/contracts?productType=USDT-FUTURES"
	if err := b.client.GetJSON(ctx, contractsURL, bitgetHeader(), &contracts); err != nil {
		b.logger.Warn().Err(err).Msg("contracts unavailable, defaulting intervals to 8h")
	} else {
		for _, contract := range contracts.Data {
			if hours, err := strconv.Atoi(contract.FundInterval); err == nil && hours > 0 {
				intervals[contract.Symbol] = float64(hours)
			}
		}
	}

	records := make([]model.RateRecord, 0, len(tickers.Data))
	for _, item := range tickers.Data {
		if item.Symbol == "" || item.FundingRate == "" {
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
			Exchange:           model.Bitget,
			CurrentRate:        rate,
			SettlementInterval: interval,
			IsSpecialInterval:  interval != defaultIntervalHours,
		})
	}

	return records, nil
}

// FetchHistory returns settled funding samples for one symbol.
func (b *Bitget) FetchHistory(ctx context.Context, symbol string, window HistoryWindow) ([]model.RateRecord, error) {
	url := fmt.Sprintf("%s/api/v2/mix/market/history-fund-rate?symbol=%sUSDT&productType=usdt-futures&pageSize=100",
		b.baseURL, symbol)

	var resp bitgetResponse[bitgetFundingSample]
	if err := b.client.GetJSON(ctx, url, bitgetHeader(), &resp); err != nil {
		return nil, fmt.Errorf("fetch funding history: %w", err)
	}
	if resp.Code != "00000" {
		return nil, fmt.Errorf("funding history rejected: %s - %s", resp.Code, resp.Msg)
	}

	records := make([]model.RateRecord, 0, len(resp.Data))
	for _, item := range resp.Data {
		ms, err := strconv.ParseInt(item.FundingTime, 10, 64)
		if err != nil {
			continue
		}
		rate, ok := parsePercent(item.FundingRate, HistoryPlaces)
		if !ok {
			continue
		}
		records = append(records, model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.Bitget,
			CurrentRate:        rate,
			SettlementInterval: defaultIntervalHours,
			Time:               isoMillis(ms),
		})
	}

	return records, nil
}

// FetchSymbolRate serves one symbol's live rate from the current-fund-rate
// endpoint without a full ticker sweep.
func (b *Bitget) FetchSymbolRate(ctx context.Context, symbol string) (model.RateRecord, error) {
	url := fmt.Sprintf("%s/api/v2/mix/market/current-fund-rate?symbol=%sUSDT&productType=usdt-futures",
		b.baseURL, symbol)

	var resp bitgetResponse[bitgetFundingSample]
	if err := b.client.GetJSON(ctx, url, bitgetHeader(), &resp); err != nil {
		return model.RateRecord{}, fmt.Errorf("fetch current fund rate: %w", err)
	}
	if resp.Code != "00000" {
		return model.RateRecord{}, fmt.Errorf("current fund rate rejected: %s - %s", resp.Code, resp.Msg)
	}
	if len(resp.Data) == 0 {
		return model.RateRecord{}, fmt.Errorf("current fund rate empty for %s", symbol)
	}

	rate, ok := parsePercent(resp.Data[0].FundingRate, HistoryPlaces)
	if !ok {
		return model.RateRecord{}, fmt.Errorf("current fund rate not numeric for %s", symbol)
	}

	return model.RateRecord{
		Symbol:             symbol,
		Exchange:           model.Bitget,
		CurrentRate:        rate,
		SettlementInterval: defaultIntervalHours,
	}, nil
}

// bitgetResponse is the v2 API envelope shared by all endpoints.
type bitgetResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

type bitgetTicker struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
}

type bitgetContract struct {
	Symbol       string `json:"symbol"`
	FundInterval string `json:"fundInterval"`
}

type bitgetFundingSample struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	FundingTime string `json:"fundingTime"`
}

var (
	_ Adapter     = (*Bitget)(nil)
	_ SymbolRater = (*Bitget)(nil)
)
