package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"funding-radar/internal/model"
)

// GateIO adapter. The contracts listing carries rate, interval (seconds),
// and next settlement time in one payload; a per-contract endpoint serves
// the single-symbol convenience lookup.
type GateIO struct {
	baseURL string
	client  *Client
	logger  zerolog.Logger
}

// NewGateIO constructs the Gate.io adapter.
func NewGateIO(baseURL string, client *Client, logger zerolog.Logger) *GateIO {
	return &GateIO{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With().Str("component", "gateio_adapter").Logger(),
	}
}

func (g *GateIO) Name() model.Exchange {
	return model.GateIO
}

// FetchCurrent returns live rates for all USDT-settled contracts.
func (g *GateIO) FetchCurrent(ctx context.Context) ([]model.RateRecord, error) {
	var contracts []gateContract
	if err := g.client.GetJSON(ctx, g.baseURL+"/api/v4/futures/usdt/contracts", nil, &contracts); err != nil {
		return nil, fmt.Errorf("fetch contracts: %w", err)
	}

	records := make([]model.RateRecord, 0, len(contracts))
	for _, item := range contracts {
		symbol, ok := stripSuffix(item.Name, "_USDT")
		if !ok {
			continue
		}
		rate, ok := parsePercent(item.FundingRate, snapshotPlaces)
		if !ok {
			continue
		}
		interval := float64(defaultIntervalHours)
		if item.FundingInterval > 0 {
			interval = float64(item.FundingInterval) / 3600
		}
		record := model.RateRecord{
			Symbol:             symbol,
			Exchange:           model.GateIO,
			CurrentRate:        rate,
			SettlementInterval: interval,
			IsSpecialInterval:  interval != defaultIntervalHours,
		}
		if item.FundingNextApply > 0 {
			record.NextFundingTime = time.Unix(item.FundingNextApply, 0).UTC().Format(timeFormat)
		}
		records = append(records, record)
	}

	return records, nil
}

// FetchHistory is unsupported upstream for the windowed shape the
// reconciler needs; Gate.io participates in the snapshot and the
// single-symbol lookup only. The error keeps a mis-wired caller from
// reading the empty series as an upstream outage.
func (g *GateIO) FetchHistory(ctx context.Context, symbol string, window HistoryWindow) ([]model.RateRecord, error) {
	return nil, fmt.Errorf("gateio: funding history not supported")
}

// FetchSymbolRate serves one symbol's live rate from the per-contract
// endpoint.
func (g *GateIO) FetchSymbolRate(ctx context.Context, symbol string) (model.RateRecord, error) {
	url := fmt.Sprintf("%s/api/v4/futures/usdt/contracts/%s_USDT", g.baseURL, symbol)

	var contract gateContract
	if err := g.client.GetJSON(ctx, url, nil, &contract); err != nil {
		return model.RateRecord{}, fmt.Errorf("fetch contract: %w", err)
	}

	rate, ok := parsePercent(contract.FundingRate, HistoryPlaces)
	if !ok {
		return model.RateRecord{}, fmt.Errorf("funding rate not numeric for %s", symbol)
	}

	interval := float64(defaultIntervalHours)
	if contract.FundingInterval > 0 {
		interval = float64(contract.FundingInterval) / 3600
	}

	record := model.RateRecord{
		Symbol:             symbol,
		Exchange:           model.GateIO,
		CurrentRate:        rate,
		SettlementInterval: interval,
		IsSpecialInterval:  interval != defaultIntervalHours,
	}
	if contract.FundingNextApply > 0 {
		record.NextFundingTime = time.Unix(contract.FundingNextApply, 0).UTC().Format(timeFormat)
	}

	return record, nil
}

type gateContract struct {
	Name             string `json:"name"`
	FundingRate      string `json:"funding_rate"`
	FundingInterval  int64  `json:"funding_interval"`
	FundingNextApply int64  `json:"funding_next_apply"`
}

var (
	_ Adapter     = (*GateIO)(nil)
	_ SymbolRater = (*GateIO)(nil)
)
