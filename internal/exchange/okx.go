package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"funding-radar/internal/model"
)

// OKX adapter. The venue has no bulk funding-rate-by-symbol endpoint, so the
// current snapshot lists USDT-SWAP instruments first and then issues one
// funding-rate call per instrument, paced by a shared limiter.
type OKX struct {
	baseURL     string
	client      *Client
	limiter     *rate.Limiter
	concurrency int
	logger      zerolog.Logger
}

// OKXOptions tune the per-instrument inner fan-out.
type OKXOptions struct {
	BaseURL           string
	MaxConcurrency    int
	RequestsPerSecond float64
}

// NewOKX constructs the OKX adapter.
func NewOKX(opts OKXOptions, client *Client, logger zerolog.Logger) *OKX {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 10
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 20
	}

	return &OKX{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		concurrency: opts.MaxConcurrency,
		logger:      logger.With().Str("component", "okx_adapter").Logger(),
	}
}

func (o *OKX) Name() model.Exchange {
	return model.OKX
}

// FetchCurrent lists USDT perpetual instruments and fans out one
// funding-rate call per instrument. Individual instrument failures are
// logged and skipped.
func (o *OKX) FetchCurrent(ctx context.Context) ([]model.RateRecord, error) {
	var marks okxResponse[okxMarkPrice]
	if err := o.client.GetJSON(ctx, o.baseURL+"/api/v5/public/mark-price?instType=SWAP", nil, &marks); err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	if marks.Code != "0" {
		return nil, fmt.Errorf("instruments rejected: code %s", marks.Code)
	}

	instIDs := make([]string, 0, len(marks.Data))
	for _, item := range marks.Data {
		if strings.HasSuffix(item.InstID, "-USDT-SWAP") {
			instIDs = append(instIDs, item.InstID)
		}
	}

	results := make([]*model.RateRecord, len(instIDs))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < o.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				record, err := o.fetchInstrument(ctx, instIDs[i], snapshotPlaces)
				if err != nil {
					o.logger.Debug().Err(err).Str("inst_id", instIDs[i]).Msg("instrument funding rate unavailable")
					continue
				}
				results[i] = record
			}
		}()
	}

	for i := range instIDs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	records := make([]model.RateRecord, 0, len(results))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}

	return records, nil
}

func (o *OKX) fetchInstrument(ctx context.Context, instID string, places int32) (*model.RateRecord, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp okxResponse[okxFundingRate]
	url := fmt.Sprintf("%s/api/v5/public/funding-rate?instId=%s", o.baseURL, instID)
	if err := o.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return nil, fmt.Errorf("no funding rate for %s", instID)
	}

	item := resp.Data[0]
	rate, ok := parsePercent(item.FundingRate, places)
	if !ok {
		return nil, fmt.Errorf("funding rate not numeric for %s", instID)
	}

	fundingMs, _ := strconv.ParseInt(item.FundingTime, 10, 64)
	nextMs, _ := strconv.ParseInt(item.NextFundingTime, 10, 64)

	interval := float64(defaultIntervalHours)
	if fundingMs > 0 && nextMs > fundingMs {
		interval = float64(nextMs-fundingMs) / (1000 * 60 * 60)
	}

	record := model.RateRecord{
		Symbol:             strings.SplitN(instID, "-", 2)[0],
		Exchange:           model.OKX,
		CurrentRate:        rate,
		SettlementInterval: interval,
		IsSpecialInterval:  interval != defaultIntervalHours,
	}
	if fundingMs > 0 {
		record.FundingTime = isoMillis(fundingMs)
	}
	if nextMs > 0 {
		record.NextFundingTime = isoMillis(nextMs)
	}

	return &record, nil
}

// FetchHistory returns settled funding samples for one symbol.
func (o *OKX) FetchHistory(ctx context.Context, symbol string, window HistoryWindow) ([]model.RateRecord, error) {
	url := fmt.Sprintf("%s/api/v5/public/funding-rate-history?instId=%s-USDT-SWAP&limit=100", o.baseURL, symbol)

	var resp okxResponse[okxFundingSample]
	if err := o.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch funding history: %w", err)
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("funding history rejected: code %s", resp.Code)
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
			Exchange:           model.OKX,
			CurrentRate:        rate,
			SettlementInterval: defaultIntervalHours,
			Time:               isoMillis(ms),
		})
	}

	return records, nil
}

// FetchSymbolRate serves one symbol's live rate with a single instrument call.
func (o *OKX) FetchSymbolRate(ctx context.Context, symbol string) (model.RateRecord, error) {
	record, err := o.fetchInstrument(ctx, symbol+"-USDT-SWAP", HistoryPlaces)
	if err != nil {
		return model.RateRecord{}, err
	}
	return *record, nil
}

// okxResponse is the v5 API envelope shared by all endpoints.
type okxResponse[T any] struct {
	Code string `json:"code"`
	Data []T    `json:"data"`
}

type okxMarkPrice struct {
	InstID string `json:"instId"`
}

type okxFundingRate struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingTime string `json:"nextFundingTime"`
}

type okxFundingSample struct {
	InstID      string `json:"instId"`
	FundingRate string `json:"fundingRate"`
	FundingTime string `json:"fundingTime"`
}

var (
	_ Adapter     = (*OKX)(nil)
	_ SymbolRater = (*OKX)(nil)
)
