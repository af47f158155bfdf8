package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"funding-radar/internal/model"
)

// Default settlement interval in hours when a venue does not report one.
const defaultIntervalHours = 8

// Decimal places used when formatting rates as percentages. History
// records carry one more place than the bulk snapshot; HistoryPlaces is
// exported so downstream bucketing formats at the same precision.
const (
	snapshotPlaces int32 = 3
	HistoryPlaces  int32 = 4
)

// HistoryWindow bounds one historical lookup. Limit is the venue-specific
// row ceiling for venues that accept one.
type HistoryWindow struct {
	Start time.Time
	End   time.Time
	Limit int
}

// Adapter turns one venue's API responses into normalized rate records.
// Each call re-fetches; adapters hold no cross-call state.
type Adapter interface {
	Name() model.Exchange
	FetchCurrent(ctx context.Context) ([]model.RateRecord, error)
	FetchHistory(ctx context.Context, symbol string, window HistoryWindow) ([]model.RateRecord, error)
}

// SymbolRater is implemented by adapters whose venue exposes a cheap
// single-symbol live-rate lookup, so callers can avoid a full snapshot.
type SymbolRater interface {
	FetchSymbolRate(ctx context.Context, symbol string) (model.RateRecord, error)
}

// RawSample is one unaggregated funding sample, kept in raw fraction form so
// downstream averaging does not round twice.
type RawSample struct {
	Time time.Time
	Rate decimal.Decimal
}

var dec100 = decimal.NewFromInt(100)

// PercentFixed converts a raw funding fraction to a percentage string with
// the given number of decimal places.
func PercentFixed(raw decimal.Decimal, places int32) string {
	return raw.Mul(dec100).StringFixed(places)
}

// parsePercent parses a raw fraction string and formats it as a percentage.
// The bool is false when the input is not a number.
func parsePercent(raw string, places int32) (string, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return PercentFixed(d, places), true
}

func stripSuffix(symbol, suffix string) (string, bool) {
	if !strings.HasSuffix(symbol, suffix) || len(symbol) == len(suffix) {
		return "", false
	}
	return strings.TrimSuffix(symbol, suffix), true
}

// timeFormat is the wire format for all emitted timestamps.
const timeFormat = time.RFC3339

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isoMillis(ms int64) string {
	return timeFromMillis(ms).Format(timeFormat)
}
