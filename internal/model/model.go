package model

import (
	"github.com/shopspring/decimal"
)

// Exchange identifies one upstream venue.
type Exchange string

const (
	Binance     Exchange = "Binance"
	Bybit       Exchange = "Bybit"
	Bitget      Exchange = "Bitget"
	OKX         Exchange = "OKX"
	GateIO      Exchange = "Gate.io"
	HyperLiquid Exchange = "HyperLiquid"
)

// All lists every supported exchange in merge order.
func All() []Exchange {
	return []Exchange{Binance, Bybit, Bitget, OKX, GateIO, HyperLiquid}
}

// Parse maps a request parameter onto a known exchange. The second return
// value is false for anything outside the fixed enumeration.
func Parse(s string) (Exchange, bool) {
	for _, ex := range All() {
		if string(ex) == s {
			return ex, true
		}
	}
	return "", false
}

// HourlyRate is one raw sub-sample retained inside an averaged bucket for
// drill-down display.
type HourlyRate struct {
	Time string `json:"time"`
	Rate string `json:"rate"`
}

// RateRecord is the canonical unit of output. Current-snapshot records carry
// symbol/exchange/rate/interval; history records additionally carry a sample
// time, and bucketed HyperLiquid records carry the raw hourly sub-samples.
type RateRecord struct {
	Symbol             string   `json:"symbol"`
	Exchange           Exchange `json:"exchange"`
	CurrentRate        string   `json:"currentRate,omitempty"`
	SettlementInterval float64  `json:"settlementInterval"`
	IsSpecialInterval  bool     `json:"isSpecialInterval"`

	Time            string       `json:"time,omitempty"`
	IsCurrent       bool         `json:"isCurrent,omitempty"`
	FundingTime     string       `json:"fundingTime,omitempty"`
	NextFundingTime string       `json:"nextFundingTime,omitempty"`
	HourlyRates     []HourlyRate `json:"hourlyRates,omitempty"`
}

// ValidRate reports whether s parses to a finite non-zero decimal. Records
// failing this check are dropped before reaching callers.
func ValidRate(s string) bool {
	if s == "" {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return !d.IsZero()
}
