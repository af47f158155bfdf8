package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"funding-radar/internal/aggregate"
	"funding-radar/internal/history"
	"funding-radar/internal/model"
)

type stubSnapshotter struct {
	snap aggregate.Snapshot
}

func (s *stubSnapshotter) Snapshot(context.Context) aggregate.Snapshot { return s.snap }

type stubHistorian struct {
	resp     history.Response
	symbol   string
	timeRng  string
	exchange string
}

func (s *stubHistorian) Fetch(_ context.Context, symbol, timeRange, exchangeFilter string) history.Response {
	s.symbol, s.timeRng, s.exchange = symbol, timeRange, exchangeFilter
	return s.resp
}

type stubRater struct {
	record model.RateRecord
	err    error
}

func (s *stubRater) FetchSymbolRate(context.Context, string) (model.RateRecord, error) {
	return s.record, s.err
}

func newTestServer(snap aggregate.Snapshot, hist *stubHistorian, gate *stubRater) *Server {
	if hist == nil {
		hist = &stubHistorian{resp: history.Response{Success: true}}
	}
	if gate == nil {
		gate = &stubRater{}
	}
	return New(Options{}, &stubSnapshotter{snap: snap}, hist, gate, nil, zerolog.New(io.Discard))
}

func doRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := doRequest(t, newTestServer(aggregate.Snapshot{Success: true}, nil, nil), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 實際 %d", rec.Code)
	}
}

func TestFundingRates(t *testing.T) {
	snap := aggregate.Snapshot{
		Success: true,
		Data: []model.RateRecord{
			{Symbol: "BTC", Exchange: model.Binance, CurrentRate: "0.010", SettlementInterval: 8},
		},
		Debug: aggregate.Debug{BinanceCount: 1, TotalCount: 1},
	}

	rec := doRequest(t, newTestServer(snap, nil, nil), "/funding-rates")
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 實際 %d", rec.Code)
	}

	var got aggregate.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("解析響應失敗: %v", err)
	}
	if !got.Success || len(got.Data) != 1 || got.Debug.TotalCount != 1 {
		t.Fatalf("響應內容不正確: %+v", got)
	}
}

func TestHistoryPassesQueryParams(t *testing.T) {
	hist := &stubHistorian{resp: history.Response{Success: true, Symbol: "BTC"}}
	srv := newTestServer(aggregate.Snapshot{}, hist, nil)

	rec := doRequest(t, srv, "/history/BTC?timeRange=7d&exchange=Bybit")
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 實際 %d", rec.Code)
	}
	if hist.symbol != "BTC" || hist.timeRng != "7d" || hist.exchange != "Bybit" {
		t.Fatalf("查詢參數未正確傳遞: %q %q %q", hist.symbol, hist.timeRng, hist.exchange)
	}
}

func TestHistoryDefaultsAndUnknownExchange(t *testing.T) {
	hist := &stubHistorian{resp: history.Response{Success: true}}
	srv := newTestServer(aggregate.Snapshot{}, hist, nil)

	doRequest(t, srv, "/history/ETH")
	if hist.timeRng != "24h" || hist.exchange != "all" {
		t.Fatalf("預設參數不正確: %q %q", hist.timeRng, hist.exchange)
	}

	rec := doRequest(t, srv, "/history/ETH?exchange=Kraken")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("未知交易所應回傳 400, 實際 %d", rec.Code)
	}
}

func TestGateRate(t *testing.T) {
	t.Run("缺少參數", func(t *testing.T) {
		rec := doRequest(t, newTestServer(aggregate.Snapshot{}, nil, nil), "/gateio/current-rate")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("期望 400, 實際 %d", rec.Code)
		}
	})

	t.Run("上游失敗", func(t *testing.T) {
		gate := &stubRater{err: errors.New("連線逾時")}
		rec := doRequest(t, newTestServer(aggregate.Snapshot{}, nil, gate), "/gateio/current-rate?symbol=BTC")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("期望 500, 實際 %d", rec.Code)
		}
	})

	t.Run("無效費率", func(t *testing.T) {
		gate := &stubRater{record: model.RateRecord{CurrentRate: "0.0000"}}
		rec := doRequest(t, newTestServer(aggregate.Snapshot{}, nil, gate), "/gateio/current-rate?symbol=BTC")
		if rec.Code != http.StatusOK {
			t.Fatalf("期望 200, 實際 %d", rec.Code)
		}
		var body struct {
			Success bool `json:"success"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Success {
			t.Fatal("零值費率不應標記成功")
		}
	})

	t.Run("正常回傳", func(t *testing.T) {
		gate := &stubRater{record: model.RateRecord{Symbol: "BTC", CurrentRate: "0.0125"}}
		rec := doRequest(t, newTestServer(aggregate.Snapshot{}, nil, gate), "/gateio/current-rate?symbol=BTC")
		if rec.Code != http.StatusOK {
			t.Fatalf("期望 200, 實際 %d", rec.Code)
		}
		var body struct {
			Success bool   `json:"success"`
			Rate    string `json:"rate"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("解析響應失敗: %v", err)
		}
		if !body.Success || body.Rate != "0.0125" {
			t.Fatalf("響應內容不正確: %+v", body)
		}
	})
}
