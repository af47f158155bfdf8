package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newBitgetServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/mix/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("locale") != "zh-CN" {
			t.Errorf("tickers 請求應攜帶 locale 頭, 實際 %q", r.Header.Get("locale"))
		}
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","fundingRate":"0.0001"},
			{"symbol":"SUIUSDT","fundingRate":"-0.0003"},
			{"symbol":"NORATEUSDT","fundingRate":""}
		]}`))
	})
	mux.HandleFunc("/api/v2/mix/market/contracts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			{"symbol":"SUIUSDT","fundInterval":"4"}
		]}`))
	})
	mux.HandleFunc("/api/v2/mix/market/history-fund-rate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingTime":"1700002800000"},
			{"symbol":"BTCUSDT","fundingRate":"bogus","fundingTime":"1699974000000"}
		]}`))
	})
	mux.HandleFunc("/api/v2/mix/market/current-fund-rate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","fundingRate":"0.000125"}
		]}`))
	})
	return httptest.NewServer(mux)
}

func TestBitgetFetchCurrent(t *testing.T) {
	srv := newBitgetServer(t)
	defer srv.Close()

	adapter := NewBitget(srv.URL, newTestClient(1), noopLogger())
	records, err := adapter.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent 不應報錯: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("空費率應被過濾, 期望 2 條, 實際 %d", len(records))
	}
	if records[0].Symbol != "BTC" || records[0].SettlementInterval != 8 {
		t.Fatalf("BTC 應為默認 8 小時: %+v", records[0])
	}
	if records[1].Symbol != "SUI" || records[1].SettlementInterval != 4 || !records[1].IsSpecialInterval {
		t.Fatalf("SUI 應使用 contracts 的 4 小時週期: %+v", records[1])
	}
}

func TestBitgetFetchHistorySkipsBadRates(t *testing.T) {
	srv := newBitgetServer(t)
	defer srv.Close()

	adapter := NewBitget(srv.URL, newTestClient(1), noopLogger())
	records, err := adapter.FetchHistory(context.Background(), "BTC", HistoryWindow{})
	if err != nil {
		t.Fatalf("FetchHistory 不應報錯: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("非數值費率應被跳過, 期望 1 條, 實際 %d", len(records))
	}
	if records[0].CurrentRate != "0.0100" {
		t.Fatalf("歷史費率應為 4 位小數, 實際 %q", records[0].CurrentRate)
	}
}

func TestBitgetFetchSymbolRate(t *testing.T) {
	srv := newBitgetServer(t)
	defer srv.Close()

	adapter := NewBitget(srv.URL, newTestClient(1), noopLogger())
	record, err := adapter.FetchSymbolRate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("FetchSymbolRate 不應報錯: %v", err)
	}
	if record.CurrentRate != "0.0125" {
		t.Fatalf("0.000125 應轉換為 0.0125, 實際 %q", record.CurrentRate)
	}
}

func TestBitgetRejectedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"40001","msg":"param error","data":[]}`))
	}))
	defer srv.Close()

	adapter := NewBitget(srv.URL, newTestClient(1), noopLogger())
	if _, err := adapter.FetchCurrent(context.Background()); err == nil {
		t.Fatal("code 非 00000 應返回錯誤")
	}
}
