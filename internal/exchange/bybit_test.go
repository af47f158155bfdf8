package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newBybitServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v5/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[
			{"symbol":"BTCUSDT","fundingRate":"0.0001","nextFundingTime":"1700028800000"},
			{"symbol":"PEPEUSDT","fundingRate":"0.0005","nextFundingTime":"1700028800000"},
			{"symbol":"NOFUNDUSDT","fundingRate":"","nextFundingTime":""},
			{"symbol":"ETHPERP","fundingRate":"0.0001","nextFundingTime":"1700028800000"}
		]}}`))
	})
	mux.HandleFunc("/v5/market/instruments-info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[
			{"symbol":"BTCUSDT","fundingInterval":480},
			{"symbol":"PEPEUSDT","fundingInterval":60}
		]}}`))
	})
	// 1700000000000 = 2023-11-14T22:13:20Z，分鐘不為零，應被丟棄
	mux.HandleFunc("/v5/market/funding/history", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[
			{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingRateTimestamp":"1700002800000"},
			{"symbol":"BTCUSDT","fundingRate":"0.0002","fundingRateTimestamp":"1700000000000"},
			{"symbol":"BTCUSDT","fundingRate":"0.0003","fundingRateTimestamp":"1699974000000"}
		]}}`))
	})
	return httptest.NewServer(mux)
}

func TestBybitFetchCurrent(t *testing.T) {
	srv := newBybitServer(t)
	defer srv.Close()

	adapter := NewBybit(srv.URL, newTestClient(1), noopLogger())
	records, err := adapter.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent 不應報錯: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("空費率與非 USDT 合約應被過濾, 期望 2 條, 實際 %d", len(records))
	}
	if records[0].Symbol != "BTC" || records[0].SettlementInterval != 8 || records[0].IsSpecialInterval {
		t.Fatalf("BTC 應為 480 分鐘 = 8 小時: %+v", records[0])
	}
	if records[1].Symbol != "PEPE" || records[1].SettlementInterval != 1 || !records[1].IsSpecialInterval {
		t.Fatalf("PEPE 應為 60 分鐘 = 1 小時特殊週期: %+v", records[1])
	}
}

func TestBybitHistoryDropsOffHourSamples(t *testing.T) {
	srv := newBybitServer(t)
	defer srv.Close()

	adapter := NewBybit(srv.URL, newTestClient(1), noopLogger())
	window := HistoryWindow{Start: time.Now().Add(-5 * 24 * time.Hour), End: time.Now(), Limit: 50}
	records, err := adapter.FetchHistory(context.Background(), "BTC", window)
	if err != nil {
		t.Fatalf("FetchHistory 不應報錯: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("非整點樣本應被丟棄, 期望 2 條, 實際 %d", len(records))
	}
	for _, record := range records {
		ts, err := time.Parse(time.RFC3339, record.Time)
		if err != nil {
			t.Fatalf("時間戳格式錯誤: %v", err)
		}
		if ts.Minute() != 0 {
			t.Fatalf("保留的樣本分鐘應為零: %s", record.Time)
		}
	}
}

func TestBybitRejectedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{"list":[]}}`))
	}))
	defer srv.Close()

	adapter := NewBybit(srv.URL, newTestClient(1), noopLogger())
	if _, err := adapter.FetchCurrent(context.Background()); err == nil {
		t.Fatal("retCode 非零應返回錯誤")
	}
}
