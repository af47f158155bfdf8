package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOKXServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/public/mark-price", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP"},
			{"instId":"ETH-USDT-SWAP"},
			{"instId":"BTC-USD-SWAP"}
		]}`))
	})
	mux.HandleFunc("/api/v5/public/funding-rate", func(w http.ResponseWriter, r *http.Request) {
		instID := r.URL.Query().Get("instId")
		switch instID {
		case "BTC-USDT-SWAP":
			w.Write([]byte(`{"code":"0","data":[{"instId":"BTC-USDT-SWAP","fundingRate":"0.0001","fundingTime":"1700000000000","nextFundingTime":"1700028800000"}]}`))
		case "ETH-USDT-SWAP":
			w.Write([]byte(`{"code":"0","data":[{"instId":"ETH-USDT-SWAP","fundingRate":"0.0002","fundingTime":"1700000000000","nextFundingTime":"1700014400000"}]}`))
		default:
			w.Write([]byte(fmt.Sprintf(`{"code":"51001","data":[],"msg":"unknown instrument %s"}`, instID)))
		}
	})
	mux.HandleFunc("/api/v5/public/funding-rate-history", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP","fundingRate":"0.0001","fundingTime":"1700002800000"},
			{"instId":"BTC-USDT-SWAP","fundingRate":"0.0002","fundingTime":"1699974000000"}
		]}`))
	})
	return httptest.NewServer(mux)
}

func newOKXAdapter(baseURL string) *OKX {
	return NewOKX(OKXOptions{
		BaseURL:           baseURL,
		MaxConcurrency:    4,
		RequestsPerSecond: 1000,
	}, newTestClient(1), noopLogger())
}

func TestOKXFetchCurrentTwoPhase(t *testing.T) {
	srv := newOKXServer(t)
	defer srv.Close()

	records, err := newOKXAdapter(srv.URL).FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent 不應報錯: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("非 USDT-SWAP 合約應被過濾, 期望 2 條, 實際 %d", len(records))
	}

	bydSymbol := map[string]float64{}
	for _, record := range records {
		bydSymbol[record.Symbol] = record.SettlementInterval
	}
	if bydSymbol["BTC"] != 8 {
		t.Fatalf("BTC 結算週期應為 (next-funding)/3.6e6 = 8, 實際 %g", bydSymbol["BTC"])
	}
	if bydSymbol["ETH"] != 4 {
		t.Fatalf("ETH 結算週期應為 4, 實際 %g", bydSymbol["ETH"])
	}
}

func TestOKXFetchHistory(t *testing.T) {
	srv := newOKXServer(t)
	defer srv.Close()

	records, err := newOKXAdapter(srv.URL).FetchHistory(context.Background(), "BTC", HistoryWindow{})
	if err != nil {
		t.Fatalf("FetchHistory 不應報錯: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("期望 2 條歷史記錄, 實際 %d", len(records))
	}
	if records[0].Symbol != "BTC" || records[0].Exchange != "OKX" {
		t.Fatalf("記錄字段不正確: %+v", records[0])
	}
}

func TestOKXFetchSymbolRate(t *testing.T) {
	srv := newOKXServer(t)
	defer srv.Close()

	record, err := newOKXAdapter(srv.URL).FetchSymbolRate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("FetchSymbolRate 不應報錯: %v", err)
	}
	if record.CurrentRate != "0.0100" {
		t.Fatalf("單幣種費率應為 4 位小數, 實際 %q", record.CurrentRate)
	}
	if record.NextFundingTime == "" || record.FundingTime == "" {
		t.Fatal("應回填 fundingTime 與 nextFundingTime")
	}
}
