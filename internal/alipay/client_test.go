package alipay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestQueryTrade_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/gateway/trade" {
			t.Fatalf("path = %s, want /gateway/trade", r.URL.Path)
		}
		if got := r.URL.Query().Get("out_trade_no"); got != "17000000001" {
			t.Fatalf("out_trade_no = %s, want 17000000001", got)
		}

		resp := TradeResult{
			OutTradeNo:  "17000000001",
			TradeNo:     "2026082912345",
			TradeStatus: TradeStatusSuccess,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.QueryTrade(ctx, "17000000001")
	if err != nil {
		t.Fatalf("QueryTrade error: %v", err)
	}
	if res.TradeStatus != TradeStatusSuccess {
		t.Fatalf("trade_status = %s, want %s", res.TradeStatus, TradeStatusSuccess)
	}
	if res.TradeNo != "2026082912345" {
		t.Fatalf("trade_no = %s, want 2026082912345", res.TradeNo)
	}
}

func TestQueryTrade_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.QueryTrade(ctx, "none")
	if err == nil {
		t.Fatalf("expected error for unknown trade")
	}
}

func TestPayURL(t *testing.T) {
	client := NewClient("pay.example.com", "secret")

	amount, _ := decimal.NewFromString("36.50")
	payURL := client.PayURL("17000000001", amount)

	u, err := url.Parse(payURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	if !strings.HasPrefix(payURL, "http://pay.example.com/gateway/pay?") {
		t.Fatalf("unexpected url prefix: %s", payURL)
	}
	if got := u.Query().Get("total_amount"); got != "36.50" {
		t.Fatalf("total_amount = %s, want 36.50", got)
	}
	if got := u.Query().Get("out_trade_no"); got != "17000000001" {
		t.Fatalf("out_trade_no = %s, want 17000000001", got)
	}
	if u.Query().Get("sign") == "" {
		t.Fatalf("sign must not be empty")
	}
}

func TestVerifySign(t *testing.T) {
	client := NewClient("pay.example.com", "secret")

	sign := client.Sign("17000000001", "2026082912345", TradeStatusSuccess)

	if !client.VerifySign(sign, "17000000001", "2026082912345", TradeStatusSuccess) {
		t.Fatalf("valid signature rejected")
	}
	if client.VerifySign(sign, "17000000002", "2026082912345", TradeStatusSuccess) {
		t.Fatalf("signature for other order accepted")
	}

	other := NewClient("pay.example.com", "other-secret")
	if other.VerifySign(sign, "17000000001", "2026082912345", TradeStatusSuccess) {
		t.Fatalf("signature with wrong secret accepted")
	}
}
