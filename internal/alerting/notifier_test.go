package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spread-radar/internal/market"
)

func testAlert() Alert {
	return Alert{
		At:           time.Now(),
		ThresholdBps: decimal.NewFromInt(8),
		Rows: []market.OpportunityRow{{
			Symbol:    "BTC/USDT",
			BuyVenue:  "okx",
			Ask:       decimal.NewFromInt(100),
			SellVenue: "bybit",
			Bid:       decimal.RequireFromString("100.5"),
			Net:       decimal.RequireFromString("0.0034"),
			PnLUSD:    decimal.RequireFromString("0.68"),
		}},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "net 34.0 bps") {
		t.Fatalf("text 应包含净价差: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestAlertMessage(t *testing.T) {
	if got := testAlert().Message(); got != "ALERT: NET >= 8.0 bps" {
		t.Fatalf("unexpected message %q", got)
	}
	a := testAlert()
	a.ThresholdBps = decimal.RequireFromString("7.5")
	if got := a.Message(); got != "ALERT: NET >= 7.5 bps" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestBellWritesBEL(t *testing.T) {
	var buf bytes.Buffer
	if err := NewBell(&buf).Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("bell should succeed: %v", err)
	}
	if buf.String() != "\a" {
		t.Fatalf("expected BEL, got %q", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no tty") }

func TestFallbackSwallowsErrors(t *testing.T) {
	bell := NewBell(failingWriter{})
	if err := bell.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("raw bell should fail")
	}
	if err := NewFallback(bell, testLogger()).Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("fallback must not surface errors: %v", err)
	}
	if err := NewFallback(nil, testLogger()).Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("nil primary must act as nop: %v", err)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	m := Multi{NewBell(&buf), nil, NewBell(failingWriter{})}
	if err := m.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("expected joined error")
	}
	if buf.String() != "\a" {
		t.Fatal("first notifier should still ring")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
