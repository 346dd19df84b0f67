package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkoval/tradepilot/internal/domain"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantOK     bool
		wantAction string
		wantConf   float64
	}{
		{
			name:       "plain json",
			content:    `{"action": "BUY", "confidence": 0.82, "reason": "breakout"}`,
			wantOK:     true,
			wantAction: "BUY",
			wantConf:   0.82,
		},
		{
			name: "json fence",
			content: "```json\n" +
				`{"action": "SELL", "confidence": 0.7, "reason": "downtrend"}` +
				"\n```",
			wantOK:     true,
			wantAction: "SELL",
			wantConf:   0.7,
		},
		{
			name: "bare fence",
			content: "```\n" +
				`{"action": "HOLD", "confidence": 0.5, "reason": "sideways"}` +
				"\n```",
			wantOK:     true,
			wantAction: "HOLD",
			wantConf:   0.5,
		},
		{
			name:       "json buried in prose",
			content:    `Based on my analysis {"action": "BUY", "confidence": 0.9, "reason": "momentum"} is my verdict.`,
			wantOK:     true,
			wantAction: "BUY",
			wantConf:   0.9,
		},
		{
			name:    "no json at all",
			content: "I think you should buy.",
			wantOK:  false,
		},
		{
			name:    "malformed json",
			content: `{"action": "BUY", "confidence": }`,
			wantOK:  false,
		},
		{
			name:    "empty action",
			content: `{"confidence": 0.9, "reason": "x"}`,
			wantOK:  false,
		},
		{
			name:    "empty content",
			content: "",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := parseVerdict(tt.content)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if v.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", v.Action, tt.wantAction)
			}
			if v.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", v.Confidence, tt.wantConf)
			}
		})
	}
}

// chatServer replies to /chat/completions with the given assistant content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func testMarketData() domain.MarketData {
	return domain.MarketData{
		Symbol:       "BTCUSDT",
		Price:        50000,
		Change24hPct: 1.5,
		High24h:      51000,
		Low24h:       49000,
		Volume24h:    12345,
	}
}

func TestGetSignal(t *testing.T) {
	srv := chatServer(t, `{"action": "BUY", "confidence": 0.88, "reason": "strong momentum"}`)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, ApiKey: "test-key"})
	sig, err := c.GetSignal(context.Background(), testMarketData(), nil)
	if err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if sig.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q", sig.Symbol)
	}
	if sig.Action != domain.SignalBuy {
		t.Errorf("Action = %q, want BUY", sig.Action)
	}
	if sig.Confidence != 0.88 {
		t.Errorf("Confidence = %v, want 0.88", sig.Confidence)
	}
	if sig.Reason != "strong momentum" {
		t.Errorf("Reason = %q", sig.Reason)
	}
}

type limiterSpy struct {
	waits int
	keys  []string
	err   error
}

func (l *limiterSpy) Wait(_ context.Context, key string) error {
	l.waits++
	l.keys = append(l.keys, key)
	return l.err
}

func (l *limiterSpy) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return true, nil
}

func TestGetSignalWaitsOnLimiter(t *testing.T) {
	srv := chatServer(t, `{"action": "BUY", "confidence": 0.88, "reason": "x"}`)
	defer srv.Close()

	limiter := &limiterSpy{}
	c := NewClient(Config{BaseURL: srv.URL, ApiKey: "test-key", Limiter: limiter})
	if _, err := c.GetSignal(context.Background(), testMarketData(), nil); err != nil {
		t.Fatalf("GetSignal: %v", err)
	}
	if limiter.waits != 1 {
		t.Errorf("limiter waits = %d, want 1 per completion call", limiter.waits)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != rateKey {
		t.Errorf("limiter keys = %v, want [%q]", limiter.keys, rateKey)
	}
}

func TestGetSignalLimiterErrorBlocksRequest(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
	}))
	defer srv.Close()

	waitErr := errors.New("rate budget exhausted")
	limiter := &limiterSpy{err: waitErr}
	c := NewClient(Config{BaseURL: srv.URL, ApiKey: "test-key", Limiter: limiter})
	if _, err := c.GetSignal(context.Background(), testMarketData(), nil); !errors.Is(err, waitErr) {
		t.Fatalf("err = %v, want the limiter error", err)
	}
	if requests != 0 {
		t.Errorf("upstream requests = %d, want 0 when throttled", requests)
	}
}

func TestGetSignalDegradesToHold(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "prose reply", content: "I cannot decide right now."},
		{name: "unknown action", content: `{"action": "SHORT", "confidence": 0.9, "reason": "x"}`},
		{name: "confidence above one", content: `{"action": "BUY", "confidence": 1.5, "reason": "x"}`},
		{name: "negative confidence", content: `{"action": "SELL", "confidence": -0.2, "reason": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.content)
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, ApiKey: "test-key"})
			sig, err := c.GetSignal(context.Background(), testMarketData(), nil)
			if err != nil {
				t.Fatalf("a bad model reply must not be an error, got %v", err)
			}
			if sig.Action != domain.SignalHold {
				t.Errorf("Action = %q, want HOLD", sig.Action)
			}
			if sig.Confidence != 0 {
				t.Errorf("Confidence = %v, want 0", sig.Confidence)
			}
		})
	}
}

func TestGetSignalTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, ApiKey: "test-key"})
	if _, err := c.GetSignal(context.Background(), testMarketData(), nil); err == nil {
		t.Fatal("transport failures must surface as errors")
	}
}
