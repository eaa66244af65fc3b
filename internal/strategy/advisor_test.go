package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/ledger"
	"main/internal/schema"
)

func TestParseAdvice(t *testing.T) {
	cases := []struct {
		name       string
		reply      string
		action     schema.OrderSide
		confidence int
		reason     string
	}{
		{
			name:       "buy",
			reply:      "ACTION: BUY\nCONFIDENCE: 8\nREASON: breakout above resistance",
			action:     schema.OrderSideBuy,
			confidence: 8,
			reason:     "breakout above resistance",
		},
		{
			name:       "sell lowercase",
			reply:      "action: sell\nconfidence: 7\nreason: trend reversal",
			action:     schema.OrderSideSell,
			confidence: 7,
			reason:     "trend reversal",
		},
		{
			name:       "hold",
			reply:      "ACTION: HOLD\nCONFIDENCE: 3\nREASON: sideways market",
			action:     schema.OrderSideUnknown,
			confidence: 3,
			reason:     "sideways market",
		},
		{
			name:       "prose around fields",
			reply:      "Looking at the chart...\nMy ACTION: BUY for now.\nI'd say CONFIDENCE: 9/10\nREASON: strong volume",
			action:     schema.OrderSideBuy,
			confidence: 10, // 9 and 10 digits run together, clamped
			reason:     "strong volume",
		},
		{
			name:   "garbage",
			reply:  "I cannot provide financial advice.",
			action: schema.OrderSideUnknown,
		},
		{
			name:       "confidence without digits",
			reply:      "ACTION: SELL\nCONFIDENCE: high\nREASON: momentum",
			action:     schema.OrderSideSell,
			confidence: 0,
			reason:     "momentum",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			advice := ParseAdvice(tc.reply)
			assert.Equal(t, tc.action, advice.Action)
			assert.Equal(t, tc.confidence, advice.Confidence)
			assert.Equal(t, tc.reason, advice.Reason)
		})
	}
}

func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func advisorInput() Input {
	return Input{
		Symbol:  testSymbol(),
		Last:    10000,
		Balance: ledger.Balance{Total: 10_000_000},
		Candles: []schema.Candle{
			{Ts: 1, Open: 9900, High: 10100, Low: 9800, Close: 10000, Volume: 5000},
		},
		Now: 1,
	}
}

func TestAdvisorDecideBuy(t *testing.T) {
	srv := chatServer(t, "ACTION: BUY\nCONFIDENCE: 8\nREASON: uptrend")
	defer srv.Close()

	adv := NewAdvisor(AdvisorConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		Size:    SizeConfig{BalancePct: 0.1},
	})
	intents := adv.Decide(context.Background(), advisorInput())
	require.Len(t, intents, 1)
	assert.Equal(t, schema.OrderSideBuy, intents[0].Side)
	assert.Equal(t, schema.OrderTypeMarket, intents[0].Type)
	assert.NotZero(t, intents[0].Qty)
}

func TestAdvisorHoldsBelowConfidence(t *testing.T) {
	srv := chatServer(t, "ACTION: BUY\nCONFIDENCE: 4\nREASON: weak signal")
	defer srv.Close()

	adv := NewAdvisor(AdvisorConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		Size:    SizeConfig{BalancePct: 0.1},
	})
	assert.Empty(t, adv.Decide(context.Background(), advisorInput()))
}

func TestAdvisorHoldsOnEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adv := NewAdvisor(AdvisorConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		Size:    SizeConfig{BalancePct: 0.1},
	})
	assert.Empty(t, adv.Decide(context.Background(), advisorInput()))
}

func TestAdvisorSuppressedByPosition(t *testing.T) {
	srv := chatServer(t, "ACTION: BUY\nCONFIDENCE: 9\nREASON: uptrend")
	defer srv.Close()

	adv := NewAdvisor(AdvisorConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		Size:    SizeConfig{BalancePct: 0.1},
	})
	in := advisorInput()
	in.Position = ledger.Position{SymbolID: 1, Qty: 500}
	assert.Empty(t, adv.Decide(context.Background(), in))
}
