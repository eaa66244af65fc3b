package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// AdvisorConfig configures the LLM advisor strategy.
type AdvisorConfig struct {
	BaseURL       string        `json:"baseUrl"`
	APIKey        string        `json:"apiKey"`
	Model         string        `json:"model"`
	Timeout       time.Duration `json:"timeout"`
	MinConfidence int           `json:"minConfidence"` // 1..10
	CandleCount   int           `json:"candleCount"`
	Size          SizeConfig
}

// Advice is a parsed model recommendation.
type Advice struct {
	Action     schema.OrderSide // zero value means hold
	Confidence int              // 0..10
	Reason     string
}

// Hold reports whether the advice recommends no trade.
func (a Advice) Hold() bool {
	return a.Action == schema.OrderSideUnknown
}

// Advisor asks an OpenAI-compatible chat endpoint for a trade
// recommendation each cycle. Any transport, decode or format problem
// degrades to hold; the advisor never fails a decision cycle.
type Advisor struct {
	cfg    AdvisorConfig
	client *http.Client
}

// NewAdvisor creates the strategy against a chat-completion endpoint.
func NewAdvisor(cfg AdvisorConfig) *Advisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 6
	}
	if cfg.CandleCount <= 0 {
		cfg.CandleCount = 20
	}
	return &Advisor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *Advisor) Name() string { return "llm_advisor" }

// Decide asks the model and converts a confident buy/sell into one
// market intent. Signals in the direction of the current position are
// suppressed.
func (a *Advisor) Decide(ctx context.Context, in Input) []schema.OrderIntent {
	advice, err := a.ask(ctx, in)
	if err != nil {
		logs.Warnf("advisor hold: %+v", err)
		return nil
	}
	if advice.Hold() || advice.Confidence < a.cfg.MinConfidence {
		return nil
	}
	if samePositionDirection(in.Position.Qty, advice.Action) {
		return nil
	}
	price := in.Last
	if price == 0 {
		return nil
	}
	qty, ok := SizeQty(in.Symbol, price, in.Balance.Available(), a.cfg.Size)
	if !ok {
		return nil
	}
	logs.Infof("advisor %s %s confidence %d: %s", advice.Action, in.Symbol.Name, advice.Confidence, advice.Reason)
	return []schema.OrderIntent{{
		SymbolID: in.Symbol.ID,
		Side:     advice.Action,
		Type:     schema.OrderTypeMarket,
		Price:    price,
		Qty:      qty,
	}}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *Advisor) ask(ctx context.Context, in Input) (Advice, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an experienced cryptocurrency trading analyst. Analyze the data and give a clear recommendation."},
			{Role: "user", Content: a.prompt(in)},
		},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return Advice{}, errors.Wrap(err, "marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Advice{}, errors.Wrap(err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Advice{}, errors.Wrap(err, "chat request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Advice{}, errors.Errorf("chat endpoint status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Advice{}, errors.Wrap(err, "read chat response")
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Advice{}, errors.Wrap(err, "decode chat response")
	}
	if len(out.Choices) == 0 {
		return Advice{}, errors.New("chat response has no choices")
	}
	return ParseAdvice(out.Choices[0].Message.Content), nil
}

func (a *Advisor) prompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the market data for %s:\n\n", in.Symbol.Name)
	fmt.Fprintf(&b, "Current price: %s\n", schema.FormatScaled(int64(in.Last), in.Symbol.Scale.PriceScale))
	fmt.Fprintf(&b, "Net position: %s\n\n", schema.FormatScaled(int64(in.Position.Qty), in.Symbol.Scale.QuantityScale))

	candles := in.Candles
	if len(candles) > a.cfg.CandleCount {
		candles = candles[len(candles)-a.cfg.CandleCount:]
	}
	if len(candles) > 0 {
		fmt.Fprintf(&b, "Last %d candles (time, open, high, low, close, volume):\n", len(candles))
		for _, c := range candles {
			fmt.Fprintf(&b, "%d, %s, %s, %s, %s, %s\n",
				c.Ts,
				schema.FormatScaled(int64(c.Open), in.Symbol.Scale.PriceScale),
				schema.FormatScaled(int64(c.High), in.Symbol.Scale.PriceScale),
				schema.FormatScaled(int64(c.Low), in.Symbol.Scale.PriceScale),
				schema.FormatScaled(int64(c.Close), in.Symbol.Scale.PriceScale),
				schema.FormatScaled(int64(c.Volume), in.Symbol.Scale.QuantityScale),
			)
		}
	}

	b.WriteString("\nBased on technical analysis, respond in exactly this format:\n")
	b.WriteString("ACTION: [BUY/SELL/HOLD]\n")
	b.WriteString("CONFIDENCE: [1-10]\n")
	b.WriteString("REASON: [short justification]\n")
	return b.String()
}

// ParseAdvice extracts ACTION/CONFIDENCE/REASON lines from a model
// reply. Anything unparseable yields a hold with zero confidence.
func ParseAdvice(reply string) Advice {
	advice := Advice{}
	for _, line := range strings.Split(reply, "\n") {
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "ACTION:"):
			part := upper[strings.Index(upper, "ACTION:")+len("ACTION:"):]
			switch {
			case strings.Contains(part, "BUY"):
				advice.Action = schema.OrderSideBuy
			case strings.Contains(part, "SELL"):
				advice.Action = schema.OrderSideSell
			default:
				advice.Action = schema.OrderSideUnknown
			}
		case strings.Contains(upper, "CONFIDENCE:"):
			part := upper[strings.Index(upper, "CONFIDENCE:")+len("CONFIDENCE:"):]
			advice.Confidence = clampConfidence(digits(part))
		case strings.Contains(upper, "REASON:"):
			advice.Reason = strings.TrimSpace(line[strings.Index(upper, "REASON:")+len("REASON:"):])
		}
	}
	return advice
}

func digits(s string) int {
	n := 0
	found := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			found = true
		}
	}
	if !found {
		return 0
	}
	return n
}

func clampConfidence(n int) int {
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}
