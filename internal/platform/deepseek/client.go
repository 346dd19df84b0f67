// Package deepseek is a client for the DeepSeek chat completions API used as
// the trading signal provider.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkoval/tradepilot/internal/domain"
)

// rateKey is the shared rate-limit budget all replicas draw from.
const rateKey = "deepseek"

// Config holds the client parameters.
type Config struct {
	BaseURL     string
	ApiKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64

	// Limiter, when set, throttles completion calls across replicas.
	Limiter domain.RateLimiter
}

// Client calls the DeepSeek chat completions endpoint and parses the model's
// JSON verdict into a domain.Signal.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new DeepSeek client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

const systemPrompt = `You are a cryptocurrency futures trading analyst.
Respond ONLY with a JSON object of the form
{"action": "BUY"|"SELL"|"HOLD", "confidence": 0.0-1.0, "reason": "short explanation"}.
No other text.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// verdict is the JSON shape the model is instructed to return.
type verdict struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// GetSignal asks the model for a verdict on the given market snapshot. A
// malformed model reply degrades to HOLD with zero confidence instead of an
// error, so a flaky model never trips the per-symbol error boundary.
func (c *Client) GetSignal(ctx context.Context, md domain.MarketData, open []domain.Position) (domain.Signal, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, rateKey); err != nil {
			return domain.Signal{}, fmt.Errorf("deepseek: rate limit %s: %w", md.Symbol, err)
		}
	}

	content, err := c.complete(ctx, buildPrompt(md, open))
	if err != nil {
		return domain.Signal{}, fmt.Errorf("deepseek: get signal %s: %w", md.Symbol, err)
	}

	v, ok := parseVerdict(content)
	sig := domain.Signal{
		Symbol:     md.Symbol,
		Action:     domain.SignalHold,
		Confidence: 0,
		Reason:     v.Reason,
		IssuedAt:   time.Now().UTC(),
	}
	if !ok {
		sig.Reason = "unparseable model reply"
		return sig, nil
	}

	switch strings.ToUpper(strings.TrimSpace(v.Action)) {
	case "BUY":
		sig.Action = domain.SignalBuy
	case "SELL":
		sig.Action = domain.SignalSell
	case "HOLD":
		sig.Action = domain.SignalHold
	default:
		sig.Reason = fmt.Sprintf("unknown action %q", v.Action)
		return sig, nil
	}

	if v.Confidence < 0 || v.Confidence > 1 {
		sig.Action = domain.SignalHold
		sig.Confidence = 0
		sig.Reason = fmt.Sprintf("confidence %.2f out of range", v.Confidence)
		return sig, nil
	}
	sig.Confidence = v.Confidence
	return sig, nil
}

func (c *Client) complete(ctx context.Context, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   300,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.ApiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func buildPrompt(md domain.MarketData, open []domain.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", md.Symbol)
	fmt.Fprintf(&b, "Last price: %.6f\n", md.Price)
	fmt.Fprintf(&b, "24h change: %.2f%%\n", md.Change24hPct)
	fmt.Fprintf(&b, "24h high/low: %.6f / %.6f\n", md.High24h, md.Low24h)
	fmt.Fprintf(&b, "24h volume: %.2f\n", md.Volume24h)
	if md.FundingRate != 0 {
		fmt.Fprintf(&b, "Funding rate: %.6f\n", md.FundingRate)
	}

	if len(open) == 0 {
		b.WriteString("Open position: none\n")
	} else {
		for _, p := range open {
			fmt.Fprintf(&b, "Open position: %s %.6f @ %.6f, unrealized PnL %.2f\n",
				p.Side, p.Size, p.EntryPrice, p.UnrealizedPnL)
		}
	}

	b.WriteString("Should I BUY, SELL, or HOLD?")
	return b.String()
}

// parseVerdict extracts the JSON verdict from the model reply, tolerating
// markdown code fences and surrounding prose.
func parseVerdict(content string) (verdict, bool) {
	content = strings.TrimSpace(content)

	// Strip ``` or ```json fences.
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	// Fall back to the first {...} block when the model wrapped the JSON in
	// explanation text.
	if !strings.HasPrefix(content, "{") {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return verdict{}, false
		}
		content = content[start : end+1]
	}

	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return verdict{}, false
	}
	if v.Action == "" {
		return verdict{}, false
	}
	return v, true
}
