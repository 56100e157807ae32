package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// anthropicVersion is the protocol tag Bedrock expects in the payload.
	anthropicVersion = "bedrock-2023-05-31"

	// DefaultModelID is the Bedrock inference profile used when none is
	// configured.
	DefaultModelID = "us.anthropic.claude-3-5-haiku-20241022-v1:0"

	DefaultMaxOutputTokens = 4096
	DefaultTemperature     = 0.7

	// maxRetries bounds retries after a throttling failure. The wait before
	// retry k is 2^k seconds (2s, 4s, 8s).
	maxRetries = 3
)

// Invoker is the transport capability the gateway invokes the model through.
// Request signing and networking live behind this boundary.
type Invoker interface {
	Invoke(ctx context.Context, modelID, contentType string, body []byte) ([]byte, error)
}

// modelRequest is the Bedrock/Anthropic payload shape.
type modelRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	MaxTokens        int           `json:"max_tokens"`
	Messages         []wireMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	System           string        `json:"system,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type modelResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// GatewayConfig holds gateway tunables. Zero values fall back to defaults.
type GatewayConfig struct {
	ModelID         string
	MaxOutputTokens int
	Temperature     float64
}

// Gateway invokes the remote model with a fixed protocol contract, classifies
// failures, and retries throttling failures with bounded exponential backoff.
type Gateway struct {
	invoker     Invoker
	modelID     string
	maxTokens   int
	temperature float64
	logger      zerolog.Logger

	// sleep is the backoff wait; injectable so retry tests don't wait for
	// real wall-clock seconds.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a gateway over the given transport capability.
func NewGateway(invoker Invoker, cfg GatewayConfig, logger zerolog.Logger) *Gateway {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	return &Gateway{
		invoker:     invoker,
		modelID:     cfg.ModelID,
		maxTokens:   cfg.MaxOutputTokens,
		temperature: cfg.Temperature,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Invoke sends the conversation to the model and returns the first text
// content block of the reply along with token usage.
//
// Throttling failures are retried up to 3 times with 2s/4s/8s waits, then
// surface as a terminal RateLimitedError. Any other failure is terminal
// immediately.
func (g *Gateway) Invoke(ctx context.Context, turns []Turn, systemPrompt string) (*ModelReply, error) {
	messages := make([]wireMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, wireMessage{Role: string(t.Role), Content: t.Content})
	}

	body, err := json.Marshal(modelRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        g.maxTokens,
		Messages:         messages,
		Temperature:      g.temperature,
		System:           systemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling model request: %w", err)
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			g.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("model throttled, backing off")
			if err := g.sleep(ctx, backoff); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
			}
		}

		attempts++
		raw, err := g.invoker.Invoke(ctx, g.modelID, "application/json", body)
		if err != nil {
			if isThrottling(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
		}

		var resp modelResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%w: parsing reply: %v", ErrInvocationFailed, err)
		}
		if len(resp.Content) == 0 {
			return nil, ErrEmptyReply
		}

		g.logger.Info().
			Str("model", g.modelID).
			Int("input_tokens", resp.Usage.InputTokens).
			Int("output_tokens", resp.Usage.OutputTokens).
			Msg("model reply received")

		return &ModelReply{
			Text:         resp.Content[0].Text,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}, nil
	}

	return nil, &RateLimitedError{Attempts: attempts, Last: lastErr}
}

// isThrottling reports whether a transport error carries a rate-limit
// signature. Bedrock surfaces throttling as ThrottlingException or a
// "too many requests/tokens" message.
func isThrottling(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "throttl") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "too many tokens") ||
		strings.Contains(msg, "rate limit")
}

// sleepContext waits for d, returning early if ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
