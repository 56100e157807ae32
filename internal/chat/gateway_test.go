package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	// errs[i] is the error for attempt i; nil means the canned reply is
	// returned. Attempts beyond the slice succeed.
	errs   []error
	reply  []byte
	calls  int
	bodies [][]byte
}

func (f *fakeInvoker) Invoke(ctx context.Context, modelID, contentType string, body []byte) ([]byte, error) {
	defer func() { f.calls++ }()
	f.bodies = append(f.bodies, body)
	if f.calls < len(f.errs) && f.errs[f.calls] != nil {
		return nil, f.errs[f.calls]
	}
	return f.reply, nil
}

func replyJSON(t *testing.T, text string, input, output int) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"content": []map[string]string{{"text": text}},
		"usage":   map[string]int{"input_tokens": input, "output_tokens": output},
	})
	require.NoError(t, err)
	return raw
}

// testGateway wires a gateway whose backoff sleeps are recorded instead of
// waited out.
func testGateway(invoker Invoker) (*Gateway, *[]time.Duration) {
	g := NewGateway(invoker, GatewayConfig{}, zerolog.Nop())
	var slept []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return g, &slept
}

var errThrottled = errors.New("ThrottlingException: Too many requests, please wait before trying again")

func TestGatewayInvokeSuccess(t *testing.T) {
	invoker := &fakeInvoker{reply: replyJSON(t, "hello there", 42, 7)}
	g, slept := testGateway(invoker)

	reply, err := g.Invoke(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, "be helpful")

	require.NoError(t, err)
	assert.Equal(t, "hello there", reply.Text)
	assert.Equal(t, 42, reply.InputTokens)
	assert.Equal(t, 7, reply.OutputTokens)
	assert.Equal(t, 1, invoker.calls)
	assert.Empty(t, *slept)
}

func TestGatewayRequestPayload(t *testing.T) {
	invoker := &fakeInvoker{reply: replyJSON(t, "ok", 1, 1)}
	g, _ := testGateway(invoker)

	_, err := g.Invoke(context.Background(), []Turn{
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "answer"},
	}, "system prompt")
	require.NoError(t, err)

	var payload struct {
		AnthropicVersion string        `json:"anthropic_version"`
		MaxTokens        int           `json:"max_tokens"`
		Messages         []wireMessage `json:"messages"`
		Temperature      float64       `json:"temperature"`
		System           string        `json:"system"`
	}
	require.NoError(t, json.Unmarshal(invoker.bodies[0], &payload))

	assert.Equal(t, "bedrock-2023-05-31", payload.AnthropicVersion)
	assert.Equal(t, 4096, payload.MaxTokens)
	assert.Equal(t, 0.7, payload.Temperature)
	assert.Equal(t, "system prompt", payload.System)
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, "user", payload.Messages[0].Role)
	assert.Equal(t, "assistant", payload.Messages[1].Role)
}

func TestGatewayRetriesThrottlingThenSucceeds(t *testing.T) {
	invoker := &fakeInvoker{
		errs:  []error{errThrottled},
		reply: replyJSON(t, "eventually", 1, 1),
	}
	g, slept := testGateway(invoker)

	reply, err := g.Invoke(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, "")

	require.NoError(t, err)
	assert.Equal(t, "eventually", reply.Text)
	assert.Equal(t, 2, invoker.calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, *slept)
}

func TestGatewayRetryBudgetExhausted(t *testing.T) {
	invoker := &fakeInvoker{
		errs: []error{errThrottled, errThrottled, errThrottled, errThrottled},
	}
	g, slept := testGateway(invoker)

	_, err := g.Invoke(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 4, rle.Attempts)
	assert.Equal(t, 4, invoker.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *slept)
}

func TestGatewayThrottlingSignatures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		throttled bool
	}{
		{"throttling exception", errors.New("ThrottlingException: slow down"), true},
		{"too many requests", errors.New("429 Too Many Requests"), true},
		{"too many tokens", errors.New("too many tokens, please wait"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"access denied", errors.New("AccessDeniedException"), false},
		{"validation", errors.New("ValidationException: bad input"), false},
		{"timeout", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.throttled, isThrottling(tt.err))
		})
	}
}

func TestGatewayNonThrottlingFailsImmediately(t *testing.T) {
	invoker := &fakeInvoker{errs: []error{errors.New("ValidationException: malformed")}}
	g, slept := testGateway(invoker)

	_, err := g.Invoke(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvocationFailed)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, invoker.calls)
	assert.Empty(t, *slept)
}

func TestGatewayEmptyReply(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"content": []map[string]string{},
		"usage":   map[string]int{"input_tokens": 1, "output_tokens": 0},
	})
	require.NoError(t, err)

	g, _ := testGateway(&fakeInvoker{reply: raw})

	_, err = g.Invoke(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, "")

	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestGatewayBackoffHonorsCancellation(t *testing.T) {
	invoker := &fakeInvoker{errs: []error{errThrottled, errThrottled}}
	g := NewGateway(invoker, GatewayConfig{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Invoke(ctx, []Turn{{Role: RoleUser, Content: "hi"}}, "")

	require.Error(t, err)
	// The cancelled context interrupts the backoff sleep, not just the
	// network call.
	assert.Equal(t, 1, invoker.calls)
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepContext(ctx, 10*time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGatewayConfigDefaults(t *testing.T) {
	g := NewGateway(&fakeInvoker{}, GatewayConfig{}, zerolog.Nop())

	assert.Equal(t, DefaultModelID, g.modelID)
	assert.Equal(t, DefaultMaxOutputTokens, g.maxTokens)
	assert.Equal(t, DefaultTemperature, g.temperature)
}
