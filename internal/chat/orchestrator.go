package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// UsageRecord is one model invocation's telemetry row.
type UsageRecord struct {
	ConversationID string
	ModelID        string
	InputTokens    int
	OutputTokens   int
	Duration       time.Duration
	Outcome        string
}

// UsageRecorder receives per-invocation telemetry. Implementations must not
// block the turn; recording failures are logged, never surfaced.
type UsageRecorder interface {
	RecordInvocation(ctx context.Context, rec UsageRecord)
}

// Orchestrator drives one chat turn: append the user turn, invoke the model
// with the full history, append the assistant turn and extract references —
// or roll the user turn back so a failed turn leaves the conversation
// untouched.
type Orchestrator struct {
	store        *Store
	gateway      *Gateway
	systemPrompt string
	window       int
	usage        UsageRecorder
	logger       zerolog.Logger
}

// NewOrchestrator wires the turn pipeline. usage may be nil.
func NewOrchestrator(store *Store, gateway *Gateway, usage UsageRecorder, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:        store,
		gateway:      gateway,
		systemPrompt: DefaultSystemPrompt,
		window:       DefaultWindow,
		usage:        usage,
		logger:       logger,
	}
}

// HandleTurn runs one user turn to completion. A missing conversation id
// mints a fresh one, returned in the result. On model failure the
// speculatively appended user turn is rolled back and the error surfaced
// unchanged in kind.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID, content string) (*TurnResult, error) {
	if conversationID == "" {
		conversationID = NewConversationID()
	}

	o.store.Append(conversationID, Turn{Role: RoleUser, Content: content})

	// Trim before building the request so injected document bodies cannot
	// grow the request without bound.
	o.store.TrimToWindow(conversationID, o.window)
	turns := o.store.Snapshot(conversationID)

	start := time.Now()
	reply, err := o.gateway.Invoke(ctx, turns, o.systemPrompt)
	if err != nil {
		o.store.RollbackLast(conversationID)
		o.record(ctx, conversationID, nil, time.Since(start), err)
		o.logger.Error().
			Err(err).
			Str("conversation_id", conversationID).
			Msg("turn rolled back")
		return nil, err
	}

	o.store.Append(conversationID, Turn{Role: RoleAssistant, Content: reply.Text})
	o.record(ctx, conversationID, reply, time.Since(start), nil)

	refs := ExtractReferences(reply.Text)
	o.logger.Info().
		Str("conversation_id", conversationID).
		Int("references", len(refs)).
		Int("input_tokens", reply.InputTokens).
		Int("output_tokens", reply.OutputTokens).
		Msg("turn committed")

	return &TurnResult{
		ConversationID: conversationID,
		ReplyText:      reply.Text,
		References:     refs,
		InputTokens:    reply.InputTokens,
		OutputTokens:   reply.OutputTokens,
	}, nil
}

func (o *Orchestrator) record(ctx context.Context, conversationID string, reply *ModelReply, d time.Duration, err error) {
	if o.usage == nil {
		return
	}

	rec := UsageRecord{
		ConversationID: conversationID,
		ModelID:        o.gateway.modelID,
		Duration:       d,
		Outcome:        outcomeFor(err),
	}
	if reply != nil {
		rec.InputTokens = reply.InputTokens
		rec.OutputTokens = reply.OutputTokens
	}
	o.usage.RecordInvocation(ctx, rec)
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrEmptyReply):
		return "empty_reply"
	default:
		return "invocation_failed"
	}
}
