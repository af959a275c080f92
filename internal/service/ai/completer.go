package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/config"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/resilience"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Prompt is a single-turn request to the live model.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Completer is the text-to-text capability behind the live gateways.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Name() string
}

// NewCompleter builds the live backend selected by cfg. OpenAI wins when both
// OpenAI and Ark credentials are present.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	switch {
	case cfg.OpenAIEnabled():
		return NewOpenAICompleter(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case cfg.ArkEnabled():
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, oops.In("ai").Wrapf(err, "failed to create ark chat model")
		}
		return NewArkCompleter(ctx, chatModel)
	default:
		return nil, oops.In("ai").Errorf("no live model credentials configured")
	}
}

// Guarded wraps a Completer with a circuit breaker.
type Guarded struct {
	next    Completer
	breaker *resilience.Breaker
}

// NewGuarded returns next protected by breaker.
func NewGuarded(next Completer, breaker *resilience.Breaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

// Complete forwards to the wrapped completer unless the breaker is open.
// Failures caused by the caller cancelling ctx do not trip the breaker.
func (g *Guarded) Complete(ctx context.Context, prompt Prompt) (string, error) {
	var out string
	err := g.breaker.Execute(func() error {
		text, err := g.next.Complete(ctx, prompt)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) && !errors.Is(err, context.Canceled) {
				// caller went away; not an upstream failure
				return fmt.Errorf("%w: %w", context.Canceled, err)
			}
			return err
		}
		out = text
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		slog.Debug("live model skipped, circuit open", "backend", g.next.Name())
	}
	return out, err
}

// Name reports the wrapped backend.
func (g *Guarded) Name() string {
	return g.next.Name()
}

// BreakerState exposes the breaker for readiness checks.
func (g *Guarded) BreakerState() resilience.State {
	return g.breaker.State()
}
