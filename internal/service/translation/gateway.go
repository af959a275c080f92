// Package translation wraps the live model's translation capability behind a
// gateway that never fails outward.
package translation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/model/phrasebook"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/observe"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/ai"
)

const gatewayName = "translation"

// Gateway renders text from one language into another. Translate always
// returns a usable value; failures degrade to the deterministic fallback.
type Gateway interface {
	Translate(ctx context.Context, text, fromLang, toLang string) string
}

// Fallback tags the input with the target language, substituting phrasebook
// hits for well-known greetings.
type Fallback struct {
	phrases phrasebook.Store
	metrics *observe.Metrics
}

// NewFallback creates the dictionary-backed fallback.
func NewFallback(phrases phrasebook.Store, metrics *observe.Metrics) *Fallback {
	return &Fallback{phrases: phrases, metrics: metrics}
}

// Translate implements Gateway.
func (f *Fallback) Translate(ctx context.Context, text, _, toLang string) string {
	start := time.Now()
	out := f.render(text, toLang)
	f.metrics.RecordGateway(ctx, gatewayName, observe.OutcomeFallback, time.Since(start))
	return out
}

func (f *Fallback) render(text, toLang string) string {
	rendered := text
	if f.phrases != nil {
		if hit, ok := f.phrases.Lookup(text, toLang); ok {
			rendered = hit
		}
	}
	return "[" + toLang + "] " + rendered
}

// Live asks the model for a translation, bounded by a per-call timeout.
type Live struct {
	completer ai.Completer
	fallback  *Fallback
	timeout   time.Duration
	metrics   *observe.Metrics
}

// NewLive creates the model-backed gateway. Errors and timeouts use fallback.
func NewLive(completer ai.Completer, fallback *Fallback, timeout time.Duration, metrics *observe.Metrics) *Live {
	return &Live{
		completer: completer,
		fallback:  fallback,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// Translate implements Gateway. It makes one request and never retries.
func (l *Live) Translate(ctx context.Context, text, fromLang, toLang string) string {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	reply, err := l.completer.Complete(callCtx, ai.Prompt{
		User:        buildPrompt(text, fromLang, toLang),
		MaxTokens:   100,
		Temperature: 0.3,
	})
	translated := strings.TrimSpace(reply)
	if err == nil && translated == "" {
		err = ai.ErrEmptyCompletion
	}
	if err != nil {
		slog.Warn("Translation failed, using fallback",
			"backend", l.completer.Name(),
			"from", fromLang,
			"to", toLang,
			"error", err,
		)
		l.metrics.RecordGateway(ctx, gatewayName, observe.OutcomeFallback, time.Since(start))
		return l.fallback.render(text, toLang)
	}

	l.metrics.RecordGateway(ctx, gatewayName, observe.OutcomeLive, time.Since(start))
	return translated
}

func buildPrompt(text, fromLang, toLang string) string {
	return fmt.Sprintf("Translate this from %s to %s. Only provide the translation, no explanations: %s", fromLang, toLang, text)
}
