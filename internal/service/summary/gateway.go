// Package summary condenses a finished conversation into a summary and a list
// of follow-up actions.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/model/conversation"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/observe"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/ai"
)

const gatewayName = "summary"

// ErrorSummary is the visible result when the live model fails.
const ErrorSummary = "Error generating summary"

// Gateway summarises a transcript. It never returns an error; degraded
// results are encoded in the SummaryResult itself.
type Gateway interface {
	Summarize(ctx context.Context, history []conversation.Utterance) conversation.SummaryResult
}

// Parser turns a raw model reply into a SummaryResult.
type Parser func(reply string) conversation.SummaryResult

// Live asks the model for a SUMMARY/ACTIONS reply and parses it.
type Live struct {
	completer ai.Completer
	parse     Parser
	timeout   time.Duration
	metrics   *observe.Metrics
}

// NewLive creates the model-backed gateway using ParseReply.
func NewLive(completer ai.Completer, timeout time.Duration, metrics *observe.Metrics) *Live {
	return &Live{
		completer: completer,
		parse:     ParseReply,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// WithParser swaps the reply parser.
func (l *Live) WithParser(parse Parser) *Live {
	l.parse = parse
	return l
}

// Summarize implements Gateway.
func (l *Live) Summarize(ctx context.Context, history []conversation.Utterance) conversation.SummaryResult {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	reply, err := l.completer.Complete(callCtx, ai.Prompt{
		User:        fmt.Sprintf(summaryPrompt, FormatTranscript(history)),
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		slog.Error("Summary generation failed",
			"backend", l.completer.Name(),
			"entries", len(history),
			"error", err,
		)
		l.metrics.RecordGateway(ctx, gatewayName, observe.OutcomeError, time.Since(start))
		return conversation.SummaryResult{Summary: ErrorSummary, Actions: []conversation.Action{}}
	}

	l.metrics.RecordGateway(ctx, gatewayName, observe.OutcomeLive, time.Since(start))
	return l.parse(strings.TrimSpace(reply))
}

// FormatTranscript renders one "role: text" line per utterance.
func FormatTranscript(history []conversation.Utterance) string {
	var builder strings.Builder
	for i, u := range history {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(string(u.Role))
		builder.WriteString(": ")
		builder.WriteString(u.Text)
	}
	return builder.String()
}

const summaryPrompt = `Analyze this medical conversation and provide:
1. A concise summary of the consultation
2. Any specific actions that need to be taken (like schedule followup appointment, send lab order, prescribe medication)

Conversation:
%s

Format your response as:
SUMMARY: [summary here]
ACTIONS:
- [action type]: [details]
- [action type]: [details]`
