package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/model/conversation"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/observe"
)

// keywordRule yields its action when the transcript mentions any keyword.
type keywordRule struct {
	keywords []string
	action   conversation.Action
}

// Evaluated in order; each rule contributes at most one action.
var keywordRules = []keywordRule{
	{
		keywords: []string{"appointment", "cita", "schedule"},
		action:   conversation.Action{Type: "schedule followup appointment", Details: "Patient requested follow-up appointment"},
	},
	{
		keywords: []string{"lab", "test", "blood", "sangre"},
		action:   conversation.Action{Type: "send lab order", Details: "Lab tests requested during consultation"},
	},
	{
		keywords: []string{"prescription", "medication", "medicine", "medicina"},
		action:   conversation.Action{Type: "prescribe medication", Details: "Medication prescription discussed"},
	},
}

// Fallback derives actions from keywords when no live model is configured.
type Fallback struct {
	metrics *observe.Metrics
}

// NewFallback creates the keyword-scanning summariser.
func NewFallback(metrics *observe.Metrics) *Fallback {
	return &Fallback{metrics: metrics}
}

// Summarize implements Gateway.
func (f *Fallback) Summarize(ctx context.Context, history []conversation.Utterance) conversation.SummaryResult {
	start := time.Now()
	result := DetectActions(history)
	f.metrics.RecordGateway(ctx, gatewayName, observe.OutcomeFallback, time.Since(start))
	return result
}

// DetectActions scans the lowercased transcript for the keyword rules.
func DetectActions(history []conversation.Utterance) conversation.SummaryResult {
	text := strings.ToLower(FormatTranscript(history))

	actions := make([]conversation.Action, 0, len(keywordRules))
	for _, rule := range keywordRules {
		if containsAny(text, rule.keywords) {
			actions = append(actions, rule.action)
		}
	}

	return conversation.SummaryResult{
		Summary: fmt.Sprintf("Summary: This was a medical consultation between a doctor and patient. The conversation covered %d exchanges.", len(history)),
		Actions: actions,
	}
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
