package summary

import (
	"strings"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/model/conversation"
)

const summaryPrefix = "SUMMARY:"

// ParseReply reads a SUMMARY/ACTIONS reply line by line. The first line
// starting with SUMMARY: becomes the summary; every line starting with "-"
// and containing ":" becomes an action split at its first colon, even when
// the type is empty. Prefixes are matched on the raw line, so indented lines
// are ignored.
func ParseReply(reply string) conversation.SummaryResult {
	result := conversation.SummaryResult{Actions: []conversation.Action{}}
	summaryFound := false

	for _, raw := range strings.Split(reply, "\n") {
		line := strings.TrimRight(raw, "\r")

		if strings.HasPrefix(line, summaryPrefix) {
			if !summaryFound {
				result.Summary = strings.TrimSpace(strings.TrimPrefix(line, summaryPrefix))
				summaryFound = true
			}
			continue
		}

		if !strings.HasPrefix(line, "-") || !strings.Contains(line, ":") {
			continue
		}

		actionType, details, _ := strings.Cut(strings.TrimPrefix(line, "-"), ":")
		result.Actions = append(result.Actions, conversation.Action{
			Type:    strings.TrimSpace(actionType),
			Details: strings.TrimSpace(details),
		})
	}

	return result
}
