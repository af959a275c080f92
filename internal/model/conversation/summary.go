package conversation

// Action 是从会话中识别出的后续任务。
type Action struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

// SummaryResult is produced once per session when the conversation ends.
type SummaryResult struct {
	Summary string   `json:"summary"`
	Actions []Action `json:"actions"`
}

// Clone returns a copy whose action slice does not alias the receiver's.
func (r SummaryResult) Clone() SummaryResult {
	actions := make([]Action, len(r.Actions))
	copy(actions, r.Actions)
	return SummaryResult{Summary: r.Summary, Actions: actions}
}
