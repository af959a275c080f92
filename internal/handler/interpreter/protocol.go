package interpreter

import (
	"time"

	model "github.com/zhouzirui/clinic-interpreter/backend/internal/model/conversation"
)

// 消息类型
const (
	TypeUtterance       = "utterance"
	TypeEndConversation = "end_conversation"
	TypeSummary         = "summary"
	TypeError           = "error"
)

// 错误帧文案，客户端依赖这些固定字符串。
const (
	MsgInvalidJSON         = "Invalid JSON format"
	MsgUnknownType         = "Unknown message type"
	MsgInternal            = "Internal server error processing your request"
	MsgConversationEnded   = "Conversation has ended"
	invalidUtterancePrefix = "Invalid utterance: "
)

type inboundMessage struct {
	Type string `json:"type"`
}

// utterancePayload 是 utterance 事件的请求体。
type utterancePayload struct {
	Role string `json:"role" validate:"required,oneof=doctor patient"`
	Text string `json:"text" validate:"required"`
}

// UtteranceFrame is sent for every translated, repeated or system utterance.
type UtteranceFrame struct {
	Type       string `json:"type"`
	Role       string `json:"role"`
	Text       string `json:"text"`
	Translated string `json:"translated,omitempty"`
	IsRepeat   bool   `json:"isRepeat,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// SummaryFrame carries the result of end_conversation.
type SummaryFrame struct {
	Type    string         `json:"type"`
	Summary string         `json:"summary"`
	Actions []model.Action `json:"actions"`
}

// ErrorFrame reports a protocol or internal error. The connection stays open.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newUtteranceFrame(u model.Utterance) UtteranceFrame {
	frame := UtteranceFrame{
		Type:       TypeUtterance,
		Role:       string(u.Role),
		Text:       u.Text,
		Translated: u.Translated,
		IsRepeat:   u.IsRepeat,
	}
	if !u.Timestamp.IsZero() {
		frame.Timestamp = u.Timestamp.UTC().Format(time.RFC3339)
	}
	return frame
}

func newSummaryFrame(result model.SummaryResult) SummaryFrame {
	actions := result.Actions
	if actions == nil {
		actions = []model.Action{}
	}
	return SummaryFrame{Type: TypeSummary, Summary: result.Summary, Actions: actions}
}

func newErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Error: message}
}
