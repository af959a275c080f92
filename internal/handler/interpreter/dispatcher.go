package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	model "github.com/zhouzirui/clinic-interpreter/backend/internal/model/conversation"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/observe"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/conversation"
)

// Dispatcher decodes one inbound frame, applies it to a session and builds the
// reply frame.
type Dispatcher struct {
	validate *validator.Validate
	metrics  *observe.Metrics
}

// NewDispatcher 创建协议分发器。
func NewDispatcher(metrics *observe.Metrics) *Dispatcher {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Dispatcher{validate: validate, metrics: metrics}
}

// Dispatch handles payload against session and returns the frame to send
// back. A nil frame means nothing should be written, which only happens when
// ctx was cancelled mid-call.
func (d *Dispatcher) Dispatch(ctx context.Context, session *conversation.Session, payload []byte) (frame any) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Panic while handling frame", "session", session.ID(), "panic", rec)
			frame = d.protocolError(ctx, "internal", MsgInternal)
		}
	}()

	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return d.protocolError(ctx, "invalid_json", MsgInvalidJSON)
	}

	switch msg.Type {
	case TypeUtterance:
		return d.handleUtterance(ctx, session, payload)
	case TypeEndConversation:
		return d.handleEnd(ctx, session)
	default:
		slog.Debug("Unknown message type", "session", session.ID(), "type", msg.Type)
		return d.protocolError(ctx, "unknown_type", MsgUnknownType)
	}
}

func (d *Dispatcher) handleUtterance(ctx context.Context, session *conversation.Session, payload []byte) any {
	var req utterancePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return d.protocolError(ctx, "invalid_json", MsgInvalidJSON)
	}

	check := req
	check.Text = strings.TrimSpace(req.Text)
	if err := d.validate.Struct(check); err != nil {
		return d.protocolError(ctx, "invalid_utterance", invalidUtterancePrefix+describeValidation(err))
	}

	u, err := session.HandleUtterance(ctx, model.Role(req.Role), req.Text)
	if err != nil {
		return d.sessionError(ctx, session, err)
	}
	return newUtteranceFrame(u)
}

func (d *Dispatcher) handleEnd(ctx context.Context, session *conversation.Session) any {
	result, err := session.End(ctx)
	if err != nil {
		return d.sessionError(ctx, session, err)
	}
	return newSummaryFrame(result)
}

func (d *Dispatcher) sessionError(ctx context.Context, session *conversation.Session, err error) any {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Debug("Dropping result for closed session", "session", session.ID(), "error", err)
		return nil
	case errors.Is(err, conversation.ErrConversationEnded):
		return d.protocolError(ctx, "ended", MsgConversationEnded)
	case errors.Is(err, conversation.ErrInvalidRole):
		return d.protocolError(ctx, "invalid_utterance", invalidUtterancePrefix+"role must be one of: doctor patient")
	case errors.Is(err, conversation.ErrEmptyText):
		return d.protocolError(ctx, "invalid_utterance", invalidUtterancePrefix+"text is required")
	default:
		slog.Error("Failed to handle frame", "session", session.ID(), "error", err)
		return d.protocolError(ctx, "internal", MsgInternal)
	}
}

func (d *Dispatcher) protocolError(ctx context.Context, reason, message string) ErrorFrame {
	d.metrics.RecordProtocolError(ctx, reason)
	return newErrorFrame(message)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
