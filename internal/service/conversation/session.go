package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	model "github.com/zhouzirui/clinic-interpreter/backend/internal/model/conversation"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/model/phrasebook"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/observe"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/summary"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/translation"
)

var (
	ErrConversationEnded = errors.New("conversation has ended")
	ErrInvalidRole       = errors.New("role must be doctor or patient")
	ErrEmptyText         = errors.New("text is required")
)

// Languages 描述医生与患者各自使用的语言。
type Languages struct {
	Doctor  string
	Patient string
}

// Deps are the process-wide collaborators shared by every session. They are
// read-only after startup.
type Deps struct {
	Translator translation.Gateway
	Summarizer summary.Gateway
	Phrases    phrasebook.Store
	Languages  Languages
	Metrics    *observe.Metrics
	Now        func() time.Time
}

// Session owns one connection's transcript. Methods are serialised by an
// internal mutex held across gateway calls, so events for the same session
// are processed strictly one at a time.
type Session struct {
	id        string
	createdAt time.Time
	deps      Deps

	mu         sync.Mutex
	transcript []model.Utterance
	lastDoctor *model.Utterance
	lastStamp  time.Time
	ended      bool
	result     model.SummaryResult
}

func newSession(id string, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		id:         id,
		createdAt:  deps.Now().UTC(),
		deps:       deps,
		transcript: make([]model.Utterance, 0, 16),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// HandleUtterance translates and records a spoken turn. A patient repeat
// request replays the last doctor utterance instead; when there is none, a
// system notice is returned and nothing is recorded.
//
// If ctx is cancelled while the gateway call is outstanding, the result is
// dropped and ctx's error returned.
func (s *Session) HandleUtterance(ctx context.Context, role model.Role, text string) (model.Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return model.Utterance{}, ErrConversationEnded
	}
	if !role.Speaker() {
		return model.Utterance{}, ErrInvalidRole
	}
	if strings.TrimSpace(text) == "" {
		return model.Utterance{}, ErrEmptyText
	}

	if role == model.RolePatient && s.deps.Phrases.IsRepeatRequest(text) {
		return s.repeatLocked(ctx)
	}

	fromLang, toLang := s.languagesFor(role)
	translated := s.deps.Translator.Translate(ctx, text, fromLang, toLang)
	if err := ctx.Err(); err != nil {
		return model.Utterance{}, err
	}

	u := model.Utterance{
		Role:       role,
		Text:       text,
		Translated: translated,
		Timestamp:  s.stampLocked(),
	}
	s.appendLocked(ctx, u)
	return u, nil
}

func (s *Session) repeatLocked(ctx context.Context) (model.Utterance, error) {
	langs := s.deps.Languages

	if s.lastDoctor == nil {
		return model.Utterance{
			Role:       model.RoleSystem,
			Text:       s.deps.Phrases.NoRepeatNotice(langs.Doctor),
			Translated: s.deps.Phrases.NoRepeatNotice(langs.Patient),
			Timestamp:  s.stampLocked(),
		}, nil
	}

	original := s.lastDoctor.Text
	translated := s.deps.Translator.Translate(ctx, original, langs.Doctor, langs.Patient)
	if err := ctx.Err(); err != nil {
		return model.Utterance{}, err
	}

	u := model.Utterance{
		Role:       model.RoleDoctor,
		Text:       original,
		Translated: translated,
		Timestamp:  s.stampLocked(),
		IsRepeat:   true,
	}
	s.appendLocked(ctx, u)
	return u, nil
}

// End summarises the transcript and moves the session to its terminal state.
// Once ended, later calls return the stored result without calling the
// summarizer again.
func (s *Session) End(ctx context.Context) (model.SummaryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return s.result.Clone(), nil
	}

	history := make([]model.Utterance, len(s.transcript))
	copy(history, s.transcript)

	result := s.deps.Summarizer.Summarize(ctx, history)
	if err := ctx.Err(); err != nil {
		return model.SummaryResult{}, err
	}
	if result.Actions == nil {
		result.Actions = []model.Action{}
	}

	s.result = result.Clone()
	s.ended = true
	return result, nil
}

// Transcript returns a copy of the recorded utterances in arrival order.
func (s *Session) Transcript() []model.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.Utterance, len(s.transcript))
	copy(copied, s.transcript)
	return copied
}

// LastDoctorUtterance returns the most recent doctor entry, if any.
func (s *Session) LastDoctorUtterance() (model.Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastDoctor == nil {
		return model.Utterance{}, false
	}
	return *s.lastDoctor, true
}

// Ended reports whether a summary has been produced.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Session) languagesFor(role model.Role) (from, to string) {
	if role == model.RoleDoctor {
		return s.deps.Languages.Doctor, s.deps.Languages.Patient
	}
	return s.deps.Languages.Patient, s.deps.Languages.Doctor
}

func (s *Session) appendLocked(ctx context.Context, u model.Utterance) {
	s.transcript = append(s.transcript, u)
	if u.Role == model.RoleDoctor {
		last := u
		s.lastDoctor = &last
	}
	s.deps.Metrics.RecordUtterance(ctx, string(u.Role), u.IsRepeat)
}

// stampLocked returns the current time, never earlier than the previous stamp.
func (s *Session) stampLocked() time.Time {
	now := s.deps.Now().UTC()
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}
