package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	model "github.com/zhouzirui/clinic-interpreter/backend/internal/model/conversation"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/model/phrasebook"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/summary"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/translation"
)

type translateCall struct {
	text, from, to string
}

type recordingTranslator struct {
	mu    sync.Mutex
	calls []translateCall
	block chan struct{}
}

func (r *recordingTranslator) Translate(ctx context.Context, text, from, to string) string {
	r.mu.Lock()
	r.calls = append(r.calls, translateCall{text, from, to})
	r.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	return "<" + to + "> " + text
}

type countingSummarizer struct {
	calls int
	seen  int
}

func (c *countingSummarizer) Summarize(_ context.Context, history []model.Utterance) model.SummaryResult {
	c.calls++
	c.seen = len(history)
	return model.SummaryResult{
		Summary: "summary",
		Actions: []model.Action{{Type: "send lab order", Details: "cbc"}},
	}
}

func newTestSession(translator translation.Gateway, summarizer summary.Gateway) *Session {
	return newSession("test", Deps{
		Translator: translator,
		Summarizer: summarizer,
		Phrases:    phrasebook.NewMemoryStore(phrasebook.Seed()),
		Languages:  Languages{Doctor: "English", Patient: "Spanish"},
	})
}

func TestNormalUtteranceRoutesLanguagesByRole(t *testing.T) {
	translator := &recordingTranslator{}
	session := newTestSession(translator, &countingSummarizer{})
	ctx := context.Background()

	doctor, err := session.HandleUtterance(ctx, model.RoleDoctor, "Hello")
	if err != nil {
		t.Fatalf("doctor utterance err: %v", err)
	}
	patient, err := session.HandleUtterance(ctx, model.RolePatient, "Me duele")
	if err != nil {
		t.Fatalf("patient utterance err: %v", err)
	}

	if translator.calls[0] != (translateCall{"Hello", "English", "Spanish"}) {
		t.Fatalf("unexpected doctor routing %+v", translator.calls[0])
	}
	if translator.calls[1] != (translateCall{"Me duele", "Spanish", "English"}) {
		t.Fatalf("unexpected patient routing %+v", translator.calls[1])
	}
	if doctor.Translated != "<Spanish> Hello" || patient.Translated != "<English> Me duele" {
		t.Fatalf("unexpected translations %q / %q", doctor.Translated, patient.Translated)
	}
	if doctor.Timestamp.IsZero() || patient.Timestamp.Before(doctor.Timestamp) {
		t.Fatalf("timestamps must be set and non-decreasing: %v then %v", doctor.Timestamp, patient.Timestamp)
	}
}

func TestTranscriptKeepsArrivalOrderAndTracksLastDoctor(t *testing.T) {
	session := newTestSession(&recordingTranslator{}, &countingSummarizer{})
	ctx := context.Background()

	if _, ok := session.LastDoctorUtterance(); ok {
		t.Fatal("expected no doctor utterance yet")
	}

	inputs := []struct {
		role model.Role
		text string
	}{
		{model.RolePatient, "Hola"},
		{model.RoleDoctor, "Hello"},
		{model.RolePatient, "Me duele la cabeza"},
		{model.RoleDoctor, "Since when?"},
		{model.RolePatient, "Desde ayer"},
	}
	for _, in := range inputs {
		if _, err := session.HandleUtterance(ctx, in.role, in.text); err != nil {
			t.Fatalf("HandleUtterance(%s, %q) err: %v", in.role, in.text, err)
		}
	}

	transcript := session.Transcript()
	if len(transcript) != len(inputs) {
		t.Fatalf("expected %d entries, got %d", len(inputs), len(transcript))
	}
	for i, in := range inputs {
		if transcript[i].Role != in.role || transcript[i].Text != in.text {
			t.Fatalf("entry %d: got %+v", i, transcript[i])
		}
	}

	last, ok := session.LastDoctorUtterance()
	if !ok || last.Text != "Since when?" {
		t.Fatalf("expected last doctor utterance 'Since when?', got %+v", last)
	}
}

func TestRepeatWithoutDoctorUtteranceSendsNotice(t *testing.T) {
	translator := &recordingTranslator{}
	session := newTestSession(translator, &countingSummarizer{})

	notice, err := session.HandleUtterance(context.Background(), model.RolePatient, "repeat that")
	if err != nil {
		t.Fatalf("HandleUtterance err: %v", err)
	}

	if notice.Role != model.RoleSystem {
		t.Fatalf("expected system notice, got role %s", notice.Role)
	}
	if notice.Text != "No previous doctor utterance to repeat." {
		t.Fatalf("unexpected notice text %q", notice.Text)
	}
	if notice.Translated != "No hay mensaje previo del doctor para repetir." {
		t.Fatalf("unexpected notice translation %q", notice.Translated)
	}
	if got := len(session.Transcript()); got != 0 {
		t.Fatalf("notice must not be recorded, transcript length %d", got)
	}
	if len(translator.calls) != 0 {
		t.Fatalf("notice must not call the translator, got %d calls", len(translator.calls))
	}
}

func TestRepeatReplaysLastDoctorUtterance(t *testing.T) {
	translator := &recordingTranslator{}
	session := newTestSession(translator, &countingSummarizer{})
	ctx := context.Background()

	if _, err := session.HandleUtterance(ctx, model.RoleDoctor, "Hello"); err != nil {
		t.Fatalf("doctor utterance err: %v", err)
	}

	repeat, err := session.HandleUtterance(ctx, model.RolePatient, "  Repite Eso ")
	if err != nil {
		t.Fatalf("repeat err: %v", err)
	}

	if repeat.Role != model.RoleDoctor || !repeat.IsRepeat || repeat.Text != "Hello" {
		t.Fatalf("unexpected repeat utterance %+v", repeat)
	}
	if repeat.Translated == "" {
		t.Fatal("expected repeat to carry a translation")
	}
	if last := translator.calls[len(translator.calls)-1]; last != (translateCall{"Hello", "English", "Spanish"}) {
		t.Fatalf("repeat must translate doctor->patient, got %+v", last)
	}

	transcript := session.Transcript()
	if len(transcript) != 2 {
		t.Fatalf("expected transcript length 2, got %d", len(transcript))
	}
	last, _ := session.LastDoctorUtterance()
	if !last.IsRepeat {
		t.Fatal("last doctor utterance should be the repeat entry")
	}
}

func TestDoctorRepeatPhraseIsNormalUtterance(t *testing.T) {
	session := newTestSession(&recordingTranslator{}, &countingSummarizer{})

	u, err := session.HandleUtterance(context.Background(), model.RoleDoctor, "repeat that")
	if err != nil {
		t.Fatalf("HandleUtterance err: %v", err)
	}
	if u.IsRepeat || u.Role != model.RoleDoctor {
		t.Fatalf("doctor phrase should be recorded verbatim, got %+v", u)
	}
}

func TestInvalidUtterances(t *testing.T) {
	session := newTestSession(&recordingTranslator{}, &countingSummarizer{})
	ctx := context.Background()

	if _, err := session.HandleUtterance(ctx, model.RoleSystem, "hi"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := session.HandleUtterance(ctx, model.RoleDoctor, "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if len(session.Transcript()) != 0 {
		t.Fatal("invalid utterances must not be recorded")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	summarizer := &countingSummarizer{}
	session := newTestSession(&recordingTranslator{}, summarizer)
	ctx := context.Background()

	if _, err := session.HandleUtterance(ctx, model.RolePatient, "I need a blood test"); err != nil {
		t.Fatalf("HandleUtterance err: %v", err)
	}

	first, err := session.End(ctx)
	if err != nil {
		t.Fatalf("first End err: %v", err)
	}
	second, err := session.End(ctx)
	if err != nil {
		t.Fatalf("second End err: %v", err)
	}

	if summarizer.calls != 1 {
		t.Fatalf("summarizer should run once, ran %d times", summarizer.calls)
	}
	if summarizer.seen != 1 {
		t.Fatalf("summarizer should see the full transcript, saw %d entries", summarizer.seen)
	}
	if first.Summary != second.Summary || len(first.Actions) != len(second.Actions) || first.Actions[0] != second.Actions[0] {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}

	// Mutating a returned result must not leak into the stored one.
	first.Actions[0].Type = "mutated"
	third, _ := session.End(ctx)
	if third.Actions[0].Type != "send lab order" {
		t.Fatalf("stored result was mutated: %+v", third)
	}
}

func TestUtteranceAfterEndIsRejected(t *testing.T) {
	session := newTestSession(&recordingTranslator{}, &countingSummarizer{})
	ctx := context.Background()

	if _, err := session.End(ctx); err != nil {
		t.Fatalf("End err: %v", err)
	}
	if _, err := session.HandleUtterance(ctx, model.RoleDoctor, "Hello"); !errors.Is(err, ErrConversationEnded) {
		t.Fatalf("expected ErrConversationEnded, got %v", err)
	}
	if !session.Ended() || len(session.Transcript()) != 0 {
		t.Fatal("ended session must keep its transcript unchanged")
	}
}

func TestCancelledUtteranceIsDropped(t *testing.T) {
	translator := &recordingTranslator{block: make(chan struct{})}
	session := newTestSession(translator, &countingSummarizer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := session.HandleUtterance(ctx, model.RoleDoctor, "Hello")
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled utterance did not return")
	}
	if len(session.Transcript()) != 0 {
		t.Fatal("cancelled utterance must not be recorded")
	}
	if _, ok := session.LastDoctorUtterance(); ok {
		t.Fatal("cancelled utterance must not update the last doctor utterance")
	}
}

func TestConcurrentUtterancesAreSerialised(t *testing.T) {
	session := newTestSession(&recordingTranslator{}, &countingSummarizer{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := model.RoleDoctor
			if i%2 == 0 {
				role = model.RolePatient
			}
			if _, err := session.HandleUtterance(ctx, role, "turn"); err != nil {
				t.Errorf("HandleUtterance err: %v", err)
			}
		}(i)
	}
	wg.Wait()

	transcript := session.Transcript()
	if len(transcript) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(transcript))
	}
	for i := 1; i < len(transcript); i++ {
		if transcript[i].Timestamp.Before(transcript[i-1].Timestamp) {
			t.Fatalf("timestamps decreased at %d", i)
		}
	}
}

func TestStampNeverGoesBackwards(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC),
		time.Date(2026, 1, 1, 10, 0, 1, 0, time.UTC),
	}
	i := 0
	session := newSession("clock", Deps{
		Translator: &recordingTranslator{},
		Summarizer: &countingSummarizer{},
		Phrases:    phrasebook.NewMemoryStore(phrasebook.Seed()),
		Languages:  Languages{Doctor: "English", Patient: "Spanish"},
		Now: func() time.Time {
			now := times[min(i, len(times)-1)]
			i++
			return now
		},
	})

	first, _ := session.HandleUtterance(context.Background(), model.RoleDoctor, "one")
	second, _ := session.HandleUtterance(context.Background(), model.RoleDoctor, "two")
	if second.Timestamp.Before(first.Timestamp) {
		t.Fatalf("timestamp went backwards: %v -> %v", first.Timestamp, second.Timestamp)
	}
}
