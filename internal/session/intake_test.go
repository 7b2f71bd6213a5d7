package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/IntakeBridge/internal/models"
)

func newTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Rules.SymptomKeywords = []string{"nausea"}
	cfg.Rules.DurationPhrases = []string{"two months"}
	return cfg
}

func TestNewIntakeSession_SeedsOpeningQuestion(t *testing.T) {
	backend := &mockBackend{replies: []string{"What brings you in today?"}}
	s, err := NewIntakeSession(context.Background(), "p1", backend, newTestConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Status != models.IntakeStatusActive {
		t.Errorf("status = %s, want active", s.Status)
	}
	if got := s.CurrentQuestion(); got != "What brings you in today?" {
		t.Errorf("CurrentQuestion = %q", got)
	}
	if len(s.Log) != 1 || s.Log[0].Role != models.RoleAssistant {
		t.Error("expected exactly one seeded assistant turn")
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		t.Error("updatedAt must not precede createdAt")
	}
}

func TestNewIntakeSession_BackendFailureStillActive(t *testing.T) {
	backend := &mockBackend{err: errors.New("connection refused")}
	s, err := NewIntakeSession(context.Background(), "p1", backend, newTestConfig())
	if err != nil {
		t.Fatalf("backend failure must not fail creation: %v", err)
	}
	if s.Status != models.IntakeStatusActive {
		t.Errorf("status = %s, want active", s.Status)
	}
	if q := s.CurrentQuestion(); q != "" {
		t.Errorf("expected no current question, got %q", q)
	}
}

func TestNewIntakeSession_InvalidID(t *testing.T) {
	if _, err := NewIntakeSession(context.Background(), "", &mockBackend{}, newTestConfig()); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := NewIntakeSession(context.Background(), "a/b", &mockBackend{}, newTestConfig()); err == nil {
		t.Error("expected error for id with path separator")
	}
}

func TestSubmitAnswer_NormalFlow(t *testing.T) {
	backend := &mockBackend{replies: []string{"opening question", "next question"}}
	s, _ := NewIntakeSession(context.Background(), "p1", backend, newTestConfig())

	reply, err := s.SubmitAnswer(context.Background(), "chief_complaint", "lower abdominal pain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "next question" {
		t.Errorf("reply = %q", reply)
	}

	if _, ok := s.Answers["chief_complaint"]; !ok {
		t.Error("answer not stored")
	}
	// opening, patient answer, next question
	if len(s.Log) != 3 {
		t.Fatalf("log has %d turns, want 3", len(s.Log))
	}
	if s.Log[1].Role != models.RolePatient || s.Log[1].Content != "lower abdominal pain" {
		t.Error("patient turn not appended in order")
	}
	if s.CurrentQuestion() != "next question" {
		t.Errorf("CurrentQuestion = %q", s.CurrentQuestion())
	}
}

func TestSubmitAnswer_RejectsReservedAndEmptyKeys(t *testing.T) {
	s, _ := NewIntakeSession(context.Background(), "p1", &mockBackend{}, newTestConfig())

	if _, err := s.SubmitAnswer(context.Background(), models.AgeCheckedKey, "x"); !errors.Is(err, models.ErrReservedKey) {
		t.Errorf("expected ErrReservedKey, got %v", err)
	}
	if _, err := s.SubmitAnswer(context.Background(), "", "x"); !errors.Is(err, models.ErrEmptyQuestionKey) {
		t.Errorf("expected ErrEmptyQuestionKey, got %v", err)
	}
	if _, err := s.SubmitAnswer(context.Background(), "q1", ""); !errors.Is(err, models.ErrEmptyAnswer) {
		t.Errorf("expected ErrEmptyAnswer, got %v", err)
	}
	if len(s.Answers) != 0 {
		t.Error("rejected submissions must leave the answer store unchanged")
	}
}

func TestSubmitAnswer_AgeGateSuspends(t *testing.T) {
	cfg := newTestConfig()
	// A configured minimum high enough that the parsed birth year "28"
	// yields an age below it.
	cfg.Rules.MinimumAge = time.Now().Year()
	backend := &mockBackend{replies: []string{"opening question"}}
	s, _ := NewIntakeSession(context.Background(), "p1", backend, cfg)
	callsBefore := backend.calls

	reply, err := s.SubmitAnswer(context.Background(), "q1", "28")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != cfg.Rules.AgeReferralText {
		t.Errorf("reply = %q, want the fixed referral text", reply)
	}
	if s.Status != models.IntakeStatusSuspended {
		t.Errorf("status = %s, want suspended", s.Status)
	}
	// The short-circuit path must not contact the backend and must not
	// append the patient's text as a turn.
	if backend.calls != callsBefore {
		t.Error("age gate path must not call the backend")
	}
	for _, turn := range s.Log {
		if turn.Role == models.RolePatient {
			t.Error("age gate path must not append a patient turn")
		}
	}
	if _, ok := s.Answers["q1"]; !ok {
		t.Error("the answer itself must still be stored")
	}
	if last, _ := s.Log.LastAssistant(); last != cfg.Rules.AgeReferralText {
		t.Error("warning must be appended as an assistant turn")
	}
}

func TestSubmitAnswer_AgeGateRunsAtMostOnce(t *testing.T) {
	cfg := newTestConfig()
	cfg.Rules.MinimumAge = time.Now().Year()
	backend := &mockBackend{replies: []string{"opening", "next", "next"}}
	s, _ := NewIntakeSession(context.Background(), "p1", backend, cfg)

	// First answer is non-numeric: the gate is attempted, does not fire,
	// and is marked as consumed.
	if _, err := s.SubmitAnswer(context.Background(), "q1", "no thanks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Answers[models.AgeCheckedKey]; !ok {
		t.Fatal("age-checked flag not recorded")
	}

	// A later age-typed answer must not fire the gate again.
	if _, err := s.SubmitAnswer(context.Background(), "q2", "28"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != models.IntakeStatusActive {
		t.Errorf("status = %s, want active (gate must run at most once)", s.Status)
	}
}

func TestSubmitAnswer_PregnancySuspicionMonotonicAcrossAnswers(t *testing.T) {
	backend := &mockBackend{replies: []string{"opening", "q2", "q3", "q4"}}
	s, _ := NewIntakeSession(context.Background(), "p1", backend, newTestConfig())

	if _, err := s.SubmitAnswer(context.Background(), "q1", "constant nausea"); err != nil {
		t.Fatal(err)
	}
	if s.PregnancySuspected {
		t.Fatal("symptom alone must not raise suspicion")
	}

	if _, err := s.SubmitAnswer(context.Background(), "q2", "it began two months ago"); err != nil {
		t.Fatal(err)
	}
	if !s.PregnancySuspected {
		t.Fatal("symptom plus duration across two answers must raise suspicion")
	}

	// No later answer can clear the flag.
	if _, err := s.SubmitAnswer(context.Background(), "q3", "actually I feel fine"); err != nil {
		t.Fatal(err)
	}
	if !s.PregnancySuspected {
		t.Error("pregnancy suspicion must be monotonic")
	}
}

func TestSubmitAnswer_TerminalSessionRejectedWithoutSideEffects(t *testing.T) {
	for _, terminal := range []func(s *IntakeSession){
		func(s *IntakeSession) { s.Complete() },
		func(s *IntakeSession) { s.Suspend() },
	} {
		backend := &mockBackend{replies: []string{"opening"}}
		s, _ := NewIntakeSession(context.Background(), "p1", backend, newTestConfig())
		terminal(s)

		answersBefore := len(s.Answers)
		logBefore := len(s.Log)
		_, err := s.SubmitAnswer(context.Background(), "q1", "hello")
		if !errors.Is(err, models.ErrSessionNotActive) {
			t.Errorf("expected ErrSessionNotActive, got %v", err)
		}
		if len(s.Answers) != answersBefore || len(s.Log) != logBefore {
			t.Error("rejected submission must produce no side effects")
		}
	}
}

func TestSubmitAnswer_BackendFailureIsAbsentReply(t *testing.T) {
	backend := &mockBackend{replies: []string{"opening"}}
	s, _ := NewIntakeSession(context.Background(), "p1", backend, newTestConfig())
	backend.err = errors.New("timeout")

	reply, err := s.SubmitAnswer(context.Background(), "q1", "answer text")
	if err != nil {
		t.Fatalf("backend failure must not surface as an error: %v", err)
	}
	if reply != "" {
		t.Errorf("expected absent reply, got %q", reply)
	}
	if s.Status != models.IntakeStatusActive {
		t.Error("session must stay active after a backend failure")
	}
	// The patient turn is kept; only the assistant turn is missing.
	if s.Log[len(s.Log)-1].Role != models.RolePatient {
		t.Error("expected the patient turn to be the last log entry")
	}
}

func TestCompleteAndSuspend_IdempotentTerminal(t *testing.T) {
	s, _ := NewIntakeSession(context.Background(), "p1", &mockBackend{}, newTestConfig())
	s.Complete()
	if s.Status != models.IntakeStatusCompleted {
		t.Fatalf("status = %s", s.Status)
	}
	// Terminal states admit no transition, including to each other.
	s.Suspend()
	if s.Status != models.IntakeStatusCompleted {
		t.Error("suspend must not leave the completed state")
	}
	s.Complete()
	if s.Status != models.IntakeStatusCompleted {
		t.Error("complete must stay idempotent")
	}
}

func TestIntakeSession_TimestampsMonotonic(t *testing.T) {
	backend := &mockBackend{replies: []string{"opening", "next"}}
	s, _ := NewIntakeSession(context.Background(), "p1", backend, newTestConfig())
	created := s.CreatedAt
	updated := s.UpdatedAt

	if _, err := s.SubmitAnswer(context.Background(), "q1", "fine"); err != nil {
		t.Fatal(err)
	}
	if s.CreatedAt != created {
		t.Error("createdAt must never change")
	}
	if s.UpdatedAt.Before(updated) {
		t.Error("updatedAt must be non-decreasing")
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		t.Error("updatedAt must not precede createdAt")
	}
}

func TestIntakeSession_RecordRestoreRoundTrip(t *testing.T) {
	backend := &mockBackend{replies: []string{"opening", "next"}}
	s, _ := NewIntakeSession(context.Background(), "p1", backend, newTestConfig())
	if _, err := s.SubmitAnswer(context.Background(), "q1", "nausea for two months"); err != nil {
		t.Fatal(err)
	}

	rec := s.Record()
	restored := RestoreIntakeSession(&rec, backend, newTestConfig())

	if restored.ID != s.ID || restored.Status != s.Status {
		t.Error("identity or status lost in round trip")
	}
	if restored.PregnancySuspected != s.PregnancySuspected {
		t.Error("suspicion flag lost in round trip")
	}
	if len(restored.Log) != len(s.Log) || len(restored.Answers) != len(s.Answers) {
		t.Error("log or answers lost in round trip")
	}
	if restored.CurrentQuestion() != s.CurrentQuestion() {
		t.Error("current question changed in round trip")
	}
}

func TestSwitchModel(t *testing.T) {
	s, _ := NewIntakeSession(context.Background(), "p1", &mockBackend{}, newTestConfig())
	s.SwitchModel("gyn-assistant:v2")
	if s.Metadata.Model != "gyn-assistant:v2" {
		t.Errorf("model = %q", s.Metadata.Model)
	}
	if s.Metadata.ModelSwitchedAt == nil {
		t.Error("switch time not recorded")
	}
}
