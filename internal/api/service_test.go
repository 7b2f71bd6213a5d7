package api

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/IntakeBridge/internal/models"
	"github.com/BTreeMap/IntakeBridge/internal/rules"
	"github.com/BTreeMap/IntakeBridge/internal/session"
	"github.com/BTreeMap/IntakeBridge/internal/store"
	"github.com/openai/openai-go"
)

// scriptedBackend is a genai.ClientInterface replaying canned replies.
type scriptedBackend struct {
	replies []string
	err     error
	calls   int
}

func (b *scriptedBackend) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return b.GenerateWithModel(ctx, "", messages)
}

func (b *scriptedBackend) GenerateWithModel(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	if len(b.replies) == 0 {
		return "", nil
	}
	reply := b.replies[0]
	if len(b.replies) > 1 {
		b.replies = b.replies[1:]
	}
	return reply, nil
}

func (b *scriptedBackend) Model() string { return "scripted-model" }

func serviceConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Rules = rules.Config{
		MinimumAge:             12,
		AgeReferralText:        "referral required",
		SymptomKeywords:        []string{"nausea"},
		DurationPhrases:        []string{"two months"},
		TransferSymptomMarkers: []string{"nausea"},
		LMPKeyMarkers:          []string{"lmp"},
		LMPAnswerMarkers:       []string{"period"},
		ConfirmedKeywords:      []string{"confirmed"},
		TestingKeywords:        []string{"beta test"},
		RuledOutKeywords:       []string{"negative"},
	}
	return cfg
}

func newTestService(backend *scriptedBackend) *Service {
	return NewService(store.NewInMemoryStore(), backend, nil, serviceConfig(), nil)
}

func TestService_CreateIntake(t *testing.T) {
	backend := &scriptedBackend{replies: []string{"opening question"}}
	svc := newTestService(backend)

	result, err := svc.CreateIntake(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SessionID != "p1" || result.CurrentQuestion != "opening question" {
		t.Errorf("result = %+v", result)
	}

	rec, err := svc.GetIntake("p1")
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.Status != models.IntakeStatusActive {
		t.Errorf("persisted status = %s", rec.Status)
	}
}

func TestService_CreateIntake_DuplicateRejected(t *testing.T) {
	svc := newTestService(&scriptedBackend{replies: []string{"q"}})
	if _, err := svc.CreateIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateIntake(context.Background(), "p1")
	if !errors.Is(err, models.ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
}

func TestService_CreateIntake_InvalidID(t *testing.T) {
	svc := newTestService(&scriptedBackend{})
	if _, err := svc.CreateIntake(context.Background(), "a/b"); !errors.Is(err, models.ErrInvalidSessionID) {
		t.Errorf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestService_SubmitIntakeAnswer_PersistsAcrossCalls(t *testing.T) {
	backend := &scriptedBackend{replies: []string{"opening", "q2", "q3"}}
	svc := newTestService(backend)
	if _, err := svc.CreateIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	r1, err := svc.SubmitIntakeAnswer(context.Background(), "p1", "q1", "constant nausea")
	if err != nil {
		t.Fatal(err)
	}
	if r1.Reply != "q2" || r1.PregnancySuspicion {
		t.Errorf("first result = %+v", r1)
	}

	// A second call must see the answers persisted by the first one; the
	// duration phrase completes the suspicion conjunction.
	r2, err := svc.SubmitIntakeAnswer(context.Background(), "p1", "q2", "for two months now")
	if err != nil {
		t.Fatal(err)
	}
	if !r2.PregnancySuspicion {
		t.Error("suspicion must be raised from answers across separate calls")
	}

	rec, _ := svc.GetIntake("p1")
	if !rec.PregnancySuspicion {
		t.Error("suspicion flag must be persisted")
	}
	if len(rec.PatientAnswers) != 3 { // q1, q2, _age_checked
		t.Errorf("persisted answers = %d, want 3", len(rec.PatientAnswers))
	}
}

func TestService_SubmitIntakeAnswer_UnknownSession(t *testing.T) {
	svc := newTestService(&scriptedBackend{})
	_, err := svc.SubmitIntakeAnswer(context.Background(), "missing", "q1", "hi")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestService_SubmitIntakeAnswer_TerminalNotPersistedTwice(t *testing.T) {
	svc := newTestService(&scriptedBackend{replies: []string{"opening"}})
	if _, err := svc.CreateIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.CompleteIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	_, err := svc.SubmitIntakeAnswer(context.Background(), "p1", "q1", "hi")
	if !errors.Is(err, models.ErrSessionNotActive) {
		t.Errorf("expected ErrSessionNotActive, got %v", err)
	}

	rec, _ := svc.GetIntake("p1")
	if len(rec.PatientAnswers) != 0 {
		t.Error("rejected answer must not be persisted")
	}
}

func TestService_CompleteIntake(t *testing.T) {
	svc := newTestService(&scriptedBackend{replies: []string{"opening"}})
	if _, err := svc.CreateIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.CompleteIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	rec, _ := svc.GetIntake("p1")
	if rec.Status != models.IntakeStatusCompleted {
		t.Errorf("status = %s", rec.Status)
	}

	if err := svc.CompleteIntake(context.Background(), "missing"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestService_TransferToPregnancy(t *testing.T) {
	backend := &scriptedBackend{replies: []string{"opening", "next", "next"}}
	svc := newTestService(backend)
	if _, err := svc.CreateIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitIntakeAnswer(context.Background(), "p1", "lmp", "my period was six weeks ago"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitIntakeAnswer(context.Background(), "p1", "symptoms", "morning nausea"); err != nil {
		t.Fatal(err)
	}

	result, err := svc.TransferToPregnancy(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PregnancySessionID != "pregnancy_p1" {
		t.Errorf("target id = %q", result.PregnancySessionID)
	}

	preg, err := svc.GetPregnancy("pregnancy_p1")
	if err != nil {
		t.Fatalf("target not persisted: %v", err)
	}
	if preg.PregnancyData.LastMenstrualPeriod != "my period was six weeks ago" {
		t.Errorf("lmp = %q", preg.PregnancyData.LastMenstrualPeriod)
	}
	if len(preg.PregnancyData.Symptoms) != 1 {
		t.Errorf("symptoms = %v", preg.PregnancyData.Symptoms)
	}
	if preg.Metadata.SourceSessionID != "p1" {
		t.Error("lineage metadata lost")
	}

	// The source must remain readable and untouched.
	src, err := svc.GetIntake("p1")
	if err != nil {
		t.Fatalf("source must survive the transfer: %v", err)
	}
	if src.Status != models.IntakeStatusActive {
		t.Errorf("source status = %s, want active", src.Status)
	}
}

func TestService_TransferToPregnancy_UnknownSource(t *testing.T) {
	svc := newTestService(&scriptedBackend{})
	_, err := svc.TransferToPregnancy(context.Background(), "missing")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestService_TransferToPregnancy_Repeatable(t *testing.T) {
	backend := &scriptedBackend{replies: []string{"opening"}}
	svc := newTestService(backend)
	if _, err := svc.CreateIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	first, err := svc.TransferToPregnancy(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.TransferToPregnancy(context.Background(), "p1")
	if err != nil {
		t.Fatalf("re-transfer must succeed: %v", err)
	}
	if first.PregnancySessionID != second.PregnancySessionID {
		t.Error("re-transfer must target the same derived id")
	}
}

func TestService_SubmitPregnancyAnswer(t *testing.T) {
	backend := &scriptedBackend{replies: []string{"opening"}}
	svc := newTestService(backend)
	if _, err := svc.CreateIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.TransferToPregnancy(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	backend.replies = []string{"pregnancy is confirmed"}
	result, err := svc.SubmitPregnancyAnswer(context.Background(), "pregnancy_p1", "test came back")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.PregnancyStatusConfirmed {
		t.Errorf("status = %s, want confirmed", result.Status)
	}

	rec, _ := svc.GetPregnancy("pregnancy_p1")
	if rec.Status != models.PregnancyStatusConfirmed {
		t.Error("classified status must be persisted")
	}
}

func TestService_SubmitPregnancyAnswer_UnknownSession(t *testing.T) {
	svc := newTestService(&scriptedBackend{})
	_, err := svc.SubmitPregnancyAnswer(context.Background(), "missing", "hi")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestService_ListSessions(t *testing.T) {
	svc := newTestService(&scriptedBackend{replies: []string{"q"}})
	if _, err := svc.CreateIntake(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.TransferToPregnancy(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	ids, err := svc.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "p1" || ids[1] != "pregnancy_p1" {
		t.Errorf("ids = %v", ids)
	}
}
