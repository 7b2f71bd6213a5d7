// Package session: intake session state machine.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/IntakeBridge/internal/genai"
	"github.com/BTreeMap/IntakeBridge/internal/models"
)

// IntakeSession manages one staged gynecology intake interview. It owns its
// answer store and conversation log exclusively and assumes a single caller
// drives one turn to completion before the next request; there is no
// internal locking.
type IntakeSession struct {
	ID                 string
	Status             models.IntakeStatus
	Answers            models.AnswerStore
	Log                models.ConversationLog
	PregnancySuspected bool
	Metadata           models.Metadata
	CreatedAt          time.Time
	UpdatedAt          time.Time

	cfg     Config
	backend genai.ClientInterface
}

// NewIntakeSession creates an active intake session and seeds it with one
// opening assistant turn requested from the backend. If the backend yields
// nothing the session still becomes active with no current question.
func NewIntakeSession(ctx context.Context, id string, backend genai.ClientInterface, cfg Config) (*IntakeSession, error) {
	if err := models.ValidateSessionID(id); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	model := cfg.IntakeModel
	if model == "" && backend != nil {
		model = backend.Model()
	}
	s := &IntakeSession{
		ID:        id,
		Status:    models.IntakeStatusActive,
		Answers:   models.AnswerStore{},
		Log:       models.ConversationLog{},
		Metadata:  models.Metadata{Model: model},
		CreatedAt: now,
		UpdatedAt: now,
		cfg:       cfg,
		backend:   backend,
	}

	if opening := s.generate(ctx, intakeOpeningDirective); opening != "" {
		s.Log.Append(models.RoleAssistant, opening, monotonicNow(s.UpdatedAt))
	} else {
		slog.Warn("IntakeSession created without opening question", "sessionID", id)
	}
	s.touch()

	slog.Info("IntakeSession created", "sessionID", id, "model", model)
	return s, nil
}

// RestoreIntakeSession rebuilds a session from its persisted record.
func RestoreIntakeSession(rec *models.IntakeRecord, backend genai.ClientInterface, cfg Config) *IntakeSession {
	return &IntakeSession{
		ID:                 rec.SessionID,
		Status:             rec.Status,
		Answers:            rec.PatientAnswers,
		Log:                rec.ConversationHistory,
		PregnancySuspected: rec.PregnancySuspicion,
		Metadata:           rec.Metadata,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		cfg:                cfg,
		backend:            backend,
	}
}

// Record exports the session in its durable form.
func (s *IntakeSession) Record() models.IntakeRecord {
	return models.IntakeRecord{
		SessionID:           s.ID,
		Status:              s.Status,
		PatientAnswers:      s.Answers,
		ConversationHistory: s.Log,
		PregnancySuspicion:  s.PregnancySuspected,
		Metadata:            s.Metadata,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func (s *IntakeSession) generate(ctx context.Context, userText string) string {
	return generate(ctx, s.backend, s.Metadata.Model, s.cfg.intakeSystemPrompt(), s.Log, userText)
}

func (s *IntakeSession) touch() {
	s.UpdatedAt = monotonicNow(s.UpdatedAt)
}

// SubmitAnswer records a patient answer under questionKey and returns the
// next assistant reply. The write sequence is fixed: store the answer, run
// the pregnancy-suspicion rule, run the one-time age gate, then continue the
// dialogue through the backend. When the age gate fires, the session is
// suspended and the referral text is returned without contacting the
// backend; the patient's text is kept in the answer store but not appended
// as a conversation turn on that path.
func (s *IntakeSession) SubmitAnswer(ctx context.Context, questionKey, answer string) (string, error) {
	if s.Status != models.IntakeStatusActive {
		slog.Warn("IntakeSession.SubmitAnswer rejected", "sessionID", s.ID, "status", s.Status)
		return "", fmt.Errorf("%w: status %s", models.ErrSessionNotActive, s.Status)
	}
	if questionKey == "" {
		return "", models.ErrEmptyQuestionKey
	}
	if models.IsReservedAnswerKey(questionKey) {
		return "", fmt.Errorf("%w: %q", models.ErrReservedKey, questionKey)
	}
	if answer == "" {
		return "", models.ErrEmptyAnswer
	}

	now := monotonicNow(s.UpdatedAt)
	s.Answers[questionKey] = models.AnswerRecord{Answer: answer, Timestamp: now}

	// Monotonic: once suspected, further answers never clear the flag.
	if !s.PregnancySuspected && s.cfg.Rules.SuspectsPregnancy(s.Answers.ClinicalText()) {
		s.PregnancySuspected = true
		slog.Info("IntakeSession pregnancy suspicion raised", "sessionID", s.ID, "questionKey", questionKey)
	}

	if _, checked := s.Answers[models.AgeCheckedKey]; !checked {
		s.Answers[models.AgeCheckedKey] = models.AnswerRecord{Answer: "true", Timestamp: now}
		if s.cfg.Rules.AgeGateFires(answer, now) {
			s.Status = models.IntakeStatusSuspended
			warning := s.cfg.Rules.AgeReferralText
			s.Log.Append(models.RoleAssistant, warning, now)
			s.touch()
			slog.Info("IntakeSession suspended by age gate", "sessionID", s.ID)
			return warning, nil
		}
	}

	s.Log.Append(models.RolePatient, answer, now)

	reply := s.generate(ctx, intakeContinueDirective)
	if reply != "" {
		s.Log.Append(models.RoleAssistant, reply, monotonicNow(s.UpdatedAt))
	}
	s.touch()

	slog.Debug("IntakeSession.SubmitAnswer completed", "sessionID", s.ID, "questionKey", questionKey,
		"replyPresent", reply != "", "pregnancySuspected", s.PregnancySuspected)
	return reply, nil
}

// CurrentQuestion returns the text of the most recent assistant turn, or
// the empty string when none exists.
func (s *IntakeSession) CurrentQuestion() string {
	q, _ := s.Log.LastAssistant()
	return q
}

// Complete marks the session completed. Idempotent; a session already in a
// terminal state is left unchanged.
func (s *IntakeSession) Complete() {
	if s.Status.Terminal() {
		return
	}
	s.Status = models.IntakeStatusCompleted
	s.touch()
	slog.Info("IntakeSession completed", "sessionID", s.ID)
}

// Suspend marks the session suspended. Idempotent; a session already in a
// terminal state is left unchanged.
func (s *IntakeSession) Suspend() {
	if s.Status.Terminal() {
		return
	}
	s.Status = models.IntakeStatusSuspended
	s.touch()
	slog.Info("IntakeSession suspended", "sessionID", s.ID)
}

// SwitchModel changes the backend model for subsequent turns and records
// the switch in session metadata.
func (s *IntakeSession) SwitchModel(model string) {
	now := monotonicNow(s.UpdatedAt)
	s.Metadata.Model = model
	s.Metadata.ModelSwitchedAt = &now
	s.touch()
	slog.Info("IntakeSession model switched", "sessionID", s.ID, "model", model)
}
