// Package session: pregnancy session state machine.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/IntakeBridge/internal/genai"
	"github.com/BTreeMap/IntakeBridge/internal/models"
)

// PregnancySession manages the specialized pregnancy assessment track. Its
// status moves freely between the clinical resolution values as backend
// replies are classified; there is no hard terminal state because a later
// turn can still revise the assessment.
type PregnancySession struct {
	ID        string
	Status    models.PregnancyStatus
	Data      models.PregnancyData
	Log       models.ConversationLog
	Metadata  models.Metadata
	CreatedAt time.Time
	UpdatedAt time.Time

	cfg     Config
	backend genai.ClientInterface
}

// NewPregnancySession creates a session in the Suspected state with empty
// clinical data. No backend call is made until Start.
func NewPregnancySession(id string, backend genai.ClientInterface, cfg Config) (*PregnancySession, error) {
	if err := models.ValidateSessionID(id); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	model := cfg.PregnancyModel
	if model == "" && backend != nil {
		model = backend.Model()
	}
	return &PregnancySession{
		ID:     id,
		Status: models.PregnancyStatusSuspected,
		Data: models.PregnancyData{
			RiskFactors: []string{},
			Symptoms:    []string{},
		},
		Log:       models.ConversationLog{},
		Metadata:  models.Metadata{Model: model},
		CreatedAt: now,
		UpdatedAt: now,
		cfg:       cfg,
		backend:   backend,
	}, nil
}

// RestorePregnancySession rebuilds a session from its persisted record.
func RestorePregnancySession(rec *models.PregnancyRecord, backend genai.ClientInterface, cfg Config) *PregnancySession {
	return &PregnancySession{
		ID:        rec.SessionID,
		Status:    rec.Status,
		Data:      rec.PregnancyData,
		Log:       rec.ConversationHistory,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		cfg:       cfg,
		backend:   backend,
	}
}

// Record exports the session in its durable form.
func (s *PregnancySession) Record() models.PregnancyRecord {
	return models.PregnancyRecord{
		SessionID:           s.ID,
		Status:              s.Status,
		PregnancyData:       s.Data,
		ConversationHistory: s.Log,
		Metadata:            s.Metadata,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func (s *PregnancySession) generate(ctx context.Context, userText string) string {
	return generate(ctx, s.backend, s.Metadata.Model, s.cfg.pregnancySystemPrompt(), s.Log, userText)
}

func (s *PregnancySession) touch() {
	s.UpdatedAt = monotonicNow(s.UpdatedAt)
}

// Start opens the assessment dialogue. When the log already has turns (the
// inherited transfer summary counts), Start is idempotent and returns the
// current question without re-querying the backend.
func (s *PregnancySession) Start(ctx context.Context) (string, error) {
	if len(s.Log) > 0 {
		slog.Debug("PregnancySession.Start idempotent return", "sessionID", s.ID)
		return s.CurrentQuestion(), nil
	}

	q := s.generate(ctx, pregnancyOpeningDirective)
	if q != "" {
		s.Log.Append(models.RoleAssistant, q, monotonicNow(s.UpdatedAt))
	}
	s.touch()

	slog.Info("PregnancySession started", "sessionID", s.ID, "questionPresent", q != "")
	return q, nil
}

// SubmitAnswer appends the patient's answer, asks the backend for the next
// reply with the full visible history, classifies the reply into a status,
// and returns the reply text. An absent backend reply leaves the status and
// log (beyond the patient turn) unchanged.
func (s *PregnancySession) SubmitAnswer(ctx context.Context, answer string) (string, error) {
	if answer == "" {
		return "", models.ErrEmptyAnswer
	}

	now := monotonicNow(s.UpdatedAt)
	s.Log.Append(models.RolePatient, answer, now)

	reply := s.generate(ctx, "")
	if reply != "" {
		prev := s.Status
		s.Status = s.cfg.Rules.ClassifyReply(reply, s.Status)
		if s.Status != prev {
			slog.Info("PregnancySession status changed", "sessionID", s.ID, "from", prev, "to", s.Status)
		}
		s.Log.Append(models.RoleAssistant, reply, monotonicNow(s.UpdatedAt))
	}
	s.touch()

	slog.Debug("PregnancySession.SubmitAnswer completed", "sessionID", s.ID, "replyPresent", reply != "", "status", s.Status)
	return reply, nil
}

// CurrentQuestion returns the text of the most recent assistant turn, or
// the empty string when none exists.
func (s *PregnancySession) CurrentQuestion() string {
	q, _ := s.Log.LastAssistant()
	return q
}
