// Package api implements the boundary operations of IntakeBridge.
//
// Every operation is a load-by-id, mutate, save-by-id round trip through
// the session record codec, serialized per session id by an advisory
// locker so no partial write is visible to a second reader mid-operation.
package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/IntakeBridge/internal/genai"
	"github.com/BTreeMap/IntakeBridge/internal/lockfile"
	"github.com/BTreeMap/IntakeBridge/internal/models"
	"github.com/BTreeMap/IntakeBridge/internal/session"
	"github.com/BTreeMap/IntakeBridge/internal/store"
)

// CreateIntakeResult is the payload returned when an intake session starts.
type CreateIntakeResult struct {
	SessionID       string `json:"session_id"`
	CurrentQuestion string `json:"question"`
}

// IntakeAnswerResult is the payload returned for an intake answer.
type IntakeAnswerResult struct {
	Reply              string `json:"reply"`
	PregnancySuspicion bool   `json:"pregnancy_suspicion"`
}

// TransferResult is the payload returned by a transfer.
type TransferResult struct {
	PregnancySessionID string `json:"pregnancy_session_id"`
	FirstQuestion      string `json:"first_question"`
}

// PregnancyAnswerResult is the payload returned for a pregnancy answer.
type PregnancyAnswerResult struct {
	Reply  string                 `json:"reply"`
	Status models.PregnancyStatus `json:"status"`
}

// Service wires the session state machines to a store and a generation
// backend, exposing the boundary operations consumed by the HTTP layer and
// the demo CLI.
type Service struct {
	st               store.Store
	intakeBackend    genai.ClientInterface
	pregnancyBackend genai.ClientInterface
	cfg              session.Config
	locker           lockfile.Locker
}

// NewService creates a Service. A nil pregnancy backend falls back to the
// intake backend; a nil locker falls back to in-process per-id mutexes.
func NewService(st store.Store, intakeBackend, pregnancyBackend genai.ClientInterface, cfg session.Config, locker lockfile.Locker) *Service {
	if pregnancyBackend == nil {
		pregnancyBackend = intakeBackend
	}
	if locker == nil {
		locker = lockfile.NewMutexLocker()
	}
	return &Service{
		st:               st,
		intakeBackend:    intakeBackend,
		pregnancyBackend: pregnancyBackend,
		cfg:              cfg,
		locker:           locker,
	}
}

// CreateIntake starts a new intake session under a caller-assigned id and
// returns the opening question (possibly empty when the backend yields
// nothing).
func (s *Service) CreateIntake(ctx context.Context, id string) (*CreateIntakeResult, error) {
	if err := models.ValidateSessionID(id); err != nil {
		return nil, err
	}
	release, err := s.locker.Acquire(id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", id, err)
	}
	defer release()

	existing, err := s.st.GetIntakeRecord(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionExists, id)
	}

	sess, err := session.NewIntakeSession(ctx, id, s.intakeBackend, s.cfg)
	if err != nil {
		return nil, err
	}
	if err := s.st.SaveIntakeRecord(sess.Record()); err != nil {
		return nil, err
	}

	slog.Info("Service.CreateIntake succeeded", "sessionID", id, "questionPresent", sess.CurrentQuestion() != "")
	return &CreateIntakeResult{SessionID: id, CurrentQuestion: sess.CurrentQuestion()}, nil
}

// SubmitIntakeAnswer records an answer on an active intake session and
// returns the next question plus the suspicion flag.
func (s *Service) SubmitIntakeAnswer(ctx context.Context, id, questionKey, answer string) (*IntakeAnswerResult, error) {
	release, err := s.locker.Acquire(id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", id, err)
	}
	defer release()

	rec, err := s.st.GetIntakeRecord(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: intake %s", models.ErrSessionNotFound, id)
	}

	sess := session.RestoreIntakeSession(rec, s.intakeBackend, s.cfg)
	reply, err := sess.SubmitAnswer(ctx, questionKey, answer)
	if err != nil {
		return nil, err
	}
	if err := s.st.SaveIntakeRecord(sess.Record()); err != nil {
		return nil, err
	}

	return &IntakeAnswerResult{Reply: reply, PregnancySuspicion: sess.PregnancySuspected}, nil
}

// CompleteIntake closes an intake session explicitly.
func (s *Service) CompleteIntake(ctx context.Context, id string) error {
	release, err := s.locker.Acquire(id)
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", id, err)
	}
	defer release()

	rec, err := s.st.GetIntakeRecord(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: intake %s", models.ErrSessionNotFound, id)
	}
	sess := session.RestoreIntakeSession(rec, s.intakeBackend, s.cfg)
	sess.Complete()
	return s.st.SaveIntakeRecord(sess.Record())
}

// TransferToPregnancy forks an intake session into the pregnancy track. The
// source record is left untouched for audit; the derived target id makes
// the operation idempotent at the id level, so repeating it overwrites the
// same logical target.
func (s *Service) TransferToPregnancy(ctx context.Context, intakeID string) (*TransferResult, error) {
	release, err := s.locker.Acquire(intakeID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", intakeID, err)
	}
	defer release()

	rec, err := s.st.GetIntakeRecord(intakeID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: intake %s", models.ErrSessionNotFound, intakeID)
	}

	target, err := session.TransferFromRecord(rec, s.pregnancyBackend, s.cfg)
	if err != nil {
		return nil, err
	}

	releaseTarget, err := s.locker.Acquire(target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", target.ID, err)
	}
	defer releaseTarget()

	firstQuestion, err := target.Start(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.st.SavePregnancyRecord(target.Record()); err != nil {
		return nil, err
	}

	slog.Info("Service.TransferToPregnancy succeeded", "sourceID", intakeID, "targetID", target.ID)
	return &TransferResult{PregnancySessionID: target.ID, FirstQuestion: firstQuestion}, nil
}

// SubmitPregnancyAnswer records an answer on a pregnancy session and
// returns the backend reply plus the (possibly revised) status.
func (s *Service) SubmitPregnancyAnswer(ctx context.Context, id, answer string) (*PregnancyAnswerResult, error) {
	release, err := s.locker.Acquire(id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", id, err)
	}
	defer release()

	rec, err := s.st.GetPregnancyRecord(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: pregnancy %s", models.ErrSessionNotFound, id)
	}

	sess := session.RestorePregnancySession(rec, s.pregnancyBackend, s.cfg)
	reply, err := sess.SubmitAnswer(ctx, answer)
	if err != nil {
		return nil, err
	}
	if err := s.st.SavePregnancyRecord(sess.Record()); err != nil {
		return nil, err
	}

	return &PregnancyAnswerResult{Reply: reply, Status: sess.Status}, nil
}

// GetIntake returns the durable form of an intake session.
func (s *Service) GetIntake(id string) (*models.IntakeRecord, error) {
	rec, err := s.st.GetIntakeRecord(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: intake %s", models.ErrSessionNotFound, id)
	}
	return rec, nil
}

// GetPregnancy returns the durable form of a pregnancy session.
func (s *Service) GetPregnancy(id string) (*models.PregnancyRecord, error) {
	rec, err := s.st.GetPregnancyRecord(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: pregnancy %s", models.ErrSessionNotFound, id)
	}
	return rec, nil
}

// ListSessions returns all persisted session ids.
func (s *Service) ListSessions() ([]string, error) {
	return s.st.ListSessionIDs()
}
