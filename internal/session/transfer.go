// Package session: transfer operator bridging intake to pregnancy sessions.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/IntakeBridge/internal/genai"
	"github.com/BTreeMap/IntakeBridge/internal/models"
)

// PregnancyIDPrefix is prepended to the source session id to derive the
// pregnancy session id. The derivation is deterministic, so re-transferring
// the same source yields the same target id and overwrites the same logical
// record.
const PregnancyIDPrefix = "pregnancy_"

// TransferredFromIntake is the metadata marker identifying the source kind.
const TransferredFromIntake = "intake_session"

// Summarization bounds for the inherited conversation context.
const (
	transferSummaryMaxTurns   = 10
	transferSummaryRuneBudget = 100
)

// DerivePregnancyID returns the pregnancy session id for a given intake
// session id.
func DerivePregnancyID(sourceID string) string {
	return PregnancyIDPrefix + sourceID
}

// Transfer converts an intake session into a freshly initialized pregnancy
// session. The source is forked, not consumed: its record stays on durable
// storage untouched for audit.
func Transfer(src *IntakeSession, backend genai.ClientInterface, cfg Config) (*PregnancySession, error) {
	rec := src.Record()
	return TransferFromRecord(&rec, backend, cfg)
}

// TransferFromRecord performs the transfer from the durable form of an
// intake session. For every non-internal answer, a last-menstrual-period
// match fills the structured LMP field and a symptom match appends the full
// answer text to the symptom sequence. The target inherits no conversation
// history beyond a single system-role summary turn built from the first
// patient turns of the source.
func TransferFromRecord(rec *models.IntakeRecord, backend genai.ClientInterface, cfg Config) (*PregnancySession, error) {
	target, err := NewPregnancySession(DerivePregnancyID(rec.SessionID), backend, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to derive pregnancy session from %s: %w", rec.SessionID, err)
	}

	target.Metadata.TransferredFrom = TransferredFromIntake
	target.Metadata.SourceSessionID = rec.SessionID

	for _, key := range rec.PatientAnswers.SortedKeys() {
		if models.IsReservedAnswerKey(key) {
			continue
		}
		answer := rec.PatientAnswers[key].Answer
		if cfg.Rules.MatchesLMP(key, answer) {
			target.Data.LastMenstrualPeriod = answer
		}
		if cfg.Rules.MatchesTransferSymptom(answer) {
			target.Data.Symptoms = append(target.Data.Symptoms, answer)
		}
	}

	summary := summarizePatientTurns(rec.ConversationHistory)
	target.Log.Append(models.RoleSystem, summary, time.Now().UTC())
	target.touch()

	slog.Info("Transfer completed", "sourceID", rec.SessionID, "targetID", target.ID,
		"symptoms", len(target.Data.Symptoms), "lmpSet", target.Data.LastMenstrualPeriod != "")
	return target, nil
}

// summarizePatientTurns builds the single inherited system turn: up to the
// first ten patient turns of the source, each truncated to a fixed rune
// budget.
func summarizePatientTurns(log models.ConversationLog) string {
	var lines []string
	for _, turn := range log.PatientTurns(transferSummaryMaxTurns) {
		lines = append(lines, "- بیمار: "+truncateRunes(turn.Content, transferSummaryRuneBudget))
	}
	return "خلاصه جلسه زنان:\n" + strings.Join(lines, "\n")
}

// truncateRunes cuts s to at most n runes, never splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
