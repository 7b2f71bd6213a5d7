// Package models defines the persisted session record variants.
//
// A record is the durable, whole-document form of a session: one JSON
// document per session id, replaced atomically as a whole on every
// mutation. Parsing is explicit and fallible; an unrecognized status fails
// the load instead of fabricating a default session.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PregnancyData holds the structured clinical fields accumulated by a
// pregnancy session. The numeric fields use pointers because "not yet
// measured" is distinct from zero.
type PregnancyData struct {
	LastMenstrualPeriod string   `json:"lmp,omitempty"`
	GestationalAgeWeeks *int     `json:"gestational_age,omitempty"`
	BetaHCG             *float64 `json:"beta_hcg,omitempty"`
	UltrasoundFindings  string   `json:"ultrasound_findings,omitempty"`
	RiskFactors         []string `json:"risk_factors"`
	Symptoms            []string `json:"symptoms"`
}

// IntakeRecord is the durable form of an intake session.
type IntakeRecord struct {
	SessionID           string          `json:"session_id"`
	Status              IntakeStatus    `json:"status"`
	PatientAnswers      AnswerStore     `json:"patient_answers"`
	ConversationHistory ConversationLog `json:"conversation_history"`
	PregnancySuspicion  bool            `json:"pregnancy_suspicion"`
	Metadata            Metadata        `json:"metadata"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// PregnancyRecord is the durable form of a pregnancy session.
type PregnancyRecord struct {
	SessionID           string          `json:"session_id"`
	Status              PregnancyStatus `json:"status"`
	PregnancyData       PregnancyData   `json:"pregnancy_data"`
	ConversationHistory ConversationLog `json:"conversation_history"`
	Metadata            Metadata        `json:"metadata"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// EncodeIntakeRecord serializes a record to its durable JSON document form.
func EncodeIntakeRecord(r IntakeRecord) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode intake record %s: %w", r.SessionID, err)
	}
	return data, nil
}

// ParseIntakeRecord deserializes and validates a durable intake document.
// Missing optional fields fall back to empty defaults; a missing session id
// or an unrecognized status rejects the record.
func ParseIntakeRecord(data []byte) (*IntakeRecord, error) {
	var raw struct {
		SessionID           string          `json:"session_id"`
		Status              string          `json:"status"`
		PatientAnswers      AnswerStore     `json:"patient_answers"`
		ConversationHistory ConversationLog `json:"conversation_history"`
		PregnancySuspicion  bool            `json:"pregnancy_suspicion"`
		Metadata            Metadata        `json:"metadata"`
		CreatedAt           time.Time       `json:"created_at"`
		UpdatedAt           time.Time       `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if raw.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session_id", ErrMalformedRecord)
	}
	status, err := ParseIntakeStatus(raw.Status)
	if err != nil {
		return nil, err
	}
	rec := &IntakeRecord{
		SessionID:           raw.SessionID,
		Status:              status,
		PatientAnswers:      raw.PatientAnswers,
		ConversationHistory: raw.ConversationHistory,
		PregnancySuspicion:  raw.PregnancySuspicion,
		Metadata:            raw.Metadata,
		CreatedAt:           raw.CreatedAt,
		UpdatedAt:           raw.UpdatedAt,
	}
	if rec.PatientAnswers == nil {
		rec.PatientAnswers = AnswerStore{}
	}
	if rec.ConversationHistory == nil {
		rec.ConversationHistory = ConversationLog{}
	}
	return rec, nil
}

// EncodePregnancyRecord serializes a record to its durable JSON document form.
func EncodePregnancyRecord(r PregnancyRecord) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode pregnancy record %s: %w", r.SessionID, err)
	}
	return data, nil
}

// ParsePregnancyRecord deserializes and validates a durable pregnancy
// document with the same tolerance rules as ParseIntakeRecord.
func ParsePregnancyRecord(data []byte) (*PregnancyRecord, error) {
	var raw struct {
		SessionID           string          `json:"session_id"`
		Status              string          `json:"status"`
		PregnancyData       PregnancyData   `json:"pregnancy_data"`
		ConversationHistory ConversationLog `json:"conversation_history"`
		Metadata            Metadata        `json:"metadata"`
		CreatedAt           time.Time       `json:"created_at"`
		UpdatedAt           time.Time       `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if raw.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session_id", ErrMalformedRecord)
	}
	status, err := ParsePregnancyStatus(raw.Status)
	if err != nil {
		return nil, err
	}
	rec := &PregnancyRecord{
		SessionID:           raw.SessionID,
		Status:              status,
		PregnancyData:       raw.PregnancyData,
		ConversationHistory: raw.ConversationHistory,
		Metadata:            raw.Metadata,
		CreatedAt:           raw.CreatedAt,
		UpdatedAt:           raw.UpdatedAt,
	}
	if rec.ConversationHistory == nil {
		rec.ConversationHistory = ConversationLog{}
	}
	if rec.PregnancyData.RiskFactors == nil {
		rec.PregnancyData.RiskFactors = []string{}
	}
	if rec.PregnancyData.Symptoms == nil {
		rec.PregnancyData.Symptoms = []string{}
	}
	return rec, nil
}
