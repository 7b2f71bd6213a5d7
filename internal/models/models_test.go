package models

import (
	"testing"
	"time"
)

func TestConversationLog_AppendOrderAndLastAssistant(t *testing.T) {
	var log ConversationLog
	now := time.Now().UTC()
	log.Append(RoleAssistant, "first question", now)
	log.Append(RolePatient, "first answer", now)
	log.Append(RoleAssistant, "second question", now)

	if len(log) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(log))
	}
	q, ok := log.LastAssistant()
	if !ok || q != "second question" {
		t.Errorf("LastAssistant = %q, %v; want 'second question', true", q, ok)
	}
}

func TestConversationLog_LastAssistantEmpty(t *testing.T) {
	var log ConversationLog
	log.Append(RolePatient, "hello", time.Now())
	if q, ok := log.LastAssistant(); ok || q != "" {
		t.Errorf("expected no assistant turn, got %q, %v", q, ok)
	}
}

func TestConversationLog_PatientTurnsLimit(t *testing.T) {
	var log ConversationLog
	now := time.Now()
	for i := 0; i < 15; i++ {
		log.Append(RolePatient, "answer", now)
		log.Append(RoleAssistant, "question", now)
	}
	if got := len(log.PatientTurns(10)); got != 10 {
		t.Errorf("PatientTurns(10) returned %d turns", got)
	}
	if got := len(log.PatientTurns(0)); got != 15 {
		t.Errorf("PatientTurns(0) returned %d turns, want all 15", got)
	}
}

func TestAnswerStore_ClinicalTextSkipsReservedKeys(t *testing.T) {
	now := time.Now()
	answers := AnswerStore{
		"q1":          {Answer: "headache", Timestamp: now},
		"q2":          {Answer: "nausea", Timestamp: now},
		AgeCheckedKey: {Answer: "true", Timestamp: now},
	}
	text := answers.ClinicalText()
	if text != "headache nausea" {
		t.Errorf("ClinicalText = %q", text)
	}
}

func TestIsReservedAnswerKey(t *testing.T) {
	if !IsReservedAnswerKey(AgeCheckedKey) {
		t.Error("age-checked flag must be reserved")
	}
	if IsReservedAnswerKey("q1") {
		t.Error("q1 must not be reserved")
	}
}

func TestValidateSessionID(t *testing.T) {
	if err := ValidateSessionID("patient_ab12cd34"); err != nil {
		t.Errorf("unexpected error for valid id: %v", err)
	}
	if err := ValidateSessionID(""); err != ErrEmptySessionID {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
	for _, id := range []string{"../etc/passwd", "a/b", "a\\b", ".", ".."} {
		if err := ValidateSessionID(id); err == nil {
			t.Errorf("expected rejection of id %q", id)
		}
	}
}
