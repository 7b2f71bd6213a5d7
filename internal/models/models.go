// Package models defines the core data structures for IntakeBridge.
//
// It includes the conversation and answer records shared by the intake and
// pregnancy session state machines, and the persisted record variants.
package models

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RolePatient marks a turn authored by the patient.
	RolePatient Role = "user"
	// RoleAssistant marks a turn produced by the generation backend.
	RoleAssistant Role = "assistant"
	// RoleSystem marks internal bookkeeping turns (e.g. transfer summaries).
	RoleSystem Role = "system"
)

// Reserved answer-key namespace. Keys with this prefix are internal flags
// and must never be supplied by callers nor included in clinical-text scans.
const (
	ReservedKeyPrefix = "_"
	// AgeCheckedKey records that the one-time age gate has already run.
	AgeCheckedKey = "_age_checked"
)

// Error variables for better error handling and testability
var (
	ErrEmptySessionID   = errors.New("session id cannot be empty")
	ErrInvalidSessionID = errors.New("session id contains invalid characters")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionNotActive = errors.New("session is not active")
	ErrReservedKey      = errors.New("question key uses the reserved internal prefix")
	ErrEmptyQuestionKey = errors.New("question key cannot be empty")
	ErrEmptyAnswer      = errors.New("answer text cannot be empty")
	ErrMalformedRecord  = errors.New("malformed session record")
	ErrUnknownStatus    = errors.New("unrecognized session status")
)

// IsReservedAnswerKey reports whether key belongs to the internal flag
// namespace of the answer store.
func IsReservedAnswerKey(key string) bool {
	return strings.HasPrefix(key, ReservedKeyPrefix)
}

// ValidateSessionID checks a caller-assigned session id. Ids become file
// names in the file-backed store, so path metacharacters are rejected.
func ValidateSessionID(id string) error {
	if id == "" {
		return ErrEmptySessionID
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return ErrInvalidSessionID
	}
	return nil
}

// Turn represents a single role-tagged utterance in a conversation log.
// Turns are immutable once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationLog is an ordered, append-only record of turns. Entries are
// never reordered or deleted.
type ConversationLog []Turn

// Append adds a turn to the end of the log.
func (l *ConversationLog) Append(role Role, content string, at time.Time) {
	*l = append(*l, Turn{Role: role, Content: content, Timestamp: at})
}

// LastAssistant returns the content of the most recent assistant turn,
// scanning from the end of the log. The second return value reports whether
// such a turn exists.
func (l ConversationLog) LastAssistant() (string, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].Role == RoleAssistant {
			return l[i].Content, true
		}
	}
	return "", false
}

// PatientTurns returns up to max patient-role turns in log order. A
// non-positive max returns all of them.
func (l ConversationLog) PatientTurns(max int) []Turn {
	var turns []Turn
	for _, t := range l {
		if t.Role != RolePatient {
			continue
		}
		turns = append(turns, t)
		if max > 0 && len(turns) == max {
			break
		}
	}
	return turns
}

// AnswerRecord stores one patient answer with its submission time.
type AnswerRecord struct {
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// AnswerStore maps question identifiers to answer records. Keys are unique;
// insertion order carries no meaning. Keys in the reserved namespace hold
// internal flags, not clinical content.
type AnswerStore map[string]AnswerRecord

// SortedKeys returns all keys in lexical order. Map iteration order is not
// stable, so every scan that must be deterministic goes through this.
func (a AnswerStore) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClinicalText concatenates all stored answer texts, space-separated,
// excluding reserved internal entries.
func (a AnswerStore) ClinicalText() string {
	var b strings.Builder
	for _, k := range a.SortedKeys() {
		if IsReservedAnswerKey(k) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(a[k].Answer)
	}
	return b.String()
}

// Metadata carries per-session backend configuration and transfer lineage.
type Metadata struct {
	Model           string     `json:"model"`
	TransferredFrom string     `json:"transferred_from,omitempty"`
	SourceSessionID string     `json:"source_session_id,omitempty"`
	ModelSwitchedAt *time.Time `json:"model_switched_at,omitempty"`
}
