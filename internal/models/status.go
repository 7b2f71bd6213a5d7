// Package models defines session status enumerations for IntakeBridge.
package models

import "fmt"

// IntakeStatus is the lifecycle state of an intake session.
type IntakeStatus string

const (
	// IntakeStatusActive accepts answer submissions.
	IntakeStatusActive IntakeStatus = "active"
	// IntakeStatusSuspended is terminal; set by the age gate or an operator.
	IntakeStatusSuspended IntakeStatus = "suspended"
	// IntakeStatusCompleted is terminal; set by an explicit close.
	IntakeStatusCompleted IntakeStatus = "completed"
)

// ParseIntakeStatus validates a persisted status value. Unrecognized values
// are rejected rather than defaulted, so a corrupt record cannot resurrect
// as an active session.
func ParseIntakeStatus(s string) (IntakeStatus, error) {
	switch IntakeStatus(s) {
	case IntakeStatusActive, IntakeStatusSuspended, IntakeStatusCompleted:
		return IntakeStatus(s), nil
	default:
		return "", fmt.Errorf("%w: intake status %q", ErrUnknownStatus, s)
	}
}

// Terminal reports whether no further answer submissions are accepted.
func (s IntakeStatus) Terminal() bool {
	return s == IntakeStatusSuspended || s == IntakeStatusCompleted
}

// PregnancyStatus is the clinical resolution state of a pregnancy session.
// Unlike IntakeStatus there is no hard terminal state: a later reply may
// still revise the classification.
type PregnancyStatus string

const (
	PregnancyStatusSuspected    PregnancyStatus = "suspected"
	PregnancyStatusNeedsTesting PregnancyStatus = "needs_testing"
	PregnancyStatusConfirmed    PregnancyStatus = "confirmed"
	PregnancyStatusRuledOut     PregnancyStatus = "ruled_out"
)

// ParsePregnancyStatus validates a persisted status value, rejecting
// unrecognized values.
func ParsePregnancyStatus(s string) (PregnancyStatus, error) {
	switch PregnancyStatus(s) {
	case PregnancyStatusSuspected, PregnancyStatusNeedsTesting, PregnancyStatusConfirmed, PregnancyStatusRuledOut:
		return PregnancyStatus(s), nil
	default:
		return "", fmt.Errorf("%w: pregnancy status %q", ErrUnknownStatus, s)
	}
}
