// Package util provides id generation helpers.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewPatientSessionID returns a fresh caller-assigned intake session id of
// the form patient_<8 hex chars>.
func NewPatientSessionID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "patient_" + hex[:8]
}
