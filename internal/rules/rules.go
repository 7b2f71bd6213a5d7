// Package rules implements the clinical predicate evaluation driving the
// session state machines.
//
// Every predicate is a pure function over a data-driven Config: the keyword
// tables and thresholds are configuration, not code, so the clinical rule
// set can be swapped without touching the state machines. Matching is plain
// substring containment in the configured language; no normalization is
// applied.
package rules

import (
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/IntakeBridge/internal/models"
)

// Config holds the clinical rule tables for both session tracks.
type Config struct {
	// MinimumAge is the youngest age (in years) the intake track accepts.
	MinimumAge int
	// AgeReferralText is the fixed reply returned when the age gate fires.
	AgeReferralText string

	// SymptomKeywords and DurationPhrases drive the pregnancy-suspicion
	// conjunction: suspicion requires at least one hit from each list.
	SymptomKeywords []string
	DurationPhrases []string

	// TransferSymptomMarkers select which intake answers are copied into
	// the pregnancy session's symptom sequence during transfer.
	TransferSymptomMarkers []string
	// LMPKeyMarkers match (case-insensitively) against question keys and
	// LMPAnswerMarkers against answer texts to locate the last menstrual
	// period answer during transfer.
	LMPKeyMarkers    []string
	LMPAnswerMarkers []string

	// Reply-classification tables for the pregnancy track, checked in
	// order: confirmed, needs-testing, ruled-out. First list with a hit
	// wins; no hit leaves the status unchanged.
	ConfirmedKeywords []string
	TestingKeywords   []string
	RuledOutKeywords  []string
}

// DefaultConfig returns the stock Persian-language rule tables.
func DefaultConfig() Config {
	return Config{
		MinimumAge:             12,
		AgeReferralText:        "با توجه به سن بیمار، این نوع ویزیت نیازمند بررسی و ارجاع حضوری توسط پزشک متخصص است.",
		SymptomKeywords:        []string{"تهوع", "استفراغ", "خستگی", "ویار"},
		DurationPhrases:        []string{"2 ماه", "3 ماه", "دو ماه", "سه ماه"},
		TransferSymptomMarkers: []string{"تهوع", "حالت", "پستان", "خستگی", "تاخیر"},
		LMPKeyMarkers:          []string{"lmp"},
		LMPAnswerMarkers:       []string{"قاعدگی"},
		ConfirmedKeywords:      []string{"تایید", "confirmed", "مثبت"},
		TestingKeywords:        []string{"آزمایش", "test", "بتا"},
		RuledOutKeywords:       []string{"منفی", "negative", "رد"},
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// SuspectsPregnancy evaluates the suspicion conjunction over the
// concatenated clinical answer text. The check is monotonic and idempotent:
// adding answers can only move the verdict from false to true.
func (c Config) SuspectsPregnancy(clinicalText string) bool {
	return containsAny(clinicalText, c.SymptomKeywords) &&
		containsAny(clinicalText, c.DurationPhrases)
}

// AgeGateFires parses an age answer as a birth year and reports whether the
// patient is younger than the configured minimum at the given time. A
// non-numeric answer never fires the gate; the rule is permissive on parse
// failure, not an error.
func (c Config) AgeGateFires(answer string, now time.Time) bool {
	year, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return false
	}
	return now.Year()-year < c.MinimumAge
}

// MatchesLMP reports whether an intake answer identifies the last menstrual
// period, by question key or by answer content.
func (c Config) MatchesLMP(questionKey, answer string) bool {
	key := strings.ToLower(questionKey)
	for _, m := range c.LMPKeyMarkers {
		if m != "" && strings.Contains(key, m) {
			return true
		}
	}
	return containsAny(answer, c.LMPAnswerMarkers)
}

// MatchesTransferSymptom reports whether an intake answer describes a
// pregnancy symptom worth carrying into the specialized track.
func (c Config) MatchesTransferSymptom(answer string) bool {
	return containsAny(answer, c.TransferSymptomMarkers)
}

// ClassifyReply scans a backend reply for status keywords and returns the
// resulting pregnancy status. Confirmation beats testing beats negation; a
// reply matching none of the tables leaves the current status in place.
func (c Config) ClassifyReply(reply string, current models.PregnancyStatus) models.PregnancyStatus {
	text := strings.ToLower(reply)
	switch {
	case containsAny(text, c.ConfirmedKeywords):
		return models.PregnancyStatusConfirmed
	case containsAny(text, c.TestingKeywords):
		return models.PregnancyStatusNeedsTesting
	case containsAny(text, c.RuledOutKeywords):
		return models.PregnancyStatusRuledOut
	default:
		return current
	}
}
