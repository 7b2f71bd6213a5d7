// Package session implements the interview state machines for IntakeBridge.
//
// Two session kinds exist: the intake session, a staged gynecology history
// interview collecting free-form answers, and the pregnancy session, the
// specialized track an intake session is transferred to once its answers
// suggest pregnancy. Both own their conversation log exclusively and are
// persisted as whole records after every mutation by the caller.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/IntakeBridge/internal/genai"
	"github.com/BTreeMap/IntakeBridge/internal/models"
	"github.com/BTreeMap/IntakeBridge/internal/rules"
	"github.com/openai/openai-go"
)

// Fixed backend directives. These are single-shot user-role instructions,
// not part of the persisted conversation.
const (
	intakeOpeningDirective    = "Start the consultation with a polite greeting and ask the chief complaint."
	intakeContinueDirective   = "پاسخ بیمار ثبت شد. لطفاً سوال بعدی را طبق ترتیب شرح حال بپرس."
	pregnancyOpeningDirective = "بر اساس اطلاعات قبلی، احتمال بارداری بررسی می‌شود. اولین سوال را مطرح کنید."
)

const defaultIntakeSystemPrompt = `You are a professional gynecology medical assistant.

Rules:
- Ask ONLY ONE question at a time
- Follow standard gynecology history taking order
- Be concise and clear
- Do NOT give diagnosis or treatment yet
- If answers suggest pregnancy, continue history but do not conclude

Always end with ONE clear question.`

const defaultPregnancySystemPrompt = `شما یک متخصص بارداری و زایمان هستید.

قوانین:
- همیشه فارسی پاسخ دهید
- یک سوال در هر پیام
- تشخیص قطعی ندهید
- لحن دلسوزانه و حرفه‌ای

در پایان اضافه کنید:
✍️ نظر متخصص بارداری و زایمان:
(پزشک تشخیص نهایی را وارد می‌کند)`

// Config is the explicit per-session configuration. There is no ambient
// default; every session receives its configuration at construction time.
type Config struct {
	// Rules holds the clinical predicate tables.
	Rules rules.Config
	// IntakeModel and PregnancyModel name the backend models per track.
	// Empty values fall back to the backend client's default.
	IntakeModel    string
	PregnancyModel string
	// System prompts per track; empty values use the stock prompts.
	IntakeSystemPrompt    string
	PregnancySystemPrompt string
}

// DefaultConfig returns a Config with the stock rule tables and prompts.
func DefaultConfig() Config {
	return Config{
		Rules:                 rules.DefaultConfig(),
		IntakeSystemPrompt:    defaultIntakeSystemPrompt,
		PregnancySystemPrompt: defaultPregnancySystemPrompt,
	}
}

func (c Config) intakeSystemPrompt() string {
	if c.IntakeSystemPrompt != "" {
		return c.IntakeSystemPrompt
	}
	return defaultIntakeSystemPrompt
}

func (c Config) pregnancySystemPrompt() string {
	if c.PregnancySystemPrompt != "" {
		return c.PregnancySystemPrompt
	}
	return defaultPregnancySystemPrompt
}

// buildMessages converts a conversation log into backend message parameters.
// System-role bookkeeping turns (transfer summaries) are internal and never
// forwarded; the configured system prompt is supplied once, up front. An
// optional trailing user text carries the fixed directive for this call.
func buildMessages(systemPrompt string, log models.ConversationLog, userText string) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}
	for _, turn := range log {
		switch turn.Role {
		case models.RolePatient:
			messages = append(messages, openai.UserMessage(turn.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	if userText != "" {
		messages = append(messages, openai.UserMessage(userText))
	}
	return messages
}

// generate runs one backend call and degrades any failure to an absent
// reply. The session stays usable; the caller sees "no question available".
func generate(ctx context.Context, backend genai.ClientInterface, model, systemPrompt string, log models.ConversationLog, userText string) string {
	if backend == nil {
		return ""
	}
	reply, err := backend.GenerateWithModel(ctx, model, buildMessages(systemPrompt, log, userText))
	if err != nil {
		slog.Warn("session backend call failed, continuing without reply", "error", err, "model", model)
		return ""
	}
	return strings.TrimSpace(reply)
}

// monotonicNow returns the current UTC time, clamped so that timestamps
// never move backwards relative to a session's last update.
func monotonicNow(last time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(last) {
		return last
	}
	return now
}
