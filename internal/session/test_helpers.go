package session

import (
	"context"

	"github.com/openai/openai-go"
)

// mockBackend is a scripted genai.ClientInterface for tests. It replays the
// configured replies in order, repeating the last one, and records what it
// was asked.
type mockBackend struct {
	replies      []string
	err          error
	calls        int
	lastModel    string
	lastMessages []openai.ChatCompletionMessageParamUnion
}

func (m *mockBackend) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return m.GenerateWithModel(ctx, "", messages)
}

func (m *mockBackend) GenerateWithModel(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.calls++
	m.lastModel = model
	m.lastMessages = messages
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

func (m *mockBackend) Model() string {
	return "mock-model"
}
