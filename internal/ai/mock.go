package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for completion providers. Responses are
// served in order and the last one repeats; Func, when set, overrides the
// canned responses entirely (useful for routing on req.Task).
type MockProvider struct {
	Responses []string
	Err       error
	Func      func(req CompletionRequest) (CompletionResponse, error)

	mu       sync.Mutex
	requests []CompletionRequest
	calls    int
}

// NewMockProvider creates a MockProvider that returns the given responses in order.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{Responses: responses}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.Func != nil {
		return m.Func(req)
	}
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}

	content := ""
	if len(m.Responses) > 0 {
		if call >= len(m.Responses) {
			call = len(m.Responses) - 1
		}
		content = m.Responses[call]
	}
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}

// Requests returns a copy of every request seen so far.
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest{}, m.requests...)
}

// Calls returns the number of Complete invocations.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
