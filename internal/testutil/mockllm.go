package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/paperchat/paperchat/internal/llm"
)

// MockLLM implements llm.Client with deterministic responses. The last user
// message is matched against registered substring patterns; the first match
// wins and its response is returned. When nothing matches, the fallback is
// returned.
//
// Safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	err      error
	calls    []MockCall
}

type mockRule struct {
	pattern  string // lowercase substring matched against the last user message
	response string
}

// MockCall records a single completion request.
type MockCall struct {
	Request  llm.Request
	Response string
}

// NewMockLLM creates a mock returning fallback when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Matching is
// case-insensitive and in registration order.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), response: response})
}

// Fail makes every subsequent call return err. Pass nil to clear.
func (m *MockLLM) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Complete implements llm.Client.
func (m *MockLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}

	response := m.fallback
	probe := strings.ToLower(lastUserMessage(req.Messages))
	for _, rule := range m.rules {
		if strings.Contains(probe, rule.pattern) {
			response = rule.response
			break
		}
	}

	m.calls = append(m.calls, MockCall{Request: req, Response: response})
	return response, nil
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

func lastUserMessage(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
