package provider

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider returns scripted responses in order. It records every prompt
// it receives so tests can assert on stage sequencing.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int

	Prompts []string
	Options []GenerateOptions
}

// NewMockProvider creates a mock that replays the given responses.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// FailAt makes the nth call (0-based) return err instead of a response.
func (m *MockProvider) FailAt(n int, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.errs) <= n {
		m.errs = append(m.errs, nil)
	}
	m.errs[n] = err
	return m
}

// GenerateText returns the next scripted response.
func (m *MockProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.calls
	m.calls++
	m.Prompts = append(m.Prompts, prompt)
	m.Options = append(m.Options, opts)

	if n < len(m.errs) && m.errs[n] != nil {
		return "", m.errs[n]
	}
	if n >= len(m.responses) {
		return "", fmt.Errorf("mock provider exhausted after %d responses", len(m.responses))
	}
	return m.responses[n], nil
}

// Calls returns how many times GenerateText was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Generator = (*MockProvider)(nil)
