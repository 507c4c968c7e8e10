package backend

import (
	"context"
	"sync"

	"github.com/rkoval/flume/pkg/models"
)

// MockResponse scripts one Execute call on a MockRunner.
type MockResponse struct {
	Output       string
	Usage        models.Usage
	TouchedFiles []string
	Err          error
}

// MockRunner is a scripted Runner for tests. Responses are keyed by
// instruction; unmatched instructions fall back to the Default response.
type MockRunner struct {
	mu sync.Mutex
	// Responses maps instruction text to a scripted response.
	Responses map[string]MockResponse
	// Default is returned when no scripted response matches.
	Default MockResponse
	// Calls records every request in arrival order.
	Calls []Request
}

// NewMockRunner creates an empty MockRunner.
func NewMockRunner() *MockRunner {
	return &MockRunner{Responses: make(map[string]MockResponse)}
}

// Script registers a response for the given instruction.
func (m *MockRunner) Script(instruction string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[instruction] = resp
}

// Execute implements Runner.
func (m *MockRunner) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Transient: false, Err: err}
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	resp, ok := m.Responses[req.Instruction]
	m.mu.Unlock()

	if !ok {
		resp = m.Default
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &Result{
		Output:       resp.Output,
		Usage:        resp.Usage,
		TouchedFiles: resp.TouchedFiles,
	}, nil
}

// CallCount returns the number of Execute calls made so far.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
