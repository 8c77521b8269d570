// Package testutil provides test utilities for the llm package.
// It includes mock implementations for testing LLM client interactions.
package testutil

import (
	"context"
	"sync"

	"github.com/wrx861/agentai/llm"
)

// MockClient is a thread-safe mock LLM completer for testing.
// It records the requests passed to Complete() and returns configured
// responses in sequence.
//
// Usage:
//
//	// Single response mock
//	mock := &MockClient{
//	    Responses: []*llm.Response{
//	        {Content: `{"result": "success"}`, Model: "test-model"},
//	    },
//	}
//
//	// Error response
//	mock := &MockClient{
//	    Err: errors.New("connection failed"),
//	}
type MockClient struct {
	mu            sync.Mutex
	requests      []llm.Request
	Responses     []*llm.Response // Responses to return in sequence
	Err           error           // Error to return (takes precedence over Responses)
	responseIndex int

	// RespondFunc, when set, computes the response per call and overrides
	// Responses. Useful for request-dependent scripting.
	RespondFunc func(req llm.Request) (*llm.Response, error)
}

// Complete implements llm.Completer.
// Returns the next response from Responses, or Err if set. The last
// configured response is repeated once the sequence is exhausted.
func (m *MockClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()

	m.requests = append(m.requests, req)

	// Invoke RespondFunc outside the lock so a blocking callback does not
	// deadlock concurrent CallCount/Requests calls.
	if respond := m.RespondFunc; respond != nil {
		m.mu.Unlock()
		return respond(req)
	}
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Responses) == 0 {
		return &llm.Response{Content: "", Model: "test-model"}, nil
	}

	idx := m.responseIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.responseIndex++
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of times Complete() was called.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests.
func (m *MockClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears the mock's recorded state.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.responseIndex = 0
}
