package llm

import (
	"context"
	"sync"
)

// MockClient replays a scripted sequence of responses.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int

	// Requests records every request received, in order.
	Requests []*Request
}

// NewMockClient creates a client that cycles through the given responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// FailWith schedules err to be returned for the call at index i.
func (m *MockClient) FailWith(i int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.errs) <= i {
		m.errs = append(m.errs, nil)
	}
	m.errs[i] = err
}

// Calls returns how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete returns the next scripted response.
func (m *MockClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.calls
	m.calls++
	m.Requests = append(m.Requests, req)

	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}

	text := ""
	if len(m.responses) > 0 {
		text = m.responses[i%len(m.responses)]
	}
	return &Response{
		Text:  text,
		Model: req.Model,
		Usage: Usage{InputTokens: len(req.Prompt) / 4, OutputTokens: len(text) / 4},
	}, nil
}
