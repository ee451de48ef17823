package llmclient

import (
	"context"
	"sync"

	"github.com/xkilldash9x/webagents/api/schemas"
)

// DefaultMockResponse is returned by the mock provider when nothing else is configured.
// It contains one search and one choose action so the tree search has something to parse.
const DefaultMockResponse = "Mock LLM response. 1. search['mock action'] 2. choose['mock choice']"

// MockClient returns canned responses without any network access. With a
// script it replays responses in order and then repeats the last one.
type MockClient struct {
	mu       sync.Mutex
	script   []string
	next     int
	requests []schemas.GenerationRequest
}

// NewMockClient returns a client that always answers with response.
func NewMockClient(response string) *MockClient {
	if response == "" {
		response = DefaultMockResponse
	}
	return &MockClient{script: []string{response}}
}

// NewScriptedClient returns a client that answers with responses in order.
func NewScriptedClient(responses ...string) *MockClient {
	if len(responses) == 0 {
		responses = []string{DefaultMockResponse}
	}
	return &MockClient{script: responses}
}

func (m *MockClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	resp := m.script[m.next]
	if m.next < len(m.script)-1 {
		m.next++
	}
	return resp, nil
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []schemas.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.GenerationRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockClient) Close() error { return nil }
