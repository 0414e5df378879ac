package llm

import (
	"context"
	"sync"
	"time"
)

// MockReply is one scripted response for a MockClient.
type MockReply struct {
	Text string
	Err  error
}

// MockClient is a scripted Client for tests and local runs.
//
// Replies are consumed in order; when the script runs out the last
// reply repeats. ReplyFunc, when set, overrides the script entirely.
// All prompts are recorded and retrievable via Calls.
type MockClient struct {
	mu      sync.Mutex
	script  []MockReply
	pos     int
	calls   []string
	replyFn func(prompt string) (string, error)
}

// NewMockClient creates a mock that plays back the given replies.
func NewMockClient(replies ...MockReply) *MockClient {
	return &MockClient{script: replies}
}

// NewMockClientFunc creates a mock driven by fn.
func NewMockClientFunc(fn func(prompt string) (string, error)) *MockClient {
	return &MockClient{replyFn: fn}
}

// Complete implements the Client interface.
func (m *MockClient) Complete(ctx context.Context, prompt string, opts ...Option) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	fn := m.replyFn
	var reply MockReply
	if fn == nil {
		if len(m.script) == 0 {
			m.mu.Unlock()
			return nil, ErrMalformedResponse
		}
		reply = m.script[m.pos]
		if m.pos < len(m.script)-1 {
			m.pos++
		}
	}
	m.mu.Unlock()

	if fn != nil {
		text, err := fn(prompt)
		if err != nil {
			return nil, err
		}
		return &Response{Text: text, Model: "mock", Backend: "mock", Duration: time.Millisecond}, nil
	}

	if reply.Err != nil {
		return nil, reply.Err
	}
	return &Response{Text: reply.Text, Model: "mock", Backend: "mock", Duration: time.Millisecond}, nil
}

// EstimateTokens implements the Client interface.
func (m *MockClient) EstimateTokens(text string) int {
	return estimateTokens(text)
}

// Calls returns a copy of all prompts received, in order.
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]string, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of Complete calls received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ Client = (*MockClient)(nil)
