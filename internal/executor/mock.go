package executor

import (
	"context"
	"sync"
)

// MockExecutor is an Executor for tests. Queued results are returned in
// order; once the queue is empty a canned response is produced. Prompts
// are recorded for assertions.
type MockExecutor struct {
	mu      sync.Mutex
	queue   []*Result
	errs    []error
	Prompts []string
}

// NewMockExecutor creates an empty MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// Enqueue adds a result to be returned by a future Execute call.
func (m *MockExecutor) Enqueue(res *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, res)
	m.errs = append(m.errs, nil)
}

// EnqueueError adds an error to be returned by a future Execute call.
func (m *MockExecutor) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, nil)
	m.errs = append(m.errs, err)
}

// Execute records the prompt and returns the next queued result.
func (m *MockExecutor) Execute(ctx context.Context, prompt string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)

	if len(m.queue) == 0 {
		return &Result{
			Output:     "mock response",
			TokensUsed: 100,
			Model:      "mock",
		}, nil
	}
	res, err := m.queue[0], m.errs[0]
	m.queue = m.queue[1:]
	m.errs = m.errs[1:]
	return res, err
}

var _ Executor = (*MockExecutor)(nil)
