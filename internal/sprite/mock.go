package sprite

import (
	"context"
	"sync"

	"github.com/highera/swarm/internal/state"
)

// HeartbeatCall records one Heartbeat invocation.
type HeartbeatCall struct {
	Status         state.SpriteStatus
	TasksCompleted int
	TokensUsed     int64
}

// StatusCall records one ReportStatus invocation.
type StatusCall struct {
	Status      state.SpriteStatus
	CurrentTask string
}

// CompletionCall records one CompleteWork invocation.
type CompletionCall struct {
	WorkID     string
	Output     string
	TokensUsed int64
}

// FailureCall records one FailWork invocation.
type FailureCall struct {
	WorkID string
	Error  string
}

// MockCoordinator records every call for tests. The zero value is ready
// to use.
type MockCoordinator struct {
	mu sync.Mutex

	Brand    *state.BrandContext
	BrandErr error

	Statuses    []StatusCall
	Heartbeats  []HeartbeatCall
	Completions []CompletionCall
	Failures    []FailureCall
	Handoffs    []HandoffReport
	Reviews     []ReviewReport
	Pongs       int
}

func (m *MockCoordinator) FetchBrand(ctx context.Context) (*state.BrandContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Brand, m.BrandErr
}

func (m *MockCoordinator) ReportStatus(ctx context.Context, status state.SpriteStatus, currentTask string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statuses = append(m.Statuses, StatusCall{Status: status, CurrentTask: currentTask})
	return nil
}

func (m *MockCoordinator) Heartbeat(ctx context.Context, status state.SpriteStatus, tasksCompleted int, tokensUsed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Heartbeats = append(m.Heartbeats, HeartbeatCall{Status: status, TasksCompleted: tasksCompleted, TokensUsed: tokensUsed})
	return nil
}

func (m *MockCoordinator) CompleteWork(ctx context.Context, workID, output string, tokensUsed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completions = append(m.Completions, CompletionCall{WorkID: workID, Output: output, TokensUsed: tokensUsed})
	return nil
}

func (m *MockCoordinator) FailWork(ctx context.Context, workID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, FailureCall{WorkID: workID, Error: errMsg})
	return nil
}

func (m *MockCoordinator) RequestHandoff(ctx context.Context, report HandoffReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handoffs = append(m.Handoffs, report)
	return nil
}

func (m *MockCoordinator) RequestReview(ctx context.Context, report ReviewReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reviews = append(m.Reviews, report)
	return nil
}

func (m *MockCoordinator) Pong(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pongs++
	return nil
}

// LastStatus returns the most recently reported status, or empty when
// none was reported.
func (m *MockCoordinator) LastStatus() state.SpriteStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Statuses) == 0 {
		return ""
	}
	return m.Statuses[len(m.Statuses)-1].Status
}

var _ Coordinator = (*MockCoordinator)(nil)
