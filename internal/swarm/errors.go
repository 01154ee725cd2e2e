package swarm

import (
	"fmt"

	"github.com/highera/swarm/internal/agent"
	"github.com/highera/swarm/internal/state"
)

// ErrNotFound mirrors the state store's sentinel so callers can test
// coordinator results without importing the store.
var ErrNotFound = state.ErrNotFound

// LimitExceededError is returned when a tenant is at its concurrent
// sprite limit.
type LimitExceededError struct {
	TenantID string
	Limit    int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("tenant %s at sprite limit (%d)", e.TenantID, e.Limit)
}

// InvalidAgentTypeError is returned when an agent type is unknown or not
// enabled for the tenant's plan.
type InvalidAgentTypeError struct {
	AgentType agent.Type
	Plan      string
}

func (e *InvalidAgentTypeError) Error() string {
	if e.Plan == "" {
		return fmt.Sprintf("unknown agent type %q", string(e.AgentType))
	}
	return fmt.Sprintf("agent type %s not enabled for plan %s", string(e.AgentType), e.Plan)
}

// TokenBudgetError is returned when submitting work for a tenant that has
// exhausted its monthly token budget.
type TokenBudgetError struct {
	TenantID string
	Budget   int64
	Used     int64
}

func (e *TokenBudgetError) Error() string {
	return fmt.Sprintf("tenant %s over token budget (%d of %d used)", e.TenantID, e.Used, e.Budget)
}
