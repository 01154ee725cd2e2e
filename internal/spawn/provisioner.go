// Package spawn provisions the ephemeral machines sprites run on.
package spawn

import (
	"context"
	"errors"
	"time"

	"github.com/highera/swarm/internal/agent"
)

// ErrMachineNotFound is returned when a machine id is unknown to the
// provider.
var ErrMachineNotFound = errors.New("machine not found")

// Machine describes one provisioned machine.
type Machine struct {
	ID         string
	Name       string
	State      string
	Region     string
	InstanceID string
	PrivateIP  string
	UpdatedAt  time.Time
	Metadata   map[string]string
}

// Config describes the sprite a machine should boot into. Everything the
// runtime needs arrives through the machine environment.
type Config struct {
	SpriteID          string
	TenantID          string
	AgentType         agent.Type
	ProjectID         string
	CoordinatorURL    string
	RedisURL          string
	AnthropicAPIKey   string
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
}

// Provisioner creates and manages sprite machines.
type Provisioner interface {
	// Spawn boots a machine for the configured sprite.
	Spawn(ctx context.Context, cfg Config) (*Machine, error)

	// Stop stops a machine. Machines are configured to self-destroy
	// once stopped.
	Stop(ctx context.Context, machineID string) error

	// Destroy removes a machine permanently.
	Destroy(ctx context.Context, machineID string) error

	// Get returns machine details, or ErrMachineNotFound.
	Get(ctx context.Context, machineID string) (*Machine, error)

	// List returns machines, filtered to one tenant when tenantID is
	// non-empty.
	List(ctx context.Context, tenantID string) ([]*Machine, error)
}
