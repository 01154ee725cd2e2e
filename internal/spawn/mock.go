package spawn

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvisioner is an in-memory Provisioner for tests.
type MockProvisioner struct {
	mu       sync.Mutex
	machines map[string]*Machine
	seq      int

	// SpawnErr, when set, fails every Spawn call.
	SpawnErr error
	// SpawnCalls counts Spawn attempts, including failed ones.
	SpawnCalls int
	// Stopped records machine ids passed to Stop.
	Stopped []string
	// Destroyed records machine ids passed to Destroy.
	Destroyed []string
}

// NewMockProvisioner creates an empty MockProvisioner.
func NewMockProvisioner() *MockProvisioner {
	return &MockProvisioner{machines: make(map[string]*Machine)}
}

func (m *MockProvisioner) Spawn(ctx context.Context, cfg Config) (*Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SpawnCalls++
	if m.SpawnErr != nil {
		return nil, m.SpawnErr
	}
	m.seq++
	machine := &Machine{
		ID:        fmt.Sprintf("mach-%d", m.seq),
		Name:      cfg.SpriteID,
		State:     "started",
		Region:    "test",
		UpdatedAt: time.Now().UTC(),
		Metadata: map[string]string{
			"tenant_id":  cfg.TenantID,
			"agent_type": string(cfg.AgentType),
		},
	}
	m.machines[machine.ID] = machine
	return copyMachine(machine), nil
}

func (m *MockProvisioner) Stop(ctx context.Context, machineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped = append(m.Stopped, machineID)
	machine, ok := m.machines[machineID]
	if !ok {
		return ErrMachineNotFound
	}
	machine.State = "stopped"
	machine.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockProvisioner) Destroy(ctx context.Context, machineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Destroyed = append(m.Destroyed, machineID)
	if _, ok := m.machines[machineID]; !ok {
		return ErrMachineNotFound
	}
	delete(m.machines, machineID)
	return nil
}

func (m *MockProvisioner) Get(ctx context.Context, machineID string) (*Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	machine, ok := m.machines[machineID]
	if !ok {
		return nil, ErrMachineNotFound
	}
	return copyMachine(machine), nil
}

func (m *MockProvisioner) List(ctx context.Context, tenantID string) ([]*Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var machines []*Machine
	for _, machine := range m.machines {
		if tenantID != "" && machine.Metadata["tenant_id"] != tenantID {
			continue
		}
		machines = append(machines, copyMachine(machine))
	}
	return machines, nil
}

// SetState overrides a machine's state, for tests that simulate machines
// dying or stopping out from under the coordinator.
func (m *MockProvisioner) SetState(machineID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if machine, ok := m.machines[machineID]; ok {
		machine.State = state
	}
}

// SetUpdatedAt overrides a machine's last-change timestamp.
func (m *MockProvisioner) SetUpdatedAt(machineID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if machine, ok := m.machines[machineID]; ok {
		machine.UpdatedAt = at
	}
}

func copyMachine(m *Machine) *Machine {
	out := *m
	out.Metadata = make(map[string]string, len(m.Metadata))
	for k, v := range m.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

var _ Provisioner = (*MockProvisioner)(nil)
