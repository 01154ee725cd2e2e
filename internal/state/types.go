// Package state defines the tenant-scoped records the control plane keeps
// for sprites, work items and projects, and the Store interface they live
// behind. Writes are field-level merges with last-writer-wins semantics;
// there are no transactions across record types.
package state

import (
	"time"

	"github.com/highera/swarm/internal/agent"
)

// SpriteStatus describes where a sprite is in its lifecycle.
type SpriteStatus string

const (
	SpriteStarting SpriteStatus = "starting"
	SpriteIdle     SpriteStatus = "idle"
	SpriteWorking  SpriteStatus = "working"
	SpriteBlocked  SpriteStatus = "blocked"
	SpriteStopping SpriteStatus = "stopping"
	SpriteStopped  SpriteStatus = "stopped"
	SpriteFailed   SpriteStatus = "failed"
)

// Terminal reports whether the status is a terminal one. A tenant's
// concurrent-sprite count only includes non-terminal sprites.
func (s SpriteStatus) Terminal() bool {
	return s == SpriteStopped || s == SpriteFailed
}

// WorkStatus describes where a work item is in its lifecycle.
type WorkStatus string

const (
	WorkPending   WorkStatus = "pending"
	WorkAssigned  WorkStatus = "assigned"
	WorkCompleted WorkStatus = "completed"
	WorkFailed    WorkStatus = "failed"
)

// Terminal reports whether the status is terminal. Terminal work records
// are immutable.
func (s WorkStatus) Terminal() bool {
	return s == WorkCompleted || s == WorkFailed
}

// ProjectStatus describes a project's lifecycle.
type ProjectStatus string

const (
	ProjectStarting ProjectStatus = "starting"
	ProjectActive   ProjectStatus = "active"
)

// SpriteRecord is the control plane's view of one sprite.
type SpriteRecord struct {
	SpriteID       string       `json:"sprite_id"`
	TenantID       string       `json:"tenant_id"`
	AgentType      agent.Type   `json:"agent_type"`
	MachineID      string       `json:"machine_id"`
	Status         SpriteStatus `json:"status"`
	ProjectID      string       `json:"project_id,omitempty"`
	CurrentTask    string       `json:"current_task,omitempty"`
	TasksCompleted int          `json:"tasks_completed"`
	TokensUsed     int64        `json:"tokens_used"`
	CreatedAt      time.Time    `json:"created_at"`
	LastHeartbeat  time.Time    `json:"last_heartbeat,omitzero"`
}

// TaskSpec is the payload of a work item.
type TaskSpec struct {
	Description string            `json:"description"`
	Input       string            `json:"input,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
}

// WorkRecord tracks one unit of work from submission to terminal state.
// ParentWorkID links work spawned by a handoff or review request back to
// the work item that produced it, forming an explicit work graph.
// RequestedBy names the sprite that asked for a review; its completion
// output is sent back to that sprite as a review response.
type WorkRecord struct {
	WorkID         string     `json:"work_id"`
	TenantID       string     `json:"tenant_id"`
	Task           TaskSpec   `json:"task"`
	AgentType      agent.Type `json:"agent_type"`
	Status         WorkStatus `json:"status"`
	ProjectID      string     `json:"project_id,omitempty"`
	ParentWorkID   string     `json:"parent_work_id,omitempty"`
	RequestedBy    string     `json:"requested_by,omitempty"`
	AssignedSprite string     `json:"assigned_sprite,omitempty"`
	Output         string     `json:"output,omitempty"`
	Error          string     `json:"error,omitempty"`
	TokensUsed     int64      `json:"tokens_used"`
	Dispatches     int        `json:"dispatches"`
	CreatedAt      time.Time  `json:"created_at"`
	AssignedAt     time.Time  `json:"assigned_at,omitzero"`
	CompletedAt    time.Time  `json:"completed_at,omitzero"`
}

// Project groups related work across several agent types. Sprites reference
// projects by id but a project does not own sprite lifetimes.
type Project struct {
	ProjectID    string        `json:"project_id"`
	Name         string        `json:"name"`
	Brief        string        `json:"brief"`
	Status       ProjectStatus `json:"status"`
	AgentsNeeded []agent.Type  `json:"agents_needed"`
	CreatedAt    time.Time     `json:"created_at"`
}

// TenantConfig holds a tenant's plan and limit configuration. The core
// reads limits and writes usage deltas; everything else is owned by the
// tenant-admin domain.
type TenantConfig struct {
	TenantID             string       `json:"tenant_id"`
	Name                 string       `json:"name"`
	Plan                 string       `json:"plan"`
	EnabledAgents        []agent.Type `json:"enabled_agents"`
	MaxConcurrentSprites int          `json:"max_concurrent_sprites"`
	SpriteIdleTimeout    int          `json:"sprite_idle_timeout"`
	MonthlyTokenBudget   int64        `json:"monthly_token_budget"`
}

// BrandContext is a tenant's brand voice configuration, injected into every
// sprite prompt.
type BrandContext struct {
	Voice      string   `json:"voice,omitempty"`
	Tone       string   `json:"tone,omitempty"`
	Audience   string   `json:"audience,omitempty"`
	Guidelines string   `json:"guidelines,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Avoid      []string `json:"avoid,omitempty"`
}

// Usage holds a tenant's current-period usage counters.
type Usage struct {
	TokensUsed     int64     `json:"tokens_used_this_month"`
	SpritesSpawned int       `json:"sprites_spawned_this_month"`
	LastUpdated    time.Time `json:"last_updated,omitzero"`
}

// SpritePatch is a field-level update to a SpriteRecord. Nil fields are
// left untouched; set fields overwrite, last writer wins per field.
type SpritePatch struct {
	Status         *SpriteStatus
	CurrentTask    *string
	TasksCompleted *int
	TokensUsed     *int64
	LastHeartbeat  *time.Time
}

// WorkPatch is a field-level update to a WorkRecord.
type WorkPatch struct {
	Status         *WorkStatus
	AssignedSprite *string
	Output         *string
	Error          *string
	TokensUsed     *int64
	Dispatches     *int
	AssignedAt     *time.Time
	CompletedAt    *time.Time
}

// ProjectPatch is a field-level update to a Project.
type ProjectPatch struct {
	Status *ProjectStatus
}
