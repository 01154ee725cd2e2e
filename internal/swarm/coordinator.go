// Package swarm implements the coordinator: the control-plane brain that
// spawns and stops sprites, routes work to them, brokers handoffs and
// reviews between agents, and enforces tenant plan limits.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/highera/swarm/internal/agent"
	"github.com/highera/swarm/internal/bus"
	"github.com/highera/swarm/internal/logging"
	"github.com/highera/swarm/internal/spawn"
	"github.com/highera/swarm/internal/state"
)

const defaultHeartbeatInterval = 30 * time.Second

// Options carries the endpoints and credentials injected into sprite
// machines at boot.
type Options struct {
	CoordinatorURL    string
	RedisURL          string
	AnthropicAPIKey   string
	HeartbeatInterval time.Duration
}

// Coordinator orchestrates sprite lifecycle and work distribution across
// tenants.
type Coordinator struct {
	store       state.Store
	bus         bus.Bus
	provisioner spawn.Provisioner
	opts        Options
	leases      *tenantLeases
	log         *logging.Logger
}

// New creates a Coordinator.
func New(store state.Store, b bus.Bus, p spawn.Provisioner, opts Options) *Coordinator {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	return &Coordinator{
		store:       store,
		bus:         b,
		provisioner: p,
		opts:        opts,
		leases:      newTenantLeases(),
		log:         logging.With("component", "coordinator"),
	}
}

// planFor resolves a tenant's plan. Tenants without configuration get the
// starter plan; explicit per-tenant overrides take precedence over the
// plan defaults.
func (c *Coordinator) planFor(ctx context.Context, tenantID string) (Plan, error) {
	cfg, err := c.store.Tenant(ctx, tenantID)
	if errors.Is(err, state.ErrNotFound) {
		return StarterPlan(), nil
	}
	if err != nil {
		return Plan{}, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}

	plan := PlanByName(cfg.Plan)
	if cfg.MaxConcurrentSprites > 0 {
		plan.MaxConcurrentSprites = cfg.MaxConcurrentSprites
	}
	if len(cfg.EnabledAgents) > 0 {
		plan.EnabledAgents = cfg.EnabledAgents
	}
	if cfg.SpriteIdleTimeout > 0 {
		plan.SpriteIdleTimeout = time.Duration(cfg.SpriteIdleTimeout) * time.Second
	}
	if cfg.MonthlyTokenBudget > 0 {
		plan.MonthlyTokenBudget = cfg.MonthlyTokenBudget
	}
	return plan, nil
}

// SpawnSprite returns an idle sprite of the requested type, or spawns a
// new one. The tenant lease is held across the read/decide/write sequence
// so concurrent spawns cannot race past the plan limit.
func (c *Coordinator) SpawnSprite(ctx context.Context, tenantID string, agentType agent.Type, projectID string) (*state.SpriteRecord, error) {
	release := c.leases.acquire(tenantID)
	defer release()
	return c.getOrSpawnLocked(ctx, tenantID, agentType, projectID)
}

// getOrSpawnLocked does the spawn decision. Callers must hold the tenant
// lease.
func (c *Coordinator) getOrSpawnLocked(ctx context.Context, tenantID string, agentType agent.Type, projectID string) (*state.SpriteRecord, error) {
	if !agentType.Valid() {
		return nil, &InvalidAgentTypeError{AgentType: agentType}
	}

	plan, err := c.planFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !plan.AgentEnabled(agentType) {
		return nil, &InvalidAgentTypeError{AgentType: agentType, Plan: plan.Name}
	}

	active, err := c.store.ActiveSprites(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sprites: %w", err)
	}

	// Reuse before provisioning: an idle sprite of the right type takes
	// the work even when the tenant is at its limit.
	for _, sprite := range active {
		if sprite.AgentType == agentType && sprite.Status == state.SpriteIdle {
			c.log.Info("reusing idle sprite", "tenant", tenantID, "sprite", sprite.SpriteID, "agent", string(agentType))
			return sprite, nil
		}
	}

	if len(active) >= plan.MaxConcurrentSprites {
		return nil, &LimitExceededError{TenantID: tenantID, Limit: plan.MaxConcurrentSprites}
	}

	spriteID := newSpriteID(tenantID, agentType)
	c.log.Info("spawning sprite", "tenant", tenantID, "sprite", spriteID, "agent", string(agentType))

	machine, err := c.provisioner.Spawn(ctx, spawn.Config{
		SpriteID:          spriteID,
		TenantID:          tenantID,
		AgentType:         agentType,
		ProjectID:         projectID,
		CoordinatorURL:    c.opts.CoordinatorURL,
		RedisURL:          c.opts.RedisURL,
		AnthropicAPIKey:   c.opts.AnthropicAPIKey,
		IdleTimeout:       plan.SpriteIdleTimeout,
		HeartbeatInterval: c.opts.HeartbeatInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to provision sprite %s: %w", spriteID, err)
	}

	sprite := &state.SpriteRecord{
		SpriteID:  spriteID,
		TenantID:  tenantID,
		AgentType: agentType,
		MachineID: machine.ID,
		Status:    state.SpriteStarting,
		ProjectID: projectID,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.PutSprite(ctx, tenantID, sprite); err != nil {
		return nil, fmt.Errorf("failed to record sprite %s: %w", spriteID, err)
	}
	if err := c.store.AddUsage(ctx, tenantID, 0, 1); err != nil {
		c.log.Warn("failed to count spawned sprite", "tenant", tenantID, "error", err)
	}
	return sprite, nil
}

// StopSprite stops a sprite's machine and marks the record stopped.
func (c *Coordinator) StopSprite(ctx context.Context, tenantID, spriteID string) error {
	sprite, err := c.store.GetSprite(ctx, tenantID, spriteID)
	if err != nil {
		return fmt.Errorf("failed to stop sprite %s: %w", spriteID, err)
	}

	if err := c.provisioner.Stop(ctx, sprite.MachineID); err != nil && !errors.Is(err, spawn.ErrMachineNotFound) {
		return fmt.Errorf("failed to stop machine for sprite %s: %w", spriteID, err)
	}

	stopped := state.SpriteStopped
	if err := c.store.UpdateSprite(ctx, tenantID, spriteID, state.SpritePatch{Status: &stopped}); err != nil {
		return fmt.Errorf("failed to mark sprite %s stopped: %w", spriteID, err)
	}
	c.log.Info("sprite stopped", "tenant", tenantID, "sprite", spriteID)
	return nil
}

// Heartbeat is the periodic report a sprite sends about itself.
type Heartbeat struct {
	Status         state.SpriteStatus
	TasksCompleted int
	TokensUsed     int64
}

// HandleHeartbeat records a sprite heartbeat. Heartbeats for unknown
// sprites are dropped; a record may lag a fresh machine or outlive a
// stopped one.
func (c *Coordinator) HandleHeartbeat(ctx context.Context, tenantID, spriteID string, hb Heartbeat) error {
	now := time.Now().UTC()
	patch := state.SpritePatch{
		TasksCompleted: &hb.TasksCompleted,
		TokensUsed:     &hb.TokensUsed,
		LastHeartbeat:  &now,
	}
	if hb.Status != "" {
		patch.Status = &hb.Status
	}
	err := c.store.UpdateSprite(ctx, tenantID, spriteID, patch)
	if errors.Is(err, state.ErrNotFound) {
		c.log.Debug("heartbeat from unknown sprite", "tenant", tenantID, "sprite", spriteID)
		return nil
	}
	return err
}

// HandlePong records liveness for a sprite that answered a ping.
func (c *Coordinator) HandlePong(ctx context.Context, tenantID, spriteID string) error {
	now := time.Now().UTC()
	err := c.store.UpdateSprite(ctx, tenantID, spriteID, state.SpritePatch{LastHeartbeat: &now})
	if errors.Is(err, state.ErrNotFound) {
		return nil
	}
	return err
}

// UpdateSpriteStatus applies a status change reported by a sprite.
func (c *Coordinator) UpdateSpriteStatus(ctx context.Context, tenantID, spriteID string, status state.SpriteStatus, currentTask string) error {
	return c.store.UpdateSprite(ctx, tenantID, spriteID, state.SpritePatch{
		Status:      &status,
		CurrentTask: &currentTask,
	})
}

// SubmitWork records a work item and routes it to a sprite. When no agent
// type is given it is inferred from the task description.
func (c *Coordinator) SubmitWork(ctx context.Context, tenantID string, task state.TaskSpec, agentType agent.Type, projectID string) (string, error) {
	if agentType == "" {
		agentType = InferAgentType(task.Description)
	}
	if !agentType.Valid() {
		return "", &InvalidAgentTypeError{AgentType: agentType}
	}

	plan, err := c.planFor(ctx, tenantID)
	if err != nil {
		return "", err
	}
	usage, err := c.store.Usage(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to read usage for %s: %w", tenantID, err)
	}
	if usage.TokensUsed >= plan.MonthlyTokenBudget {
		return "", &TokenBudgetError{TenantID: tenantID, Budget: plan.MonthlyTokenBudget, Used: usage.TokensUsed}
	}

	work := &state.WorkRecord{
		WorkID:    newWorkID(),
		TenantID:  tenantID,
		Task:      task,
		AgentType: agentType,
		Status:    state.WorkPending,
		ProjectID: projectID,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.PutWork(ctx, tenantID, work); err != nil {
		return "", fmt.Errorf("failed to record work: %w", err)
	}

	sprite, err := c.SpawnSprite(ctx, tenantID, agentType, projectID)
	if err != nil {
		c.failWork(ctx, tenantID, work.WorkID, fmt.Sprintf("no sprite available: %v", err))
		return "", err
	}

	if err := c.dispatchWork(ctx, tenantID, work, sprite.SpriteID); err != nil {
		return "", err
	}
	c.log.Info("work assigned", "tenant", tenantID, "work", work.WorkID, "sprite", sprite.SpriteID)
	return work.WorkID, nil
}

// dispatchWork marks the work assigned and publishes the task to the
// sprite's inbox. The record is written before the publish: a lost
// message leaves the work visibly assigned for the reconciler, never
// untracked.
func (c *Coordinator) dispatchWork(ctx context.Context, tenantID string, work *state.WorkRecord, spriteID string) error {
	now := time.Now().UTC()
	assigned := state.WorkAssigned
	dispatches := work.Dispatches + 1
	patch := state.WorkPatch{
		Status:         &assigned,
		AssignedSprite: &spriteID,
		AssignedAt:     &now,
		Dispatches:     &dispatches,
	}
	if err := c.store.UpdateWork(ctx, tenantID, work.WorkID, patch); err != nil {
		return fmt.Errorf("failed to assign work %s: %w", work.WorkID, err)
	}

	msg, err := bus.New(bus.KindTask, bus.TaskPayload{
		WorkID:      work.WorkID,
		Description: work.Task.Description,
		Input:       work.Task.Input,
		Context:     work.Task.Context,
	}, "coordinator")
	if err != nil {
		return err
	}
	if err := c.bus.Publish(ctx, bus.SpriteInbox(spriteID), msg); err != nil {
		// The work stays assigned; the reconciler re-dispatches or fails
		// it if the sprite never picks it up.
		c.log.Warn("task publish failed", "tenant", tenantID, "work", work.WorkID, "error", err)
	}
	return nil
}

// HandleWorkComplete records a completion report. Unknown work ids are
// dropped and terminal records are left untouched, so duplicate reports
// never double-count usage.
func (c *Coordinator) HandleWorkComplete(ctx context.Context, tenantID, workID, spriteID, output string, tokensUsed int64) error {
	work, err := c.store.GetWork(ctx, tenantID, workID)
	if errors.Is(err, state.ErrNotFound) {
		c.log.Debug("completion for unknown work", "tenant", tenantID, "work", workID)
		return nil
	}
	if err != nil {
		return err
	}
	if work.Status.Terminal() {
		c.log.Debug("completion for terminal work", "tenant", tenantID, "work", workID, "status", string(work.Status))
		return nil
	}

	now := time.Now().UTC()
	completed := state.WorkCompleted
	if err := c.store.UpdateWork(ctx, tenantID, workID, state.WorkPatch{
		Status:      &completed,
		Output:      &output,
		TokensUsed:  &tokensUsed,
		CompletedAt: &now,
	}); err != nil {
		return fmt.Errorf("failed to complete work %s: %w", workID, err)
	}

	if err := c.store.AddUsage(ctx, tenantID, tokensUsed, 0); err != nil {
		c.log.Warn("failed to track usage", "tenant", tenantID, "error", err)
	}
	if work.RequestedBy != "" {
		c.sendReviewResponse(ctx, tenantID, work, output)
	}
	c.log.Info("work completed", "tenant", tenantID, "work", workID, "sprite", spriteID, "tokens", tokensUsed)
	return nil
}

// sendReviewResponse forwards a completed review's output to the sprite
// that asked for it. The requester may have exited by now, in which case
// the message is lost; the feedback stays readable on the work record.
func (c *Coordinator) sendReviewResponse(ctx context.Context, tenantID string, work *state.WorkRecord, feedback string) {
	msg, err := bus.New(bus.KindReviewResponse, bus.ReviewResponsePayload{
		WorkID:   work.WorkID,
		Feedback: feedback,
	}, "coordinator")
	if err != nil {
		c.log.Warn("failed to encode review response", "tenant", tenantID, "work", work.WorkID, "error", err)
		return
	}
	if err := c.bus.Publish(ctx, bus.SpriteInbox(work.RequestedBy), msg); err != nil {
		c.log.Warn("review response publish failed", "tenant", tenantID, "work", work.WorkID, "error", err)
	}
}

// HandleWorkFailed records a failure report. Unknown and terminal work
// ids are dropped.
func (c *Coordinator) HandleWorkFailed(ctx context.Context, tenantID, workID, spriteID, errMsg string) error {
	work, err := c.store.GetWork(ctx, tenantID, workID)
	if errors.Is(err, state.ErrNotFound) {
		c.log.Debug("failure for unknown work", "tenant", tenantID, "work", workID)
		return nil
	}
	if err != nil {
		return err
	}
	if work.Status.Terminal() {
		return nil
	}

	c.log.Error("work failed", "tenant", tenantID, "work", workID, "sprite", spriteID, "error", errMsg)
	return c.failWork(ctx, tenantID, workID, errMsg)
}

func (c *Coordinator) failWork(ctx context.Context, tenantID, workID, errMsg string) error {
	now := time.Now().UTC()
	failed := state.WorkFailed
	return c.store.UpdateWork(ctx, tenantID, workID, state.WorkPatch{
		Status:      &failed,
		Error:       &errMsg,
		CompletedAt: &now,
	})
}

// HandoffRequest asks the coordinator to route follow-up work from one
// sprite to an agent of another type.
type HandoffRequest struct {
	FromSprite   string
	FromAgent    agent.Type
	ToAgent      agent.Type
	Context      map[string]string
	Artifact     string
	ProjectID    string
	ParentWorkID string
}

// HandleHandoffRequest creates a child work record for the handoff and
// routes it to a sprite of the target type. The child record, linked to
// its parent, exists before the handoff message is published.
func (c *Coordinator) HandleHandoffRequest(ctx context.Context, tenantID string, req HandoffRequest) (string, error) {
	c.log.Info("handoff requested", "tenant", tenantID, "from", req.FromSprite, "to", string(req.ToAgent))

	child := &state.WorkRecord{
		WorkID:   newWorkID(),
		TenantID: tenantID,
		Task: state.TaskSpec{
			Description: fmt.Sprintf("continue work handed off from %s", req.FromSprite),
			Input:       req.Artifact,
			Context:     req.Context,
		},
		AgentType:    req.ToAgent,
		Status:       state.WorkPending,
		ProjectID:    req.ProjectID,
		ParentWorkID: req.ParentWorkID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.PutWork(ctx, tenantID, child); err != nil {
		return "", fmt.Errorf("failed to record handoff work: %w", err)
	}

	target, err := c.SpawnSprite(ctx, tenantID, req.ToAgent, req.ProjectID)
	if err != nil {
		c.failWork(ctx, tenantID, child.WorkID, fmt.Sprintf("no sprite for handoff: %v", err))
		return "", err
	}

	now := time.Now().UTC()
	assigned := state.WorkAssigned
	dispatches := 1
	if err := c.store.UpdateWork(ctx, tenantID, child.WorkID, state.WorkPatch{
		Status:         &assigned,
		AssignedSprite: &target.SpriteID,
		AssignedAt:     &now,
		Dispatches:     &dispatches,
	}); err != nil {
		return "", fmt.Errorf("failed to assign handoff work: %w", err)
	}

	msg, err := bus.New(bus.KindHandoff, bus.HandoffPayload{
		WorkID:     child.WorkID,
		FromSprite: req.FromSprite,
		FromAgent:  req.FromAgent,
		ToAgent:    req.ToAgent,
		Context:    req.Context,
		Artifact:   req.Artifact,
		ProjectID:  req.ProjectID,
	}, "coordinator")
	if err != nil {
		return "", err
	}
	if err := c.bus.Publish(ctx, bus.SpriteInbox(target.SpriteID), msg); err != nil {
		c.log.Warn("handoff publish failed", "tenant", tenantID, "work", child.WorkID, "error", err)
	}

	c.log.Info("handoff routed", "tenant", tenantID, "work", child.WorkID, "sprite", target.SpriteID)
	return child.WorkID, nil
}

// ReviewRequest asks for an editor to look over an artifact.
type ReviewRequest struct {
	FromSprite   string
	Artifact     string
	Questions    []string
	ProjectID    string
	ParentWorkID string
}

// HandleReviewRequest creates a child work record for the review and
// routes it to an editor sprite.
func (c *Coordinator) HandleReviewRequest(ctx context.Context, tenantID string, req ReviewRequest) (string, error) {
	c.log.Info("review requested", "tenant", tenantID, "from", req.FromSprite)

	child := &state.WorkRecord{
		WorkID:   newWorkID(),
		TenantID: tenantID,
		Task: state.TaskSpec{
			Description: fmt.Sprintf("review work from %s", req.FromSprite),
			Input:       req.Artifact,
			Context:     map[string]string{"questions": strings.Join(req.Questions, "\n")},
		},
		AgentType:    agent.Editor,
		Status:       state.WorkPending,
		ProjectID:    req.ProjectID,
		ParentWorkID: req.ParentWorkID,
		RequestedBy:  req.FromSprite,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.PutWork(ctx, tenantID, child); err != nil {
		return "", fmt.Errorf("failed to record review work: %w", err)
	}

	target, err := c.SpawnSprite(ctx, tenantID, agent.Editor, req.ProjectID)
	if err != nil {
		c.failWork(ctx, tenantID, child.WorkID, fmt.Sprintf("no editor for review: %v", err))
		return "", err
	}

	now := time.Now().UTC()
	assigned := state.WorkAssigned
	dispatches := 1
	if err := c.store.UpdateWork(ctx, tenantID, child.WorkID, state.WorkPatch{
		Status:         &assigned,
		AssignedSprite: &target.SpriteID,
		AssignedAt:     &now,
		Dispatches:     &dispatches,
	}); err != nil {
		return "", fmt.Errorf("failed to assign review work: %w", err)
	}

	msg, err := bus.New(bus.KindReviewRequest, bus.ReviewRequestPayload{
		WorkID:     child.WorkID,
		FromSprite: req.FromSprite,
		Artifact:   req.Artifact,
		Questions:  req.Questions,
		ProjectID:  req.ProjectID,
	}, "coordinator")
	if err != nil {
		return "", err
	}
	if err := c.bus.Publish(ctx, bus.SpriteInbox(target.SpriteID), msg); err != nil {
		c.log.Warn("review publish failed", "tenant", tenantID, "work", child.WorkID, "error", err)
	}
	return child.WorkID, nil
}

// StartProject records a project and spawns the requested crew. Per-agent
// spawn failures are logged and skipped; the project still activates with
// whatever crew came up.
func (c *Coordinator) StartProject(ctx context.Context, tenantID, name, brief string, agentsNeeded []agent.Type) (string, error) {
	project := &state.Project{
		ProjectID:    newProjectID(),
		Name:         name,
		Brief:        brief,
		Status:       state.ProjectStarting,
		AgentsNeeded: agentsNeeded,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.PutProject(ctx, tenantID, project); err != nil {
		return "", fmt.Errorf("failed to record project: %w", err)
	}

	for _, agentType := range agentsNeeded {
		if _, err := c.SpawnSprite(ctx, tenantID, agentType, project.ProjectID); err != nil {
			c.log.Warn("could not spawn project sprite", "tenant", tenantID, "project", project.ProjectID, "agent", string(agentType), "error", err)
		}
	}

	active := state.ProjectActive
	if err := c.store.UpdateProject(ctx, tenantID, project.ProjectID, state.ProjectPatch{Status: &active}); err != nil {
		return "", fmt.Errorf("failed to activate project: %w", err)
	}

	c.log.Info("project started", "tenant", tenantID, "project", project.ProjectID, "agents", len(agentsNeeded))
	return project.ProjectID, nil
}

// TenantStatus is the operator view of one tenant.
type TenantStatus struct {
	TenantID string        `json:"tenant_id"`
	Plan     string        `json:"plan"`
	Sprites  SpriteSummary `json:"sprites"`
	Usage    UsageSummary  `json:"usage"`
}

// SpriteSummary summarizes a tenant's sprite fleet.
type SpriteSummary struct {
	Active int                   `json:"active"`
	Limit  int                   `json:"limit"`
	List   []*state.SpriteRecord `json:"list"`
}

// UsageSummary summarizes a tenant's current-period usage against plan.
type UsageSummary struct {
	TokensUsed     int64 `json:"tokens_used_this_month"`
	TokenBudget    int64 `json:"token_budget"`
	SpritesSpawned int   `json:"sprites_spawned_this_month"`
}

// GetTenantStatus returns the tenant's fleet and usage against its plan.
func (c *Coordinator) GetTenantStatus(ctx context.Context, tenantID string) (*TenantStatus, error) {
	plan, err := c.planFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sprites, err := c.store.ActiveSprites(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	usage, err := c.store.Usage(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &TenantStatus{
		TenantID: tenantID,
		Plan:     plan.Name,
		Sprites: SpriteSummary{
			Active: len(sprites),
			Limit:  plan.MaxConcurrentSprites,
			List:   sprites,
		},
		Usage: UsageSummary{
			TokensUsed:     usage.TokensUsed,
			TokenBudget:    plan.MonthlyTokenBudget,
			SpritesSpawned: usage.SpritesSpawned,
		},
	}, nil
}

// GetWork returns one work record.
func (c *Coordinator) GetWork(ctx context.Context, tenantID, workID string) (*state.WorkRecord, error) {
	return c.store.GetWork(ctx, tenantID, workID)
}

// Brand returns the tenant's brand context.
func (c *Coordinator) Brand(ctx context.Context, tenantID string) (*state.BrandContext, error) {
	return c.store.Brand(ctx, tenantID)
}

func newSpriteID(tenantID string, agentType agent.Type) string {
	prefix := tenantID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("sprite-%s-%s-%s", prefix, agentType, uuid.NewString()[:8])
}

func newWorkID() string {
	return "work-" + uuid.NewString()
}

func newProjectID() string {
	return "proj-" + uuid.NewString()[:8]
}
