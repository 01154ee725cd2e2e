package sprite

import (
	"context"
	"fmt"
	"time"

	"github.com/highera/swarm/internal/bus"
	"github.com/highera/swarm/internal/executor"
	"github.com/highera/swarm/internal/logging"
	"github.com/highera/swarm/internal/persona"
	"github.com/highera/swarm/internal/state"
)

// Runtime is the sprite's main loop. It subscribes to the sprite's inbox,
// executes tasks as they arrive, and exits after sitting idle past the
// configured timeout. Every coordinator report is best-effort: a failed
// report is logged, never fatal, because the reconciler recovers work the
// coordinator loses track of.
type Runtime struct {
	cfg   *Config
	coord Coordinator
	bus   bus.Bus
	exec  executor.Executor
	log   *logging.Logger

	persona *persona.Persona
	brand   *state.BrandContext
	sub     bus.Subscription

	tasksCompleted int
	tokensUsed     int64
}

// NewRuntime wires a sprite runtime. The executor is injected so tests
// can run the loop without a model behind it.
func NewRuntime(cfg *Config, coord Coordinator, b bus.Bus, exec executor.Executor) *Runtime {
	return &Runtime{
		cfg:   cfg,
		coord: coord,
		bus:   b,
		exec:  exec,
		log: logging.WithFields(map[string]interface{}{
			"sprite": cfg.SpriteID,
			"tenant": cfg.TenantID,
			"agent":  string(cfg.AgentType),
		}),
	}
}

// Persona returns the loaded persona, nil before Boot.
func (r *Runtime) Persona() *persona.Persona {
	return r.persona
}

// SetExecutor replaces the executor. The model executor needs the
// persona's system prompt, so it is built between Boot and Run.
func (r *Runtime) SetExecutor(exec executor.Executor) {
	r.exec = exec
}

// Boot loads the persona, fetches the tenant brand context, subscribes to
// the sprite's channels, and reports the sprite idle. A missing brand
// context is fine; a missing persona is not.
func (r *Runtime) Boot(ctx context.Context) error {
	p, err := persona.Load(r.cfg.PersonaDir, r.cfg.AgentType)
	if err != nil {
		return fmt.Errorf("failed to load persona: %w", err)
	}
	r.persona = p

	brand, err := r.coord.FetchBrand(ctx)
	if err != nil {
		r.log.Warn("brand context unavailable", "error", err)
	} else {
		r.brand = brand
	}

	channels := []string{bus.SpriteInbox(r.cfg.SpriteID)}
	if r.cfg.ProjectID != "" {
		channels = append(channels, bus.ProjectUpdates(r.cfg.ProjectID))
	}
	sub, err := r.bus.Subscribe(ctx, channels...)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	r.sub = sub

	r.reportStatus(ctx, state.SpriteIdle, "")
	r.log.Info("sprite booted", "persona", p.Name, "channels", len(channels))
	return nil
}

// reportStatus tells the coordinator about a status change and mirrors
// it on the project channel when the sprite belongs to a project. Both
// are best-effort.
func (r *Runtime) reportStatus(ctx context.Context, status state.SpriteStatus, currentTask string) {
	if err := r.coord.ReportStatus(ctx, status, currentTask); err != nil {
		r.log.Warn("failed to report status", "status", string(status), "error", err)
	}
	if r.cfg.ProjectID == "" {
		return
	}
	r.broadcast(ctx, bus.ProjectUpdates(r.cfg.ProjectID), bus.KindStatusUpdate, bus.StatusUpdatePayload{
		SpriteID:    r.cfg.SpriteID,
		Status:      string(status),
		CurrentTask: currentTask,
	}, r.log)
}

// Run drives the message loop until the context is cancelled, a shutdown
// message arrives, or the sprite sits idle past the timeout. Boot must
// have succeeded first.
func (r *Runtime) Run(ctx context.Context) error {
	if r.sub == nil {
		return fmt.Errorf("runtime not booted")
	}

	heartbeat := time.NewTicker(r.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	idle := time.NewTimer(r.cfg.IdleTimeout)
	defer idle.Stop()

	defer r.shutdown()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("sprite interrupted")
			return ctx.Err()

		case <-idle.C:
			r.log.Info("idle timeout reached, exiting", "timeout", r.cfg.IdleTimeout.String())
			return nil

		case <-heartbeat.C:
			if err := r.coord.Heartbeat(ctx, state.SpriteIdle, r.tasksCompleted, r.tokensUsed); err != nil {
				r.log.Warn("heartbeat failed", "error", err)
			}

		case msg, ok := <-r.sub.C():
			if !ok {
				r.log.Error("subscription closed, exiting")
				return fmt.Errorf("message subscription lost")
			}
			stop := r.handleMessage(ctx, msg)
			if stop {
				return nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.IdleTimeout)
		}
	}
}

// handleMessage dispatches one inbound message. It returns true when the
// loop should exit.
func (r *Runtime) handleMessage(ctx context.Context, msg *bus.Message) bool {
	switch msg.Type {
	case bus.KindTask:
		var payload bus.TaskPayload
		if err := msg.Decode(&payload); err != nil {
			r.log.Warn("dropping malformed task", "error", err)
			return false
		}
		r.executeTask(ctx, payload.WorkID, payload.Description, payload.Input, payload.Context)

	case bus.KindHandoff:
		var payload bus.HandoffPayload
		if err := msg.Decode(&payload); err != nil {
			r.log.Warn("dropping malformed handoff", "error", err)
			return false
		}
		desc := fmt.Sprintf("Continue work handed off from the %s agent.", payload.FromAgent)
		r.executeTask(ctx, payload.WorkID, desc, payload.Artifact, payload.Context)

	case bus.KindReviewRequest:
		var payload bus.ReviewRequestPayload
		if err := msg.Decode(&payload); err != nil {
			r.log.Warn("dropping malformed review request", "error", err)
			return false
		}
		taskContext := map[string]string{}
		for i, q := range payload.Questions {
			taskContext[fmt.Sprintf("question_%d", i+1)] = q
		}
		r.executeTask(ctx, payload.WorkID,
			"Review the following artifact and answer the reviewer's questions.",
			payload.Artifact, taskContext)

	case bus.KindPing:
		if err := r.coord.Pong(ctx); err != nil {
			r.log.Warn("pong failed", "error", err)
		}

	case bus.KindShutdown:
		r.log.Info("shutdown requested", "sender", msg.Sender)
		return true

	case bus.KindStatusUpdate, bus.KindReviewResponse:
		// Informational; the next prompt does not incorporate them yet.
		r.log.Debug("ignoring message", "type", string(msg.Type))

	default:
		r.log.Warn("dropping message of unknown type", "type", string(msg.Type))
	}
	return false
}

// executeTask runs one unit of work end to end: report working, execute
// with a bounded timeout, relay any handoff or review the output asked
// for, then report the result. Execution failure fails the work item but
// keeps the sprite alive for the next task.
func (r *Runtime) executeTask(ctx context.Context, workID, description, input string, taskContext map[string]string) {
	log := r.log.With("work", workID)
	log.Info("task started")

	r.reportStatus(ctx, state.SpriteWorking, description)

	prompt := buildTaskPrompt(description, input, taskContext, r.brand)

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.TaskTimeout)
	result, err := r.exec.Execute(execCtx, prompt)
	cancel()

	if err != nil {
		log.Error("task failed", "error", err)
		if err := r.coord.FailWork(ctx, workID, err.Error()); err != nil {
			log.Warn("failed to report failure", "error", err)
		}
	} else {
		r.tokensUsed += result.TokensUsed
		r.relayRequests(ctx, workID, result, log)
		if err := r.coord.CompleteWork(ctx, workID, result.Output, result.TokensUsed); err != nil {
			log.Warn("failed to report completion", "error", err)
		}
		r.tasksCompleted++
		log.Info("task completed", "tokens", result.TokensUsed)
	}

	r.reportStatus(ctx, state.SpriteIdle, "")
}

// relayRequests forwards handoff and review requests the model embedded
// in its output. The completed work becomes the parent of whatever the
// coordinator spawns from them. Each request is also broadcast on the
// tenant channel so observers can follow routing as it happens; the
// broadcast is informational and may be lost.
func (r *Runtime) relayRequests(ctx context.Context, workID string, result *executor.Result, log *logging.Logger) {
	if result.HandoffRequested {
		r.broadcast(ctx, bus.TenantHandoffs(r.cfg.TenantID), bus.KindHandoff, bus.HandoffPayload{
			WorkID:     workID,
			FromSprite: r.cfg.SpriteID,
			FromAgent:  r.cfg.AgentType,
			ToAgent:    result.HandoffTo,
			Context:    result.HandoffContext,
			Artifact:   result.Output,
			ProjectID:  r.cfg.ProjectID,
		}, log)
		err := r.coord.RequestHandoff(ctx, HandoffReport{
			FromAgent:    r.cfg.AgentType,
			ToAgent:      result.HandoffTo,
			Context:      result.HandoffContext,
			Artifact:     result.Output,
			ProjectID:    r.cfg.ProjectID,
			ParentWorkID: workID,
		})
		if err != nil {
			log.Warn("handoff request failed", "error", err, "to", string(result.HandoffTo))
		} else {
			log.Info("handoff requested", "to", string(result.HandoffTo))
		}
	}

	if result.ReviewRequested {
		r.broadcast(ctx, bus.TenantReviews(r.cfg.TenantID), bus.KindReviewRequest, bus.ReviewRequestPayload{
			WorkID:     workID,
			FromSprite: r.cfg.SpriteID,
			Artifact:   result.Output,
			Questions:  result.ReviewQuestions,
			ProjectID:  r.cfg.ProjectID,
		}, log)
		err := r.coord.RequestReview(ctx, ReviewReport{
			Artifact:     result.Output,
			Questions:    result.ReviewQuestions,
			ProjectID:    r.cfg.ProjectID,
			ParentWorkID: workID,
		})
		if err != nil {
			log.Warn("review request failed", "error", err)
		} else {
			log.Info("review requested", "questions", len(result.ReviewQuestions))
		}
	}
}

// broadcast publishes a message on a tenant channel, best-effort.
func (r *Runtime) broadcast(ctx context.Context, channel string, kind bus.Kind, payload any, log *logging.Logger) {
	msg, err := bus.New(kind, payload, r.cfg.SpriteID)
	if err != nil {
		log.Warn("failed to encode broadcast", "error", err)
		return
	}
	if err := r.bus.Publish(ctx, channel, msg); err != nil {
		log.Warn("broadcast failed", "channel", channel, "error", err)
	}
}

// shutdown reports the sprite stopping and releases the subscription.
// The machine auto-destroys once the process exits.
func (r *Runtime) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.reportStatus(ctx, state.SpriteStopping, "")
	if err := r.coord.Heartbeat(ctx, state.SpriteStopping, r.tasksCompleted, r.tokensUsed); err != nil {
		r.log.Warn("final heartbeat failed", "error", err)
	}
	if r.sub != nil {
		if err := r.sub.Close(); err != nil {
			r.log.Warn("failed to close subscription", "error", err)
		}
	}
	r.log.Info("sprite stopped", "tasks", r.tasksCompleted, "tokens", r.tokensUsed)
}
