package swarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highera/swarm/internal/agent"
	"github.com/highera/swarm/internal/bus"
	"github.com/highera/swarm/internal/spawn"
	"github.com/highera/swarm/internal/state"
)

type fixture struct {
	store       *state.MemoryStore
	bus         *bus.MemoryBus
	provisioner *spawn.MockProvisioner
	coord       *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       state.NewMemoryStore(),
		bus:         bus.NewMemoryBus(),
		provisioner: spawn.NewMockProvisioner(),
	}
	t.Cleanup(func() { f.bus.Close() })
	f.coord = New(f.store, f.bus, f.provisioner, Options{
		CoordinatorURL:  "http://coordinator:8080",
		RedisURL:        "redis://bus:6379",
		AnthropicAPIKey: "sk-test",
	})
	return f
}

func (f *fixture) putTenant(t *testing.T, tenantID, plan string) {
	t.Helper()
	require.NoError(t, f.store.PutTenant(context.Background(), &state.TenantConfig{
		TenantID: tenantID,
		Plan:     plan,
	}))
}

func recvOne(t *testing.T, sub bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestSpawnRejectsDisabledAgentType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "starter")

	_, err := f.coord.SpawnSprite(ctx, "acme", agent.Analyst, "")
	var invalidErr *InvalidAgentTypeError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, agent.Analyst, invalidErr.AgentType)
	assert.Equal(t, "starter", invalidErr.Plan)
	assert.Zero(t, f.provisioner.SpawnCalls)

	_, err = f.coord.SpawnSprite(ctx, "acme", agent.Type("janitor"), "")
	require.ErrorAs(t, err, &invalidErr)
}

func TestSpawnEnforcesConcurrencyLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "starter")

	first, err := f.coord.SpawnSprite(ctx, "acme", agent.Copywriter, "")
	require.NoError(t, err)
	second, err := f.coord.SpawnSprite(ctx, "acme", agent.Editor, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.SpriteID, second.SpriteID)

	// Starter allows two concurrent sprites.
	_, err = f.coord.SpawnSprite(ctx, "acme", agent.Director, "")
	var limitErr *LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Limit)
	assert.Equal(t, 2, f.provisioner.SpawnCalls)

	// A stopped sprite frees capacity.
	require.NoError(t, f.coord.StopSprite(ctx, "acme", first.SpriteID))
	_, err = f.coord.SpawnSprite(ctx, "acme", agent.Director, "")
	require.NoError(t, err)
}

func TestSpawnCountsUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	_, err := f.coord.SpawnSprite(ctx, "acme", agent.Analyst, "")
	require.NoError(t, err)

	usage, err := f.store.Usage(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.SpritesSpawned)
}

func TestConcurrentSpawnsRespectLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "starter")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.SpawnSprite(ctx, "acme", agent.Copywriter, "")
		}(i)
	}
	wg.Wait()

	// One spawn wins, everyone else either reuses nothing (copywriter is
	// starting, not idle) and hits the limit path or spawns the second
	// slot. The invariant is the hard bound, not which call failed.
	active, err := f.store.ActiveSprites(ctx, "acme")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(active), 2)
	assert.LessOrEqual(t, f.provisioner.SpawnCalls, 2)
}

func TestSubmitWorkInfersAgentAndDispatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	// Pre-create an idle copywriter so the dispatch target is known.
	sprite, err := f.coord.SpawnSprite(ctx, "acme", agent.Copywriter, "")
	require.NoError(t, err)
	idle := state.SpriteIdle
	require.NoError(t, f.store.UpdateSprite(ctx, "acme", sprite.SpriteID, state.SpritePatch{Status: &idle}))

	sub, err := f.bus.Subscribe(ctx, bus.SpriteInbox(sprite.SpriteID))
	require.NoError(t, err)

	workID, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "Write a headline for the launch page"}, "", "")
	require.NoError(t, err)

	work, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	assert.Equal(t, agent.Copywriter, work.AgentType, "inferred from description")
	assert.Equal(t, state.WorkAssigned, work.Status)
	assert.Equal(t, sprite.SpriteID, work.AssignedSprite)
	assert.Equal(t, 1, work.Dispatches)
	assert.Equal(t, 1, f.provisioner.SpawnCalls, "idle sprite reused, no new machine")

	msg := recvOne(t, sub)
	assert.Equal(t, bus.KindTask, msg.Type)
	var task bus.TaskPayload
	require.NoError(t, msg.Decode(&task))
	assert.Equal(t, workID, task.WorkID, "work id round-trips unchanged")
	assert.Equal(t, "Write a headline for the launch page", task.Description)
}

func TestSubmitWorkSpawnFailureFailsWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")
	f.provisioner.SpawnErr = errors.New("region capacity")

	_, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "analyze the funnel data"}, "", "")
	require.Error(t, err)

	failed, err := f.store.WorkByStatus(ctx, "acme", state.WorkFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "no sprite available")
}

func TestSubmitWorkOverBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "starter")
	require.NoError(t, f.store.AddUsage(ctx, "acme", 1_000_000, 0))

	_, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "write copy"}, "", "")
	var budgetErr *TokenBudgetError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, int64(1_000_000), budgetErr.Used)
}

func TestWorkCompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	workID, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "write copy"}, agent.Copywriter, "")
	require.NoError(t, err)

	usageBefore, err := f.store.Usage(ctx, "acme")
	require.NoError(t, err)

	require.NoError(t, f.coord.HandleWorkComplete(ctx, "acme", workID, "sprite-1", "the copy", 500))
	require.NoError(t, f.coord.HandleWorkComplete(ctx, "acme", workID, "sprite-1", "the copy again", 500))

	work, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	assert.Equal(t, state.WorkCompleted, work.Status)
	assert.Equal(t, "the copy", work.Output, "terminal record is immutable")

	usage, err := f.store.Usage(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, usageBefore.TokensUsed+500, usage.TokensUsed, "usage counted once")

	// Unknown ids are benign no-ops.
	require.NoError(t, f.coord.HandleWorkComplete(ctx, "acme", "work-ghost", "sprite-1", "", 100))
	require.NoError(t, f.coord.HandleWorkFailed(ctx, "acme", "work-ghost", "sprite-1", "boom"))
}

func TestWorkFailedAfterCompleteIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	workID, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "write copy"}, agent.Copywriter, "")
	require.NoError(t, err)

	require.NoError(t, f.coord.HandleWorkComplete(ctx, "acme", workID, "sprite-1", "done", 100))
	require.NoError(t, f.coord.HandleWorkFailed(ctx, "acme", workID, "sprite-1", "late failure"))

	work, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	assert.Equal(t, state.WorkCompleted, work.Status)
	assert.Empty(t, work.Error)
}

func TestHeartbeatUpdatesSprite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	sprite, err := f.coord.SpawnSprite(ctx, "acme", agent.Editor, "")
	require.NoError(t, err)

	require.NoError(t, f.coord.HandleHeartbeat(ctx, "acme", sprite.SpriteID, Heartbeat{
		Status:         state.SpriteWorking,
		TasksCompleted: 2,
		TokensUsed:     1234,
	}))

	got, err := f.store.GetSprite(ctx, "acme", sprite.SpriteID)
	require.NoError(t, err)
	assert.Equal(t, state.SpriteWorking, got.Status)
	assert.Equal(t, 2, got.TasksCompleted)
	assert.False(t, got.LastHeartbeat.IsZero())

	// Heartbeats from unknown sprites are dropped.
	require.NoError(t, f.coord.HandleHeartbeat(ctx, "acme", "sprite-ghost", Heartbeat{Status: state.SpriteIdle}))
}

func TestHandoffCreatesLinkedChildWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	// Idle editor ready to receive the handoff.
	editor, err := f.coord.SpawnSprite(ctx, "acme", agent.Editor, "")
	require.NoError(t, err)
	idle := state.SpriteIdle
	require.NoError(t, f.store.UpdateSprite(ctx, "acme", editor.SpriteID, state.SpritePatch{Status: &idle}))

	sub, err := f.bus.Subscribe(ctx, bus.SpriteInbox(editor.SpriteID))
	require.NoError(t, err)

	childID, err := f.coord.HandleHandoffRequest(ctx, "acme", HandoffRequest{
		FromSprite:   "sprite-writer",
		FromAgent:    agent.Copywriter,
		ToAgent:      agent.Editor,
		Context:      map[string]string{"notes": "tighten the intro"},
		Artifact:     "draft v1",
		ParentWorkID: "work-parent",
	})
	require.NoError(t, err)

	child, err := f.store.GetWork(ctx, "acme", childID)
	require.NoError(t, err)
	assert.Equal(t, "work-parent", child.ParentWorkID)
	assert.Equal(t, agent.Editor, child.AgentType)
	assert.Equal(t, state.WorkAssigned, child.Status)
	assert.Equal(t, editor.SpriteID, child.AssignedSprite)

	msg := recvOne(t, sub)
	assert.Equal(t, bus.KindHandoff, msg.Type)
	var payload bus.HandoffPayload
	require.NoError(t, msg.Decode(&payload))
	assert.Equal(t, childID, payload.WorkID)
	assert.Equal(t, "sprite-writer", payload.FromSprite)
	assert.Equal(t, "tighten the intro", payload.Context["notes"])
}

func TestReviewRequestRoutesToEditor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	childID, err := f.coord.HandleReviewRequest(ctx, "acme", ReviewRequest{
		FromSprite:   "sprite-writer",
		Artifact:     "headline v3",
		Questions:    []string{"too long?", "on brand?"},
		ParentWorkID: "work-parent",
	})
	require.NoError(t, err)

	child, err := f.store.GetWork(ctx, "acme", childID)
	require.NoError(t, err)
	assert.Equal(t, agent.Editor, child.AgentType)
	assert.Equal(t, "work-parent", child.ParentWorkID)
	assert.Equal(t, "headline v3", child.Task.Input)
	assert.Equal(t, 1, f.provisioner.SpawnCalls, "editor sprite spawned for the review")
}

func TestReviewCompletionNotifiesRequester(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	sub, err := f.bus.Subscribe(ctx, bus.SpriteInbox("sprite-writer"))
	require.NoError(t, err)

	childID, err := f.coord.HandleReviewRequest(ctx, "acme", ReviewRequest{
		FromSprite:   "sprite-writer",
		Artifact:     "headline v3",
		Questions:    []string{"too long?"},
		ParentWorkID: "work-parent",
	})
	require.NoError(t, err)

	require.NoError(t, f.coord.HandleWorkComplete(ctx, "acme", childID, "sprite-editor", "trim the subhead", 40))

	msg := recvOne(t, sub)
	assert.Equal(t, bus.KindReviewResponse, msg.Type)
	var payload bus.ReviewResponsePayload
	require.NoError(t, msg.Decode(&payload))
	assert.Equal(t, childID, payload.WorkID)
	assert.Equal(t, "trim the subhead", payload.Feedback)
}

func TestStartProjectSkipsFailedSpawns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "starter")

	// Starter does not enable the analyst; that spawn is skipped.
	projectID, err := f.coord.StartProject(ctx, "acme", "Launch", "Q3 launch",
		[]agent.Type{agent.Copywriter, agent.Analyst, agent.Editor})
	require.NoError(t, err)

	project, err := f.store.GetProject(ctx, "acme", projectID)
	require.NoError(t, err)
	assert.Equal(t, state.ProjectActive, project.Status, "project activates despite the failed spawn")

	active, err := f.store.ActiveSprites(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, active, 2)
	for _, s := range active {
		assert.Equal(t, projectID, s.ProjectID)
	}
}

func TestGetTenantStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	_, err := f.coord.SpawnSprite(ctx, "acme", agent.Copywriter, "")
	require.NoError(t, err)
	require.NoError(t, f.store.AddUsage(ctx, "acme", 4200, 0))

	status, err := f.coord.GetTenantStatus(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "growth", status.Plan)
	assert.Equal(t, 1, status.Sprites.Active)
	assert.Equal(t, 4, status.Sprites.Limit)
	assert.Equal(t, int64(4200), status.Usage.TokensUsed)
	assert.Equal(t, int64(10_000_000), status.Usage.TokenBudget)
}

func TestInferAgentType(t *testing.T) {
	tests := []struct {
		description string
		want        agent.Type
	}{
		{"Write a headline for the launch", agent.Copywriter},
		{"Analyze competitor positioning", agent.Strategist},
		{"Proofread the newsletter", agent.Editor},
		{"Reduce checkout friction", agent.Optimizer},
		{"Track signups by channel", agent.Analyst},
		{"Figure out next steps", agent.Director},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferAgentType(tt.description), tt.description)
	}
}
