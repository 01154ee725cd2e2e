package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highera/swarm/internal/agent"
	"github.com/highera/swarm/internal/config"
	"github.com/highera/swarm/internal/state"
)

func TestReconcileLeavesHealthyWorkAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	workID, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "write copy"}, agent.Copywriter, "")
	require.NoError(t, err)

	work, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	require.NoError(t, f.coord.HandleHeartbeat(ctx, "acme", work.AssignedSprite, Heartbeat{Status: state.SpriteWorking}))

	result, err := f.coord.ReconcileTenant(ctx, "acme", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, result.Redispatched)
	assert.Zero(t, result.Failed)

	got, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	assert.Equal(t, state.WorkAssigned, got.Status)
	assert.Equal(t, 1, got.Dispatches)
}

func TestReconcileRedispatchesFromDeadSprite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	workID, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "write copy"}, agent.Copywriter, "")
	require.NoError(t, err)

	work, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	firstSprite := work.AssignedSprite

	// The sprite dies without reporting anything.
	failed := state.SpriteFailed
	require.NoError(t, f.store.UpdateSprite(ctx, "acme", firstSprite, state.SpritePatch{Status: &failed}))

	result, err := f.coord.ReconcileTenant(ctx, "acme", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Redispatched)
	assert.Zero(t, result.Failed)

	got, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	assert.Equal(t, state.WorkAssigned, got.Status)
	assert.NotEqual(t, firstSprite, got.AssignedSprite)
	assert.Equal(t, 2, got.Dispatches)
}

func TestReconcileFailsWorkAfterSecondLoss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	workID, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "write copy"}, agent.Copywriter, "")
	require.NoError(t, err)

	// First loss: re-dispatch.
	work, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	failed := state.SpriteFailed
	require.NoError(t, f.store.UpdateSprite(ctx, "acme", work.AssignedSprite, state.SpritePatch{Status: &failed}))

	result, err := f.coord.ReconcileTenant(ctx, "acme", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, result.Redispatched)

	// Second loss: give up.
	work, err = f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateSprite(ctx, "acme", work.AssignedSprite, state.SpritePatch{Status: &failed}))

	result, err = f.coord.ReconcileTenant(ctx, "acme", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	assert.Equal(t, state.WorkFailed, got.Status)
	assert.Contains(t, got.Error, "sprite lost")
}

func TestReconcileToleratesLongRunningTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	workID, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "write copy"}, agent.Copywriter, "")
	require.NoError(t, err)

	work, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)

	// Five minutes into a task that may legally run the full 300s
	// timeout. The sprite heartbeats only between tasks, so its last
	// heartbeat is as old as the task itself.
	stale := time.Now().UTC().Add(-5 * time.Minute)
	working := state.SpriteWorking
	require.NoError(t, f.store.UpdateSprite(ctx, "acme", work.AssignedSprite, state.SpritePatch{
		Status:        &working,
		LastHeartbeat: &stale,
	}))

	result, err := f.coord.ReconcileTenant(ctx, "acme", config.DefaultReconcileThreshold.Std())
	require.NoError(t, err)
	assert.Zero(t, result.Redispatched)
	assert.Zero(t, result.Failed)

	sprite, err := f.store.GetSprite(ctx, "acme", work.AssignedSprite)
	require.NoError(t, err)
	assert.Equal(t, state.SpriteWorking, sprite.Status, "in-flight sprite left alone")

	got, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	assert.Equal(t, state.WorkAssigned, got.Status)
	assert.Equal(t, 1, got.Dispatches)
}

func TestReconcileDetectsHeartbeatSilence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	workID, err := f.coord.SubmitWork(ctx, "acme", state.TaskSpec{Description: "write copy"}, agent.Copywriter, "")
	require.NoError(t, err)

	work, err := f.store.GetWork(ctx, "acme", workID)
	require.NoError(t, err)
	firstSprite := work.AssignedSprite

	// Last heartbeat far in the past.
	stale := time.Now().UTC().Add(-time.Hour)
	working := state.SpriteWorking
	require.NoError(t, f.store.UpdateSprite(ctx, "acme", firstSprite, state.SpritePatch{
		Status:        &working,
		LastHeartbeat: &stale,
	}))

	result, err := f.coord.ReconcileTenant(ctx, "acme", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Redispatched)

	// The silent sprite no longer counts against the limit.
	sprite, err := f.store.GetSprite(ctx, "acme", firstSprite)
	require.NoError(t, err)
	assert.Equal(t, state.SpriteFailed, sprite.Status)
}

func TestReconcileDetectsVanishedSpriteRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putTenant(t, "acme", "growth")

	// Assigned work pointing at a sprite the store has never seen.
	now := time.Now().UTC()
	require.NoError(t, f.store.PutWork(ctx, "acme", &state.WorkRecord{
		WorkID:         "work-orphan",
		TenantID:       "acme",
		Task:           state.TaskSpec{Description: "write copy"},
		AgentType:      agent.Copywriter,
		Status:         state.WorkAssigned,
		AssignedSprite: "sprite-ghost",
		Dispatches:     1,
		CreatedAt:      now,
		AssignedAt:     now,
	}))

	result, err := f.coord.ReconcileTenant(ctx, "acme", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Redispatched)

	got, err := f.store.GetWork(ctx, "acme", "work-orphan")
	require.NoError(t, err)
	assert.NotEqual(t, "sprite-ghost", got.AssignedSprite)
}
