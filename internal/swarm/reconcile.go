package swarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/highera/swarm/internal/state"
)

// maxDispatches bounds how many times a work item is handed to a sprite
// before the reconciler gives up on it.
const maxDispatches = 2

// ReconcileResult counts what one reconciliation sweep did.
type ReconcileResult struct {
	Redispatched int
	Failed       int
}

// ReconcileTenant sweeps the tenant's assigned work for items whose
// sprite has stopped, vanished, or gone heartbeat-silent past threshold.
// Orphaned work gets one re-dispatch to a fresh sprite; on the next loss
// it is marked failed.
func (c *Coordinator) ReconcileTenant(ctx context.Context, tenantID string, threshold time.Duration) (ReconcileResult, error) {
	var result ReconcileResult

	assigned, err := c.store.WorkByStatus(ctx, tenantID, state.WorkAssigned)
	if err != nil {
		return result, fmt.Errorf("failed to list assigned work: %w", err)
	}

	now := time.Now().UTC()
	for _, work := range assigned {
		dead, err := c.spriteDead(ctx, tenantID, work, threshold, now)
		if err != nil {
			return result, err
		}
		if !dead {
			continue
		}

		if work.Dispatches >= maxDispatches {
			c.log.Error("abandoning work, sprite lost after re-dispatch", "tenant", tenantID, "work", work.WorkID, "sprite", work.AssignedSprite)
			if err := c.failWork(ctx, tenantID, work.WorkID, "sprite lost after re-dispatch"); err != nil {
				return result, err
			}
			result.Failed++
			continue
		}

		c.log.Warn("re-dispatching orphaned work", "tenant", tenantID, "work", work.WorkID, "sprite", work.AssignedSprite)
		target, err := c.SpawnSprite(ctx, tenantID, work.AgentType, work.ProjectID)
		if err != nil {
			if err := c.failWork(ctx, tenantID, work.WorkID, fmt.Sprintf("re-dispatch failed: %v", err)); err != nil {
				return result, err
			}
			result.Failed++
			continue
		}
		if err := c.dispatchWork(ctx, tenantID, work, target.SpriteID); err != nil {
			return result, err
		}
		result.Redispatched++
	}
	return result, nil
}

// spriteDead reports whether the sprite holding the work is gone:
// missing, terminal, or heartbeat-silent past threshold. Silent sprites
// are also marked failed so they stop counting against the limit.
func (c *Coordinator) spriteDead(ctx context.Context, tenantID string, work *state.WorkRecord, threshold time.Duration, now time.Time) (bool, error) {
	sprite, err := c.store.GetSprite(ctx, tenantID, work.AssignedSprite)
	if errors.Is(err, state.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if sprite.Status.Terminal() {
		return true, nil
	}

	last := sprite.LastHeartbeat
	if last.IsZero() {
		// Never heard from: measure from creation so a slow boot is not
		// instantly declared dead.
		last = sprite.CreatedAt
	}
	if now.Sub(last) <= threshold {
		return false, nil
	}

	c.log.Warn("sprite heartbeat-silent, marking failed", "tenant", tenantID, "sprite", sprite.SpriteID)
	failed := state.SpriteFailed
	if err := c.store.UpdateSprite(ctx, tenantID, sprite.SpriteID, state.SpritePatch{Status: &failed}); err != nil {
		return false, err
	}
	return true, nil
}

// RunReconciler sweeps every tenant on a fixed interval until ctx is
// cancelled.
func (c *Coordinator) RunReconciler(ctx context.Context, interval, threshold time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.log.Info("reconciler started", "interval", interval.String(), "threshold", threshold.String())
	for {
		select {
		case <-ctx.Done():
			c.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			tenants, err := c.store.Tenants(ctx)
			if err != nil {
				c.log.Error("reconciler failed to list tenants", "error", err)
				continue
			}
			for _, tenantID := range tenants {
				result, err := c.ReconcileTenant(ctx, tenantID, threshold)
				if err != nil {
					c.log.Error("reconcile sweep failed", "tenant", tenantID, "error", err)
					continue
				}
				if result.Redispatched > 0 || result.Failed > 0 {
					c.log.Info("reconcile sweep", "tenant", tenantID, "redispatched", result.Redispatched, "failed", result.Failed)
				}
			}
		}
	}
}
