package spawn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highera/swarm/internal/agent"
)

func newTestFlyClient(t *testing.T, handler http.Handler) *FlyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewFlyClient(FlyConfig{
		App:     "swarm-sprites",
		Token:   "test-token",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	return client
}

func TestFlySpawn(t *testing.T) {
	var captured flyCreateRequest
	client := newTestFlyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/apps/swarm-sprites/machines", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"id":     "mach-1",
			"name":   captured.Name,
			"state":  "created",
			"region": captured.Region,
		})
	}))

	machine, err := client.Spawn(context.Background(), Config{
		SpriteID:          "sprite-acme-copywriter-1234",
		TenantID:          "acme",
		AgentType:         agent.Copywriter,
		ProjectID:         "proj-1",
		CoordinatorURL:    "http://coordinator:8080",
		RedisURL:          "redis://bus:6379",
		AnthropicAPIKey:   "sk-test",
		IdleTimeout:       5 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "mach-1", machine.ID)
	assert.Equal(t, "created", machine.State)

	assert.Equal(t, "sprite-acme-copywriter-1234", captured.Name)
	assert.Equal(t, "iad", captured.Region)
	assert.Equal(t, "registry.fly.io/swarm-sprites:latest", captured.Config.Image)
	assert.True(t, captured.Config.AutoDestroy)
	assert.Equal(t, "no", captured.Config.Restart.Policy)
	assert.Equal(t, "acme", captured.Config.Metadata["tenant_id"])
	assert.Equal(t, "copywriter", captured.Config.Metadata["agent_type"])

	env := captured.Config.Env
	assert.Equal(t, "sprite-acme-copywriter-1234", env["SPRITE_ID"])
	assert.Equal(t, "acme", env["TENANT_ID"])
	assert.Equal(t, "copywriter", env["AGENT_TYPE"])
	assert.Equal(t, "300", env["IDLE_TIMEOUT"])
	assert.Equal(t, "30", env["HEARTBEAT_INTERVAL"])
}

func TestFlyGetNotFound(t *testing.T) {
	client := newTestFlyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Get(context.Background(), "mach-missing")
	assert.ErrorIs(t, err, ErrMachineNotFound)
}

func TestFlyListFiltersByTenant(t *testing.T) {
	client := newTestFlyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "m1", "state": "started", "config": map[string]any{"metadata": map[string]string{"tenant_id": "acme"}}},
			{"id": "m2", "state": "started", "config": map[string]any{"metadata": map[string]string{"tenant_id": "globex"}}},
		})
	}))

	machines, err := client.List(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, "m1", machines[0].ID)

	all, err := client.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFlyStopAndDestroy(t *testing.T) {
	var paths []string
	client := newTestFlyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.Stop(context.Background(), "mach-1"))
	require.NoError(t, client.Destroy(context.Background(), "mach-1"))

	assert.Equal(t, []string{
		"POST /apps/swarm-sprites/machines/mach-1/stop?",
		"DELETE /apps/swarm-sprites/machines/mach-1?force=true",
	}, paths)
}

func TestSweepDestroysStaleStoppedMachines(t *testing.T) {
	ctx := context.Background()
	p := NewMockProvisioner()

	fresh, err := p.Spawn(ctx, Config{SpriteID: "s-fresh", TenantID: "acme", AgentType: agent.Editor})
	require.NoError(t, err)
	stale, err := p.Spawn(ctx, Config{SpriteID: "s-stale", TenantID: "acme", AgentType: agent.Editor})
	require.NoError(t, err)
	running, err := p.Spawn(ctx, Config{SpriteID: "s-running", TenantID: "acme", AgentType: agent.Editor})
	require.NoError(t, err)

	require.NoError(t, p.Stop(ctx, fresh.ID))
	require.NoError(t, p.Stop(ctx, stale.ID))
	p.SetUpdatedAt(stale.ID, time.Now().Add(-48*time.Hour))

	destroyed, err := Sweep(ctx, p, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, []string{stale.ID}, p.Destroyed)

	_, err = p.Get(ctx, running.ID)
	assert.NoError(t, err, "running machine untouched")
	_, err = p.Get(ctx, fresh.ID)
	assert.NoError(t, err, "recently stopped machine untouched")
}
