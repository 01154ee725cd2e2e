package spawn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/highera/swarm/internal/logging"
)

// DefaultAPIBase is the public Fly Machines API endpoint.
const DefaultAPIBase = "https://api.machines.dev/v1"

const defaultRegion = "iad"

// FlyConfig configures a FlyClient.
type FlyConfig struct {
	App   string
	Token string
	// Image overrides the default registry image for App.
	Image string
	// Region defaults to iad.
	Region string
	// BaseURL overrides DefaultAPIBase.
	BaseURL string
}

// FlyClient provisions sprite machines through the Fly Machines API.
type FlyClient struct {
	baseURL string
	token   string
	image   string
	region  string
	http    *http.Client
	log     *logging.Logger
}

// NewFlyClient creates a FlyClient.
func NewFlyClient(cfg FlyConfig) (*FlyClient, error) {
	if cfg.App == "" {
		return nil, fmt.Errorf("fly app name is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("fly api token is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultAPIBase
	}
	image := cfg.Image
	if image == "" {
		image = "registry.fly.io/" + cfg.App + ":latest"
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	return &FlyClient{
		baseURL: base + "/apps/" + cfg.App,
		token:   cfg.Token,
		image:   image,
		region:  region,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     logging.With("component", "fly"),
	}, nil
}

type flyGuest struct {
	CPUKind  string `json:"cpu_kind"`
	CPUs     int    `json:"cpus"`
	MemoryMB int    `json:"memory_mb"`
}

type flyRestart struct {
	Policy string `json:"policy"`
}

type flyMachineConfig struct {
	Image       string            `json:"image"`
	Env         map[string]string `json:"env"`
	Guest       flyGuest          `json:"guest"`
	AutoDestroy bool              `json:"auto_destroy"`
	Restart     flyRestart        `json:"restart"`
	Metadata    map[string]string `json:"metadata"`
}

type flyCreateRequest struct {
	Name   string           `json:"name"`
	Region string           `json:"region"`
	Config flyMachineConfig `json:"config"`
}

type flyMachine struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Region     string `json:"region"`
	InstanceID string `json:"instance_id"`
	PrivateIP  string `json:"private_ip"`
	UpdatedAt  string `json:"updated_at"`
	Config     struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"config"`
}

func (m *flyMachine) toMachine() *Machine {
	updated, _ := time.Parse(time.RFC3339, m.UpdatedAt)
	return &Machine{
		ID:         m.ID,
		Name:       m.Name,
		State:      m.State,
		Region:     m.Region,
		InstanceID: m.InstanceID,
		PrivateIP:  m.PrivateIP,
		UpdatedAt:  updated,
		Metadata:   m.Config.Metadata,
	}
}

// Spawn boots a machine named after the sprite. The machine self-destroys
// on stop and is never restarted by the platform; respawning a dead
// sprite is a coordinator decision.
func (c *FlyClient) Spawn(ctx context.Context, cfg Config) (*Machine, error) {
	req := flyCreateRequest{
		Name:   cfg.SpriteID,
		Region: c.region,
		Config: flyMachineConfig{
			Image: c.image,
			Env: map[string]string{
				"SPRITE_ID":          cfg.SpriteID,
				"TENANT_ID":          cfg.TenantID,
				"AGENT_TYPE":         string(cfg.AgentType),
				"PROJECT_ID":         cfg.ProjectID,
				"COORDINATOR_URL":    cfg.CoordinatorURL,
				"REDIS_URL":          cfg.RedisURL,
				"ANTHROPIC_API_KEY":  cfg.AnthropicAPIKey,
				"IDLE_TIMEOUT":       strconv.Itoa(int(cfg.IdleTimeout.Seconds())),
				"HEARTBEAT_INTERVAL": strconv.Itoa(int(cfg.HeartbeatInterval.Seconds())),
			},
			Guest:       flyGuest{CPUKind: "shared", CPUs: 1, MemoryMB: 512},
			AutoDestroy: true,
			Restart:     flyRestart{Policy: "no"},
			Metadata: map[string]string{
				"tenant_id":  cfg.TenantID,
				"agent_type": string(cfg.AgentType),
				"managed_by": "swarm-coordinator",
			},
		},
	}

	c.log.Info("spawning machine", "sprite", cfg.SpriteID, "tenant", cfg.TenantID, "agent", string(cfg.AgentType))

	var resp flyMachine
	if err := c.do(ctx, http.MethodPost, "/machines", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to spawn machine for %s: %w", cfg.SpriteID, err)
	}
	return resp.toMachine(), nil
}

// Stop stops a machine. Auto-destroy takes it from there.
func (c *FlyClient) Stop(ctx context.Context, machineID string) error {
	c.log.Info("stopping machine", "machine", machineID)
	if err := c.do(ctx, http.MethodPost, "/machines/"+machineID+"/stop", nil, nil); err != nil {
		return fmt.Errorf("failed to stop machine %s: %w", machineID, err)
	}
	return nil
}

// Destroy removes a machine permanently.
func (c *FlyClient) Destroy(ctx context.Context, machineID string) error {
	c.log.Info("destroying machine", "machine", machineID)
	if err := c.do(ctx, http.MethodDelete, "/machines/"+machineID+"?force=true", nil, nil); err != nil {
		return fmt.Errorf("failed to destroy machine %s: %w", machineID, err)
	}
	return nil
}

// Get returns machine details.
func (c *FlyClient) Get(ctx context.Context, machineID string) (*Machine, error) {
	var resp flyMachine
	if err := c.do(ctx, http.MethodGet, "/machines/"+machineID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toMachine(), nil
}

// List returns machines for the app, filtered by tenant metadata when
// tenantID is non-empty.
func (c *FlyClient) List(ctx context.Context, tenantID string) ([]*Machine, error) {
	var resp []flyMachine
	if err := c.do(ctx, http.MethodGet, "/machines", nil, &resp); err != nil {
		return nil, err
	}

	var machines []*Machine
	for i := range resp {
		m := resp[i].toMachine()
		if tenantID != "" && m.Metadata["tenant_id"] != tenantID {
			continue
		}
		machines = append(machines, m)
	}
	return machines, nil
}

func (c *FlyClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("machines api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrMachineNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("machines api returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Sweep destroys machines that stopped longer than retention ago. It is a
// safety net behind auto-destroy for machines the platform left behind.
func Sweep(ctx context.Context, p Provisioner, retention time.Duration) (int, error) {
	machines, err := p.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list machines: %w", err)
	}

	log := logging.With("component", "sweep")
	cutoff := time.Now().Add(-retention)
	destroyed := 0
	for _, m := range machines {
		if m.State != "stopped" {
			continue
		}
		if !m.UpdatedAt.IsZero() && m.UpdatedAt.After(cutoff) {
			continue
		}
		if err := p.Destroy(ctx, m.ID); err != nil {
			log.Warn("failed to destroy stale machine", "machine", m.ID, "error", err)
			continue
		}
		log.Info("destroyed stale machine", "machine", m.ID)
		destroyed++
	}
	return destroyed, nil
}

var _ Provisioner = (*FlyClient)(nil)
