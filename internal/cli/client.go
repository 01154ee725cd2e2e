package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/highera/swarm/internal/agent"
	"github.com/highera/swarm/internal/state"
	"github.com/highera/swarm/internal/swarm"
)

var errMissingTenant = errors.New("tenant is required: pass --tenant or set SWARM_TENANT")

// client is a thin JSON client for the swarmd operator API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("swarmd returned %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *client) tenantStatus(tenantID string) (*swarm.TenantStatus, error) {
	var status swarm.TenantStatus
	if err := c.do(http.MethodGet, "/tenants/"+tenantID+"/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *client) spawnSprite(tenantID string, agentType agent.Type, projectID string) (*state.SpriteRecord, error) {
	var sprite state.SpriteRecord
	err := c.do(http.MethodPost, "/tenants/"+tenantID+"/sprites", map[string]any{
		"agent_type": agentType,
		"project_id": projectID,
	}, &sprite)
	if err != nil {
		return nil, err
	}
	return &sprite, nil
}

func (c *client) stopSprite(tenantID, spriteID string) error {
	return c.do(http.MethodPost, "/tenants/"+tenantID+"/sprites/"+spriteID+"/stop", nil, nil)
}

func (c *client) submitWork(tenantID, description, input string, agentType agent.Type, projectID string) (string, error) {
	var resp struct {
		WorkID string `json:"work_id"`
	}
	err := c.do(http.MethodPost, "/tenants/"+tenantID+"/work", map[string]any{
		"description": description,
		"input":       input,
		"agent_type":  agentType,
		"project_id":  projectID,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.WorkID, nil
}

func (c *client) getWork(tenantID, workID string) (*state.WorkRecord, error) {
	var work state.WorkRecord
	if err := c.do(http.MethodGet, "/tenants/"+tenantID+"/work/"+workID, nil, &work); err != nil {
		return nil, err
	}
	return &work, nil
}

func (c *client) startProject(tenantID, name, brief string, agents []agent.Type) (string, error) {
	var resp struct {
		ProjectID string `json:"project_id"`
	}
	err := c.do(http.MethodPost, "/tenants/"+tenantID+"/projects", map[string]any{
		"name":          name,
		"brief":         brief,
		"agents_needed": agents,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ProjectID, nil
}

func (c *client) putTenant(cfg *state.TenantConfig) error {
	return c.do(http.MethodPut, "/tenants/"+cfg.TenantID, cfg, nil)
}

func (c *client) putBrand(tenantID string, brand *state.BrandContext) error {
	return c.do(http.MethodPut, "/tenants/"+tenantID+"/brand", brand, nil)
}
