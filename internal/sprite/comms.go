package sprite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/highera/swarm/internal/agent"
	"github.com/highera/swarm/internal/state"
)

// HandoffReport asks the coordinator to route follow-up work to another
// agent type.
type HandoffReport struct {
	FromSprite   string            `json:"from_sprite"`
	FromAgent    agent.Type        `json:"from_agent"`
	ToAgent      agent.Type        `json:"to_agent"`
	Context      map[string]string `json:"context,omitempty"`
	Artifact     string            `json:"artifact,omitempty"`
	ProjectID    string            `json:"project_id,omitempty"`
	ParentWorkID string            `json:"parent_work_id,omitempty"`
}

// ReviewReport asks the coordinator to route a review to an editor.
type ReviewReport struct {
	FromSprite   string   `json:"from_sprite"`
	Artifact     string   `json:"artifact"`
	Questions    []string `json:"questions,omitempty"`
	ProjectID    string   `json:"project_id,omitempty"`
	ParentWorkID string   `json:"parent_work_id,omitempty"`
}

// Coordinator is the sprite's view of the control plane. All calls are
// best-effort from the runtime's perspective; the runtime logs failures
// and keeps going.
type Coordinator interface {
	FetchBrand(ctx context.Context) (*state.BrandContext, error)
	ReportStatus(ctx context.Context, status state.SpriteStatus, currentTask string) error
	Heartbeat(ctx context.Context, status state.SpriteStatus, tasksCompleted int, tokensUsed int64) error
	CompleteWork(ctx context.Context, workID, output string, tokensUsed int64) error
	FailWork(ctx context.Context, workID, errMsg string) error
	RequestHandoff(ctx context.Context, report HandoffReport) error
	RequestReview(ctx context.Context, report ReviewReport) error
	Pong(ctx context.Context) error
}

// HTTPCoordinator talks to the coordinator's HTTP API.
type HTTPCoordinator struct {
	baseURL  string
	tenantID string
	spriteID string
	http     *http.Client
}

// NewHTTPCoordinator creates a coordinator client for one sprite.
func NewHTTPCoordinator(baseURL, tenantID, spriteID string) *HTTPCoordinator {
	return &HTTPCoordinator{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tenantID: tenantID,
		spriteID: spriteID,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchBrand loads the tenant's brand context. A tenant without one
// yields nil.
func (c *HTTPCoordinator) FetchBrand(ctx context.Context) (*state.BrandContext, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/tenants/%s/brand", c.tenantID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch brand context: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brand fetch returned %d", resp.StatusCode)
	}

	var brand state.BrandContext
	if err := json.NewDecoder(resp.Body).Decode(&brand); err != nil {
		return nil, fmt.Errorf("failed to decode brand context: %w", err)
	}
	return &brand, nil
}

// ReportStatus patches the sprite's status record.
func (c *HTTPCoordinator) ReportStatus(ctx context.Context, status state.SpriteStatus, currentTask string) error {
	return c.send(ctx, http.MethodPatch,
		fmt.Sprintf("/tenants/%s/sprites/%s", c.tenantID, c.spriteID),
		map[string]any{"status": status, "current_task": currentTask})
}

// Heartbeat posts the sprite's periodic liveness report.
func (c *HTTPCoordinator) Heartbeat(ctx context.Context, status state.SpriteStatus, tasksCompleted int, tokensUsed int64) error {
	return c.send(ctx, http.MethodPost,
		fmt.Sprintf("/tenants/%s/sprites/%s/heartbeat", c.tenantID, c.spriteID),
		map[string]any{"status": status, "tasks_completed": tasksCompleted, "tokens_used": tokensUsed})
}

// CompleteWork reports a finished work item.
func (c *HTTPCoordinator) CompleteWork(ctx context.Context, workID, output string, tokensUsed int64) error {
	return c.send(ctx, http.MethodPost,
		fmt.Sprintf("/tenants/%s/work/%s/complete", c.tenantID, workID),
		map[string]any{"sprite_id": c.spriteID, "output": output, "tokens_used": tokensUsed})
}

// FailWork reports a failed work item.
func (c *HTTPCoordinator) FailWork(ctx context.Context, workID, errMsg string) error {
	return c.send(ctx, http.MethodPost,
		fmt.Sprintf("/tenants/%s/work/%s/fail", c.tenantID, workID),
		map[string]any{"sprite_id": c.spriteID, "error": errMsg})
}

// RequestHandoff reports a handoff request.
func (c *HTTPCoordinator) RequestHandoff(ctx context.Context, report HandoffReport) error {
	report.FromSprite = c.spriteID
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/handoffs", c.tenantID), report)
}

// RequestReview reports a review request.
func (c *HTTPCoordinator) RequestReview(ctx context.Context, report ReviewReport) error {
	report.FromSprite = c.spriteID
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/reviews", c.tenantID), report)
}

// Pong answers a ping.
func (c *HTTPCoordinator) Pong(ctx context.Context) error {
	return c.send(ctx, http.MethodPost,
		fmt.Sprintf("/tenants/%s/sprites/%s/pong", c.tenantID, c.spriteID), nil)
}

func (c *HTTPCoordinator) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Sprite-ID", c.spriteID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *HTTPCoordinator) send(ctx context.Context, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("coordinator request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("coordinator returned %d for %s %s", resp.StatusCode, method, path)
	}
	return nil
}

var _ Coordinator = (*HTTPCoordinator)(nil)
