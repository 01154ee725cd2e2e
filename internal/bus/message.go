// Package bus provides the addressed publish/subscribe messaging layer
// between the coordinator and sprites. Delivery is at-most-once and never
// persisted: a message published while the target has no live subscription
// is lost. Authoritative task state lives in the state store, so a lost
// dispatch leaves a work record stuck in "assigned" rather than corrupting
// it; the coordinator's reconciler recovers those.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/highera/swarm/internal/agent"
)

// Kind identifies the type of a message.
type Kind string

const (
	KindTask           Kind = "task"
	KindHandoff        Kind = "handoff"
	KindReviewRequest  Kind = "review_request"
	KindReviewResponse Kind = "review_response"
	KindStatusUpdate   Kind = "status_update"
	KindPing           Kind = "ping"
	KindShutdown       Kind = "shutdown"
)

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTask, KindHandoff, KindReviewRequest, KindReviewResponse,
		KindStatusUpdate, KindPing, KindShutdown:
		return true
	}
	return false
}

// Message is the transient envelope exchanged over the bus. Messages are
// never persisted.
type Message struct {
	Type      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds a Message of the given kind, encoding payload as JSON.
func New(kind Kind, payload any, sender string) (*Message, error) {
	msg := &Message{
		Type:      kind,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// TaskPayload dispatches one unit of work to a sprite.
type TaskPayload struct {
	WorkID      string            `json:"work_id"`
	Description string            `json:"description"`
	Input       string            `json:"input,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
}

// HandoffPayload routes context from one sprite to a sprite of another
// agent type. WorkID names the child work record tracking the handoff.
type HandoffPayload struct {
	WorkID     string            `json:"work_id"`
	FromSprite string            `json:"from_sprite"`
	FromAgent  agent.Type        `json:"from_agent,omitempty"`
	ToAgent    agent.Type        `json:"to_agent"`
	Context    map[string]string `json:"context,omitempty"`
	Artifact   string            `json:"artifact,omitempty"`
	ProjectID  string            `json:"project_id,omitempty"`
}

// ReviewRequestPayload asks an editor sprite to review an artifact.
type ReviewRequestPayload struct {
	WorkID     string   `json:"work_id"`
	FromSprite string   `json:"from_sprite"`
	Artifact   string   `json:"artifact"`
	Questions  []string `json:"questions,omitempty"`
	ProjectID  string   `json:"project_id,omitempty"`
}

// ReviewResponsePayload carries review feedback back to the requester.
type ReviewResponsePayload struct {
	WorkID   string `json:"work_id"`
	Feedback string `json:"feedback"`
}

// StatusUpdatePayload broadcasts a sprite status change on a project
// channel.
type StatusUpdatePayload struct {
	SpriteID    string `json:"sprite_id"`
	Status      string `json:"status"`
	CurrentTask string `json:"current_task,omitempty"`
}

// Channel addressing. Channel names are stable wire identifiers.

// SpriteInbox is the direct channel for one sprite.
func SpriteInbox(spriteID string) string {
	return "sprite:" + spriteID + ":inbox"
}

// ProjectUpdates is the broadcast channel for one project.
func ProjectUpdates(projectID string) string {
	return "project:" + projectID + ":updates"
}

// TenantHandoffs is the tenant-wide handoff broadcast channel.
func TenantHandoffs(tenantID string) string {
	return "tenant:" + tenantID + ":handoffs"
}

// TenantReviews is the tenant-wide review broadcast channel.
func TenantReviews(tenantID string) string {
	return "tenant:" + tenantID + ":reviews"
}
