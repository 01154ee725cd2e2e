package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/highera/swarm/internal/agent"
	"github.com/highera/swarm/internal/state"
	"github.com/highera/swarm/internal/swarm"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Sprite-facing surface.

func (s *Server) handleGetBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := s.coord.Brand(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if brand == nil {
		http.Error(w, "no brand context", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, brand)
}

type spriteStatusRequest struct {
	Status      state.SpriteStatus `json:"status"`
	CurrentTask string             `json:"current_task"`
}

func (s *Server) handleSpriteStatus(w http.ResponseWriter, r *http.Request) {
	var req spriteStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.coord.UpdateSpriteStatus(r.Context(), r.PathValue("tenant"), r.PathValue("sprite"), req.Status, req.CurrentTask)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type heartbeatRequest struct {
	Status         state.SpriteStatus `json:"status"`
	TasksCompleted int                `json:"tasks_completed"`
	TokensUsed     int64              `json:"tokens_used"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.coord.HandleHeartbeat(r.Context(), r.PathValue("tenant"), r.PathValue("sprite"), swarm.Heartbeat{
		Status:         req.Status,
		TasksCompleted: req.TasksCompleted,
		TokensUsed:     req.TokensUsed,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePong(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.HandlePong(r.Context(), r.PathValue("tenant"), r.PathValue("sprite")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type workCompleteRequest struct {
	SpriteID   string `json:"sprite_id"`
	Output     string `json:"output"`
	TokensUsed int64  `json:"tokens_used"`
}

func (s *Server) handleWorkComplete(w http.ResponseWriter, r *http.Request) {
	var req workCompleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.coord.HandleWorkComplete(r.Context(), r.PathValue("tenant"), r.PathValue("work"), req.SpriteID, req.Output, req.TokensUsed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type workFailedRequest struct {
	SpriteID string `json:"sprite_id"`
	Error    string `json:"error"`
}

func (s *Server) handleWorkFailed(w http.ResponseWriter, r *http.Request) {
	var req workFailedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.coord.HandleWorkFailed(r.Context(), r.PathValue("tenant"), r.PathValue("work"), req.SpriteID, req.Error)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type handoffRequest struct {
	FromSprite   string            `json:"from_sprite"`
	FromAgent    agent.Type        `json:"from_agent"`
	ToAgent      agent.Type        `json:"to_agent"`
	Context      map[string]string `json:"context"`
	Artifact     string            `json:"artifact"`
	ProjectID    string            `json:"project_id"`
	ParentWorkID string            `json:"parent_work_id"`
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	var req handoffRequest
	if !decodeBody(w, r, &req) {
		return
	}
	workID, err := s.coord.HandleHandoffRequest(r.Context(), r.PathValue("tenant"), swarm.HandoffRequest{
		FromSprite:   req.FromSprite,
		FromAgent:    req.FromAgent,
		ToAgent:      req.ToAgent,
		Context:      req.Context,
		Artifact:     req.Artifact,
		ProjectID:    req.ProjectID,
		ParentWorkID: req.ParentWorkID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"work_id": workID})
}

type reviewRequest struct {
	FromSprite   string   `json:"from_sprite"`
	Artifact     string   `json:"artifact"`
	Questions    []string `json:"questions"`
	ProjectID    string   `json:"project_id"`
	ParentWorkID string   `json:"parent_work_id"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	workID, err := s.coord.HandleReviewRequest(r.Context(), r.PathValue("tenant"), swarm.ReviewRequest{
		FromSprite:   req.FromSprite,
		Artifact:     req.Artifact,
		Questions:    req.Questions,
		ProjectID:    req.ProjectID,
		ParentWorkID: req.ParentWorkID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"work_id": workID})
}

// Operator surface.

func (s *Server) handleTenantStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.GetTenantStatus(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type spawnRequest struct {
	AgentType agent.Type `json:"agent_type"`
	ProjectID string     `json:"project_id"`
}

func (s *Server) handleSpawnSprite(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sprite, err := s.coord.SpawnSprite(r.Context(), r.PathValue("tenant"), req.AgentType, req.ProjectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sprite)
}

func (s *Server) handleStopSprite(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.StopSprite(r.Context(), r.PathValue("tenant"), r.PathValue("sprite")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitWorkRequest struct {
	Description string            `json:"description"`
	Input       string            `json:"input"`
	Context     map[string]string `json:"context"`
	AgentType   agent.Type        `json:"agent_type"`
	ProjectID   string            `json:"project_id"`
}

func (s *Server) handleSubmitWork(w http.ResponseWriter, r *http.Request) {
	var req submitWorkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Description == "" {
		http.Error(w, "description is required", http.StatusBadRequest)
		return
	}
	workID, err := s.coord.SubmitWork(r.Context(), r.PathValue("tenant"), state.TaskSpec{
		Description: req.Description,
		Input:       req.Input,
		Context:     req.Context,
	}, req.AgentType, req.ProjectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"work_id": workID})
}

func (s *Server) handleGetWork(w http.ResponseWriter, r *http.Request) {
	work, err := s.coord.GetWork(r.Context(), r.PathValue("tenant"), r.PathValue("work"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, work)
}

type startProjectRequest struct {
	Name         string       `json:"name"`
	Brief        string       `json:"brief"`
	AgentsNeeded []agent.Type `json:"agents_needed"`
}

func (s *Server) handleStartProject(w http.ResponseWriter, r *http.Request) {
	var req startProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	projectID, err := s.coord.StartProject(r.Context(), r.PathValue("tenant"), req.Name, req.Brief, req.AgentsNeeded)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"project_id": projectID})
}

// Tenant administration.

func (s *Server) handlePutTenant(w http.ResponseWriter, r *http.Request) {
	var cfg state.TenantConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	cfg.TenantID = r.PathValue("tenant")
	for _, agentType := range cfg.EnabledAgents {
		if !agentType.Valid() {
			http.Error(w, "unknown agent type: "+string(agentType), http.StatusBadRequest)
			return
		}
	}
	if err := s.store.PutTenant(r.Context(), &cfg); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutBrand(w http.ResponseWriter, r *http.Request) {
	var brand state.BrandContext
	if !decodeBody(w, r, &brand) {
		return
	}
	if err := s.store.PutBrand(r.Context(), r.PathValue("tenant"), &brand); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetUsage zeroes the tenant's monthly usage counters. Run it
// at the top of the billing period.
func (s *Server) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetUsage(r.Context(), r.PathValue("tenant")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helpers.

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps coordinator errors to HTTP statuses. Plan violations
// are client errors; anything unrecognized is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var invalidAgent *swarm.InvalidAgentTypeError
	var limit *swarm.LimitExceededError
	var budget *swarm.TokenBudgetError

	switch {
	case errors.As(err, &invalidAgent):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &limit):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.As(err, &budget):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, state.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.log.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
