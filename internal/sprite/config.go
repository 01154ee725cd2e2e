// Package sprite implements the sprite runtime: the process that boots
// inside a provisioned machine, loads its agent persona, connects to the
// swarm, and executes work until it is told to stop or times out idle.
package sprite

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/highera/swarm/internal/agent"
)

const (
	defaultIdleTimeout       = 300 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultTaskTimeout       = 300 * time.Second
	defaultPersonaDir        = "/personas"
)

// Config is the sprite runtime configuration, injected through the
// machine environment by the provisioner.
type Config struct {
	SpriteID          string
	TenantID          string
	AgentType         agent.Type
	ProjectID         string
	CoordinatorURL    string
	RedisURL          string
	AnthropicAPIKey   string
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
	// TaskTimeout bounds a single task execution.
	TaskTimeout time.Duration
	PersonaDir  string
}

// FromEnv loads the runtime configuration from the environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		SpriteID:          os.Getenv("SPRITE_ID"),
		TenantID:          os.Getenv("TENANT_ID"),
		ProjectID:         os.Getenv("PROJECT_ID"),
		CoordinatorURL:    os.Getenv("COORDINATOR_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		IdleTimeout:       envSeconds("IDLE_TIMEOUT", defaultIdleTimeout),
		HeartbeatInterval: envSeconds("HEARTBEAT_INTERVAL", defaultHeartbeatInterval),
		TaskTimeout:       envSeconds("TASK_TIMEOUT", defaultTaskTimeout),
		PersonaDir:        os.Getenv("PERSONA_DIR"),
	}
	if cfg.SpriteID == "" {
		cfg.SpriteID = fmt.Sprintf("sprite-%d", os.Getpid())
	}
	if cfg.PersonaDir == "" {
		cfg.PersonaDir = defaultPersonaDir
	}

	if cfg.TenantID == "" {
		return nil, fmt.Errorf("TENANT_ID is required")
	}
	if cfg.CoordinatorURL == "" {
		return nil, fmt.Errorf("COORDINATOR_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	agentType, err := agent.Parse(os.Getenv("AGENT_TYPE"))
	if err != nil {
		return nil, fmt.Errorf("AGENT_TYPE: %w", err)
	}
	cfg.AgentType = agentType
	return cfg, nil
}

// envSeconds reads an integer-seconds environment variable.
func envSeconds(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
