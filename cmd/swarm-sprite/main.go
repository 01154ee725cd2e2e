// Package main provides the swarm-sprite binary entry point.
//
// swarm-sprite runs inside a provisioned machine. It loads the agent
// persona, connects to Redis and the coordinator, then executes tasks
// from its inbox until it is shut down or sits idle past the timeout.
// All configuration arrives through the environment, injected by the
// provisioner (SPRITE_ID, TENANT_ID, AGENT_TYPE, COORDINATOR_URL,
// REDIS_URL, ANTHROPIC_API_KEY, IDLE_TIMEOUT, HEARTBEAT_INTERVAL).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/highera/swarm/internal/bus"
	"github.com/highera/swarm/internal/executor"
	"github.com/highera/swarm/internal/logging"
	"github.com/highera/swarm/internal/sprite"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := sprite.FromEnv()
	if err != nil {
		return err
	}
	log := logging.With("sprite", cfg.SpriteID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	messageBus, err := bus.NewRedisBus(ctx, bus.RedisConfig{Addr: cfg.RedisURL})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer messageBus.Close()

	coord := sprite.NewHTTPCoordinator(cfg.CoordinatorURL, cfg.TenantID, cfg.SpriteID)

	runtime := sprite.NewRuntime(cfg, coord, messageBus, nil)
	if err := runtime.Boot(ctx); err != nil {
		return err
	}

	exec, err := executor.NewClaudeExecutor(executor.ClaudeConfig{
		APIKey:       cfg.AnthropicAPIKey,
		SystemPrompt: runtime.Persona().SystemPrompt,
	})
	if err != nil {
		return err
	}
	runtime.SetExecutor(exec)

	return runtime.Run(ctx)
}
