// Package main provides the swarmd binary entry point.
//
// swarmd is the swarm coordinator daemon. It serves the sprite-facing
// reporting API and the operator API on one HTTP listener, runs the
// reconciliation sweep for orphaned work, and cleans up stopped sprite
// machines.
//
// Usage:
//
//	swarmd [flags]
//
// Flags:
//
//	-config    Path to the swarmd YAML config (default: /etc/swarm/swarmd.yaml)
//
// The ANTHROPIC_API_KEY environment variable is forwarded to spawned
// sprites; FLY_API_TOKEN overrides fly.token from the config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/highera/swarm/internal/bus"
	"github.com/highera/swarm/internal/config"
	"github.com/highera/swarm/internal/logging"
	"github.com/highera/swarm/internal/server"
	"github.com/highera/swarm/internal/spawn"
	"github.com/highera/swarm/internal/state"
	"github.com/highera/swarm/internal/swarm"
)

const defaultConfigPath = "/etc/swarm/swarmd.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "path to swarmd config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	}
	log := logging.With("component", "swarmd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	messageBus, err := buildBus(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer messageBus.Close()

	provisioner, err := buildProvisioner(cfg, log)
	if err != nil {
		return err
	}

	store := state.NewMemoryStore()
	coord := swarm.New(store, messageBus, provisioner, swarm.Options{
		CoordinatorURL:  cfg.PublicURL,
		RedisURL:        cfg.Redis.Addr,
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
	})

	srv, err := server.NewServer(&server.Config{Addr: cfg.ListenAddr}, coord, store)
	if err != nil {
		return err
	}

	go coord.RunReconciler(ctx, cfg.Reconcile.Interval.Std(), cfg.Reconcile.Threshold.Std())
	go runMachineSweep(ctx, provisioner, cfg.Sweep, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
		return srv.Stop()
	case err := <-errCh:
		cancel()
		return err
	}
}

// buildBus selects Redis when configured, the in-memory bus otherwise.
// The in-memory bus only reaches sprites running in this process, so it
// is for local development with the mock provisioner.
func buildBus(ctx context.Context, cfg *config.Config, log *logging.Logger) (bus.Bus, error) {
	if cfg.Redis.Addr == "" {
		log.Warn("no redis configured, using in-memory bus")
		return bus.NewMemoryBus(), nil
	}
	return bus.NewRedisBus(ctx, bus.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// buildProvisioner selects Fly Machines when configured, the mock
// provisioner otherwise.
func buildProvisioner(cfg *config.Config, log *logging.Logger) (spawn.Provisioner, error) {
	if cfg.Fly.App == "" {
		log.Warn("no fly app configured, using mock provisioner")
		return spawn.NewMockProvisioner(), nil
	}
	token := cfg.Fly.Token
	if env := os.Getenv("FLY_API_TOKEN"); env != "" {
		token = env
	}
	return spawn.NewFlyClient(spawn.FlyConfig{
		App:    cfg.Fly.App,
		Token:  token,
		Image:  cfg.Fly.Image,
		Region: cfg.Fly.Region,
	})
}

// runMachineSweep destroys stopped sprite machines past the retention
// window on a fixed interval.
func runMachineSweep(ctx context.Context, p spawn.Provisioner, cfg config.Sweep, log *logging.Logger) {
	ticker := time.NewTicker(cfg.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			destroyed, err := spawn.Sweep(ctx, p, cfg.Retention.Std())
			if err != nil {
				log.Warn("machine sweep failed", "error", err)
				continue
			}
			if destroyed > 0 {
				log.Info("machine sweep", "destroyed", destroyed)
			}
		}
	}
}
