// Package config loads the swarmd configuration file. The file is YAML;
// every field has a default, so a missing file yields a runnable local
// configuration with the in-memory bus and the mock provisioner.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for Config. The reconcile threshold must outlast a full
// task execution: a sprite runs a single loop and sends no heartbeats
// while a task executes, so it is legitimately silent for up to the task
// timeout (300s) plus one heartbeat interval.
const (
	DefaultListenAddr         = ":8080"
	DefaultReconcileInterval  = Duration(30 * time.Second)
	DefaultReconcileThreshold = Duration(6 * time.Minute)
	DefaultSweepInterval      = Duration(5 * time.Minute)
	DefaultSweepRetention     = Duration(time.Hour)
	DefaultFlyRegion          = "iad"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the swarmd configuration file.
type Config struct {
	ListenAddr string      `yaml:"listen_addr"`
	LogLevel   string      `yaml:"log_level"`
	PublicURL  string      `yaml:"public_url"`
	PersonaDir string      `yaml:"persona_dir"`
	Redis      RedisConfig `yaml:"redis"`
	Fly        FlyConfig   `yaml:"fly"`
	Reconcile  Reconcile   `yaml:"reconcile"`
	Sweep      Sweep       `yaml:"sweep"`
}

// RedisConfig points at the message bus. An empty address selects the
// in-memory bus, which only makes sense for single-process development.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FlyConfig holds the Fly Machines credentials for the provisioner. An
// empty app name selects the mock provisioner.
type FlyConfig struct {
	App    string `yaml:"app"`
	Token  string `yaml:"token"`
	Image  string `yaml:"image"`
	Region string `yaml:"region"`
}

// Reconcile tunes the orphaned-work sweep.
type Reconcile struct {
	Interval  Duration `yaml:"interval"`
	Threshold Duration `yaml:"threshold"`
}

// Sweep tunes the stopped-machine cleanup.
type Sweep struct {
	Interval  Duration `yaml:"interval"`
	Retention Duration `yaml:"retention"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		Reconcile: Reconcile{
			Interval:  DefaultReconcileInterval,
			Threshold: DefaultReconcileThreshold,
		},
		Sweep: Sweep{
			Interval:  DefaultSweepInterval,
			Retention: DefaultSweepRetention,
		},
		Fly: FlyConfig{
			Region: DefaultFlyRegion,
		},
	}
}

// Load reads and parses the config file at path. A missing file returns
// the default config; defaults also fill any field the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all config values are valid.
func Validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return ValidationError{Field: "listen_addr", Message: "required field is empty"}
	}
	if cfg.Reconcile.Interval <= 0 {
		return ValidationError{Field: "reconcile.interval", Message: "must be positive"}
	}
	if cfg.Reconcile.Threshold <= 0 {
		return ValidationError{Field: "reconcile.threshold", Message: "must be positive"}
	}
	if cfg.Sweep.Interval <= 0 {
		return ValidationError{Field: "sweep.interval", Message: "must be positive"}
	}
	if cfg.Sweep.Retention < 0 {
		return ValidationError{Field: "sweep.retention", Message: "must not be negative"}
	}
	if cfg.Fly.App != "" && cfg.Fly.Token == "" {
		return ValidationError{Field: "fly.token", Message: "required when fly.app is set"}
	}
	return nil
}
