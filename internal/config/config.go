// Package config loads foreman's runtime configuration from a YAML file,
// grounded on the teacher's agents.LoadTeamsConfig (spec SPEC_FULL.md
// AMBIENT STACK).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the orchestrator and HTTP surface need at
// startup. There are no required environment variables (spec §6) — every
// tunable is file- or flag-driven.
type Config struct {
	// DatabasePath is the SQLite file the persistence ports open.
	DatabasePath string `yaml:"database_path"`

	// ListenAddr is the HTTP surface's bind address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// NATSURL, when non-empty, enables the NATS event-mirroring sink.
	NATSURL string `yaml:"nats_url,omitempty"`

	// ToastAppID names the application for OS escalation notifications.
	ToastAppID string `yaml:"toast_app_id,omitempty"`
}

// OrchestratorConfig mirrors the orchestrator's tunables (spec §4.11).
type OrchestratorConfig struct {
	CycleIntervalMs           int  `yaml:"cycle_interval_ms"`
	MaxGlobalWorkers          int  `yaml:"max_global_workers"`
	MaxWorkersPerRepo         int  `yaml:"max_workers_per_repo"`
	MaxWorkersPerUser         int  `yaml:"max_workers_per_user"`
	MaxRetryAttempts          int  `yaml:"max_retry_attempts"`
	RetryBaseDelayMs          int  `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs           int  `yaml:"retry_max_delay_ms"`
	AutoSpawnWorkers          bool `yaml:"auto_spawn_workers"`
	DefaultContextWindowLimit int  `yaml:"default_context_window_limit"`
}

// CycleInterval returns the configured cycle interval as a duration.
func (o OrchestratorConfig) CycleInterval() time.Duration {
	return time.Duration(o.CycleIntervalMs) * time.Millisecond
}

// RetryBaseDelay returns the configured base retry delay as a duration.
func (o OrchestratorConfig) RetryBaseDelay() time.Duration {
	return time.Duration(o.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the configured max retry delay as a duration.
func (o OrchestratorConfig) RetryMaxDelay() time.Duration {
	return time.Duration(o.RetryMaxDelayMs) * time.Millisecond
}

// Default returns the configuration foreman ships with when no file is
// supplied, matching the defaults named throughout spec.md §4.
func Default() Config {
	return Config{
		DatabasePath: "foreman.db",
		ListenAddr:   ":8080",
		ToastAppID:   "foreman",
		Orchestrator: OrchestratorConfig{
			CycleIntervalMs:           5000,
			MaxGlobalWorkers:          10,
			MaxWorkersPerRepo:         3,
			MaxWorkersPerUser:         5,
			MaxRetryAttempts:          3,
			RetryBaseDelayMs:          1000,
			RetryMaxDelayMs:           60000,
			AutoSpawnWorkers:          true,
			DefaultContextWindowLimit: 200000,
		},
	}
}

// Load reads and parses a YAML configuration file, filling any field the
// file omits from Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
