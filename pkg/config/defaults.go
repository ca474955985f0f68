package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// DefaultDatabaseConfig returns the built-in defaults for DatabaseConfig.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// DefaultQueueConfig returns the built-in defaults for QueueConfig
// (spec.md §4.D, §5).
func DefaultQueueConfig() *QueueConfig {
	cfg := &QueueConfig{
		WorkerCount:        1,
		BatchSize:          50, // spec.md §4.D default batch_size
		MaxRetries:         3,
		PollInterval:       5 * time.Second,
		PollIntervalJitter: time.Second,
		HeartbeatInterval:  10 * time.Second,
		EmbedConcurrency:   4,
		ClaimTimeout:       30 * time.Second,
	}
	cfg.OrphanThreshold = 3 * cfg.HeartbeatInterval
	return cfg
}

// DefaultAgentConfig returns the built-in defaults for AgentConfig
// (spec.md §4.G).
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		MaxIterations:   10, // spec.md §4.G default max_iter
		MaxResults:      10,
		CallTimeout:     60 * time.Second,
		DefaultProvider: "anthropic",
	}
}

// DefaultServerConfig returns the built-in defaults for ServerConfig.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port: "8080",
		Mode: "release",
	}
}

// applyDefaults merges each user-provided sub-block onto its built-in
// defaults, mirroring the teacher's "start with defaults, then merge
// user config on top to preserve unset defaults" loader.go pipeline —
// mergo.WithOverride lets a user-set, non-zero field win over the
// default, while fields the user left zero keep the default.
func applyDefaults(cfg *Config) error {
	userQueue := cfg.Queue

	dbDefaults := DefaultDatabaseConfig()
	if cfg.Database != nil {
		if err := mergo.Merge(dbDefaults, cfg.Database, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging database config: %w", err)
		}
	}
	cfg.Database = dbDefaults

	queueDefaults := DefaultQueueConfig()
	if userQueue != nil {
		if err := mergo.Merge(queueDefaults, userQueue, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging queue config: %w", err)
		}
	}
	// orphan_threshold recommends 3x heartbeat_interval; only re-derive
	// it when the caller didn't explicitly set one of its own.
	if userQueue == nil || userQueue.OrphanThreshold == 0 {
		queueDefaults.OrphanThreshold = 3 * queueDefaults.HeartbeatInterval
	}
	cfg.Queue = queueDefaults

	agentDefaults := DefaultAgentConfig()
	if cfg.Agent != nil {
		if err := mergo.Merge(agentDefaults, cfg.Agent, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging agent config: %w", err)
		}
	}
	cfg.Agent = agentDefaults

	serverDefaults := DefaultServerConfig()
	if cfg.Server != nil {
		if err := mergo.Merge(serverDefaults, cfg.Server, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging server config: %w", err)
		}
	}
	cfg.Server = serverDefaults

	if cfg.LLMProviders == nil {
		cfg.LLMProviders = map[string]*LLMProviderConfig{}
	}

	return nil
}
