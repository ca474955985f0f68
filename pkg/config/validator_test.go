package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := &Config{
		Database: &DatabaseConfig{Host: "localhost", Database: "vectorizer"},
	}
	if err := applyDefaults(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func TestValidateAllAcceptsDefaults(t *testing.T) {
	assert.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateQueueRejectsInvalidJitter(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.PollIntervalJitter = cfg.Queue.PollInterval
	err := NewValidator(cfg).ValidateAll()
	assert.ErrorContains(t, err, "jitter")
}

func TestValidateQueueRejectsOrphanThresholdNotAboveHeartbeat(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.OrphanThreshold = cfg.Queue.HeartbeatInterval
	err := NewValidator(cfg).ValidateAll()
	assert.ErrorContains(t, err, "orphan_threshold")
}

func TestValidateAgentRejectsNegativeMaxVectorDist(t *testing.T) {
	cfg := validConfig()
	neg := -1.0
	cfg.Agent.MaxVectorDist = &neg
	err := NewValidator(cfg).ValidateAll()
	assert.ErrorContains(t, err, "max_vector_dist")
}

func TestValidateLLMProvidersRejectsMissingModel(t *testing.T) {
	cfg := validConfig()
	cfg.LLMProviders["default"] = &LLMProviderConfig{Provider: "anthropic", Timeout: time.Second}
	err := NewValidator(cfg).ValidateAll()
	assert.ErrorContains(t, err, "model is required")
}
