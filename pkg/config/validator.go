package config

import "fmt"

// Validator validates the process configuration comprehensively, following
// the teacher's staged fail-fast pattern (database, then queue, then
// agent, then providers): each stage's errors are wrapped with the stage name so a
// misconfigured deployment points at the right section immediately.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation stage in dependency order.
func (v *Validator) ValidateAll() error {
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateAgent(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("llm provider validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d == nil {
		return fmt.Errorf("database configuration is nil")
	}
	if d.Host == "" {
		return fmt.Errorf("host is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50, got %d", q.WorkerCount)
	}
	if q.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", q.BatchSize)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", q.PollInterval)
	}
	if q.PollIntervalJitter < 0 || q.PollIntervalJitter >= q.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be in [0, poll_interval), got jitter=%v interval=%v", q.PollIntervalJitter, q.PollInterval)
	}
	if q.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", q.HeartbeatInterval)
	}
	if q.OrphanThreshold <= q.HeartbeatInterval {
		return fmt.Errorf("orphan_threshold must exceed heartbeat_interval, got threshold=%v heartbeat=%v", q.OrphanThreshold, q.HeartbeatInterval)
	}
	if q.EmbedConcurrency < 1 {
		return fmt.Errorf("embed_concurrency must be at least 1, got %d", q.EmbedConcurrency)
	}
	return nil
}

func (v *Validator) validateAgent() error {
	a := v.cfg.Agent
	if a == nil {
		return fmt.Errorf("agent configuration is nil")
	}
	if a.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", a.MaxIterations)
	}
	if a.MaxResults < 1 {
		return fmt.Errorf("max_results must be at least 1, got %d", a.MaxResults)
	}
	if a.MaxVectorDist != nil && *a.MaxVectorDist < 0 {
		return fmt.Errorf("max_vector_dist must be non-negative, got %v", *a.MaxVectorDist)
	}
	return nil
}

func (v *Validator) validateLLMProviders() error {
	for name, p := range v.cfg.LLMProviders {
		if p.Provider == "" {
			return fmt.Errorf("provider binding %q: provider is required", name)
		}
		if p.Model == "" {
			return fmt.Errorf("provider binding %q: model is required", name)
		}
	}
	return nil
}
