package config

import "time"

// Config is the top-level process configuration shared by the
// vectorizer-worker and text-to-sql-agent binaries.
type Config struct {
	Database     *DatabaseConfig              `yaml:"database"`
	Queue        *QueueConfig                 `yaml:"queue"`
	Agent        *AgentConfig                 `yaml:"agent"`
	LLMProviders map[string]*LLMProviderConfig `yaml:"llm_providers"`
	Server       *ServerConfig                `yaml:"server"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Database string `yaml:"database" validate:"required"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// QueueConfig controls worker pool sizing and claim/batch behavior
// (spec.md §4.D, §5).
type QueueConfig struct {
	WorkerCount        int           `yaml:"worker_count" validate:"min=1,max=50"`
	BatchSize          int           `yaml:"batch_size" validate:"min=1"`
	MaxRetries         int           `yaml:"max_retries" validate:"min=0"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	OrphanThreshold    time.Duration `yaml:"orphan_threshold"` // 3x HeartbeatInterval recommended
	EmbedConcurrency   int           `yaml:"embed_concurrency" validate:"min=1"`
	ClaimTimeout       time.Duration `yaml:"claim_timeout"`
}

// AgentConfig controls the text-to-sql agent loop (spec.md §4.G).
type AgentConfig struct {
	MaxIterations  int           `yaml:"max_iterations" validate:"min=1"`
	MaxResults     int           `yaml:"max_results" validate:"min=1"`
	MaxVectorDist  *float64      `yaml:"max_vector_dist,omitempty"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	DefaultProvider string       `yaml:"default_provider"`
}

// LLMProviderConfig names a concrete chat/embedding provider binding.
type LLMProviderConfig struct {
	Provider  string        `yaml:"provider" validate:"required"` // anthropic|openai|cohere|ollama|voyageai
	Model     string        `yaml:"model" validate:"required"`
	APIKeyEnv string        `yaml:"api_key_env,omitempty"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// ServerConfig controls the HTTP surface exposed by both binaries
// (spec.md §6 expansion).
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // gin mode: debug|release|test
}
