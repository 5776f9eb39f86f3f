package domain

import (
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Profile selects the default wiring of the collaborators
	Profile Profile `json:"profile" mapstructure:"profile"`

	// Reference tables override
	Tables TablesConfig `json:"tables" mapstructure:"tables"`

	// Policy data provider
	Policy PolicyConfig `json:"policy" mapstructure:"policy"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`

	// Async evaluation of requests published on the bus
	Worker WorkerConfig `json:"worker" mapstructure:"worker"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"write_timeout"` // seconds

	// Token bucket applied to the evaluation endpoints. Zero disables limiting.
	RateLimitRPS   float64 `json:"rateLimitRps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `json:"rateLimitBurst" mapstructure:"rate_limit_burst"`
}

// TablesConfig points at an alternative reference tables file.
type TablesConfig struct {
	Path string `json:"path" mapstructure:"path"` // empty uses the embedded tables
}

// PolicyConfig selects and tunes the policy data provider.
type PolicyConfig struct {
	// Provider is "static" (simulated answers) or "sql" (policies table)
	Provider string `json:"provider" mapstructure:"provider"`

	// CoverageCeiling applies when a policy carries no limit of its own
	CoverageCeiling float64 `json:"coverageCeiling" mapstructure:"coverage_ceiling"`
}

// WorkerConfig controls the bus consumer that evaluates requests asynchronously.
type WorkerConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// Profile represents a deployment profile.
type Profile string

const (
	// ProfileStandalone runs with simulated policy answers, an in-process cache and channels
	ProfileStandalone Profile = "standalone"

	// ProfileCluster runs with a PostgreSQL policy store, Redis and NATS
	ProfileCluster Profile = "cluster"
)

// DefaultCoverageCeiling is the policy ceiling used when nothing else is known.
const DefaultCoverageCeiling = 50000

// DefaultConfig returns a default configuration for the standalone profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			RateLimitRPS:   0,
			RateLimitBurst: 50,
		},
		Profile: ProfileStandalone,
		Policy: PolicyConfig{
			Provider:        "static",
			CoverageCeiling: DefaultCoverageCeiling,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			PolicyTTL:    time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ClusterConfig returns a configuration for the cluster profile.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileCluster
	cfg.Policy.Provider = "sql"
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       30 * time.Second,
		PolicyTTL:      time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "kestrel",
	}
	cfg.Worker.Enabled = true
	return cfg
}
