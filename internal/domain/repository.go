// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// PolicyRepository persists the policy records behind the SQL policy provider.
type PolicyRepository interface {
	SavePolicy(ctx context.Context, policy *PolicyRecord) error
	GetPolicy(ctx context.Context, policyID string) (*PolicyRecord, error)
	ListPolicies(ctx context.Context, limit int) ([]*PolicyRecord, error)
	DeletePolicy(ctx context.Context, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgres_port"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgres_user"`
	PostgresPassword string `json:"-" mapstructure:"postgres_password"`
	PostgresDB       string `json:"postgresDB" mapstructure:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSSLMode" mapstructure:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
}
