// Package domain defines the core interfaces and types for contas.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Bill operations
	SaveBill(ctx context.Context, tenantID string, bill *Bill) error
	GetBill(ctx context.Context, tenantID string, billID string) (*Bill, error)
	ListBills(ctx context.Context, tenantID string) ([]*Bill, error)
	DeleteBill(ctx context.Context, tenantID string, billID string) error

	// Monthly figures, keyed by (year, month)
	UpsertFigure(ctx context.Context, tenantID string, figure MonthlyFigure) error
	ListFigures(ctx context.Context, tenantID string, lastMonths int) ([]MonthlyFigure, error)

	// Insight rule configuration
	SaveInsightRule(ctx context.Context, tenantID string, rule *InsightRule) error
	ListInsightRules(ctx context.Context, tenantID string) ([]*InsightRule, error)

	// ListTenants returns every tenant that owns bills, figures or rules.
	ListTenants(ctx context.Context) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresURL      string `yaml:"postgresURL"`
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDB"`
	PostgresSSLMode  string `yaml:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
