// Package domain defines the core types and interfaces of ClaimWatch.
package domain

import (
	"context"
	"time"
)

// ClaimFinder answers claim history queries.
type ClaimFinder interface {
	FindClaims(ctx context.Context, q ClaimQuery) ([]*Claim, error)
	CountClaims(ctx context.Context, q ClaimQuery) (int, error)
}

// Store is the set of data operations available both on the repository and
// inside one of its transactions.
type Store interface {
	ClaimFinder

	// Claims
	InsertClaim(ctx context.Context, c *Claim) error
	GetClaim(ctx context.Context, id string) (*Claim, error)
	UpdateClaim(ctx context.Context, c *Claim) error
	DeleteClaim(ctx context.Context, id string) error
	ClaimNumberExists(ctx context.Context, number string) (bool, error)

	// Fraud flags
	InsertFlag(ctx context.Context, f *FraudFlag) error
	GetFlag(ctx context.Context, id string) (*FraudFlag, error)
	ListFlags(ctx context.Context, filter FlagFilter) ([]*FraudFlag, error)
	MarkFlagReviewed(ctx context.Context, id, reviewer, notes string, at time.Time) error
	DeleteFlagsForClaim(ctx context.Context, claimID string) (int, error)

	// Audit
	AppendAudit(ctx context.Context, e *AuditEntry) error

	// Directory
	SaveCompany(ctx context.Context, c *Company) error
	GetCompany(ctx context.Context, id string) (*Company, error)
	SaveUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
}

// Repository is the persistent store.
type Repository interface {
	Store

	// WithTx runs fn inside one database transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error

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
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
