// Package repository persists ClaimWatch data with database/sql.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRepository stores companies, users, claims, fraud flags and the audit
// trail in SQLite or PostgreSQL through database/sql. A repository returned
// by WithTx shares the parent's pool and routes every query through the
// open transaction.
type SQLRepository struct {
	db     *sql.DB
	q      querier
	driver string
	inTx   bool
}

// New opens the database named by cfg.Driver, applies the pool limits and
// creates any missing tables.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	open, ok := openers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported repository driver %q", cfg.Driver)
	}
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}

	applyPool(db, cfg)

	repo := &SQLRepository{db: db, q: db, driver: cfg.Driver}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s schema: %w", cfg.Driver, err)
	}
	return repo, nil
}

var openers = map[string]func(domain.RepositoryConfig) (*sql.DB, error){
	"sqlite":   openSQLite,
	"postgres": openPostgres,
}

func applyPool(db *sql.DB, cfg domain.RepositoryConfig) {
	if inMemory(cfg) {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// migrate creates the schema in one transaction. Every statement is
// idempotent, so running it on each start is safe.
func (r *SQLRepository) migrate(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i, stmt := range AllSchemas() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

// WithTx runs fn inside a transaction. Nested calls join the outer
// transaction.
func (r *SQLRepository) WithTx(ctx context.Context, fn func(tx domain.Store) error) (err error) {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	txRepo := &SQLRepository{db: r.db, q: tx, driver: r.driver, inTx: true}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the pool. It is a no-op on a transaction-scoped repository.
func (r *SQLRepository) Close() error {
	if r.inTx {
		return nil
	}
	return r.db.Close()
}

// rebind rewrites ? placeholders as $1, $2, ... when talking to PostgreSQL.
// Queries in this package never contain a literal question mark.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, part := range strings.Split(query, "?") {
		if n > 0 {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		}
		b.WriteString(part)
		n++
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.Repository = (*SQLRepository)(nil)
