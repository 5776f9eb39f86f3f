// Package repository provides the SQL policy store.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.PolicyRepository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 && cfg.SQLitePath != memoryPath {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicy inserts or replaces a policy record.
func (r *SQLRepository) SavePolicy(ctx context.Context, policy *domain.PolicyRecord) error {
	if policy == nil || policy.ID == "" {
		return fmt.Errorf("%w: policy id is required", ErrInvalidInput)
	}
	if policy.CoverageLimit.IsNegative() {
		return fmt.Errorf("%w: coverage limit must not be negative", ErrInvalidInput)
	}

	restrictions := policy.Restrictions
	if restrictions == nil {
		restrictions = []string{}
	}
	encoded, err := json.Marshal(restrictions)
	if err != nil {
		return fmt.Errorf("encode restrictions: %w", err)
	}

	if policy.UpdatedAt.IsZero() {
		policy.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO policies (
			id, payment_status, expiry_date, last_payment_date, restrictions, coverage_limit, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payment_status = excluded.payment_status,
			expiry_date = excluded.expiry_date,
			last_payment_date = excluded.last_payment_date,
			restrictions = excluded.restrictions,
			coverage_limit = excluded.coverage_limit,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, policy.PaymentStatus,
		policy.ExpiryDate.UTC(), policy.LastPaymentDate.UTC(),
		string(encoded), policy.CoverageLimit.String(),
		policy.UpdatedAt.UTC(),
	)
	return err
}

// GetPolicy retrieves a policy record by ID.
func (r *SQLRepository) GetPolicy(ctx context.Context, policyID string) (*domain.PolicyRecord, error) {
	if policyID == "" {
		return nil, fmt.Errorf("%w: policy id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, payment_status, expiry_date, last_payment_date, restrictions, coverage_limit, updated_at
		FROM policies
		WHERE id = ?
	`

	p, err := scanPolicy(r.db.QueryRowContext(ctx, r.rebind(query), policyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPolicies returns up to limit policies ordered by ID.
func (r *SQLRepository) ListPolicies(ctx context.Context, limit int) ([]*domain.PolicyRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, payment_status, expiry_date, last_payment_date, restrictions, coverage_limit, updated_at
		FROM policies
		ORDER BY id
		LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.PolicyRecord
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	return policies, rows.Err()
}

// DeletePolicy removes a policy record.
func (r *SQLRepository) DeletePolicy(ctx context.Context, policyID string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM policies WHERE id = ?`), policyID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*domain.PolicyRecord, error) {
	var p domain.PolicyRecord
	var restrictions, limit string

	if err := row.Scan(
		&p.ID, &p.PaymentStatus,
		&p.ExpiryDate, &p.LastPaymentDate,
		&restrictions, &limit, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(restrictions), &p.Restrictions); err != nil {
		return nil, fmt.Errorf("failed to parse restrictions for policy %s: %w", p.ID, err)
	}
	if err := p.CoverageLimit.Scan(limit); err != nil {
		return nil, fmt.Errorf("failed to parse coverage limit for policy %s: %w", p.ID, err)
	}

	return &p, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

var _ domain.PolicyRepository = (*SQLRepository)(nil)
