package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// ReasonPolicyNotFound is the coverage reason for policies missing from the store.
const ReasonPolicyNotFound = "Policy not found"

// ErrPolicyNotFound is returned by Get for policies missing from the store.
var ErrPolicyNotFound = errors.New("policy not found")

// StoreProvider answers policy queries from the SQL policy store, reading
// through a cache. A missing policy is inactive and not covered.
type StoreProvider struct {
	repo           domain.PolicyRepository
	cache          domain.Cache
	ttl            time.Duration
	defaultCeiling decimal.Decimal
	now            func() time.Time
}

// NewStoreProvider creates a store-backed provider. cache may be nil.
func NewStoreProvider(repo domain.PolicyRepository, cache domain.Cache, ttl time.Duration, defaultCeiling decimal.Decimal) *StoreProvider {
	if !defaultCeiling.IsPositive() {
		defaultCeiling = decimal.NewFromInt(domain.DefaultCoverageCeiling)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StoreProvider{
		repo:           repo,
		cache:          cache,
		ttl:            ttl,
		defaultCeiling: defaultCeiling,
		now:            time.Now,
	}
}

// IsActive implements domain.PolicyDataProvider.
func (p *StoreProvider) IsActive(ctx context.Context, policyID string) (bool, error) {
	record, err := p.lookup(ctx, policyID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.Active(p.now()), nil
}

// VerifyCoverage implements domain.PolicyDataProvider.
func (p *StoreProvider) VerifyCoverage(ctx context.Context, policyID string, amount decimal.Decimal) (*domain.CoverageResult, error) {
	record, err := p.lookup(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &domain.CoverageResult{Covered: false, Reason: ReasonPolicyNotFound}, nil
	}
	return record.Covers(amount, p.defaultCeiling), nil
}

// Save writes a policy to the store and refreshes the cache.
func (p *StoreProvider) Save(ctx context.Context, record *domain.PolicyRecord) error {
	record.UpdatedAt = p.now().UTC()
	if err := p.repo.SavePolicy(ctx, record); err != nil {
		return fmt.Errorf("save policy %s: %w", record.ID, err)
	}
	if p.cache != nil {
		if err := p.cache.SetPolicy(ctx, record, p.ttl); err != nil {
			slog.Warn("failed to cache policy", "policy_id", record.ID, "error", err)
		}
	}
	return nil
}

// Get returns the stored policy, or ErrPolicyNotFound.
func (p *StoreProvider) Get(ctx context.Context, policyID string) (*domain.PolicyRecord, error) {
	record, err := p.lookup(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrPolicyNotFound
	}
	return record, nil
}

// lookup returns nil, nil when the policy does not exist. Cache failures fall
// through to the store.
func (p *StoreProvider) lookup(ctx context.Context, policyID string) (*domain.PolicyRecord, error) {
	if p.cache != nil {
		cached, err := p.cache.GetPolicy(ctx, policyID)
		if err != nil {
			slog.Warn("policy cache read failed", "policy_id", policyID, "error", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	record, err := p.repo.GetPolicy(ctx, policyID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", policyID, err)
	}

	if p.cache != nil {
		if err := p.cache.SetPolicy(ctx, record, p.ttl); err != nil {
			slog.Warn("failed to cache policy", "policy_id", policyID, "error", err)
		}
	}
	return record, nil
}

var _ domain.PolicyDataProvider = (*StoreProvider)(nil)
