package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kavrel/tenantreg/internal/domain"
)

// UniquenessEnforcer guards the one-resource-per-discriminator invariant.
// It normalizes discriminators and performs the pre-insert availability
// check; the store's unique constraint is the final backstop, so two
// racing creates resolve with exactly one success. Discriminators are
// released implicitly when a resource is soft-deleted.
type UniquenessEnforcer struct {
	store domain.ResourceStore
}

// NewUniquenessEnforcer creates an enforcer over the given store.
func NewUniquenessEnforcer(store domain.ResourceStore) *UniquenessEnforcer {
	return &UniquenessEnforcer{store: store}
}

// Normalize canonicalizes a raw discriminator for the kind.
func (e *UniquenessEnforcer) Normalize(kind domain.Kind, raw string) (string, error) {
	return domain.Normalize(kind, raw)
}

// CheckAvailable reports whether a normalized discriminator is free
// within the kind's uniqueness scope. tenant is consulted only for
// tenant-scoped kinds.
func (e *UniquenessEnforcer) CheckAvailable(ctx context.Context, kind domain.Kind, discriminator string, tenant *domain.TenantRef) (bool, error) {
	_, err := e.store.GetByDiscriminator(ctx, kind, discriminator, scopedTenant(kind, tenant))
	if errors.Is(err, domain.ErrResourceNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking discriminator availability: %w", err)
	}
	return false, nil
}

// Reserve fails with a ConflictError when the discriminator is already
// owned by a live resource. The actual reservation happens at insert
// time under the storage unique index; this check only gives callers a
// precise error before paying for the insert.
func (e *UniquenessEnforcer) Reserve(ctx context.Context, kind domain.Kind, discriminator string, tenant *domain.TenantRef) error {
	free, err := e.CheckAvailable(ctx, kind, discriminator, tenant)
	if err != nil {
		return err
	}
	if !free {
		return &domain.ConflictError{Kind: kind, Discriminator: discriminator}
	}
	return nil
}

// scopedTenant drops the tenant context for globally-scoped kinds so
// lookups compare discriminators across all tenants.
func scopedTenant(kind domain.Kind, tenant *domain.TenantRef) *domain.TenantRef {
	if kind.Scope() == domain.ScopeTenant {
		return tenant
	}
	return nil
}
