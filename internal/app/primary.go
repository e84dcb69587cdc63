package app

import (
	"context"
	"fmt"

	"github.com/kavrel/tenantreg/internal/domain"
)

// PrimaryManager maintains the at-most-one-primary-per-tenant-per-kind
// invariant. The demote-then-promote swap runs inside a single store
// transaction, so concurrent readers never observe zero or two primaries.
type PrimaryManager struct {
	store domain.ResourceStore
}

// NewPrimaryManager creates a manager over the given store.
func NewPrimaryManager(store domain.ResourceStore) *PrimaryManager {
	return &PrimaryManager{store: store}
}

// SetPrimary atomically makes res the tenant's primary resource of its
// kind. Fails with an OwnershipError when the resource does not belong
// to the claimed tenant.
func (m *PrimaryManager) SetPrimary(ctx context.Context, res domain.Resource, tenant domain.TenantRef) error {
	if res.TenantID != tenant.ID {
		return &domain.OwnershipError{ResourceID: res.ID, TenantID: tenant.ID}
	}
	if res.Deleted() {
		return domain.ErrResourceNotFound
	}
	if err := m.store.SwapPrimary(ctx, tenant, res.Kind, res.ID); err != nil {
		return fmt.Errorf("swapping primary: %w", err)
	}
	return nil
}

// UnsetAllPrimary clears the primary flag across the tenant's resources
// of the kind. Used before reassignment and on tenant teardown.
func (m *PrimaryManager) UnsetAllPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind) error {
	if err := m.store.ClearPrimary(ctx, tenant, kind); err != nil {
		return fmt.Errorf("clearing primary: %w", err)
	}
	return nil
}

// HasPrimary reports whether the tenant currently has a primary resource
// of the kind.
func (m *PrimaryManager) HasPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind) (bool, error) {
	return m.store.HasPrimary(ctx, tenant, kind)
}
