package domain

import (
	"context"
	"time"
)

// TenantRef is the resolved tenant context for an operation: the
// externally-visible identifier plus the storage surrogate key. Resolved
// once per call by the tenant directory and never re-queried mid-operation.
type TenantRef struct {
	ID  string
	Key int64
}

// ListFilter holds optional criteria for listing resources. Soft-deleted
// rows are excluded unless IncludeDeleted is set.
type ListFilter struct {
	Kind           *Kind
	Status         *Status
	Enabled        *bool
	PrimaryOnly    bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// StatusUpdate describes an atomic, compare-and-set status change. The
// update only applies while the resource is still in From; a concurrent
// transition makes the store report the actual current state.
type StatusUpdate struct {
	Event           Event
	From            Status
	To              Status
	VerifiedAt      *time.Time
	ClearVerifiedAt bool
	FailureReason   string
}

// ResourceStore defines the persistence contract for tenant resources.
// Implementations must back multi-write operations (Insert with primary
// promotion, SwapPrimary, SoftDelete) with a single atomic transaction
// and enforce discriminator and primary uniqueness with storage-level
// constraints as the final backstop.
type ResourceStore interface {
	// Insert persists a new resource. When asPrimary is set, the
	// tenant's current primary of the same kind is demoted in the same
	// transaction. Returns a ConflictError when the discriminator is
	// already owned by a live resource within the kind's scope.
	Insert(ctx context.Context, tenant TenantRef, res Resource, asPrimary bool) error

	GetByID(ctx context.Context, id string) (Resource, error)

	// GetByDiscriminator looks up a live resource by its normalized
	// discriminator. tenant is required for tenant-scoped kinds and
	// ignored for globally-scoped ones.
	GetByDiscriminator(ctx context.Context, kind Kind, discriminator string, tenant *TenantRef) (Resource, error)

	ListByTenant(ctx context.Context, tenant TenantRef, filter ListFilter) ([]Resource, error)
	CountByTenant(ctx context.Context, tenant TenantRef, filter ListFilter) (int64, error)
	ListPendingVerification(ctx context.Context, kind *Kind) ([]Resource, error)
	ListExpiringSSL(ctx context.Context, within time.Duration) ([]Resource, error)

	// Update persists mutable attributes (metadata, SSL, enabled flag).
	// Status, primary designation, and discriminator are immutable here.
	Update(ctx context.Context, res Resource) error

	// UpdateStatus applies a compare-and-set lifecycle change. Returns
	// ErrResourceNotFound if the resource is gone, or a TransitionError
	// carrying the actual state if a concurrent transition won the race.
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (Resource, error)

	// SoftDelete marks the resource deleted, releasing its discriminator
	// and primary slot in one transaction. Returns false when the
	// resource is already deleted or missing.
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)

	// SwapPrimary atomically demotes the tenant's current primary of the
	// kind and promotes the given resource.
	SwapPrimary(ctx context.Context, tenant TenantRef, kind Kind, id string) error

	ClearPrimary(ctx context.Context, tenant TenantRef, kind Kind) error
	HasPrimary(ctx context.Context, tenant TenantRef, kind Kind) (bool, error)
	GetPrimary(ctx context.Context, tenant TenantRef, kind Kind) (Resource, error)
}

// TenantDirectory translates between externally-visible tenant
// identifiers and internal storage keys. Read-mostly; safe for
// concurrent use.
type TenantDirectory interface {
	// Resolve maps an external tenant id to its storage key. Returns
	// ErrTenantNotFound when no mapping exists.
	Resolve(ctx context.Context, externalID string) (TenantRef, error)

	// ExternalID maps a storage key back to the external identifier.
	ExternalID(ctx context.Context, key int64) (string, error)

	// Register creates a directory entry for a new tenant.
	Register(ctx context.Context, tenant Tenant) (TenantRef, error)
}

// EventPublisher defines the contract for emitting domain events after
// successful registry mutations.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, res Resource) error
}

// TransitionValidator checks lifecycle transitions against the
// Transitions table and returns the destination state.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}
