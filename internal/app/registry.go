package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kavrel/tenantreg/internal/domain"
)

// Registry is the façade over the tenant resource invariant machinery.
// Every operation resolves the tenant context once, enforces uniqueness,
// primary-designation, and lifecycle invariants through the dedicated
// components, and publishes a domain event after a successful mutation.
type Registry struct {
	store      domain.ResourceStore
	directory  domain.TenantDirectory
	publisher  domain.EventPublisher
	uniqueness *UniquenessEnforcer
	primary    *PrimaryManager
	lifecycle  *Lifecycle
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(store domain.ResourceStore, directory domain.TenantDirectory, publisher domain.EventPublisher, validator domain.TransitionValidator) *Registry {
	return &Registry{
		store:      store,
		directory:  directory,
		publisher:  publisher,
		uniqueness: NewUniquenessEnforcer(store),
		primary:    NewPrimaryManager(store),
		lifecycle:  NewLifecycle(store, validator),
	}
}

// RegisterTenant adds a tenant to the directory and returns it with a
// freshly assigned external identifier.
func (r *Registry) RegisterTenant(ctx context.Context, name string) (domain.Tenant, error) {
	if name == "" {
		return domain.Tenant{}, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	tenant := domain.Tenant{
		ID:        newID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.directory.Register(ctx, tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("registering tenant: %w", err)
	}
	return tenant, nil
}

// CreateParams holds the attributes for a new resource.
type CreateParams struct {
	Kind          domain.Kind
	Discriminator string
	Metadata      map[string]string
	SSL           *domain.SSLConfig
	// Primary promotes the new resource atomically with its creation.
	Primary bool
}

func validateSSL(ssl *domain.SSLConfig) error {
	if ssl.CertificatePath == "" {
		return &domain.ValidationError{Field: "ssl.certificate_path", Reason: "must not be empty"}
	}
	if !ssl.ExpiresAt.After(ssl.IssuedAt) {
		return &domain.ValidationError{Field: "ssl.expires_at", Reason: "must be after issued_at"}
	}
	return nil
}

// Create reserves the discriminator and inserts a new resource in the
// "pending_verification" state. The reserve-then-insert pair runs under
// the store's unique constraint, so racing creates on the same
// discriminator yield exactly one success and one ConflictError.
func (r *Registry) Create(ctx context.Context, tenantID string, p CreateParams) (domain.Resource, error) {
	if !validID(tenantID) {
		return domain.Resource{}, &domain.ValidationError{Field: "tenant_id", Reason: "must be a valid uuid"}
	}
	if !p.Kind.Valid() {
		return domain.Resource{}, &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", p.Kind)}
	}

	discriminator, err := r.uniqueness.Normalize(p.Kind, p.Discriminator)
	if err != nil {
		return domain.Resource{}, err
	}

	tenant, err := r.directory.Resolve(ctx, tenantID)
	if err != nil {
		return domain.Resource{}, err
	}

	if err := r.uniqueness.Reserve(ctx, p.Kind, discriminator, &tenant); err != nil {
		return domain.Resource{}, err
	}

	res := domain.NewResource(newID(), tenantID, p.Kind, discriminator)
	res.Metadata = p.Metadata
	if p.SSL != nil {
		if err := validateSSL(p.SSL); err != nil {
			return domain.Resource{}, err
		}
		res.SSL = p.SSL
	}
	if err := r.store.Insert(ctx, tenant, res, p.Primary); err != nil {
		return domain.Resource{}, fmt.Errorf("creating resource: %w", err)
	}
	res.IsPrimary = p.Primary

	if err := r.publisher.Publish(ctx, domain.EventCreated, res); err != nil {
		return domain.Resource{}, fmt.Errorf("publishing creation event: %w", err)
	}

	return res, nil
}

// GetByID returns a live resource by its external identifier.
func (r *Registry) GetByID(ctx context.Context, id string) (domain.Resource, error) {
	return r.store.GetByID(ctx, id)
}

// FindByDiscriminator looks up a live resource by raw discriminator.
// tenantID is required for tenant-scoped kinds and ignored otherwise.
func (r *Registry) FindByDiscriminator(ctx context.Context, kind domain.Kind, raw, tenantID string) (domain.Resource, error) {
	if !kind.Valid() {
		return domain.Resource{}, &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}

	discriminator, err := r.uniqueness.Normalize(kind, raw)
	if err != nil {
		return domain.Resource{}, err
	}

	var tenant *domain.TenantRef
	if kind.Scope() == domain.ScopeTenant {
		if tenantID == "" {
			return domain.Resource{}, &domain.ValidationError{Field: "tenant_id", Reason: "required for tenant-scoped kinds"}
		}
		ref, err := r.directory.Resolve(ctx, tenantID)
		if err != nil {
			return domain.Resource{}, err
		}
		tenant = &ref
	}

	return r.store.GetByDiscriminator(ctx, kind, discriminator, tenant)
}

// FindByTenant lists a tenant's resources matching the filter.
func (r *Registry) FindByTenant(ctx context.Context, tenantID string, filter domain.ListFilter) ([]domain.Resource, error) {
	tenant, err := r.directory.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return r.store.ListByTenant(ctx, tenant, filter)
}

// CountByTenant counts a tenant's resources matching the filter.
func (r *Registry) CountByTenant(ctx context.Context, tenantID string, filter domain.ListFilter) (int64, error) {
	tenant, err := r.directory.Resolve(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return r.store.CountByTenant(ctx, tenant, filter)
}

// FindPendingVerification returns resources awaiting verification,
// optionally restricted to one kind. Pull-based: an external scheduler
// drives the verification workflow from this list.
func (r *Registry) FindPendingVerification(ctx context.Context, kind *domain.Kind) ([]domain.Resource, error) {
	return r.store.ListPendingVerification(ctx, kind)
}

// FindExpiring returns resources whose SSL certificate expires within
// the window.
func (r *Registry) FindExpiring(ctx context.Context, window time.Duration) ([]domain.Resource, error) {
	return r.store.ListExpiringSSL(ctx, window)
}

// UpdateParams holds the mutable attributes of a resource. Status,
// primary designation, and discriminator have dedicated operations and
// cannot be changed here.
type UpdateParams struct {
	Metadata map[string]string
	SSL      *domain.SSLConfig
}

// Update applies a partial update of mutable fields.
func (r *Registry) Update(ctx context.Context, id string, p UpdateParams) (domain.Resource, error) {
	res, err := r.store.GetByID(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}

	if p.Metadata != nil {
		res.Metadata = p.Metadata
	}
	if p.SSL != nil {
		if err := validateSSL(p.SSL); err != nil {
			return domain.Resource{}, err
		}
		res.SSL = p.SSL
	}
	res.UpdatedAt = time.Now().UTC()

	if err := r.store.Update(ctx, res); err != nil {
		return domain.Resource{}, fmt.Errorf("updating resource: %w", err)
	}
	return res, nil
}

// SetEnabled flips the soft on/off switch, independent of lifecycle
// status.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (domain.Resource, error) {
	res, err := r.store.GetByID(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}

	res.IsEnabled = enabled
	res.UpdatedAt = time.Now().UTC()
	if err := r.store.Update(ctx, res); err != nil {
		return domain.Resource{}, fmt.Errorf("updating resource: %w", err)
	}
	return res, nil
}

// Delete soft-deletes a resource, releasing its discriminator and
// primary slot in the same transaction. Idempotent: returns false when
// the resource is already deleted or was never there.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrResourceNotFound) {
			return false, nil
		}
		return false, err
	}

	deleted, err := r.store.SoftDelete(ctx, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("deleting resource: %w", err)
	}
	if !deleted {
		return false, nil
	}

	if err := r.publisher.Publish(ctx, domain.EventDeleted, res); err != nil {
		return true, fmt.Errorf("publishing deletion event: %w", err)
	}
	return true, nil
}

// PromoteToPrimary makes the resource the tenant's primary of its kind,
// demoting the current primary in the same transaction. Fails with an
// OwnershipError when the resource belongs to a different tenant.
func (r *Registry) PromoteToPrimary(ctx context.Context, id, tenantID string) (domain.Resource, error) {
	res, err := r.store.GetByID(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}
	if res.TenantID != tenantID {
		return domain.Resource{}, &domain.OwnershipError{ResourceID: id, TenantID: tenantID}
	}

	tenant, err := r.directory.Resolve(ctx, tenantID)
	if err != nil {
		return domain.Resource{}, err
	}

	if err := r.primary.SetPrimary(ctx, res, tenant); err != nil {
		return domain.Resource{}, err
	}
	res.IsPrimary = true

	if err := r.publisher.Publish(ctx, domain.EventPromoted, res); err != nil {
		return domain.Resource{}, fmt.Errorf("publishing promotion event: %w", err)
	}
	return res, nil
}

// UnsetAllPrimary clears the primary flag across the tenant's resources
// of the kind.
func (r *Registry) UnsetAllPrimary(ctx context.Context, tenantID string, kind domain.Kind) error {
	tenant, err := r.directory.Resolve(ctx, tenantID)
	if err != nil {
		return err
	}
	return r.primary.UnsetAllPrimary(ctx, tenant, kind)
}

// HasPrimary reports whether the tenant has a primary resource of the
// kind.
func (r *Registry) HasPrimary(ctx context.Context, tenantID string, kind domain.Kind) (bool, error) {
	tenant, err := r.directory.Resolve(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return r.primary.HasPrimary(ctx, tenant, kind)
}

// GetPrimary returns the tenant's primary resource of the kind.
func (r *Registry) GetPrimary(ctx context.Context, tenantID string, kind domain.Kind) (domain.Resource, error) {
	tenant, err := r.directory.Resolve(ctx, tenantID)
	if err != nil {
		return domain.Resource{}, err
	}
	return r.store.GetPrimary(ctx, tenant, kind)
}

// Transition applies a lifecycle event to a resource and publishes it.
// reason is recorded for the "fail" event only.
func (r *Registry) Transition(ctx context.Context, id string, event domain.Event, reason string) (domain.Resource, error) {
	res, err := r.lifecycle.Apply(ctx, id, event, reason)
	if err != nil {
		return domain.Resource{}, err
	}

	if err := r.publisher.Publish(ctx, event, res); err != nil {
		return domain.Resource{}, fmt.Errorf("publishing event %q: %w", event, err)
	}
	return res, nil
}

// MarkVerified records a successful verification. Allowed only from
// "pending_verification"; stamps VerifiedAt exactly once.
func (r *Registry) MarkVerified(ctx context.Context, id string) (domain.Resource, error) {
	return r.Transition(ctx, id, domain.EventVerify, "")
}

// Activate brings a verified or suspended resource into service.
func (r *Registry) Activate(ctx context.Context, id string) (domain.Resource, error) {
	return r.Transition(ctx, id, domain.EventActivate, "")
}

// Suspend takes an active resource out of service, reversibly.
func (r *Registry) Suspend(ctx context.Context, id string) (domain.Resource, error) {
	return r.Transition(ctx, id, domain.EventSuspend, "")
}

// MarkFailed records a failure with the given reason. Allowed from any
// non-terminal state; VerifiedAt is kept.
func (r *Registry) MarkFailed(ctx context.Context, id, reason string) (domain.Resource, error) {
	return r.Transition(ctx, id, domain.EventFail, reason)
}

// Reset returns a failed resource to "pending_verification", clearing
// VerifiedAt and the failure reason.
func (r *Registry) Reset(ctx context.Context, id string) (domain.Resource, error) {
	return r.Transition(ctx, id, domain.EventReset, "")
}

// UpdateStatus moves a resource directly to a target status. Used by
// batch and administrative flows; it resolves the event from the
// transition table, so there is no way to bypass validation.
func (r *Registry) UpdateStatus(ctx context.Context, id string, target domain.Status) (domain.Resource, error) {
	res, err := r.store.GetByID(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}

	event, ok := domain.EventFor(res.Status, target)
	if !ok {
		return domain.Resource{}, &domain.TransitionError{Target: target, Current: res.Status}
	}
	return r.Transition(ctx, id, event, "")
}
