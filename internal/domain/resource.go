package domain

import "time"

// Kind identifies which family of tenant resource a record belongs to.
// All kinds share the same invariant machinery but differ in discriminator
// shape and uniqueness scope.
type Kind string

const (
	KindCustomDomain  Kind = "custom_domain"
	KindURLConfig     Kind = "url_config"
	KindDomainMapping Kind = "domain_mapping"
)

// Kinds lists every known resource kind.
var Kinds = []Kind{KindCustomDomain, KindURLConfig, KindDomainMapping}

// Valid reports whether k is a known resource kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCustomDomain, KindURLConfig, KindDomainMapping:
		return true
	}
	return false
}

// Scope determines how far a discriminator's uniqueness reaches.
type Scope string

const (
	// ScopeGlobal means a discriminator may be owned by at most one live
	// resource across all tenants.
	ScopeGlobal Scope = "global"
	// ScopeTenant means a discriminator may repeat across tenants but is
	// unique within one tenant.
	ScopeTenant Scope = "tenant"
)

// Scope returns the uniqueness scope for the kind. Domain names route
// globally, so custom domains and domain mappings are globally unique;
// URL configurations only need to be unique within their tenant.
func (k Kind) Scope() Scope {
	if k == KindURLConfig {
		return ScopeTenant
	}
	return ScopeGlobal
}

// Status represents the lifecycle state of a resource.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusVerified            Status = "verified"
	StatusActive              Status = "active"
	StatusSuspended           Status = "suspended"
	StatusFailed              Status = "failed"
)

// Event represents an action that triggers a state transition, plus the
// non-lifecycle notifications published after registry mutations.
type Event string

const (
	EventVerify   Event = "verify"
	EventActivate Event = "activate"
	EventSuspend  Event = "suspend"
	EventFail     Event = "fail"
	EventReset    Event = "reset"

	// Notification-only events; never appear in the transition table.
	EventCreated  Event = "created"
	EventDeleted  Event = "deleted"
	EventPromoted Event = "promoted"
)

// Transition defines a valid state change: an event moves a resource from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the resource lifecycle.
// This is domain knowledge consumed by the FSM adapter. "fail" is the
// designated error-recovery transition and is allowed from every
// non-terminal state; "reset" is the only way out of "failed".
var Transitions = []Transition{
	{Event: EventVerify, Src: StatusPendingVerification, Dst: StatusVerified},
	{Event: EventActivate, Src: StatusVerified, Dst: StatusActive},
	{Event: EventActivate, Src: StatusSuspended, Dst: StatusActive},
	{Event: EventSuspend, Src: StatusActive, Dst: StatusSuspended},
	{Event: EventFail, Src: StatusPendingVerification, Dst: StatusFailed},
	{Event: EventFail, Src: StatusVerified, Dst: StatusFailed},
	{Event: EventFail, Src: StatusActive, Dst: StatusFailed},
	{Event: EventFail, Src: StatusSuspended, Dst: StatusFailed},
	{Event: EventReset, Src: StatusFailed, Dst: StatusPendingVerification},
}

// EventFor resolves the event that moves a resource from src to dst,
// if the transition table allows it.
func EventFor(src, dst Status) (Event, bool) {
	for _, tr := range Transitions {
		if tr.Src == src && tr.Dst == dst {
			return tr.Event, true
		}
	}
	return "", false
}

// SSLConfig holds certificate details for a domain-backed resource.
// Opaque to the registry invariants except for ExpiresAt, which feeds
// the expiring-certificate query.
type SSLConfig struct {
	CertificatePath string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// Resource is the core domain entity: one tenant-owned record whose
// discriminator (domain name, subdomain, or URL path) must stay unique
// within its kind's scope.
type Resource struct {
	ID            string
	TenantID      string
	Kind          Kind
	Discriminator string
	IsPrimary     bool
	IsEnabled     bool
	Status        Status
	FailureReason string
	VerifiedAt    *time.Time
	SSL           *SSLConfig
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Deleted reports whether the resource has been soft-deleted.
func (r Resource) Deleted() bool {
	return r.DeletedAt != nil
}

// NewResource creates a resource in the initial "pending_verification"
// state. The discriminator must already be normalized.
func NewResource(id, tenantID string, kind Kind, discriminator string) Resource {
	now := time.Now().UTC()
	return Resource{
		ID:            id,
		TenantID:      tenantID,
		Kind:          kind,
		Discriminator: discriminator,
		IsEnabled:     true,
		Status:        StatusPendingVerification,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Tenant is the owning organization a resource belongs to. The registry
// only needs its external identifier and display name; provisioning
// lives elsewhere.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
