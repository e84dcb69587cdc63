package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrTenantNotFound   = errors.New("tenant not found")
)

// ConflictError is returned when a discriminator is already owned by
// another live resource within the kind's uniqueness scope.
type ConflictError struct {
	Kind          Kind
	Discriminator string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is already in use", e.Kind, e.Discriminator)
}

// OwnershipError is returned when an operation targets a resource that
// does not belong to the claimed tenant.
type OwnershipError struct {
	ResourceID string
	TenantID   string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("resource %s does not belong to tenant %s", e.ResourceID, e.TenantID)
}

// TransitionError is returned when a state transition is not allowed.
// Event is set when a lifecycle event was rejected; Target is set when a
// direct status change has no path from the current state.
type TransitionError struct {
	Event   Event
	Target  Status
	Current Status
}

func (e *TransitionError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("no transition from state %q to %q", e.Current, e.Target)
	}
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// InvalidDiscriminatorError is returned when a discriminator fails
// normalization or format rules.
type InvalidDiscriminatorError struct {
	Value  string
	Reason string
}

func (e *InvalidDiscriminatorError) Error() string {
	return fmt.Sprintf("invalid discriminator %q: %s", e.Value, e.Reason)
}

// ValidationError is returned for malformed or missing attributes on
// create or update.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps an underlying transaction failure that is not
// otherwise classified. Always surfaced to the caller; the registry
// never retries on its own.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
