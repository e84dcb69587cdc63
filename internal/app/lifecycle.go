package app

import (
	"context"
	"time"

	"github.com/kavrel/tenantreg/internal/domain"
)

// Lifecycle applies verification, activation, suspension, and failure
// transitions. Every change is validated against the transition table
// and written as one atomic compare-and-set update, so a concurrent
// transition on the same resource makes the loser fail instead of
// silently clobbering state.
type Lifecycle struct {
	store     domain.ResourceStore
	validator domain.TransitionValidator
}

// NewLifecycle creates a lifecycle manager using the given transition
// validator.
func NewLifecycle(store domain.ResourceStore, validator domain.TransitionValidator) *Lifecycle {
	return &Lifecycle{store: store, validator: validator}
}

// Apply runs one lifecycle event against a resource. reason is recorded
// only for the "fail" event. VerifiedAt is set on "verify", cleared on
// "reset", and otherwise left untouched.
func (l *Lifecycle) Apply(ctx context.Context, id string, event domain.Event, reason string) (domain.Resource, error) {
	res, err := l.store.GetByID(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}

	next, err := l.validator.Apply(ctx, res.Status, event)
	if err != nil {
		return domain.Resource{}, err
	}

	upd := domain.StatusUpdate{
		Event:         event,
		From:          res.Status,
		To:            next,
		FailureReason: res.FailureReason,
	}

	switch event {
	case domain.EventVerify:
		now := time.Now().UTC()
		upd.VerifiedAt = &now
	case domain.EventReset:
		upd.ClearVerifiedAt = true
		upd.FailureReason = ""
	case domain.EventFail:
		upd.FailureReason = reason
	}

	return l.store.UpdateStatus(ctx, id, upd)
}

