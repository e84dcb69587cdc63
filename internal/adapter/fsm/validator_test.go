package fsm_test

import (
	"context"
	"errors"
	"testing"

	adapter "github.com/kavrel/tenantreg/internal/adapter/fsm"
	"github.com/kavrel/tenantreg/internal/domain"
)

func TestValidator_AllTransitions(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, tr := range domain.Transitions {
		dst, err := v.Apply(ctx, tr.Src, tr.Event)
		if err != nil {
			t.Errorf("Apply(%q, %q) unexpected error: %v", tr.Src, tr.Event, err)
			continue
		}
		if dst != tr.Dst {
			t.Errorf("Apply(%q, %q) = %q, want %q", tr.Src, tr.Event, dst, tr.Dst)
		}
	}
}

func TestValidator_InvalidTransition(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// Can't activate straight from "pending_verification".
	_, err := v.Apply(ctx, domain.StatusPendingVerification, domain.EventActivate)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Event != domain.EventActivate {
		t.Errorf("event = %q, want %q", trErr.Event, domain.EventActivate)
	}
	if trErr.Current != domain.StatusPendingVerification {
		t.Errorf("current = %q, want %q", trErr.Current, domain.StatusPendingVerification)
	}
}

func TestValidator_FullLifecycle(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	steps := []struct {
		from  domain.Status
		event domain.Event
		want  domain.Status
	}{
		{domain.StatusPendingVerification, domain.EventVerify, domain.StatusVerified},
		{domain.StatusVerified, domain.EventActivate, domain.StatusActive},
		{domain.StatusActive, domain.EventSuspend, domain.StatusSuspended},
		{domain.StatusSuspended, domain.EventActivate, domain.StatusActive},
		{domain.StatusActive, domain.EventFail, domain.StatusFailed},
		{domain.StatusFailed, domain.EventReset, domain.StatusPendingVerification},
	}

	for _, step := range steps {
		got, err := v.Apply(ctx, step.from, step.event)
		if err != nil {
			t.Fatalf("Apply(%q, %q) error: %v", step.from, step.event, err)
		}
		if got != step.want {
			t.Errorf("Apply(%q, %q) = %q, want %q", step.from, step.event, got, step.want)
		}
	}
}

func TestValidator_FailFromAnyNonTerminalState(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, src := range []domain.Status{
		domain.StatusPendingVerification,
		domain.StatusVerified,
		domain.StatusActive,
		domain.StatusSuspended,
	} {
		got, err := v.Apply(ctx, src, domain.EventFail)
		if err != nil {
			t.Errorf("Apply(%q, fail) error: %v", src, err)
			continue
		}
		if got != domain.StatusFailed {
			t.Errorf("Apply(%q, fail) = %q, want %q", src, got, domain.StatusFailed)
		}
	}
}

func TestValidator_FailedIsTerminalExceptReset(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, event := range []domain.Event{
		domain.EventVerify,
		domain.EventActivate,
		domain.EventSuspend,
		domain.EventFail,
	} {
		_, err := v.Apply(ctx, domain.StatusFailed, event)
		var trErr *domain.TransitionError
		if !errors.As(err, &trErr) {
			t.Errorf("Apply(failed, %q) = %v, want TransitionError", event, err)
		}
	}

	got, err := v.Apply(ctx, domain.StatusFailed, domain.EventReset)
	if err != nil {
		t.Fatalf("Apply(failed, reset) error: %v", err)
	}
	if got != domain.StatusPendingVerification {
		t.Errorf("Apply(failed, reset) = %q, want %q", got, domain.StatusPendingVerification)
	}
}

func TestValidator_NotificationEventsRejected(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// "created"/"deleted"/"promoted" are publish-only and never valid
	// as lifecycle transitions.
	for _, event := range []domain.Event{domain.EventCreated, domain.EventDeleted, domain.EventPromoted} {
		_, err := v.Apply(ctx, domain.StatusActive, event)
		var trErr *domain.TransitionError
		if !errors.As(err, &trErr) {
			t.Errorf("Apply(active, %q) = %v, want TransitionError", event, err)
		}
	}
}
