package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/kavrel/tenantreg/internal/adapter/fsm"
	"github.com/kavrel/tenantreg/internal/adapter/sqlite"
	"github.com/kavrel/tenantreg/internal/app"
	"github.com/kavrel/tenantreg/internal/domain"
)

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Event, domain.Resource) error { return nil }

// registryMachine drives random sequences of registry operations against the
// real sqlite store and checks the structural invariants after every step.
type registryMachine struct {
	registry *app.Registry
	ctx      context.Context

	tenants []string
	ids     []string
}

func newRegistryMachine(t *rapid.T) *registryMachine {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	m := &registryMachine{
		registry: app.NewRegistry(store, sqlite.NewDirectory(store.DB()), noopPublisher{}, fsm.New()),
		ctx:      context.Background(),
	}
	for i := 0; i < 3; i++ {
		tenant, err := m.registry.RegisterTenant(m.ctx, fmt.Sprintf("tenant-%d", i))
		if err != nil {
			t.Fatalf("register tenant: %v", err)
		}
		m.tenants = append(m.tenants, tenant.ID)
	}
	return m
}

func (m *registryMachine) tenant(t *rapid.T) string {
	return rapid.SampledFrom(m.tenants).Draw(t, "tenant")
}

func (m *registryMachine) resource(t *rapid.T) (string, bool) {
	if len(m.ids) == 0 {
		return "", false
	}
	return rapid.SampledFrom(m.ids).Draw(t, "resource"), true
}

func (m *registryMachine) Create(t *rapid.T) {
	label := rapid.StringMatching(`[a-z][a-z0-9]{0,6}`).Draw(t, "label")
	kind := rapid.SampledFrom([]domain.Kind{
		domain.KindCustomDomain, domain.KindURLConfig, domain.KindDomainMapping,
	}).Draw(t, "kind")

	disc := label + ".example.com"
	if kind == domain.KindURLConfig {
		disc = "/" + label
	}

	res, err := m.registry.Create(m.ctx, m.tenant(t), app.CreateParams{
		Kind:          kind,
		Discriminator: disc,
		Primary:       rapid.Bool().Draw(t, "primary"),
	})
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return
		}
		t.Fatalf("create: %v", err)
	}
	m.ids = append(m.ids, res.ID)
}

func (m *registryMachine) Promote(t *rapid.T) {
	id, ok := m.resource(t)
	if !ok {
		return
	}
	res, err := m.registry.GetByID(m.ctx, id)
	if errors.Is(err, domain.ErrResourceNotFound) {
		return
	}
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := m.registry.PromoteToPrimary(m.ctx, id, res.TenantID); err != nil {
		t.Fatalf("promote: %v", err)
	}
}

func (m *registryMachine) Transition(t *rapid.T) {
	id, ok := m.resource(t)
	if !ok {
		return
	}
	event := rapid.SampledFrom([]domain.Event{
		domain.EventVerify, domain.EventActivate, domain.EventSuspend,
		domain.EventFail, domain.EventReset,
	}).Draw(t, "event")

	_, err := m.registry.Transition(m.ctx, id, event, "induced")
	if err != nil {
		var trErr *domain.TransitionError
		if errors.As(err, &trErr) || errors.Is(err, domain.ErrResourceNotFound) {
			return
		}
		t.Fatalf("transition: %v", err)
	}
}

func (m *registryMachine) Delete(t *rapid.T) {
	id, ok := m.resource(t)
	if !ok {
		return
	}
	if _, err := m.registry.Delete(m.ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

// Check holds the invariants that must survive any operation sequence:
// no duplicate live discriminators within a uniqueness scope, and at most
// one primary per tenant and kind.
func (m *registryMachine) Check(t *rapid.T) {
	type scopeKey struct {
		tenant string
		kind   domain.Kind
		disc   string
	}
	seen := make(map[scopeKey]struct{})
	primaries := make(map[string]int)

	for _, tenantID := range m.tenants {
		list, err := m.registry.FindByTenant(m.ctx, tenantID, domain.ListFilter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, res := range list {
			key := scopeKey{kind: res.Kind, disc: res.Discriminator}
			if res.Kind.Scope() == domain.ScopeTenant {
				key.tenant = res.TenantID
			}
			if _, dup := seen[key]; dup {
				t.Fatalf("duplicate live discriminator %q for kind %q", res.Discriminator, res.Kind)
			}
			seen[key] = struct{}{}

			if res.IsPrimary {
				pk := res.TenantID + "/" + string(res.Kind)
				primaries[pk]++
				if primaries[pk] > 1 {
					t.Fatalf("tenant %s has multiple primaries for kind %q", res.TenantID, res.Kind)
				}
				if res.Deleted() {
					t.Fatalf("deleted resource %s still marked primary", res.ID)
				}
			}
			if res.Status == domain.StatusVerified || res.Status == domain.StatusActive {
				if res.VerifiedAt == nil {
					t.Fatalf("resource %s is %s without a verification timestamp", res.ID, res.Status)
				}
			}
			if res.Status == domain.StatusPendingVerification && res.VerifiedAt != nil {
				t.Fatalf("resource %s is pending with a stale verification timestamp", res.ID)
			}
		}
	}
}

func TestRegistryInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newRegistryMachine(t)
		t.Repeat(map[string]func(*rapid.T){
			"create":     m.Create,
			"promote":    m.Promote,
			"transition": m.Transition,
			"delete":     m.Delete,
			"":           m.Check,
		})
	})
}
