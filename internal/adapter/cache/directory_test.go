package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/kavrel/tenantreg/internal/adapter/cache"
	"github.com/kavrel/tenantreg/internal/domain"
)

// countingDirectory records how often each inner method is hit.
type countingDirectory struct {
	tenants  map[string]domain.TenantRef
	resolves int
	lookups  int
	nextKey  int64
}

func newCountingDirectory() *countingDirectory {
	return &countingDirectory{tenants: make(map[string]domain.TenantRef)}
}

func (c *countingDirectory) Resolve(_ context.Context, externalID string) (domain.TenantRef, error) {
	c.resolves++
	ref, ok := c.tenants[externalID]
	if !ok {
		return domain.TenantRef{}, domain.ErrTenantNotFound
	}
	return ref, nil
}

func (c *countingDirectory) ExternalID(_ context.Context, key int64) (string, error) {
	c.lookups++
	for id, ref := range c.tenants {
		if ref.Key == key {
			return id, nil
		}
	}
	return "", domain.ErrTenantNotFound
}

func (c *countingDirectory) Register(_ context.Context, tenant domain.Tenant) (domain.TenantRef, error) {
	c.nextKey++
	ref := domain.TenantRef{ID: tenant.ID, Key: c.nextKey}
	c.tenants[tenant.ID] = ref
	return ref, nil
}

func TestResolve_CachesAfterFirstHit(t *testing.T) {
	inner := newCountingDirectory()
	dir := cache.New(inner, time.Minute)
	ctx := context.Background()

	inner.tenants["t-1"] = domain.TenantRef{ID: "t-1", Key: 7}

	for i := 0; i < 3; i++ {
		ref, err := dir.Resolve(ctx, "t-1")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if ref.Key != 7 {
			t.Errorf("Key = %d, want 7", ref.Key)
		}
	}

	if inner.resolves != 1 {
		t.Errorf("inner resolves = %d, want 1", inner.resolves)
	}
}

func TestResolve_MissesAreNotCached(t *testing.T) {
	inner := newCountingDirectory()
	dir := cache.New(inner, time.Minute)
	ctx := context.Background()

	if _, err := dir.Resolve(ctx, "ghost"); err != domain.ErrTenantNotFound {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}

	// The tenant appears afterwards; the next resolve must see it.
	inner.tenants["ghost"] = domain.TenantRef{ID: "ghost", Key: 9}
	ref, err := dir.Resolve(ctx, "ghost")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ref.Key != 9 {
		t.Errorf("Key = %d, want 9", ref.Key)
	}
}

func TestRegister_PrimesBothDirections(t *testing.T) {
	inner := newCountingDirectory()
	dir := cache.New(inner, time.Minute)
	ctx := context.Background()

	ref, err := dir.Register(ctx, domain.Tenant{ID: "t-2", Name: "Acme"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := dir.Resolve(ctx, "t-2"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	id, err := dir.ExternalID(ctx, ref.Key)
	if err != nil {
		t.Fatalf("ExternalID failed: %v", err)
	}
	if id != "t-2" {
		t.Errorf("ExternalID = %q, want %q", id, "t-2")
	}

	if inner.resolves != 0 || inner.lookups != 0 {
		t.Errorf("inner hits after register = %d/%d, want 0/0", inner.resolves, inner.lookups)
	}
}
