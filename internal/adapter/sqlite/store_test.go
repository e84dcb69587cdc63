package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kavrel/tenantreg/internal/adapter/sqlite"
	"github.com/kavrel/tenantreg/internal/domain"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) (*sqlite.Store, *sqlite.Directory) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, sqlite.NewDirectory(store.DB())
}

var tenantSeq int

func registerTenant(t *testing.T, dir *sqlite.Directory) domain.TenantRef {
	t.Helper()
	tenantSeq++
	tenant := domain.Tenant{
		ID:        fmt.Sprintf("11111111-0000-4000-8000-%012d", tenantSeq),
		Name:      fmt.Sprintf("Tenant %d", tenantSeq),
		CreatedAt: time.Now().UTC(),
	}
	ref, err := dir.Register(context.Background(), tenant)
	if err != nil {
		t.Fatalf("registering tenant: %v", err)
	}
	return ref
}

var resourceSeq int

func newResource(tenant domain.TenantRef, kind domain.Kind, discriminator string) domain.Resource {
	resourceSeq++
	id := fmt.Sprintf("22222222-0000-4000-8000-%012d", resourceSeq)
	return domain.NewResource(id, tenant.ID, kind, discriminator)
}

func mustInsert(t *testing.T, store *sqlite.Store, tenant domain.TenantRef, res domain.Resource) {
	t.Helper()
	if err := store.Insert(context.Background(), tenant, res, false); err != nil {
		t.Fatalf("mustInsert failed: %v", err)
	}
}

func TestInsert_And_GetByID(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	res := newResource(tenant, domain.KindCustomDomain, "shop.example.com")
	res.Metadata = map[string]string{"verification_method": "dns_txt"}

	if err := store.Insert(ctx, tenant, res, false); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.ID != res.ID {
		t.Errorf("ID = %q, want %q", got.ID, res.ID)
	}
	if got.TenantID != tenant.ID {
		t.Errorf("TenantID = %q, want %q", got.TenantID, tenant.ID)
	}
	if got.Kind != domain.KindCustomDomain {
		t.Errorf("Kind = %q, want %q", got.Kind, domain.KindCustomDomain)
	}
	if got.Discriminator != "shop.example.com" {
		t.Errorf("Discriminator = %q, want %q", got.Discriminator, "shop.example.com")
	}
	if got.Status != domain.StatusPendingVerification {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusPendingVerification)
	}
	if got.IsPrimary {
		t.Error("IsPrimary should be false")
	}
	if !got.IsEnabled {
		t.Error("IsEnabled should be true")
	}
	if got.Metadata["verification_method"] != "dns_txt" {
		t.Errorf("Metadata = %v, want verification_method=dns_txt", got.Metadata)
	}
	if got.VerifiedAt != nil {
		t.Error("VerifiedAt should be nil")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestInsert_GlobalUniqueness(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant1 := registerTenant(t, dir)
	tenant2 := registerTenant(t, dir)

	mustInsert(t, store, tenant1, newResource(tenant1, domain.KindCustomDomain, "shop.example.com"))

	// Custom domains are globally unique: a second tenant cannot claim
	// the same domain name.
	err := store.Insert(ctx, tenant2, newResource(tenant2, domain.KindCustomDomain, "shop.example.com"), false)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Discriminator != "shop.example.com" {
		t.Errorf("Discriminator = %q, want %q", conflict.Discriminator, "shop.example.com")
	}
}

func TestInsert_TenantScopedUniqueness(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant1 := registerTenant(t, dir)
	tenant2 := registerTenant(t, dir)

	mustInsert(t, store, tenant1, newResource(tenant1, domain.KindURLConfig, "/store"))

	// URL configurations are tenant-scoped: another tenant can reuse
	// the same path.
	if err := store.Insert(ctx, tenant2, newResource(tenant2, domain.KindURLConfig, "/store"), false); err != nil {
		t.Fatalf("cross-tenant url_config insert should succeed: %v", err)
	}

	// But not the same tenant.
	err := store.Insert(ctx, tenant1, newResource(tenant1, domain.KindURLConfig, "/store"), false)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestGetByDiscriminator_Scoping(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant1 := registerTenant(t, dir)
	tenant2 := registerTenant(t, dir)

	res := newResource(tenant1, domain.KindURLConfig, "/store")
	mustInsert(t, store, tenant1, res)

	got, err := store.GetByDiscriminator(ctx, domain.KindURLConfig, "/store", &tenant1)
	if err != nil {
		t.Fatalf("GetByDiscriminator failed: %v", err)
	}
	if got.ID != res.ID {
		t.Errorf("ID = %q, want %q", got.ID, res.ID)
	}

	_, err = store.GetByDiscriminator(ctx, domain.KindURLConfig, "/store", &tenant2)
	if !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound for other tenant, got %v", err)
	}
}

func TestSoftDelete_ReleasesDiscriminator(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	res := newResource(tenant, domain.KindCustomDomain, "release.example.com")
	mustInsert(t, store, tenant, res)

	deleted, err := store.SoftDelete(ctx, res.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if !deleted {
		t.Fatal("first delete should report true")
	}

	// Second delete is a no-op.
	deleted, err = store.SoftDelete(ctx, res.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("second SoftDelete failed: %v", err)
	}
	if deleted {
		t.Error("second delete should report false")
	}

	// Deleted rows are invisible to live reads.
	if _, err := store.GetByID(ctx, res.ID); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound after delete, got %v", err)
	}

	// The discriminator is free again.
	if err := store.Insert(ctx, tenant, newResource(tenant, domain.KindCustomDomain, "release.example.com"), false); err != nil {
		t.Errorf("reusing released discriminator should succeed: %v", err)
	}
}

func TestSwapPrimary(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	first := newResource(tenant, domain.KindCustomDomain, "first.example.com")
	second := newResource(tenant, domain.KindCustomDomain, "second.example.com")
	mustInsert(t, store, tenant, first)
	mustInsert(t, store, tenant, second)

	if err := store.SwapPrimary(ctx, tenant, domain.KindCustomDomain, first.ID); err != nil {
		t.Fatalf("first SwapPrimary failed: %v", err)
	}
	if err := store.SwapPrimary(ctx, tenant, domain.KindCustomDomain, second.ID); err != nil {
		t.Fatalf("second SwapPrimary failed: %v", err)
	}

	gotFirst, _ := store.GetByID(ctx, first.ID)
	gotSecond, _ := store.GetByID(ctx, second.ID)
	if gotFirst.IsPrimary {
		t.Error("first resource should have been demoted")
	}
	if !gotSecond.IsPrimary {
		t.Error("second resource should be primary")
	}

	primary, err := store.GetPrimary(ctx, tenant, domain.KindCustomDomain)
	if err != nil {
		t.Fatalf("GetPrimary failed: %v", err)
	}
	if primary.ID != second.ID {
		t.Errorf("primary = %q, want %q", primary.ID, second.ID)
	}
}

func TestSwapPrimary_UnknownResource(t *testing.T) {
	store, dir := newTestStore(t)
	tenant := registerTenant(t, dir)

	err := store.SwapPrimary(context.Background(), tenant, domain.KindCustomDomain, "nonexistent")
	if !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestInsert_AsPrimary_DemotesCurrent(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	first := newResource(tenant, domain.KindURLConfig, "/old")
	if err := store.Insert(ctx, tenant, first, true); err != nil {
		t.Fatalf("Insert as primary failed: %v", err)
	}

	second := newResource(tenant, domain.KindURLConfig, "/new")
	if err := store.Insert(ctx, tenant, second, true); err != nil {
		t.Fatalf("second Insert as primary failed: %v", err)
	}

	gotFirst, _ := store.GetByID(ctx, first.ID)
	if gotFirst.IsPrimary {
		t.Error("first resource should have been demoted on insert")
	}

	has, err := store.HasPrimary(ctx, tenant, domain.KindURLConfig)
	if err != nil {
		t.Fatalf("HasPrimary failed: %v", err)
	}
	if !has {
		t.Error("tenant should have a primary url_config")
	}
}

func TestClearPrimary(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	res := newResource(tenant, domain.KindCustomDomain, "primary.example.com")
	if err := store.Insert(ctx, tenant, res, true); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.ClearPrimary(ctx, tenant, domain.KindCustomDomain); err != nil {
		t.Fatalf("ClearPrimary failed: %v", err)
	}

	has, err := store.HasPrimary(ctx, tenant, domain.KindCustomDomain)
	if err != nil {
		t.Fatalf("HasPrimary failed: %v", err)
	}
	if has {
		t.Error("primary flag should have been cleared")
	}
}

func TestUpdateStatus_CompareAndSet(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	res := newResource(tenant, domain.KindCustomDomain, "verify.example.com")
	mustInsert(t, store, tenant, res)

	now := time.Now().UTC().Truncate(time.Second)
	got, err := store.UpdateStatus(ctx, res.ID, domain.StatusUpdate{
		Event:      domain.EventVerify,
		From:       domain.StatusPendingVerification,
		To:         domain.StatusVerified,
		VerifiedAt: &now,
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if got.Status != domain.StatusVerified {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusVerified)
	}
	if got.VerifiedAt == nil || !got.VerifiedAt.Equal(now) {
		t.Errorf("VerifiedAt = %v, want %v", got.VerifiedAt, now)
	}

	// A stale From loses the race and reports the actual state.
	_, err = store.UpdateStatus(ctx, res.ID, domain.StatusUpdate{
		Event: domain.EventVerify,
		From:  domain.StatusPendingVerification,
		To:    domain.StatusVerified,
	})
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Current != domain.StatusVerified {
		t.Errorf("Current = %q, want %q", trErr.Current, domain.StatusVerified)
	}
}

func TestUpdateStatus_ClearVerifiedAt(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	res := newResource(tenant, domain.KindCustomDomain, "reset.example.com")
	mustInsert(t, store, tenant, res)

	now := time.Now().UTC().Truncate(time.Second)
	if _, err := store.UpdateStatus(ctx, res.ID, domain.StatusUpdate{
		Event: domain.EventVerify, From: domain.StatusPendingVerification,
		To: domain.StatusVerified, VerifiedAt: &now,
	}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, res.ID, domain.StatusUpdate{
		Event: domain.EventFail, From: domain.StatusVerified,
		To: domain.StatusFailed, FailureReason: "dns expired",
	}); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	// Failure keeps VerifiedAt.
	got, _ := store.GetByID(ctx, res.ID)
	if got.VerifiedAt == nil {
		t.Error("VerifiedAt should survive the fail transition")
	}
	if got.FailureReason != "dns expired" {
		t.Errorf("FailureReason = %q, want %q", got.FailureReason, "dns expired")
	}

	// Reset clears it.
	got, err := store.UpdateStatus(ctx, res.ID, domain.StatusUpdate{
		Event: domain.EventReset, From: domain.StatusFailed,
		To: domain.StatusPendingVerification, ClearVerifiedAt: true,
	})
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got.VerifiedAt != nil {
		t.Error("VerifiedAt should be cleared on reset")
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.UpdateStatus(context.Background(), "nonexistent", domain.StatusUpdate{
		Event: domain.EventVerify, From: domain.StatusPendingVerification, To: domain.StatusVerified,
	})
	if !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestUpdate_MutableFields(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	res := newResource(tenant, domain.KindCustomDomain, "mutable.example.com")
	mustInsert(t, store, tenant, res)

	res.IsEnabled = false
	res.Metadata = map[string]string{"dns_record_id": "rec-42"}
	res.SSL = &domain.SSLConfig{
		CertificatePath: "/etc/ssl/mutable.pem",
		IssuedAt:        time.Now().UTC().Add(-time.Hour).Truncate(time.Second),
		ExpiresAt:       time.Now().UTC().Add(90 * 24 * time.Hour).Truncate(time.Second),
	}

	if err := store.Update(ctx, res); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.IsEnabled {
		t.Error("IsEnabled should be false")
	}
	if got.Metadata["dns_record_id"] != "rec-42" {
		t.Errorf("Metadata = %v, want dns_record_id=rec-42", got.Metadata)
	}
	if got.SSL == nil || got.SSL.CertificatePath != "/etc/ssl/mutable.pem" {
		t.Errorf("SSL = %+v, want certificate path preserved", got.SSL)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	store, dir := newTestStore(t)
	tenant := registerTenant(t, dir)

	res := newResource(tenant, domain.KindCustomDomain, "ghost.example.com")
	err := store.Update(context.Background(), res)
	if !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestListByTenant_Filters(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)
	other := registerTenant(t, dir)

	a := newResource(tenant, domain.KindCustomDomain, "a.example.com")
	b := newResource(tenant, domain.KindURLConfig, "/b")
	c := newResource(other, domain.KindCustomDomain, "c.example.com")
	mustInsert(t, store, tenant, a)
	mustInsert(t, store, tenant, b)
	mustInsert(t, store, other, c)

	all, err := store.ListByTenant(ctx, tenant, domain.ListFilter{})
	if err != nil {
		t.Fatalf("ListByTenant failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d resources, want 2", len(all))
	}
	for _, res := range all {
		if res.TenantID != tenant.ID {
			t.Errorf("resource %s leaked from tenant %s", res.ID, res.TenantID)
		}
	}

	kind := domain.KindURLConfig
	configs, err := store.ListByTenant(ctx, tenant, domain.ListFilter{Kind: &kind})
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if len(configs) != 1 || configs[0].ID != b.ID {
		t.Errorf("kind filter returned %d rows, want just %s", len(configs), b.ID)
	}

	// Soft-deleted rows stay out unless asked for.
	if _, err := store.SoftDelete(ctx, a.ID, time.Now().UTC()); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	live, _ := store.ListByTenant(ctx, tenant, domain.ListFilter{})
	if len(live) != 1 {
		t.Errorf("got %d live resources, want 1", len(live))
	}
	audit, _ := store.ListByTenant(ctx, tenant, domain.ListFilter{IncludeDeleted: true})
	if len(audit) != 2 {
		t.Errorf("got %d resources including deleted, want 2", len(audit))
	}
}

func TestCountByTenant(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	for i := 0; i < 3; i++ {
		mustInsert(t, store, tenant, newResource(tenant, domain.KindCustomDomain, fmt.Sprintf("count%d.example.com", i)))
	}

	count, err := store.CountByTenant(ctx, tenant, domain.ListFilter{})
	if err != nil {
		t.Fatalf("CountByTenant failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	status := domain.StatusPendingVerification
	count, err = store.CountByTenant(ctx, tenant, domain.ListFilter{Status: &status})
	if err != nil {
		t.Fatalf("filtered count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("pending count = %d, want 3", count)
	}
}

func TestListPendingVerification(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	pendingDomain := newResource(tenant, domain.KindCustomDomain, "pending.example.com")
	pendingConfig := newResource(tenant, domain.KindURLConfig, "/pending")
	mustInsert(t, store, tenant, pendingDomain)
	mustInsert(t, store, tenant, pendingConfig)

	verified := newResource(tenant, domain.KindCustomDomain, "done.example.com")
	mustInsert(t, store, tenant, verified)
	now := time.Now().UTC()
	if _, err := store.UpdateStatus(ctx, verified.ID, domain.StatusUpdate{
		Event: domain.EventVerify, From: domain.StatusPendingVerification,
		To: domain.StatusVerified, VerifiedAt: &now,
	}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	pending, err := store.ListPendingVerification(ctx, nil)
	if err != nil {
		t.Fatalf("ListPendingVerification failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("got %d pending resources, want 2", len(pending))
	}

	kind := domain.KindCustomDomain
	pendingDomains, err := store.ListPendingVerification(ctx, &kind)
	if err != nil {
		t.Fatalf("filtered ListPendingVerification failed: %v", err)
	}
	if len(pendingDomains) != 1 || pendingDomains[0].ID != pendingDomain.ID {
		t.Errorf("kind filter returned %d rows, want just %s", len(pendingDomains), pendingDomain.ID)
	}
}

func TestListExpiringSSL(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, dir)

	expiring := newResource(tenant, domain.KindCustomDomain, "expiring.example.com")
	expiring.SSL = &domain.SSLConfig{
		CertificatePath: "/etc/ssl/expiring.pem",
		IssuedAt:        time.Now().UTC().Add(-60 * 24 * time.Hour),
		ExpiresAt:       time.Now().UTC().Add(15 * 24 * time.Hour),
	}
	mustInsert(t, store, tenant, expiring)

	fresh := newResource(tenant, domain.KindCustomDomain, "fresh.example.com")
	fresh.SSL = &domain.SSLConfig{
		CertificatePath: "/etc/ssl/fresh.pem",
		IssuedAt:        time.Now().UTC(),
		ExpiresAt:       time.Now().UTC().Add(300 * 24 * time.Hour),
	}
	mustInsert(t, store, tenant, fresh)

	noSSL := newResource(tenant, domain.KindCustomDomain, "plain.example.com")
	mustInsert(t, store, tenant, noSSL)

	got, err := store.ListExpiringSSL(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("ListExpiringSSL failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d expiring resources, want 1", len(got))
	}
	if got[0].ID != expiring.ID {
		t.Errorf("expiring = %q, want %q", got[0].ID, expiring.ID)
	}
}

func TestDirectory_RegisterAndResolve(t *testing.T) {
	_, dir := newTestStore(t)
	ctx := context.Background()

	tenant := domain.Tenant{
		ID:        "33333333-0000-4000-8000-000000000001",
		Name:      "Acme Corp",
		CreatedAt: time.Now().UTC(),
	}
	ref, err := dir.Register(ctx, tenant)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if ref.Key == 0 {
		t.Error("Key should be assigned")
	}

	resolved, err := dir.Resolve(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Key != ref.Key {
		t.Errorf("Key = %d, want %d", resolved.Key, ref.Key)
	}

	id, err := dir.ExternalID(ctx, ref.Key)
	if err != nil {
		t.Fatalf("ExternalID failed: %v", err)
	}
	if id != tenant.ID {
		t.Errorf("ExternalID = %q, want %q", id, tenant.ID)
	}
}

func TestDirectory_NotFound(t *testing.T) {
	_, dir := newTestStore(t)
	ctx := context.Background()

	if _, err := dir.Resolve(ctx, "unknown"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("Resolve: expected ErrTenantNotFound, got %v", err)
	}
	if _, err := dir.ExternalID(ctx, 9999); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("ExternalID: expected ErrTenantNotFound, got %v", err)
	}
}
