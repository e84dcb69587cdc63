// Package cache provides a caching decorator for the tenant directory.
// Tenant identity rows are immutable once registered, so resolved
// references can be cached aggressively.
package cache

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kavrel/tenantreg/internal/domain"
)

var _ domain.TenantDirectory = (*Directory)(nil)

// Directory wraps a domain.TenantDirectory with an in-memory cache for
// both lookup directions.
type Directory struct {
	inner domain.TenantDirectory
	cache *gocache.Cache
}

// New wraps the given directory. Entries expire after ttl; a ttl of 0
// keeps them until eviction at 2x the cleanup interval.
func New(inner domain.TenantDirectory, ttl time.Duration) *Directory {
	return &Directory{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (d *Directory) Resolve(ctx context.Context, externalID string) (domain.TenantRef, error) {
	if v, ok := d.cache.Get("id:" + externalID); ok {
		return v.(domain.TenantRef), nil
	}

	ref, err := d.inner.Resolve(ctx, externalID)
	if err != nil {
		return domain.TenantRef{}, err
	}
	d.put(ref)
	return ref, nil
}

func (d *Directory) ExternalID(ctx context.Context, key int64) (string, error) {
	if v, ok := d.cache.Get("key:" + strconv.FormatInt(key, 10)); ok {
		return v.(domain.TenantRef).ID, nil
	}

	id, err := d.inner.ExternalID(ctx, key)
	if err != nil {
		return "", err
	}
	d.put(domain.TenantRef{ID: id, Key: key})
	return id, nil
}

func (d *Directory) Register(ctx context.Context, tenant domain.Tenant) (domain.TenantRef, error) {
	ref, err := d.inner.Register(ctx, tenant)
	if err != nil {
		return domain.TenantRef{}, err
	}
	d.put(ref)
	return ref, nil
}

func (d *Directory) put(ref domain.TenantRef) {
	d.cache.SetDefault("id:"+ref.ID, ref)
	d.cache.SetDefault("key:"+strconv.FormatInt(ref.Key, 10), ref)
}
