package sqlite

import (
	"context"
	"database/sql"

	"github.com/kavrel/tenantreg/internal/domain"
)

// Directory implements domain.TenantDirectory over the tenants table,
// translating external uuids to the surrogate keys the resources table
// references.
type Directory struct {
	db *sql.DB
}

// Compile-time check: Directory implements domain.TenantDirectory.
var _ domain.TenantDirectory = (*Directory)(nil)

// NewDirectory wraps an existing database connection. The connection is
// expected to have been migrated already (see New / NewFromDB).
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Resolve(ctx context.Context, externalID string) (domain.TenantRef, error) {
	var key int64
	err := d.db.QueryRowContext(ctx,
		`SELECT key FROM tenants WHERE id = ?`, externalID,
	).Scan(&key)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.TenantRef{}, domain.ErrTenantNotFound
		}
		return domain.TenantRef{}, &domain.StorageError{Op: "resolve tenant", Err: err}
	}
	return domain.TenantRef{ID: externalID, Key: key}, nil
}

func (d *Directory) ExternalID(ctx context.Context, key int64) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx,
		`SELECT id FROM tenants WHERE key = ?`, key,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", domain.ErrTenantNotFound
		}
		return "", &domain.StorageError{Op: "resolve tenant key", Err: err}
	}
	return id, nil
}

func (d *Directory) Register(ctx context.Context, tenant domain.Tenant) (domain.TenantRef, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)`,
		tenant.ID, tenant.Name, tenant.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return domain.TenantRef{}, &domain.StorageError{Op: "register tenant", Err: err}
	}

	key, err := result.LastInsertId()
	if err != nil {
		return domain.TenantRef{}, &domain.StorageError{Op: "register tenant", Err: err}
	}
	return domain.TenantRef{ID: tenant.ID, Key: key}, nil
}
