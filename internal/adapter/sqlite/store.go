package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kavrel/tenantreg/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements domain.ResourceStore using SQLite. Multi-write
// operations run inside explicit transactions; the partial unique
// indexes from the migrations are the final backstop for the
// discriminator and primary invariants. With a single connection,
// SQLite serializes writers, which stands in for row-level locking.
type Store struct {
	db *sql.DB
}

// Compile-time check: Store implements domain.ResourceStore.
var _ domain.ResourceStore = (*Store)(nil)

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection avoids SQLITE_BUSY when the job queue shares
	// the database, and makes write transactions strictly serial.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready store. Use this when the *sql.DB has been
// pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other
// adapters (e.g., the tenant directory and river).
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

const resourceColumns = `r.id, t.id, r.kind, r.discriminator, r.is_primary, r.is_enabled,
	 r.status, r.failure_reason, r.verified_at, r.ssl_certificate_path, r.ssl_issued_at,
	 r.ssl_expires_at, r.metadata, r.created_at, r.updated_at, r.deleted_at`

const resourceFrom = ` FROM resources r JOIN tenants t ON t.key = r.tenant_key`

func (s *Store) Insert(ctx context.Context, tenant domain.TenantRef, res domain.Resource, asPrimary bool) error {
	meta, err := encodeMetadata(res.Metadata)
	if err != nil {
		return &domain.StorageError{Op: "encode metadata", Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin insert", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if asPrimary {
		if err := demotePrimary(ctx, tx, tenant.Key, res.Kind); err != nil {
			return err
		}
	}

	certPath, issuedAt, expiresAt := encodeSSL(res.SSL)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO resources (id, tenant_key, kind, discriminator, is_primary, is_enabled,
		 status, failure_reason, verified_at, ssl_certificate_path, ssl_issued_at,
		 ssl_expires_at, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, tenant.Key, string(res.Kind), res.Discriminator,
		boolToInt(asPrimary), boolToInt(res.IsEnabled),
		string(res.Status), res.FailureReason, nullableTime(res.VerifiedAt),
		certPath, issuedAt, expiresAt, meta,
		res.CreatedAt.Format(timeFormat), res.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{Kind: res.Kind, Discriminator: res.Discriminator}
		}
		return &domain.StorageError{Op: "insert resource", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit insert", Err: err}
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (domain.Resource, error) {
	return s.scanResource(s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+resourceFrom+` WHERE r.id = ? AND r.deleted_at IS NULL`, id,
	))
}

func (s *Store) GetByDiscriminator(ctx context.Context, kind domain.Kind, discriminator string, tenant *domain.TenantRef) (domain.Resource, error) {
	query := `SELECT ` + resourceColumns + resourceFrom +
		` WHERE r.kind = ? AND r.discriminator = ? AND r.deleted_at IS NULL`
	args := []any{string(kind), discriminator}

	if tenant != nil {
		query += ` AND r.tenant_key = ?`
		args = append(args, tenant.Key)
	}

	return s.scanResource(s.db.QueryRowContext(ctx, query, args...))
}

func (s *Store) ListByTenant(ctx context.Context, tenant domain.TenantRef, filter domain.ListFilter) ([]domain.Resource, error) {
	query := `SELECT ` + resourceColumns + resourceFrom + ` WHERE r.tenant_key = ?`
	args := []any{tenant.Key}

	query, args = applyFilter(query, args, filter)
	query += ` ORDER BY r.created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	return s.queryResources(ctx, query, args...)
}

func (s *Store) CountByTenant(ctx context.Context, tenant domain.TenantRef, filter domain.ListFilter) (int64, error) {
	query := `SELECT COUNT(*)` + resourceFrom + ` WHERE r.tenant_key = ?`
	args := []any{tenant.Key}
	query, args = applyFilter(query, args, filter)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, &domain.StorageError{Op: "count resources", Err: err}
	}
	return count, nil
}

func (s *Store) ListPendingVerification(ctx context.Context, kind *domain.Kind) ([]domain.Resource, error) {
	query := `SELECT ` + resourceColumns + resourceFrom +
		` WHERE r.status = ? AND r.deleted_at IS NULL`
	args := []any{string(domain.StatusPendingVerification)}

	if kind != nil {
		query += ` AND r.kind = ?`
		args = append(args, string(*kind))
	}
	query += ` ORDER BY r.created_at ASC`

	return s.queryResources(ctx, query, args...)
}

func (s *Store) ListExpiringSSL(ctx context.Context, within time.Duration) ([]domain.Resource, error) {
	cutoff := time.Now().UTC().Add(within).Format(timeFormat)

	// timeFormat sorts lexicographically, so string comparison works.
	return s.queryResources(ctx,
		`SELECT `+resourceColumns+resourceFrom+
			` WHERE r.ssl_expires_at IS NOT NULL AND r.ssl_expires_at <= ? AND r.deleted_at IS NULL
			 ORDER BY r.ssl_expires_at ASC`,
		cutoff,
	)
}

func (s *Store) Update(ctx context.Context, res domain.Resource) error {
	meta, err := encodeMetadata(res.Metadata)
	if err != nil {
		return &domain.StorageError{Op: "encode metadata", Err: err}
	}
	certPath, issuedAt, expiresAt := encodeSSL(res.SSL)

	result, err := s.db.ExecContext(ctx,
		`UPDATE resources SET is_enabled = ?, ssl_certificate_path = ?, ssl_issued_at = ?,
		 ssl_expires_at = ?, metadata = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		boolToInt(res.IsEnabled), certPath, issuedAt, expiresAt, meta,
		time.Now().UTC().Format(timeFormat), res.ID,
	)
	if err != nil {
		return &domain.StorageError{Op: "update resource", Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return &domain.StorageError{Op: "update resource", Err: err}
	}
	if rows == 0 {
		return domain.ErrResourceNotFound
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, upd domain.StatusUpdate) (domain.Resource, error) {
	set := `status = ?, failure_reason = ?, updated_at = ?`
	args := []any{string(upd.To), upd.FailureReason, time.Now().UTC().Format(timeFormat)}

	switch {
	case upd.VerifiedAt != nil:
		set += `, verified_at = ?`
		args = append(args, upd.VerifiedAt.Format(timeFormat))
	case upd.ClearVerifiedAt:
		set += `, verified_at = NULL`
	}

	args = append(args, id, string(upd.From))

	// Compare-and-set: only applies while the resource is still in the
	// state the caller validated against.
	result, err := s.db.ExecContext(ctx,
		`UPDATE resources SET `+set+` WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		args...,
	)
	if err != nil {
		return domain.Resource{}, &domain.StorageError{Op: "update status", Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Resource{}, &domain.StorageError{Op: "update status", Err: err}
	}
	if rows == 0 {
		// Either the resource is gone or a concurrent transition won.
		current, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return domain.Resource{}, getErr
		}
		return domain.Resource{}, &domain.TransitionError{Event: upd.Event, Current: current.Status}
	}

	return s.GetByID(ctx, id)
}

func (s *Store) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	// One statement marks the row deleted and releases the primary
	// slot; the partial unique indexes stop covering it immediately.
	result, err := s.db.ExecContext(ctx,
		`UPDATE resources SET deleted_at = ?, is_primary = 0, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		at.Format(timeFormat), at.Format(timeFormat), id,
	)
	if err != nil {
		return false, &domain.StorageError{Op: "soft delete", Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, &domain.StorageError{Op: "soft delete", Err: err}
	}
	return rows > 0, nil
}

func (s *Store) SwapPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin swap primary", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := demotePrimary(ctx, tx, tenant.Key, kind); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE resources SET is_primary = 1, updated_at = ?
		 WHERE id = ? AND tenant_key = ? AND kind = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(timeFormat), id, tenant.Key, string(kind),
	)
	if err != nil {
		return &domain.StorageError{Op: "promote primary", Err: err}
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return &domain.StorageError{Op: "promote primary", Err: err}
	}
	if rows == 0 {
		return domain.ErrResourceNotFound
	}

	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit swap primary", Err: err}
	}
	return nil
}

func (s *Store) ClearPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE resources SET is_primary = 0, updated_at = ?
		 WHERE tenant_key = ? AND kind = ? AND is_primary = 1 AND deleted_at IS NULL`,
		time.Now().UTC().Format(timeFormat), tenant.Key, string(kind),
	)
	if err != nil {
		return &domain.StorageError{Op: "clear primary", Err: err}
	}
	return nil
}

func (s *Store) HasPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM resources
		 WHERE tenant_key = ? AND kind = ? AND is_primary = 1 AND deleted_at IS NULL)`,
		tenant.Key, string(kind),
	).Scan(&exists)
	if err != nil {
		return false, &domain.StorageError{Op: "has primary", Err: err}
	}
	return exists, nil
}

func (s *Store) GetPrimary(ctx context.Context, tenant domain.TenantRef, kind domain.Kind) (domain.Resource, error) {
	return s.scanResource(s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+resourceFrom+
			` WHERE r.tenant_key = ? AND r.kind = ? AND r.is_primary = 1 AND r.deleted_at IS NULL`,
		tenant.Key, string(kind),
	))
}

// demotePrimary unsets the current primary inside an open transaction.
func demotePrimary(ctx context.Context, tx *sql.Tx, tenantKey int64, kind domain.Kind) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE resources SET is_primary = 0, updated_at = ?
		 WHERE tenant_key = ? AND kind = ? AND is_primary = 1 AND deleted_at IS NULL`,
		time.Now().UTC().Format(timeFormat), tenantKey, string(kind),
	)
	if err != nil {
		return &domain.StorageError{Op: "demote primary", Err: err}
	}
	return nil
}

func applyFilter(query string, args []any, filter domain.ListFilter) (string, []any) {
	if !filter.IncludeDeleted {
		query += ` AND r.deleted_at IS NULL`
	}
	if filter.Kind != nil {
		query += ` AND r.kind = ?`
		args = append(args, string(*filter.Kind))
	}
	if filter.Status != nil {
		query += ` AND r.status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.Enabled != nil {
		query += ` AND r.is_enabled = ?`
		args = append(args, boolToInt(*filter.Enabled))
	}
	if filter.PrimaryOnly {
		query += ` AND r.is_primary = 1`
	}
	return query, args
}

func (s *Store) queryResources(ctx context.Context, query string, args ...any) ([]domain.Resource, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StorageError{Op: "query resources", Err: err}
	}
	defer rows.Close()

	var resources []domain.Resource
	for rows.Next() {
		res, err := scanResourceRow(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "query resources", Err: err}
	}
	return resources, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanResource(row *sql.Row) (domain.Resource, error) {
	res, err := scanResourceRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Resource{}, domain.ErrResourceNotFound
		}
		return domain.Resource{}, err
	}
	return res, nil
}

func scanResourceRow(row rowScanner) (domain.Resource, error) {
	var res domain.Resource
	var kind, status, createdAt, updatedAt, meta, certPath string
	var isPrimary, isEnabled int
	var verifiedAt, issuedAt, expiresAt, deletedAt sql.NullString

	err := row.Scan(&res.ID, &res.TenantID, &kind, &res.Discriminator, &isPrimary, &isEnabled,
		&status, &res.FailureReason, &verifiedAt, &certPath, &issuedAt,
		&expiresAt, &meta, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Resource{}, err
		}
		return domain.Resource{}, &domain.StorageError{Op: "scan resource", Err: err}
	}

	res.Kind = domain.Kind(kind)
	res.Status = domain.Status(status)
	res.IsPrimary = isPrimary == 1
	res.IsEnabled = isEnabled == 1
	res.VerifiedAt = parseNullableTime(verifiedAt)
	res.DeletedAt = parseNullableTime(deletedAt)
	res.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	res.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	if certPath != "" {
		ssl := &domain.SSLConfig{CertificatePath: certPath}
		if t := parseNullableTime(issuedAt); t != nil {
			ssl.IssuedAt = *t
		}
		if t := parseNullableTime(expiresAt); t != nil {
			ssl.ExpiresAt = *t
		}
		res.SSL = ssl
	}

	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &res.Metadata); err != nil {
			return domain.Resource{}, &domain.StorageError{Op: "decode metadata", Err: err}
		}
	}

	return res, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeSSL(ssl *domain.SSLConfig) (certPath string, issuedAt, expiresAt any) {
	if ssl == nil {
		return "", nil, nil
	}
	return ssl.CertificatePath,
		ssl.IssuedAt.UTC().Format(timeFormat),
		ssl.ExpiresAt.UTC().Format(timeFormat)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
