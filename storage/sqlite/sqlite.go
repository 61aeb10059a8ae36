// Package sqlite provides the SQLite-file-backed storage.Backend variant,
// using the pure-Go modernc.org/sqlite driver and goose migrations, the
// way dotcommander-vybe's internal/store package manages its local store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/tarsy-substrate/substrate/errs"
	"github.com/tarsy-substrate/substrate/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Backend is the SQLite-backed storage.Backend implementation.
type Backend struct {
	tenant string
	db     *sql.DB
	owns   bool
}

// Open opens (creating if necessary) a SQLite database file at path,
// applies pending goose migrations, and returns a Backend scoped to the
// "default" tenant. path may be ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.New(errs.KindStorageIO, "sqlite.Open", err)
	}
	// SQLite allows only one writer at a time; a single connection avoids
	// "database is locked" errors under concurrent goroutines.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.New(errs.KindStorageIO, "sqlite.Open", fmt.Errorf("ping: %w", err))
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, errs.New(errs.KindStorageIO, "sqlite.Open", err)
	}

	return &Backend{tenant: "default", db: db, owns: true}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// WithTenant implements storage.Backend.
func (b *Backend) WithTenant(tenant string) storage.Backend {
	if tenant == "" {
		tenant = "default"
	}
	return &Backend{tenant: tenant, db: b.db, owns: false}
}

// Tenant implements storage.Backend.
func (b *Backend) Tenant() string { return b.tenant }

// Get implements storage.Backend.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE tenant_id = ? AND key = ?`, b.tenant, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, errs.NewWithKey(errs.KindNotFound, "sqlite.Get", key, nil)
	}
	if err != nil {
		return nil, errs.New(errs.KindStorageIO, "sqlite.Get", err)
	}
	return value, nil
}

// Set implements storage.Backend.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO kv_store (tenant_id, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		b.tenant, key, value)
	if err != nil {
		return errs.New(errs.KindStorageIO, "sqlite.Set", err)
	}
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM kv_store WHERE tenant_id = ? AND key = ?`, b.tenant, key,
	).Scan(&n)
	if err != nil {
		return false, errs.New(errs.KindStorageIO, "sqlite.Exists", err)
	}
	return n > 0, nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE tenant_id = ? AND key = ?`, b.tenant, key)
	if err != nil {
		return false, errs.New(errs.KindStorageIO, "sqlite.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List implements storage.Backend.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key FROM kv_store WHERE tenant_id = ? AND key LIKE ? ESCAPE '\' ORDER BY key`,
		b.tenant, escapeLike(prefix)+"%")
	if err != nil {
		return nil, errs.New(errs.KindStorageIO, "sqlite.List", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.New(errs.KindStorageIO, "sqlite.List", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			r = append(r, '\\')
		}
		r = append(r, s[i])
	}
	return string(r)
}

// Close implements storage.Backend.
func (b *Backend) Close() error {
	if !b.owns || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Health implements storage.HealthChecker, pinging the database and
// reporting connection-pool statistics.
func (b *Backend) Health(ctx context.Context) (storage.Health, error) {
	start := time.Now()
	if err := b.db.PingContext(ctx); err != nil {
		return storage.Health{Status: "unhealthy", ResponseTime: time.Since(start)}, err
	}
	stats := b.db.Stats()
	return storage.Health{
		Status:          "healthy",
		ResponseTime:    time.Since(start),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}, nil
}

// UpsertContentRefcount implements storage.RefcountStore.
func (b *Backend) UpsertContentRefcount(ctx context.Context, hash string) (int64, bool, error) {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO artifact_content_refs (tenant_id, content_hash, reference_count)
		VALUES (?, ?, 1)
		ON CONFLICT(tenant_id, content_hash) DO UPDATE SET reference_count = reference_count + 1`,
		b.tenant, hash)
	if err != nil {
		return 0, false, errs.New(errs.KindStorageIO, "sqlite.UpsertContentRefcount", err)
	}
	var refcount int64
	if err := b.db.QueryRowContext(ctx,
		`SELECT reference_count FROM artifact_content_refs WHERE tenant_id = ? AND content_hash = ?`,
		b.tenant, hash).Scan(&refcount); err != nil {
		return 0, false, errs.New(errs.KindStorageIO, "sqlite.UpsertContentRefcount", err)
	}
	return refcount, refcount == 1, nil
}

// DecrementContentRefcount implements storage.RefcountStore.
func (b *Backend) DecrementContentRefcount(ctx context.Context, hash string) (int64, error) {
	res, err := b.db.ExecContext(ctx, `
		UPDATE artifact_content_refs SET reference_count = reference_count - 1
		WHERE tenant_id = ? AND content_hash = ?`, b.tenant, hash)
	if err != nil {
		return 0, errs.New(errs.KindStorageIO, "sqlite.DecrementContentRefcount", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, nil
	}
	var refcount int64
	if err := b.db.QueryRowContext(ctx,
		`SELECT reference_count FROM artifact_content_refs WHERE tenant_id = ? AND content_hash = ?`,
		b.tenant, hash).Scan(&refcount); err != nil {
		return 0, errs.New(errs.KindStorageIO, "sqlite.DecrementContentRefcount", err)
	}
	if refcount <= 0 {
		_, err := b.db.ExecContext(ctx,
			`DELETE FROM artifact_content_refs WHERE tenant_id = ? AND content_hash = ?`, b.tenant, hash)
		if err != nil {
			return 0, errs.New(errs.KindStorageIO, "sqlite.DecrementContentRefcount", err)
		}
		return 0, nil
	}
	return refcount, nil
}

var _ storage.Backend = (*Backend)(nil)
var _ storage.RefcountStore = (*Backend)(nil)
