// Package postgres provides the Postgres-backed storage.Backend variant,
// grounded in the teacher's pkg/database/client.go connection-pool and
// migration-on-boot pattern, adapted from an ent-generated client to a
// direct database/sql + pgx/v5 client since the generated ent code for
// this schema is not part of the retrieval pack (see DESIGN.md).
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/tarsy-substrate/substrate/errs"
	"github.com/tarsy-substrate/substrate/storage"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	return c
}

// Backend is the Postgres-backed storage.Backend implementation.
type Backend struct {
	tenant string
	db     *sql.DB
	owns   bool
}

// New opens a connection pool, runs embedded migrations, and returns a
// Backend scoped to the "default" tenant.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	cfg = cfg.withDefaults()
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errs.New(errs.KindStorageIO, "postgres.New", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.New(errs.KindStorageIO, "postgres.New", fmt.Errorf("ping: %w", err))
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, errs.New(errs.KindStorageIO, "postgres.New", fmt.Errorf("migrate: %w", err))
	}

	return &Backend{tenant: "default", db: db, owns: true}, nil
}

// NewFromDB wraps an already-open *sql.DB (used by tests against a
// testcontainers-managed Postgres instance). Migrations are still run.
func NewFromDB(db *sql.DB, database string) (*Backend, error) {
	if err := runMigrations(db, database); err != nil {
		return nil, errs.New(errs.KindStorageIO, "postgres.NewFromDB", err)
	}
	return &Backend{tenant: "default", db: db, owns: false}, nil
}

func runMigrations(db *sql.DB, database string) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, database, driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return src.Close()
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
		`SELECT value FROM kv_store WHERE tenant_id = $1 AND key = $2`, b.tenant, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, errs.NewWithKey(errs.KindNotFound, "postgres.Get", key, nil)
	}
	if err != nil {
		return nil, errs.New(errs.KindStorageIO, "postgres.Get", err)
	}
	return value, nil
}

// Set implements storage.Backend.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO kv_store (tenant_id, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		b.tenant, key, value)
	if err != nil {
		return errs.New(errs.KindStorageIO, "postgres.Set", err)
	}
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM kv_store WHERE tenant_id = $1 AND key = $2)`,
		b.tenant, key).Scan(&exists)
	if err != nil {
		return false, errs.New(errs.KindStorageIO, "postgres.Exists", err)
	}
	return exists, nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE tenant_id = $1 AND key = $2`, b.tenant, key)
	if err != nil {
		return false, errs.New(errs.KindStorageIO, "postgres.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List implements storage.Backend.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key FROM kv_store WHERE tenant_id = $1 AND key LIKE $2 ORDER BY key`,
		b.tenant, prefix+"%")
	if err != nil {
		return nil, errs.New(errs.KindStorageIO, "postgres.List", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.New(errs.KindStorageIO, "postgres.List", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Close implements storage.Backend.
func (b *Backend) Close() error {
	if !b.owns || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Health implements storage.HealthChecker, pinging the database and
// reporting connection-pool statistics, grounded on the teacher's
// pkg/database.Health.
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
	var refcount int64
	err := b.db.QueryRowContext(ctx, `
		INSERT INTO artifact_content_refs (tenant_id, content_hash, reference_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, content_hash)
		DO UPDATE SET reference_count = artifact_content_refs.reference_count + 1
		RETURNING reference_count`,
		b.tenant, hash).Scan(&refcount)
	if err != nil {
		return 0, false, errs.New(errs.KindStorageIO, "postgres.UpsertContentRefcount", err)
	}
	return refcount, refcount == 1, nil
}

// DecrementContentRefcount implements storage.RefcountStore.
func (b *Backend) DecrementContentRefcount(ctx context.Context, hash string) (int64, error) {
	var refcount int64
	err := b.db.QueryRowContext(ctx, `
		UPDATE artifact_content_refs SET reference_count = reference_count - 1
		WHERE tenant_id = $1 AND content_hash = $2
		RETURNING reference_count`,
		b.tenant, hash).Scan(&refcount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errs.New(errs.KindStorageIO, "postgres.DecrementContentRefcount", err)
	}
	if refcount <= 0 {
		_, err := b.db.ExecContext(ctx,
			`DELETE FROM artifact_content_refs WHERE tenant_id = $1 AND content_hash = $2`,
			b.tenant, hash)
		if err != nil {
			return 0, errs.New(errs.KindStorageIO, "postgres.DecrementContentRefcount", err)
		}
		return 0, nil
	}
	return refcount, nil
}

// DB returns the underlying connection pool for health checks.
func (b *Backend) DB() *sql.DB { return b.db }

var _ storage.Backend = (*Backend)(nil)
var _ storage.RefcountStore = (*Backend)(nil)
