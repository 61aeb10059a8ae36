// Package storage provides the key/value and blob persistence layer
// that the Artifact Store is built on (spec §4.1). Three variants are
// provided: an in-memory backend for tests, a SQLite-file-backed backend,
// and a Postgres-backed backend, all implementing the same Backend
// interface and all scoped to a current tenant.
package storage

import (
	"context"
	"time"
)

// Backend is the storage contract every variant implements. All
// operations are atomic at the single-key level. List is eventually
// consistent with concurrent writers but returns every key that existed
// at invocation start and was not deleted.
type Backend interface {
	// WithTenant returns a Backend bound to the given tenant; the
	// returned value applies tenant as a key prefix / row filter to every
	// subsequent operation. The receiver is left unmodified.
	WithTenant(tenant string) Backend

	// Tenant returns the tenant this backend instance is currently scoped to.
	Tenant() string

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key, reporting whether it was present.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns every key with the given prefix, under the current tenant.
	List(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Health reports connectivity and connection-pool statistics for a
// SQL-backed Backend, the way the teacher's pkg/database.HealthStatus
// does for its admin health endpoint.
type Health struct {
	Status          string
	ResponseTime    time.Duration
	OpenConnections int
	InUse           int
	Idle            int
}

// HealthChecker is implemented by SQL-backed Backend variants (sqlite,
// postgres); the in-memory backend has no connection to check and does
// not implement it.
type HealthChecker interface {
	Health(ctx context.Context) (Health, error)
}

// RefcountStore is implemented by backends that can perform the
// artifact content dedup upsert (spec §4.2) as a single atomic
// operation: insert a content row with refcount 1, or increment the
// refcount of an existing row with the same (tenant, hash), returning
// the resulting refcount and whether this call inserted the row.
type RefcountStore interface {
	// UpsertContentRefcount increments (or creates with refcount 1) the
	// refcount row for hash, returning the new refcount and whether the
	// payload must be written (true only the first time, i.e. refcount == 1).
	UpsertContentRefcount(ctx context.Context, hash string) (refcount int64, isNew bool, err error)
	// DecrementContentRefcount decrements the refcount for hash, deleting
	// the row if it reaches zero. Returns the resulting refcount (0 if deleted).
	DecrementContentRefcount(ctx context.Context, hash string) (refcount int64, err error)
}
