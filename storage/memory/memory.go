// Package memory provides an in-memory storage.Backend used by tests and
// by any deployment that does not need durability across restarts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tarsy-substrate/substrate/errs"
	"github.com/tarsy-substrate/substrate/storage"
)

const defaultTenant = "default"

// Backend is a thread-safe in-memory implementation of storage.Backend.
type Backend struct {
	tenant string

	mu    *sync.RWMutex
	data  map[string][]byte          // "tenant\x00key" -> value
	refs  map[string]int64           // "tenant\x00hash" -> refcount
}

// New creates an empty in-memory backend scoped to the default tenant.
func New() *Backend {
	return &Backend{
		tenant: defaultTenant,
		mu:     &sync.RWMutex{},
		data:   make(map[string][]byte),
		refs:   make(map[string]int64),
	}
}

func (b *Backend) tenantKey(key string) string {
	return b.tenant + "\x00" + key
}

// WithTenant implements storage.Backend.
func (b *Backend) WithTenant(tenant string) storage.Backend {
	if tenant == "" {
		tenant = defaultTenant
	}
	return &Backend{tenant: tenant, mu: b.mu, data: b.data, refs: b.refs}
}

// Tenant implements storage.Backend.
func (b *Backend) Tenant() string { return b.tenant }

// Get implements storage.Backend.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[b.tenantKey(key)]
	if !ok {
		return nil, errs.NewWithKey(errs.KindNotFound, "memory.Get", key, nil)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set implements storage.Backend.
func (b *Backend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data[b.tenantKey(key)] = cp
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(_ context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[b.tenantKey(key)]
	return ok, nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tk := b.tenantKey(key)
	_, ok := b.data[tk]
	if ok {
		delete(b.data, tk)
	}
	return ok, nil
}

// List implements storage.Backend.
func (b *Backend) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tenantPrefix := b.tenant + "\x00" + prefix
	var out []string
	for k := range b.data {
		if strings.HasPrefix(k, tenantPrefix) {
			out = append(out, strings.TrimPrefix(k, b.tenant+"\x00"))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close implements storage.Backend.
func (b *Backend) Close() error { return nil }

// UpsertContentRefcount implements storage.RefcountStore.
func (b *Backend) UpsertContentRefcount(_ context.Context, hash string) (int64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rk := b.tenant + "\x00" + hash
	b.refs[rk]++
	return b.refs[rk], b.refs[rk] == 1, nil
}

// DecrementContentRefcount implements storage.RefcountStore.
func (b *Backend) DecrementContentRefcount(_ context.Context, hash string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rk := b.tenant + "\x00" + hash
	n, ok := b.refs[rk]
	if !ok || n <= 0 {
		return 0, nil
	}
	n--
	if n <= 0 {
		delete(b.refs, rk)
		return 0, nil
	}
	b.refs[rk] = n
	return n, nil
}

var _ storage.Backend = (*Backend)(nil)
var _ storage.RefcountStore = (*Backend)(nil)
