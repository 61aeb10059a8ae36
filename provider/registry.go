package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/tarsy-substrate/substrate/errs"
)

// ErrStreamingUnsupported is returned by CompleteStreaming on an adapter
// whose Capabilities().SupportsStreaming is false.
var ErrStreamingUnsupported = fmt.Errorf("provider does not support streaming completions")

// Registry discovers Client instances by name (e.g. "openai",
// "anthropic", "ollama"), the way the teacher's config.LLMProviderConfig
// registry is keyed by provider name and resolved lazily per agent run.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	clients   map[string]Client
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		clients:   make(map[string]Client),
	}
}

// Register associates name with factory. A later call with the same name
// overwrites the earlier one.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns the Client for name, constructing and caching it on first
// use via the registered Factory.
func (r *Registry) Get(ctx context.Context, name string) (Client, error) {
	r.mu.RLock()
	if c, ok := r.clients[name]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.NewWithKey(errs.KindNotFound, "provider.Registry.Get", name, fmt.Errorf("no provider registered"))
	}

	client, err := factory(ctx)
	if err != nil {
		return nil, errs.NewWithKey(errs.KindProviderError, "provider.Registry.Get", name, err)
	}

	r.mu.Lock()
	if existing, ok := r.clients[name]; ok {
		r.mu.Unlock()
		_ = client.Close()
		return existing, nil
	}
	r.clients[name] = client
	r.mu.Unlock()
	return client, nil
}

// Close closes every constructed Client.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, c := range r.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.clients = make(map[string]Client)
	return first
}
