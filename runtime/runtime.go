// Package runtime wires the storage backend, Agent Lifecycle State
// Machine registry, Hook Pipeline, Session Manager, Artifact Store,
// Provider registry, and Shutdown Coordinator into one process handle,
// per spec §9's "no process-wide singleton" design note: every
// dependency is a field on *Runtime, constructed once by New and passed
// down explicitly, the way the teacher's cmd/tarsy main wires
// pkg/database, pkg/queue and pkg/agent into its own top-level struct
// rather than through package-level globals.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tarsy-substrate/substrate/agentfsm"
	"github.com/tarsy-substrate/substrate/artifact"
	"github.com/tarsy-substrate/substrate/config"
	"github.com/tarsy-substrate/substrate/hook"
	"github.com/tarsy-substrate/substrate/hook/builtin"
	"github.com/tarsy-substrate/substrate/provider"
	"github.com/tarsy-substrate/substrate/provider/grpcclient"
	"github.com/tarsy-substrate/substrate/session"
	"github.com/tarsy-substrate/substrate/shutdown"
	"github.com/tarsy-substrate/substrate/storage"
	"github.com/tarsy-substrate/substrate/storage/memory"
	"github.com/tarsy-substrate/substrate/storage/postgres"
	"github.com/tarsy-substrate/substrate/storage/sqlite"
)

// ErrNoScriptBridge is returned by RunScript when no ScriptBridge has
// been wired into Scripts.
var ErrNoScriptBridge = errors.New("no script bridge configured")

// Runtime is the top-level handle over every core component.
type Runtime struct {
	Config    *config.Config
	Storage   storage.Backend
	Artifacts *artifact.Store
	Sessions  *session.Manager
	Hooks     *hook.Pipeline
	Metrics   *builtin.MetricsHook
	Providers *provider.Registry
	Shutdown  *shutdown.Coordinator

	// Scripts is the scripting bridge the CLI's run/exec commands dispatch
	// to. Nil by default: no concrete bridge ships in core (spec §1), so a
	// deployment wires one in after New returns.
	Scripts ScriptBridge

	agentsMu sync.RWMutex
	agents   map[string]*agentfsm.Machine

	stopSweep context.CancelFunc
}

// artifactFacadeRef breaks the construction-order cycle between
// session.Manager (needs an ArtifactStoreFacade at construction) and
// artifact.Store (needs a SessionCounter at construction): the ref is
// handed to the Manager before the Store exists, then pointed at the
// Store once it does.
type artifactFacadeRef struct {
	store *artifact.Store
}

func (r *artifactFacadeRef) ListSession(ctx context.Context, sessionID string) ([]string, error) {
	return r.store.ListSession(ctx, sessionID)
}

func (r *artifactFacadeRef) Delete(ctx context.Context, artifactID string) (bool, error) {
	return r.store.Delete(ctx, artifactID)
}

// New constructs a Runtime from a loaded, validated Config: opens the
// configured storage backend, wires the Session Manager and Artifact
// Store to each other, builds a Hook Pipeline with the Retry/Metrics/
// Logging built-in hooks, and wires the Shutdown Coordinator to
// this Runtime's own agent registry.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	backend, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	facade := &artifactFacadeRef{}
	sessions := session.NewManager(facade, cfg.Retention.StaleSessionThreshold)
	artifacts := artifact.New(backend, artifact.DefaultLimits(), sessions)
	facade.store = artifacts

	hooks := hook.New(30*time.Second, true)
	hooks.Register(builtin.NewRetryHook(builtin.RetryConfig{
		Strategy:    builtin.BackoffStrategy(cfg.Retry.Strategy),
		Jitter:      builtin.Jitter(cfg.Retry.Jitter),
		BaseDelay:   cfg.Retry.BaseDelay,
		Multiplier:  cfg.Retry.Multiplier,
		MaxAttempts: cfg.Retry.MaxAttempts,
	}))
	metrics := builtin.NewMetricsHook(10)
	hooks.Register(metrics)
	hooks.Register(builtin.NewLoggingHook(250, slog.LevelInfo, slog.Default()))

	providers := provider.NewRegistry()
	if cfg.Provider.Target != "" {
		providers.Register("default", func(ctx context.Context) (provider.Client, error) {
			return grpcclient.New(ctx, grpcclient.Config{
				Target:      cfg.Provider.Target,
				Insecure:    cfg.Provider.Insecure,
				DialTimeout: cfg.Provider.DialTimeout,
			})
		})
	}

	rt := &Runtime{
		Config:    cfg,
		Storage:   backend,
		Artifacts: artifacts,
		Sessions:  sessions,
		Hooks:     hooks,
		Metrics:   metrics,
		Providers: providers,
		agents:    make(map[string]*agentfsm.Machine),
	}
	rt.Shutdown = shutdown.New(rt.lookupAgent, noopDeallocator{}, shutdown.Hooks{})

	if cfg.Retention.CleanupInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		rt.stopSweep = cancel
		go sessions.StartStalenessSweep(sweepCtx, cfg.Retention.CleanupInterval, func(ids []string) {
			slog.Info("session staleness sweep suspended sessions", "count", len(ids))
		})
	}

	return rt, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return memory.New(), nil
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLite.Path)
	case config.BackendPostgres:
		return postgres.New(ctx, postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			Database:        cfg.Postgres.Database,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// RegisterAgent creates and tracks a new agent state machine, logging
// every transition the way the teacher logs queue-item state changes.
func (r *Runtime) RegisterAgent(agentID string) *agentfsm.Machine {
	m := agentfsm.New(agentID, func(t agentfsm.Transition) {
		slog.Info("agent transition", "agent_id", agentID, "from", t.From, "to", t.To, "reason", t.Reason)
	})
	r.agentsMu.Lock()
	r.agents[agentID] = m
	r.agentsMu.Unlock()
	return m
}

func (r *Runtime) lookupAgent(agentID string) (*agentfsm.Machine, bool) {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()
	m, ok := r.agents[agentID]
	return m, ok
}

// ForgetAgent drops agentID from the registry, called once its machine
// reaches a terminal state.
func (r *Runtime) ForgetAgent(agentID string) {
	r.agentsMu.Lock()
	delete(r.agents, agentID)
	r.agentsMu.Unlock()
}

// RunScript dispatches to Scripts, the way the CLI's run/exec commands
// do, failing with ErrNoScriptBridge when none is wired in.
func (r *Runtime) RunScript(ctx context.Context, engine Engine, source string, input map[string]any) (map[string]any, error) {
	if r.Scripts == nil {
		return nil, ErrNoScriptBridge
	}
	return r.Scripts.Execute(ctx, engine, source, input)
}

// Close stops the staleness sweep and releases the storage backend and
// every constructed provider client.
func (r *Runtime) Close() error {
	if r.stopSweep != nil {
		r.stopSweep()
	}
	var first error
	if err := r.Providers.Close(); err != nil {
		first = err
	}
	if err := r.Storage.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

type noopDeallocator struct{}

func (noopDeallocator) DeallocateAgentResources(context.Context, string) error { return nil }
