// Package session implements the Session Manager: a thin coordinator over
// the Artifact Store that owns session lifecycle status and the aggregate
// artifact_count / storage_bytes counters, the way the teacher's
// pkg/session.Manager owns alert-session lifecycle over pkg/queue.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tarsy-substrate/substrate/errs"
)

// Status is a session's lifecycle state, per spec §3.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusClosed    Status = "closed"
)

// Session is the session entity of spec §3.
type Session struct {
	ID            string
	TenantID      string
	Status        Status
	ArtifactCount int64
	StorageBytes  int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat time.Time
}

func (s *Session) clone() *Session {
	cp := *s
	return &cp
}

// ArtifactStoreFacade is the subset of the artifact store the Session
// Manager needs in order to cascade session deletion to artifacts. The
// interface keeps this package free of a direct dependency on the
// artifact package's storage.Backend wiring.
type ArtifactStoreFacade interface {
	ListSession(ctx context.Context, sessionID string) ([]string, error)
	Delete(ctx context.Context, artifactID string) (bool, error)
}

// Manager owns session lifecycle and the aggregate counters referenced by
// artifact.Store's SessionCounter hook.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by tenant + "\x00" + id
	artifact ArtifactStoreFacade

	staleAfter time.Duration
}

// NewManager constructs a Manager. artifactStore may be nil if the caller
// does not need cascading delete (e.g. in unit tests of session status
// transitions alone). staleAfter configures the background staleness
// sweep threshold; zero disables the sweep's effect (StartStalenessSweep
// still runs but never flags anything).
func NewManager(artifactStore ArtifactStoreFacade, staleAfter time.Duration) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		artifact:   artifactStore,
		staleAfter: staleAfter,
	}
}

func key(tenantID, id string) string { return tenantID + "\x00" + id }

// Create creates a new Active session. Idempotent per (tenant, id): if id
// is non-empty and a session already exists under (tenant, id), the
// existing session is returned unchanged rather than erroring.
func (m *Manager) Create(ctx context.Context, tenantID, id string) (*Session, error) {
	const op = "session.Create"
	if tenantID == "" {
		return nil, errs.New(errs.KindValidation, op, fmt.Errorf("tenant id required"))
	}
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(tenantID, id)
	if existing, ok := m.sessions[k]; ok {
		return existing.clone(), nil
	}

	now := time.Now()
	sess := &Session{
		ID:            id,
		TenantID:      tenantID,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastHeartbeat: now,
	}
	m.sessions[k] = sess
	return sess.clone(), nil
}

// Get retrieves a session by (tenant, id).
func (m *Manager) Get(tenantID, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[key(tenantID, id)]
	if !ok {
		return nil, errs.NewWithKey(errs.KindNotFound, "session.Get", id, nil)
	}
	return sess.clone(), nil
}

// List returns all sessions for a tenant.
func (m *Manager) List(tenantID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.TenantID == tenantID {
			out = append(out, s.clone())
		}
	}
	return out
}

// Suspend transitions a session to Suspended.
func (m *Manager) Suspend(tenantID, id string) error {
	return m.setStatus(tenantID, id, StatusSuspended)
}

// Resume transitions a Suspended session back to Active.
func (m *Manager) Resume(tenantID, id string) error {
	const op = "session.Resume"
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key(tenantID, id)]
	if !ok {
		return errs.NewWithKey(errs.KindNotFound, op, id, nil)
	}
	if sess.Status == StatusClosed {
		return errs.NewWithKey(errs.KindInvalidTransition, op, id, fmt.Errorf("cannot resume a closed session"))
	}
	sess.Status = StatusActive
	sess.UpdatedAt = time.Now()
	return nil
}

// Close transitions a session to Closed; CheckWritable then reports it as
// not writable, while reads remain permitted. artifact.Store does not
// consult the session's status, so writes made directly through it are
// not blocked.
func (m *Manager) Close(tenantID, id string) error {
	return m.setStatus(tenantID, id, StatusClosed)
}

func (m *Manager) setStatus(tenantID, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key(tenantID, id)]
	if !ok {
		return errs.NewWithKey(errs.KindNotFound, "session.setStatus", id, nil)
	}
	sess.Status = status
	sess.UpdatedAt = time.Now()
	return nil
}

// CheckWritable returns an error if artifact writes against this session
// are currently disallowed (the session is closed or does not exist).
func (m *Manager) CheckWritable(tenantID, id string) error {
	const op = "session.CheckWritable"
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[key(tenantID, id)]
	if !ok {
		return errs.NewWithKey(errs.KindNotFound, op, id, nil)
	}
	if sess.Status == StatusClosed {
		return errs.NewWithKey(errs.KindPermissionDenied, op, id, fmt.Errorf("session is closed"))
	}
	return nil
}

// Heartbeat records workflow activity against a session, consumed by the
// staleness sweep. Grounded in the teacher's last_interaction_at bump in
// pkg/queue's claim/heartbeat path.
func (m *Manager) Heartbeat(tenantID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[key(tenantID, id)]; ok {
		sess.LastHeartbeat = time.Now()
	}
}

// IncrementArtifactCount implements artifact.SessionCounter.
func (m *Manager) IncrementArtifactCount(_ context.Context, sessionID string, deltaBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		if sess.ID == sessionID {
			sess.ArtifactCount++
			sess.StorageBytes += deltaBytes
			sess.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

// DecrementArtifactCount implements artifact.SessionCounter.
func (m *Manager) DecrementArtifactCount(_ context.Context, sessionID string, deltaBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		if sess.ID == sessionID {
			if sess.ArtifactCount > 0 {
				sess.ArtifactCount--
			}
			sess.StorageBytes -= deltaBytes
			if sess.StorageBytes < 0 {
				sess.StorageBytes = 0
			}
			sess.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

// Delete removes a session and cascades deletion to its artifacts, per
// spec §3's "deletion of a session cascades to its artifacts".
func (m *Manager) Delete(ctx context.Context, tenantID, id string) error {
	const op = "session.Delete"
	m.mu.Lock()
	_, ok := m.sessions[key(tenantID, id)]
	if !ok {
		m.mu.Unlock()
		return errs.NewWithKey(errs.KindNotFound, op, id, nil)
	}
	delete(m.sessions, key(tenantID, id))
	m.mu.Unlock()

	if m.artifact == nil {
		return nil
	}
	artifactIDs, err := m.artifact.ListSession(ctx, id)
	if err != nil {
		return errs.New(errs.KindStorageIO, op, err)
	}
	for _, artifactID := range artifactIDs {
		if _, err := m.artifact.Delete(ctx, artifactID); err != nil {
			return errs.New(errs.KindStorageIO, op, err)
		}
	}
	return nil
}

// RunStalenessSweep marks every Active session whose LastHeartbeat is
// older than staleAfter as Suspended, returning the ids affected. It is
// meant to be called periodically (see StartStalenessSweep); every
// replica can run it independently since the operation is idempotent.
func (m *Manager) RunStalenessSweep() []string {
	if m.staleAfter <= 0 {
		return nil
	}
	threshold := time.Now().Add(-m.staleAfter)

	m.mu.Lock()
	defer m.mu.Unlock()

	var affected []string
	for _, sess := range m.sessions {
		if sess.Status == StatusActive && sess.LastHeartbeat.Before(threshold) {
			sess.Status = StatusSuspended
			sess.UpdatedAt = time.Now()
			affected = append(affected, sess.ID)
		}
	}
	return affected
}

// StartStalenessSweep runs RunStalenessSweep on interval until ctx is
// cancelled, mirroring the teacher's runOrphanDetection ticker loop.
func (m *Manager) StartStalenessSweep(ctx context.Context, interval time.Duration, onSwept func(ids []string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids := m.RunStalenessSweep()
			if len(ids) > 0 && onSwept != nil {
				onSwept(ids)
			}
		}
	}
}
