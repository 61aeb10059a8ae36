// Package artifact implements the content-addressed, deduplicated,
// versioned artifact store described in spec §4.2, built over a
// storage.Backend. Metadata rows and chunked/compressed content are both
// persisted as storage.Backend key/value entries, keyed by convention
// (see keys.go), so every storage.Backend variant (memory, sqlite,
// postgres) gets artifact support for free.
package artifact

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tarsy-substrate/substrate/errs"
	"github.com/tarsy-substrate/substrate/storage"
)

// SessionCounter lets the Session Manager be kept in sync with artifact
// writes without the artifact package importing it back.
type SessionCounter interface {
	IncrementArtifactCount(ctx context.Context, sessionID string, deltaBytes int64) error
	DecrementArtifactCount(ctx context.Context, sessionID string, deltaBytes int64) error
}

type noopCounter struct{}

func (noopCounter) IncrementArtifactCount(context.Context, string, int64) error { return nil }
func (noopCounter) DecrementArtifactCount(context.Context, string, int64) error { return nil }

// Store is the content-addressed artifact store.
type Store struct {
	backend storage.Backend
	limits  Limits
	counter SessionCounter

	// seqMu serializes sequence-number assignment per (session, logicalName)
	// so two concurrent stores for the same logical name never collide.
	seqMu sync.Mutex

	// lastAccessMu throttles last-accessed-at bumps to <=1Hz per artifact id.
	lastAccessMu sync.Mutex
	lastAccess   map[string]time.Time
}

// New constructs a Store over backend. counter may be nil, in which case
// artifact writes do not affect any session aggregate.
func New(backend storage.Backend, limits Limits, counter SessionCounter) *Store {
	if counter == nil {
		counter = noopCounter{}
	}
	return &Store{
		backend:    backend,
		limits:     limits,
		counter:    counter,
		lastAccess: make(map[string]time.Time),
	}
}

// Store hashes content, assigns the next sequence under (tenant, session,
// logicalName), performs the dedup upsert against the content table, and
// writes the artifact metadata row. Steps 2 and 4 of the dedup protocol
// (spec §4.2) are applied in that order so that metadata absence means
// "no valid artifact" even if the refcount upsert partially succeeded.
func (s *Store) Store(ctx context.Context, in StoreInput) (string, error) {
	const op = "artifact.Store"

	if int64(len(in.Content)) > s.limits.MaxArtifactSize {
		return "", errs.New(errs.KindSizeLimitExceeded, op, fmt.Errorf(
			"artifact size %d exceeds limit %d", len(in.Content), s.limits.MaxArtifactSize))
	}
	if in.SessionID == "" {
		return "", errs.New(errs.KindValidation, op, fmt.Errorf("session id required"))
	}
	if in.LogicalName == "" {
		in.LogicalName = "artifact"
	}

	if s.limits.MaxSessionBytes > 0 {
		stats, err := s.Stats(ctx, in.SessionID)
		if err == nil && stats.TotalSizeBytes+int64(len(in.Content)) > s.limits.MaxSessionBytes {
			return "", errs.New(errs.KindSizeLimitExceeded, op, fmt.Errorf(
				"session %s would exceed byte cap %d", in.SessionID, s.limits.MaxSessionBytes))
		}
	}

	hash := contentHash(in.Content)

	seq, err := s.nextSequence(ctx, in.SessionID, in.LogicalName)
	if err != nil {
		return "", errs.New(errs.KindStorageIO, op, err)
	}

	refcounter, ok := s.backend.(storage.RefcountStore)
	var refcount int64
	var isNew bool
	if ok {
		refcount, isNew, err = refcounter.UpsertContentRefcount(ctx, hash)
		if err != nil {
			return "", errs.New(errs.KindStorageIO, op, err)
		}
	} else {
		// Backends without native upsert support (unused by the shipped
		// variants) fall back to a best-effort read/write pair.
		refcount, isNew, err = s.fallbackUpsertRefcount(ctx, hash)
		if err != nil {
			return "", errs.New(errs.KindStorageIO, op, err)
		}
	}

	compressed := s.limits.CompressAbove > 0 && int64(len(in.Content)) > s.limits.CompressAbove
	storedSize := int64(len(in.Content))
	if compressed {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(in.Content); err == nil && gw.Close() == nil {
			storedSize = int64(buf.Len())
		}
	}
	if isNew {
		if err := s.writeContent(ctx, hash, in.Content); err != nil {
			// Roll back the refcount bump since the content write failed.
			if rc, ok := s.backend.(storage.RefcountStore); ok {
				_, _ = rc.DecrementContentRefcount(ctx, hash)
			}
			return "", errs.New(errs.KindStorageIO, op, err)
		}
	}

	artifactID := fmt.Sprintf("%s:%d:%s", in.SessionID, seq, hash)
	now := time.Now()
	meta := Artifact{
		ArtifactID:   artifactID,
		TenantID:     s.backend.Tenant(),
		SessionID:    in.SessionID,
		LogicalName:  in.LogicalName,
		Sequence:     seq,
		ContentHash:  hash,
		Type:         in.Type,
		MimeType:     in.MimeType,
		Metadata:     in.Metadata,
		Size:         storedSize,
		OriginalSize: int64(len(in.Content)),
		IsCompressed: compressed,
		CreatedAt:    now,
		CreatedBy:    in.CreatedBy,
		StoredAt:     now,
	}

	if err := s.writeMetadata(ctx, meta); err != nil {
		if isNew {
			if rc, ok := s.backend.(storage.RefcountStore); ok {
				_, _ = rc.DecrementContentRefcount(ctx, hash)
			}
		}
		return "", errs.New(errs.KindStorageIO, op, err)
	}

	_ = refcount // observability hook point; refcount intentionally unused beyond dedup decision

	if err := s.counter.IncrementArtifactCount(ctx, in.SessionID, meta.Size); err != nil {
		slog.Warn("artifact store: failed to update session counters", "session_id", in.SessionID, "error", err)
	}

	return artifactID, nil
}

// Get joins the metadata row with the content row, throttling
// last-accessed-at updates to at most once per second per artifact id.
func (s *Store) Get(ctx context.Context, artifactID string) (*Artifact, error) {
	const op = "artifact.Get"

	meta, err := s.readMetadata(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if meta.DeletedAt != nil {
		return nil, errs.NewWithKey(errs.KindNotFound, op, artifactID, nil)
	}

	content, err := s.readContent(ctx, meta.ContentHash)
	if err != nil {
		return nil, errs.New(errs.KindStorageIO, op, err)
	}
	meta.Content = content

	s.touchLastAccess(ctx, artifactID, meta)

	return meta, nil
}

// touchLastAccess bumps LastAccessed at most once per second per artifact,
// per the spec §4.2 "throttled to <=1 Hz per row" requirement.
func (s *Store) touchLastAccess(ctx context.Context, artifactID string, meta *Artifact) {
	s.lastAccessMu.Lock()
	last, seen := s.lastAccess[artifactID]
	now := time.Now()
	if seen && now.Sub(last) < time.Second {
		s.lastAccessMu.Unlock()
		return
	}
	s.lastAccess[artifactID] = now
	s.lastAccessMu.Unlock()

	meta.LastAccessed = now
	if err := s.writeMetadata(ctx, *meta); err != nil {
		slog.Warn("artifact store: failed to bump last_accessed_at", "artifact_id", artifactID, "error", err)
	}
}

// Delete tombstones the artifact metadata row (the row is retained for
// audit) and decrements the content refcount, removing the content row
// when it reaches zero. Returns false if the artifact does not exist or
// was already deleted.
func (s *Store) Delete(ctx context.Context, artifactID string) (bool, error) {
	const op = "artifact.Delete"

	meta, err := s.readMetadata(ctx, artifactID)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	if meta.DeletedAt != nil {
		return false, nil
	}

	now := time.Now()
	meta.DeletedAt = &now
	if err := s.writeMetadata(ctx, *meta); err != nil {
		return false, errs.New(errs.KindStorageIO, op, err)
	}

	if rc, ok := s.backend.(storage.RefcountStore); ok {
		remaining, err := rc.DecrementContentRefcount(ctx, meta.ContentHash)
		if err != nil {
			return false, errs.New(errs.KindStorageIO, op, err)
		}
		if remaining == 0 {
			if err := s.deleteContent(ctx, meta.ContentHash); err != nil {
				slog.Warn("artifact store: content GC failed", "hash", meta.ContentHash, "error", err)
			}
		}
	}

	if err := s.counter.DecrementArtifactCount(ctx, meta.SessionID, meta.Size); err != nil {
		slog.Warn("artifact store: failed to update session counters", "session_id", meta.SessionID, "error", err)
	}

	return true, nil
}

// ListSession returns artifact ids for sessionID ordered by stored-at descending.
func (s *Store) ListSession(ctx context.Context, sessionID string) ([]string, error) {
	keys, err := s.backend.List(ctx, metaPrefix(sessionID))
	if err != nil {
		return nil, errs.New(errs.KindStorageIO, "artifact.ListSession", err)
	}
	type entry struct {
		id       string
		storedAt time.Time
	}
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		meta, err := s.readMetadataByKey(ctx, k)
		if err != nil || meta.DeletedAt != nil {
			continue
		}
		entries = append(entries, entry{id: meta.ArtifactID, storedAt: meta.StoredAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].storedAt.After(entries[j].storedAt) })
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

// Query scans a session's artifacts applying filter, a linear scan
// appropriate for the key/value backend; real deployments with heavy
// query load would add a secondary index, which spec §4.2 leaves as an
// implementation detail.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]*Artifact, error) {
	ids, err := s.ListSession(ctx, filter.SessionID)
	if err != nil {
		return nil, err
	}
	var out []*Artifact
	for _, id := range ids {
		meta, err := s.readMetadata(ctx, id)
		if err != nil {
			continue
		}
		if !matches(meta, filter) {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func matches(a *Artifact, f QueryFilter) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.LogicalName != "" && a.LogicalName != f.LogicalName {
		return false
	}
	if f.CreatedFrom != nil && a.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && a.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.MinSize > 0 && a.Size < f.MinSize {
		return false
	}
	if f.MaxSize > 0 && a.Size > f.MaxSize {
		return false
	}
	if len(f.Tags) > 0 {
		for _, tag := range f.Tags {
			if _, ok := a.Metadata[tag]; !ok {
				return false
			}
		}
	}
	return true
}

// Stats aggregates a session's live artifact footprint.
func (s *Store) Stats(ctx context.Context, sessionID string) (Stats, error) {
	ids, err := s.ListSession(ctx, sessionID)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	for _, id := range ids {
		meta, err := s.readMetadata(ctx, id)
		if err != nil {
			continue
		}
		stats.ArtifactCount++
		stats.TotalSizeBytes += meta.Size
		if meta.StoredAt.After(stats.LastUpdated) {
			stats.LastUpdated = meta.StoredAt
		}
	}
	return stats, nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (s *Store) nextSequence(ctx context.Context, sessionID, logicalName string) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	key := seqKey(sessionID, logicalName)
	raw, err := s.backend.Get(ctx, key)
	var current int64
	if err == nil {
		current, _ = parseInt64(raw)
	} else if !errs.Is(err, errs.KindNotFound) {
		return 0, err
	}
	next := current + 1
	if err := s.backend.Set(ctx, key, []byte(fmt.Sprintf("%d", next))); err != nil {
		return 0, err
	}
	return next, nil
}

func parseInt64(b []byte) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(string(b), "%d", &n)
	return n, err
}

func (s *Store) fallbackUpsertRefcount(ctx context.Context, hash string) (int64, bool, error) {
	key := refKey(hash)
	raw, err := s.backend.Get(ctx, key)
	var n int64
	if err == nil {
		n, _ = parseInt64(raw)
	} else if !errs.Is(err, errs.KindNotFound) {
		return 0, false, err
	}
	n++
	if err := s.backend.Set(ctx, key, []byte(fmt.Sprintf("%d", n))); err != nil {
		return 0, false, err
	}
	return n, n == 1, nil
}

func (s *Store) writeContent(ctx context.Context, hash string, content []byte) error {
	payload := content
	compressed := false
	if s.limits.CompressAbove > 0 && int64(len(content)) > s.limits.CompressAbove {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(content); err == nil && gw.Close() == nil {
			payload = buf.Bytes()
			compressed = true
		}
	}

	if s.limits.ChunkSize > 0 && int64(len(payload)) > s.limits.ChunkSize {
		return s.writeChunked(ctx, hash, payload, compressed, int64(len(content)))
	}

	blob := contentBlob{Compressed: compressed, OriginalSize: int64(len(content)), Data: payload}
	raw, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, contentKey(hash), raw)
}

type contentBlob struct {
	Compressed   bool   `json:"compressed"`
	OriginalSize int64  `json:"original_size"`
	Chunked      bool   `json:"chunked,omitempty"`
	ChunkCount   int    `json:"chunk_count,omitempty"`
	Data         []byte `json:"data,omitempty"`
}

func (s *Store) writeChunked(ctx context.Context, hash string, payload []byte, compressed bool, originalSize int64) error {
	chunkSize := int(s.limits.ChunkSize)
	count := (len(payload) + chunkSize - 1) / chunkSize
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := s.backend.Set(ctx, chunkKey(hash, i), payload[start:end]); err != nil {
			return err
		}
	}
	blob := contentBlob{Compressed: compressed, OriginalSize: originalSize, Chunked: true, ChunkCount: count}
	raw, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	// Chunk metadata is written last: its absence means "no valid artifact".
	return s.backend.Set(ctx, contentKey(hash), raw)
}

func (s *Store) readContent(ctx context.Context, hash string) ([]byte, error) {
	raw, err := s.backend.Get(ctx, contentKey(hash))
	if err != nil {
		return nil, err
	}
	var blob contentBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, err
	}

	var payload []byte
	if blob.Chunked {
		for i := 0; i < blob.ChunkCount; i++ {
			chunk, err := s.backend.Get(ctx, chunkKey(hash, i))
			if err != nil {
				return nil, err
			}
			payload = append(payload, chunk...)
		}
	} else {
		payload = blob.Data
	}

	if !blob.Compressed {
		return payload, nil
	}
	gr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

func (s *Store) deleteContent(ctx context.Context, hash string) error {
	raw, err := s.backend.Get(ctx, contentKey(hash))
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil
		}
		return err
	}
	var blob contentBlob
	if err := json.Unmarshal(raw, &blob); err == nil && blob.Chunked {
		for i := 0; i < blob.ChunkCount; i++ {
			_, _ = s.backend.Delete(ctx, chunkKey(hash, i))
		}
	}
	_, err = s.backend.Delete(ctx, contentKey(hash))
	return err
}

func (s *Store) writeMetadata(ctx context.Context, meta Artifact) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, metaKey(meta.SessionID, meta.ArtifactID), raw)
}

func (s *Store) readMetadata(ctx context.Context, artifactID string) (*Artifact, error) {
	sessionID, _, _, err := parseArtifactID(artifactID)
	if err != nil {
		return nil, errs.NewWithKey(errs.KindValidation, "artifact.readMetadata", artifactID, err)
	}
	return s.readMetadataByKey(ctx, metaKey(sessionID, artifactID))
}

func (s *Store) readMetadataByKey(ctx context.Context, key string) (*Artifact, error) {
	raw, err := s.backend.Get(ctx, key)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, errs.NewWithKey(errs.KindNotFound, "artifact.readMetadata", key, nil)
		}
		return nil, errs.New(errs.KindStorageIO, "artifact.readMetadata", err)
	}
	var meta Artifact
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errs.New(errs.KindSerialization, "artifact.readMetadata", err)
	}
	if meta.TenantID != "" && meta.TenantID != s.backend.Tenant() {
		return nil, errs.NewWithKey(errs.KindTenantMismatch, "artifact.readMetadata", key, fmt.Errorf(
			"row written under tenant %q, backend scoped to %q", meta.TenantID, s.backend.Tenant()))
	}
	return &meta, nil
}

func parseArtifactID(artifactID string) (sessionID string, sequence int64, hash string, err error) {
	// "{session}:{sequence}:{hash}" — sessionID itself may not contain ':'.
	parts := splitArtifactID(artifactID)
	if len(parts) != 3 {
		return "", 0, "", fmt.Errorf("malformed artifact id %q", artifactID)
	}
	var seq int64
	if _, err := fmt.Sscanf(parts[1], "%d", &seq); err != nil {
		return "", 0, "", fmt.Errorf("malformed sequence in artifact id %q", artifactID)
	}
	return parts[0], seq, parts[2], nil
}

func splitArtifactID(id string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			parts = append(parts, id[start:i])
			start = i + 1
		}
	}
	parts = append(parts, id[start:])
	return parts
}
