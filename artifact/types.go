package artifact

import "time"

// Type classifies an artifact's content, per spec §3.
type Type string

// Artifact types.
const (
	TypeUserInput       Type = "user_input"
	TypeAgentOutput     Type = "agent_output"
	TypeSystemGenerated Type = "system_generated"
	TypeCode            Type = "code"
	TypeData            Type = "data"
	TypeImage           Type = "image"
	TypeDocument        Type = "document"
	TypeBinary          Type = "binary"
)

// Artifact is the metadata record for one stored version of one logical
// artifact within a session. The content itself lives in a separate
// content row keyed by (tenant, hash) with a reference count (spec §3).
type Artifact struct {
	ArtifactID    string            // composite "{session}:{sequence}:{hash}"
	TenantID      string            // the backend tenant this row was written under
	SessionID     string
	LogicalName   string
	Sequence      int64
	ContentHash   string
	Type          Type
	MimeType      string
	Metadata      map[string]string
	Size          int64 // stored size (post-compression, if compressed)
	OriginalSize  int64 // pre-compression size
	IsCompressed  bool
	CreatedAt     time.Time
	CreatedBy     string
	StoredAt      time.Time
	LastAccessed  time.Time
	DeletedAt     *time.Time // tombstone; metadata survives for audit
	Content       []byte     // populated by Get; nil otherwise
}

// StoreInput describes an artifact to be stored.
type StoreInput struct {
	SessionID   string
	LogicalName string
	Type        Type
	MimeType    string
	Metadata    map[string]string
	CreatedBy   string
	Content     []byte
}

// Stats aggregates a session's artifact footprint (spec §4.2 stats()).
type Stats struct {
	ArtifactCount  int
	TotalSizeBytes int64
	LastUpdated    time.Time
}

// QueryFilter selects one session's artifacts by facet. Query scans only
// the artifacts of SessionID and never returns tombstoned artifacts;
// IncludeDeleted is not consulted.
type QueryFilter struct {
	SessionID   string
	Type        Type
	LogicalName string
	Tags        []string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	MinSize     int64
	MaxSize     int64
	IncludeDeleted bool
}

// Limits bounds what the store will accept, per spec §4.2 failure semantics.
type Limits struct {
	MaxArtifactSize int64 // SizeLimitExceeded beyond this, per artifact
	MaxSessionBytes int64 // SizeLimitExceeded beyond this, per session total
	ChunkSize       int64 // artifacts larger than this are split into chunks
	CompressAbove   int64 // content larger than this is compressed
}

// DefaultLimits mirrors sane production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxArtifactSize: 64 << 20,  // 64 MiB
		MaxSessionBytes: 512 << 20, // 512 MiB
		ChunkSize:       4 << 20,   // 4 MiB
		CompressAbove:   16 << 10,  // 16 KiB
	}
}
