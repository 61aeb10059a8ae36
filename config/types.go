package config

import "time"

// BackendKind selects which storage.Backend variant the runtime opens.
type BackendKind string

const (
	BackendMemory   BackendKind = "memory"
	BackendSQLite   BackendKind = "sqlite"
	BackendPostgres BackendKind = "postgres"
)

// StorageConfig selects and configures the Artifact Store's storage
// backend, the way the teacher's pkg/database splits connection settings
// out from the rest of pkg/config.
type StorageConfig struct {
	Backend  BackendKind    `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// SQLiteConfig configures the SQLite-file-backed backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig configures the Postgres-backed backend.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RetentionConfig controls the Artifact Store and Session Manager's
// cleanup behavior, mirroring the teacher's pkg/config/retention.go.
type RetentionConfig struct {
	// SessionRetentionDays is how long a closed session's artifacts are
	// kept. It is loaded and validated, but no sweep in this module reads
	// it: closed sessions' artifacts are not removed automatically.
	SessionRetentionDays int `yaml:"session_retention_days"`
	// StaleSessionThreshold is how long a session can go without a
	// heartbeat before the Session Manager marks it Suspended.
	StaleSessionThreshold time.Duration `yaml:"stale_session_threshold"`
	// CleanupInterval is how often the Session Manager's staleness sweep runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// WorkflowConfig carries the Workflow Executor's process-wide defaults,
// mirroring the teacher's pkg/config/queue.go worker-pool defaults. They
// are loaded and validated only: the workflow package does not read
// them, so a workflow.Workflow or ParallelConfig that leaves a field at
// zero does not pick up the value configured here.
type WorkflowConfig struct {
	// DefaultMaxExecutionTime is used when a workflow declares none.
	DefaultMaxExecutionTime time.Duration `yaml:"default_max_execution_time"`
	// DefaultParallelMaxConcurrency bounds a Parallel executor that
	// declares no max_concurrency of its own.
	DefaultParallelMaxConcurrency int `yaml:"default_parallel_max_concurrency"`
	// HeartbeatInterval is the minimum spacing between heartbeat writes
	// a long-running step is expected to emit.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// RetryConfig carries the Retry built-in hook's process-wide defaults.
type RetryConfig struct {
	Strategy    string        `yaml:"strategy"` // fixed | linear | exponential | fibonacci
	Jitter      string        `yaml:"jitter"`   // none | full | equal | decorrelated
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// ProviderConfig configures the gRPC-backed provider.Client adapter
// (spec §6), grounded on the teacher's pkg/agent/llm_grpc.go.
type ProviderConfig struct {
	Target     string        `yaml:"target"` // dial target, e.g. "localhost:9443"
	Insecure   bool          `yaml:"insecure"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// AdminHTTPConfig configures the optional read-only admin/status HTTP
// surface (runtime/adminhttp), built on gin the way the teacher exposes
// its own status endpoints.
type AdminHTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig describes the level and format of the default slog
// handler. It is loaded with the rest of Config; nothing in this module
// applies it to slog.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}
