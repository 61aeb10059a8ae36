package config

import "time"

// Defaults returns the built-in configuration, the way the teacher's
// pkg/config ships built-in agent/chain/MCP-server registries that user
// YAML then overrides component by component.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			SQLite:  SQLiteConfig{Path: "tarsy-substrate.db"},
			Postgres: PostgresConfig{
				Port:            5432,
				SSLMode:         "disable",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
			},
		},
		Retention: RetentionConfig{
			SessionRetentionDays:  30,
			StaleSessionThreshold: 5 * time.Minute,
			CleanupInterval:       1 * time.Hour,
		},
		Workflow: WorkflowConfig{
			DefaultMaxExecutionTime:      15 * time.Minute,
			DefaultParallelMaxConcurrency: 5,
			HeartbeatInterval:            10 * time.Second,
		},
		Retry: RetryConfig{
			Strategy:    "exponential",
			Jitter:      "full",
			BaseDelay:   100 * time.Millisecond,
			Multiplier:  2.0,
			MaxAttempts: 3,
		},
		Provider: ProviderConfig{
			Insecure:    false,
			DialTimeout: 5 * time.Second,
		},
		AdminHTTP: AdminHTTPConfig{
			Enabled: false,
			Addr:    ":8090",
		},
	}
}
