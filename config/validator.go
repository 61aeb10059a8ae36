package config

import "fmt"

// Validator validates a Config comprehensively, stopping at the first
// failure, the way the teacher's config.Validator.ValidateAll chains
// per-component checks in dependency order.
type Validator struct {
	cfg *Config
}

// NewValidator creates a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs NewValidator(cfg).ValidateAll(), exposed as the
// package-level entry point for "config validate" (spec §6).
func Validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

// ValidateAll validates storage, then retention, then workflow, then
// retry, then provider, then admin HTTP configuration.
func (v *Validator) ValidateAll() error {
	if err := v.validateStorage(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	if err := v.validateWorkflow(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := v.validateRetry(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := v.validateProvider(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if err := v.validateAdminHTTP(); err != nil {
		return fmt.Errorf("admin_http: %w", err)
	}
	return nil
}

func (v *Validator) validateStorage() error {
	s := v.cfg.Storage
	switch s.Backend {
	case BackendMemory:
		return nil
	case BackendSQLite:
		if s.SQLite.Path == "" {
			return newFieldError("storage.sqlite.path", fmt.Errorf("%w: required for sqlite backend", ErrValidationFailed))
		}
	case BackendPostgres:
		if s.Postgres.Host == "" {
			return newFieldError("storage.postgres.host", fmt.Errorf("%w: required for postgres backend", ErrValidationFailed))
		}
		if s.Postgres.Database == "" {
			return newFieldError("storage.postgres.database", fmt.Errorf("%w: required for postgres backend", ErrValidationFailed))
		}
	default:
		return newFieldError("storage.backend", fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend))
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r.SessionRetentionDays < 0 {
		return newFieldError("retention.session_retention_days", fmt.Errorf("%w: must be >= 0", ErrValidationFailed))
	}
	if r.CleanupInterval <= 0 {
		return newFieldError("retention.cleanup_interval", fmt.Errorf("%w: must be positive", ErrValidationFailed))
	}
	return nil
}

func (v *Validator) validateWorkflow() error {
	w := v.cfg.Workflow
	if w.DefaultMaxExecutionTime <= 0 {
		return newFieldError("workflow.default_max_execution_time", fmt.Errorf("%w: must be positive", ErrValidationFailed))
	}
	if w.DefaultParallelMaxConcurrency <= 0 {
		return newFieldError("workflow.default_parallel_max_concurrency", fmt.Errorf("%w: must be positive", ErrValidationFailed))
	}
	return nil
}

func (v *Validator) validateRetry() error {
	r := v.cfg.Retry
	switch r.Strategy {
	case "fixed", "linear", "exponential", "fibonacci":
	default:
		return newFieldError("retry.strategy", fmt.Errorf("%w: %q", ErrValidationFailed, r.Strategy))
	}
	switch r.Jitter {
	case "none", "full", "equal", "decorrelated":
	default:
		return newFieldError("retry.jitter", fmt.Errorf("%w: %q", ErrValidationFailed, r.Jitter))
	}
	if r.MaxAttempts <= 0 {
		return newFieldError("retry.max_attempts", fmt.Errorf("%w: must be positive", ErrValidationFailed))
	}
	if r.Strategy == "exponential" && r.Multiplier <= 1.0 {
		return newFieldError("retry.multiplier", fmt.Errorf("%w: must be > 1.0 for exponential strategy", ErrValidationFailed))
	}
	return nil
}

func (v *Validator) validateProvider() error {
	p := v.cfg.Provider
	if p.Target == "" {
		return nil // the provider adapter is optional until a workflow actually dispatches to it
	}
	if p.DialTimeout <= 0 {
		return newFieldError("provider.dial_timeout", fmt.Errorf("%w: must be positive", ErrValidationFailed))
	}
	return nil
}

func (v *Validator) validateAdminHTTP() error {
	a := v.cfg.AdminHTTP
	if a.Enabled && a.Addr == "" {
		return newFieldError("admin_http.addr", fmt.Errorf("%w: required when enabled", ErrValidationFailed))
	}
	return nil
}
