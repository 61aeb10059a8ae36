// Package config loads, merges and validates the runtime's configuration,
// modeled on the teacher's pkg/config: YAML-backed, environment-variable
// expanding, defaults-then-override merging, with validation promoted to
// a first-class operation rather than a load-time side effect only.
package config

// Config is the root configuration object, the way the teacher's
// config.Config aggregates its component registries.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Retry     RetryConfig     `yaml:"retry"`
	Provider  ProviderConfig  `yaml:"provider"`
	AdminHTTP AdminHTTPConfig `yaml:"admin_http"`
}

// Stats summarizes a loaded configuration, the way the teacher's
// Config.Stats() reports registry sizes for the startup log line.
type Stats struct {
	Backend         BackendKind
	AdminHTTPOn     bool
	WorkflowTimeout string
}

// Stats returns a summary suitable for a single structured startup log line.
func (c *Config) Stats() Stats {
	return Stats{
		Backend:         c.Storage.Backend,
		AdminHTTPOn:     c.AdminHTTP.Enabled,
		WorkflowTimeout: c.Workflow.DefaultMaxExecutionTime.String(),
	}
}
