package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader loads configuration from a YAML file, the way the teacher's
// configLoader wraps loadYAML with env-var expansion.
type Loader struct {
	// EnvFile is an optional .env file loaded (via joho/godotenv) before
	// the YAML file's ${VAR} references are expanded, for local
	// development. Ignored if empty or the file does not exist.
	EnvFile string
}

// Load performs the documented sequence: optionally load a .env file,
// read the YAML file at path, expand environment variables, unmarshal
// onto a copy of the built-in Defaults(), then validate the result.
// An empty path returns Defaults() unvalidated-overridden, i.e. the
// built-in defaults as-is (still passed through Validate).
func (l Loader) Load(path string) (*Config, error) {
	if l.EnvFile != "" {
		if _, err := os.Stat(l.EnvFile); err == nil {
			if err := godotenv.Load(l.EnvFile); err != nil {
				return nil, newFileError(l.EnvFile, fmt.Errorf("load env file: %w", err))
			}
		}
	}

	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, newFileError(path, ErrNotFound)
			}
			return nil, newFileError(path, err)
		}

		var overlay Config
		if err := yaml.Unmarshal(ExpandEnv(raw), &overlay); err != nil {
			return nil, newFileError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}

		if err := mergo.Merge(cfg, overlay, mergo.WithOverride); err != nil {
			return nil, newFileError(path, fmt.Errorf("merge configuration: %w", err))
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is a convenience wrapper around Loader{}.Load for callers with no
// .env file to consider.
func Load(path string) (*Config, error) {
	return Loader{}.Load(path)
}
