package config

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the configuration file was not found.
	ErrNotFound = errors.New("configuration file not found")
	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")
	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = errors.New("configuration validation failed")
	// ErrUnknownBackend indicates an unrecognized storage backend kind.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Error wraps a configuration problem with the field and file it came
// from, the way the teacher's pkg/config/errors.go wraps validation and
// load failures with context.
type Error struct {
	File  string // configuration file being loaded, empty if not file-specific
	Field string // dotted field path, e.g. "storage.postgres.host"
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.File != "" && e.Field != "":
		return fmt.Sprintf("%s: field %q: %v", e.File, e.Field, e.Err)
	case e.File != "":
		return fmt.Sprintf("%s: %v", e.File, e.Err)
	case e.Field != "":
		return fmt.Sprintf("field %q: %v", e.Field, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newFieldError(field string, err error) *Error {
	return &Error{Field: field, Err: err}
}

func newFileError(file string, err error) *Error {
	return &Error{File: file, Err: err}
}
