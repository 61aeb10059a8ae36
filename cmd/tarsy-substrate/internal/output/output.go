// Package output renders CLI command results as either a human-readable
// line or a machine-readable JSON envelope, the way dotcommander-vybe's
// internal/output package lets every command share one formatting path
// instead of hand-rolling fmt.Println calls per command.
package output

import (
	"encoding/json"
	"io"
)

// Format selects how a Result is rendered.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
)

// Result is the envelope every command produces, success or failure.
type Result struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success builds a successful Result.
func Success(summary string, data any) Result {
	return Result{Success: true, Summary: summary, Data: data}
}

// Failure builds a failed Result from an error.
func Failure(err error) Result {
	return Result{Success: false, Summary: err.Error(), Error: err.Error()}
}

// Write renders r to w in the requested format: a single summary line
// for Text, a compact JSON envelope for JSON.
func Write(w io.Writer, format Format, r Result) error {
	if format == JSON {
		enc := json.NewEncoder(w)
		return enc.Encode(r)
	}
	_, err := io.WriteString(w, r.Summary+"\n")
	return err
}
