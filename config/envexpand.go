package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in YAML content before it
// is unmarshaled, the way the teacher's pkg/config/envexpand.go does.
// Missing variables expand to the empty string; validation is expected
// to catch required fields left empty by a missing variable.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}
