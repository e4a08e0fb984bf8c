package config

import (
	"os"
)

// EnvironmentExpander expands environment variable placeholders (${VAR} or $VAR)
// in raw configuration resources before they are parsed.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands placeholders through a lookup function.
// Unset variables expand to an empty string, the same as os.ExpandEnv.
type OsEnvironmentExpander struct {
	lookup func(string) (string, bool)
}

// NewOsEnvironmentExpander creates an expander backed by the process environment.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: os.LookupEnv}
}

// NewLookupEnvironmentExpander creates an expander backed by lookup.
func NewLookupEnvironmentExpander(lookup func(string) (string, bool)) *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: lookup}
}

// Expand implements EnvironmentExpander. It never fails.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	expanded := os.Expand(string(input), func(name string) string {
		v, _ := e.lookup(name)
		return v
	})
	return []byte(expanded), nil
}
