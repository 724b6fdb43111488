// Package environment reads configuration overrides from environment
// variables. Every helper takes a fallback and never terminates the process;
// deciding what is fatal belongs to the caller.
package environment

import (
	"os"
	"strconv"
)

// String returns the named variable's value and whether it was set at all,
// distinguishing "unset" from "set to empty".
func String(name string) (string, bool) {
	return os.LookupEnv(name)
}

// StringOr returns the named variable's value, or fallback when it is unset
// or empty.
func StringOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// BoolOr parses the named variable with strconv.ParseBool semantics
// ("1", "t", "true", "0", "f", "false", ...). Unset, empty, or unparseable
// values yield fallback.
func BoolOr(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// IntOr parses the named variable as a decimal integer. Unset, empty, or
// unparseable values yield fallback.
func IntOr(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
