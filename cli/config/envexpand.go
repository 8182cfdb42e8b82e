// Package config handles YAML config file loading for the coalesce
// commands.
package config

import (
	"os"
	"regexp"
)

// envRef matches ${NAME} and ${NAME:-fallback} references. NAME follows
// shell identifier rules.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes ${NAME} and ${NAME:-fallback} references in input
// with environment values. A reference that is unset (or empty) and has no
// fallback becomes the empty string rather than an error; required fields
// are caught downstream by Validate.
func ExpandEnv(input string) string {
	return envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, fallback := m[1], m[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return fallback
	})
}
