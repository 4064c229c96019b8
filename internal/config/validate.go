package config

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// profileNamePattern keeps profile names usable in URLs and env variables.
var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// validateConfig performs cross-profile validation on the complete
// configuration. Per-profile settings are validated by the transfer package
// when the registry is built.
func validateConfig(cfg *Config) []string {
	var errs []string

	seen := make(map[string]bool)
	for _, p := range cfg.Profiles {
		if p.Name == "" {
			errs = append(errs, "profile name is required")
			continue
		}
		if !profileNamePattern.MatchString(p.Name) {
			errs = append(errs, fmt.Sprintf("invalid profile name %q (letters, digits, '.', '_' and '-' only)", p.Name))
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("duplicate profile name: %q", p.Name))
		}
		seen[p.Name] = true
	}

	return errs
}
