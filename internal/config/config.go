// Package config loads sftpgate configuration from an optional YAML or TOML
// file and SFTPGATE_* environment variables.
//
// Precedence, lowest first: built-in defaults, the config file, global
// environment variables, then environment-defined profiles.
package config

import (
	"fmt"

	"gitlab.bluewillows.net/root/sftpgate/pkg/transfer"
)

// Config holds the complete application configuration.
type Config struct {
	Global   *GlobalConfig
	Profiles []transfer.ProfileConfig

	// Path is the config file that was loaded, if any.
	Path string
}

// Load reads configuration from path (or SFTPGATE_CONFIG when path is
// empty) and the environment. All problems are collected and returned
// together as a *ValidationError.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigFilePath()
	}

	var (
		errs []string
		file = &FileConfig{}
	)

	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		file = fc
	}

	global, gerrs := file.ToGlobalConfig()
	errs = append(errs, gerrs...)
	errs = append(errs, global.applyEnv()...)
	errs = append(errs, global.validate()...)

	profiles, perrs := loadProfiles(file.Profiles)
	errs = append(errs, perrs...)

	cfg := &Config{
		Global:   global,
		Profiles: profiles,
		Path:     path,
	}
	errs = append(errs, validateConfig(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// BuildRegistry validates every profile and returns the registry. Invalid
// profiles are registered too; callers decide whether to refuse them via
// Registry.Invalid.
func (c *Config) BuildRegistry() (*transfer.Registry, error) {
	profiles := make([]*transfer.ServerProfile, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		profiles = append(profiles, transfer.NewServerProfile(p))
	}
	reg, err := transfer.NewRegistry(profiles...)
	if err != nil {
		return nil, fmt.Errorf("building profile registry: %w", err)
	}
	return reg, nil
}
