package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every sftpgate environment variable.
const EnvPrefix = "SFTPGATE"

// Global configuration defaults.
const (
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultLogMaxSizeMB         = 100
	DefaultLogMaxBackups        = 5
	DefaultLogMaxAgeDays        = 28
	DefaultListenAddress        = ":8080"
	DefaultMaxRequestBytes      = 32 << 20
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultFailOnInvalidProfile = true
)

// GlobalConfig holds application-wide settings. Each field can be overridden
// by an SFTPGATE_* environment variable, e.g. LogLevel by SFTPGATE_LOG_LEVEL.
type GlobalConfig struct {
	// Logging configuration
	LogLevel      string `split_words:"true"` // debug, info, warn, error
	LogFormat     string `split_words:"true"` // json, text
	LogFile       string `split_words:"true"` // empty logs to stdout
	LogMaxSizeMB  int    `split_words:"true"`
	LogMaxBackups int    `split_words:"true"`
	LogMaxAgeDays int    `split_words:"true"`
	LogCompress   bool   `split_words:"true"`

	// HTTP server
	ListenAddress   string        `split_words:"true"`
	MaxRequestBytes int64         `split_words:"true"`
	ShutdownTimeout time.Duration `split_words:"true"`

	// FailOnInvalidProfile makes serve refuse to start when any profile is
	// invalid. When false, invalid profiles stay registered and reject
	// every request.
	FailOnInvalidProfile bool `split_words:"true"`
}

// DefaultGlobalConfig returns the built-in defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		LogLevel:             DefaultLogLevel,
		LogFormat:            DefaultLogFormat,
		LogMaxSizeMB:         DefaultLogMaxSizeMB,
		LogMaxBackups:        DefaultLogMaxBackups,
		LogMaxAgeDays:        DefaultLogMaxAgeDays,
		ListenAddress:        DefaultListenAddress,
		MaxRequestBytes:      DefaultMaxRequestBytes,
		ShutdownTimeout:      DefaultShutdownTimeout,
		FailOnInvalidProfile: DefaultFailOnInvalidProfile,
	}
}

// applyEnv overlays SFTPGATE_* environment variables onto cfg. Variables
// that are not set leave the current value in place.
func (cfg *GlobalConfig) applyEnv() []string {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// validate normalizes and checks the global settings.
func (cfg *GlobalConfig) validate() []string {
	var errs []string

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("SFTPGATE_LOG_LEVEL: invalid value %q (must be debug, info, warn, or error)", cfg.LogLevel))
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "json", "text":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("SFTPGATE_LOG_FORMAT: invalid value %q (must be json or text)", cfg.LogFormat))
	}

	if cfg.LogMaxSizeMB < 1 {
		errs = append(errs, "SFTPGATE_LOG_MAX_SIZE_MB: must be at least 1")
	}
	if cfg.LogMaxBackups < 0 {
		errs = append(errs, "SFTPGATE_LOG_MAX_BACKUPS: must not be negative")
	}
	if cfg.LogMaxAgeDays < 0 {
		errs = append(errs, "SFTPGATE_LOG_MAX_AGE_DAYS: must not be negative")
	}

	if cfg.ListenAddress == "" {
		errs = append(errs, "SFTPGATE_LISTEN_ADDRESS: required but not set")
	}
	if cfg.MaxRequestBytes < 1 {
		errs = append(errs, "SFTPGATE_MAX_REQUEST_BYTES: must be at least 1")
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, "SFTPGATE_SHUTDOWN_TIMEOUT: must not be negative")
	}

	return errs
}
