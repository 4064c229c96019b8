package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the configuration file structure. Files ending in
// .toml are parsed as TOML; anything else is parsed as YAML.
type FileConfig struct {
	// Logging configuration
	Logging *FileLoggingConfig `yaml:"logging,omitempty" toml:"logging"`

	// HTTP server settings
	Server *FileServerConfig `yaml:"server,omitempty" toml:"server"`

	// Pointer to distinguish unset from false
	FailOnInvalidProfile *bool `yaml:"fail_on_invalid_profile,omitempty" toml:"fail_on_invalid_profile"`

	// SFTP server profiles
	Profiles []FileProfileConfig `yaml:"profiles,omitempty" toml:"profiles"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level      string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format     string `yaml:"format,omitempty" toml:"format"` // json, text
	File       string `yaml:"file,omitempty" toml:"file"`     // rotated log file; empty for stdout
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" toml:"max_size_mb"`
	MaxBackups *int   `yaml:"max_backups,omitempty" toml:"max_backups"`
	MaxAgeDays *int   `yaml:"max_age_days,omitempty" toml:"max_age_days"`
	Compress   *bool  `yaml:"compress,omitempty" toml:"compress"`
}

// FileServerConfig holds HTTP server settings.
type FileServerConfig struct {
	Listen          string `yaml:"listen,omitempty" toml:"listen"`
	MaxRequestBytes int64  `yaml:"max_request_bytes,omitempty" toml:"max_request_bytes"`
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty" toml:"shutdown_timeout"` // Go duration format
}

// FileAlgorithmConfig holds comma-separated algorithm preference lists.
type FileAlgorithmConfig struct {
	Kex           string `yaml:"kex,omitempty" toml:"kex"`
	Cipher        string `yaml:"cipher,omitempty" toml:"cipher"`
	ServerHostKey string `yaml:"server_host_key,omitempty" toml:"server_host_key"`
	HMAC          string `yaml:"hmac,omitempty" toml:"hmac"`
	Compress      string `yaml:"compress,omitempty" toml:"compress"`
}

// FileProfileConfig holds the definition of one SFTP server.
type FileProfileConfig struct {
	Name     string `yaml:"name" toml:"name"`
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port,omitempty" toml:"port"`
	Username string `yaml:"username" toml:"username"`

	Password            string `yaml:"password,omitempty" toml:"password"`
	PasswordFile        string `yaml:"password_file,omitempty" toml:"password_file"`
	KeyFile             string `yaml:"key_file,omitempty" toml:"key_file"`
	KeyData             string `yaml:"key_data,omitempty" toml:"key_data"`
	Passphrase          string `yaml:"passphrase,omitempty" toml:"passphrase"`
	PassphraseFile      string `yaml:"passphrase_file,omitempty" toml:"passphrase_file"`
	KeyboardInteractive bool   `yaml:"keyboard_interactive,omitempty" toml:"keyboard_interactive"`

	Algorithms *FileAlgorithmConfig `yaml:"algorithms,omitempty" toml:"algorithms"`

	KnownHostsFile        string `yaml:"known_hosts_file,omitempty" toml:"known_hosts_file"`
	StrictHostKeyChecking bool   `yaml:"strict_host_key_checking,omitempty" toml:"strict_host_key_checking"`
	ConnectTimeout        string `yaml:"connect_timeout,omitempty" toml:"connect_timeout"`       // Go duration format
	KeepaliveInterval     string `yaml:"keepalive_interval,omitempty" toml:"keepalive_interval"` // Go duration format

	Workdir       string `yaml:"workdir,omitempty" toml:"workdir"`
	Filename      string `yaml:"filename,omitempty" toml:"filename"`
	LocalFilename string `yaml:"local_filename,omitempty" toml:"local_filename"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// interpolateEnvVars interpolates environment variables in every string
// field of the config structure.
func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
		c.Logging.File = InterpolateEnvVars(c.Logging.File)
	}

	if c.Server != nil {
		c.Server.Listen = InterpolateEnvVars(c.Server.Listen)
		c.Server.ShutdownTimeout = InterpolateEnvVars(c.Server.ShutdownTimeout)
	}

	for i := range c.Profiles {
		p := &c.Profiles[i]
		for _, s := range []*string{
			&p.Name, &p.Host, &p.Username,
			&p.Password, &p.PasswordFile, &p.KeyFile, &p.KeyData,
			&p.Passphrase, &p.PassphraseFile,
			&p.KnownHostsFile, &p.ConnectTimeout, &p.KeepaliveInterval,
			&p.Workdir, &p.Filename, &p.LocalFilename,
		} {
			*s = InterpolateEnvVars(*s)
		}
		if a := p.Algorithms; a != nil {
			for _, s := range []*string{&a.Kex, &a.Cipher, &a.ServerHostKey, &a.HMAC, &a.Compress} {
				*s = InterpolateEnvVars(*s)
			}
		}
	}
}

// LoadFile reads and parses a YAML or TOML configuration file.
// Environment variables in ${VAR} format are interpolated.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	cfg.interpolateEnvVars()

	return &cfg, nil
}

// ToGlobalConfig converts file config to GlobalConfig, applying defaults.
// Values from file take precedence over defaults; env vars override later.
func (c *FileConfig) ToGlobalConfig() (*GlobalConfig, []string) {
	cfg := DefaultGlobalConfig()
	var errs []string

	if c.Logging != nil {
		if c.Logging.Level != "" {
			cfg.LogLevel = strings.ToLower(c.Logging.Level)
		}
		if c.Logging.Format != "" {
			cfg.LogFormat = strings.ToLower(c.Logging.Format)
		}
		cfg.LogFile = c.Logging.File
		if c.Logging.MaxSizeMB > 0 {
			cfg.LogMaxSizeMB = c.Logging.MaxSizeMB
		}
		if c.Logging.MaxBackups != nil {
			cfg.LogMaxBackups = *c.Logging.MaxBackups
		}
		if c.Logging.MaxAgeDays != nil {
			cfg.LogMaxAgeDays = *c.Logging.MaxAgeDays
		}
		if c.Logging.Compress != nil {
			cfg.LogCompress = *c.Logging.Compress
		}
	}

	if c.Server != nil {
		if c.Server.Listen != "" {
			cfg.ListenAddress = c.Server.Listen
		}
		if c.Server.MaxRequestBytes > 0 {
			cfg.MaxRequestBytes = c.Server.MaxRequestBytes
		}
		if c.Server.ShutdownTimeout != "" {
			d, err := time.ParseDuration(c.Server.ShutdownTimeout)
			if err != nil {
				errs = append(errs, fmt.Sprintf("server.shutdown_timeout: invalid duration %q", c.Server.ShutdownTimeout))
			} else {
				cfg.ShutdownTimeout = d
			}
		}
	}

	if c.FailOnInvalidProfile != nil {
		cfg.FailOnInvalidProfile = *c.FailOnInvalidProfile
	}

	return cfg, errs
}

// GetConfigFilePath returns the config file path from the environment.
// Returns empty string if no config file is specified.
func GetConfigFilePath() string {
	return os.Getenv(EnvPrefix + "_CONFIG")
}
