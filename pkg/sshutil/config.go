package sshutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Default SSH client configuration values.
const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultSSHTimeout is the default connection timeout.
	DefaultSSHTimeout = 30 * time.Second

	// DefaultKeepaliveInterval is the default SSH keepalive interval.
	DefaultKeepaliveInterval = 15 * time.Second
)

// Algorithms holds the negotiated algorithm preference lists. Empty lists
// leave the x/crypto/ssh defaults in place.
type Algorithms struct {
	KeyExchanges      []string
	Ciphers           []string
	MACs              []string
	HostKeyAlgorithms []string
}

// Config holds SSH connection configuration.
type Config struct {
	// Host is the SSH server hostname or IP address (required).
	Host string

	// Port is the SSH server port (default: 22).
	Port int

	// User is the SSH username (required).
	User string

	// KeyData is the PEM encoded private key.
	// Either KeyData or Password must be provided.
	KeyData []byte

	// KeyPassphrase is the passphrase for encrypted SSH keys (optional).
	KeyPassphrase string

	// Password is used for password authentication and, when
	// KeyboardInteractive is set, as the answer to every challenge.
	Password string

	// KeyboardInteractive enables the keyboard-interactive auth method.
	KeyboardInteractive bool

	// Algorithms restricts the negotiated algorithm sets.
	Algorithms Algorithms

	// Timeout is the SSH connection timeout (default: 30s).
	Timeout time.Duration

	// KeepaliveInterval is the interval for SSH keepalive messages (default: 15s).
	KeepaliveInterval time.Duration

	// KnownHostsFile is a known_hosts file used to verify the server host key.
	// If empty, host keys are not verified unless StrictHostKeyChecking is set.
	KnownHostsFile string

	// StrictHostKeyChecking refuses to connect without a KnownHostsFile.
	// WARNING: Disabling host key checking is insecure and should only be used
	// for testing or when connecting to trusted internal networks.
	StrictHostKeyChecking bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Host == "" {
		errs = append(errs, "host is required")
	}

	if c.User == "" {
		errs = append(errs, "user is required")
	}

	if len(c.KeyData) == 0 && c.Password == "" {
		errs = append(errs, "at least one authentication method required (key or password)")
	}

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}

	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	if c.KeepaliveInterval < 0 {
		errs = append(errs, "keepalive_interval must be non-negative")
	}

	if c.StrictHostKeyChecking && c.KnownHostsFile == "" {
		errs = append(errs, "strict host key checking requires a known_hosts file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ssh config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the SSH server address in host:port format.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultSSHTimeout
}

// GetKeepaliveInterval returns the configured keepalive interval or the default.
func (c *Config) GetKeepaliveInterval() time.Duration {
	if c.KeepaliveInterval > 0 {
		return c.KeepaliveInterval
	}
	return DefaultKeepaliveInterval
}
