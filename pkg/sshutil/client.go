package sshutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Sentinel errors for SSH operations.
var (
	// ErrNotConnected is returned when an operation is attempted on a disconnected client.
	ErrNotConnected = errors.New("ssh client is not connected")

	// ErrAlreadyConnected is returned when Connect is called on an already connected client.
	ErrAlreadyConnected = errors.New("ssh client is already connected")

	// ErrAuthenticationFailed is returned when SSH authentication fails.
	ErrAuthenticationFailed = errors.New("ssh authentication failed")

	// ErrConnectionTimeout is returned when the connection times out.
	ErrConnectionTimeout = errors.New("ssh connection timed out")
)

// Client owns a single SSH connection. It is not reused after Close.
type Client struct {
	config *Config
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *ssh.Client
	cancel context.CancelFunc // stops the keepalive loop
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the SSH client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new SSH client with the given configuration.
// The client is not connected until Connect() is called.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		config: config,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Connect establishes an SSH connection to the configured server.
// If already connected, returns ErrAlreadyConnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	sshConfig, err := c.buildSSHConfig()
	if err != nil {
		return fmt.Errorf("building SSH config: %w", err)
	}

	c.logger.Debug("connecting to SSH server",
		slog.String("host", c.config.Host),
		slog.Int("port", c.config.Port),
		slog.String("user", c.config.User),
	)

	timeout := c.config.GetTimeout()
	dialCtx, dialCancel := context.WithTimeout(ctx, timeout)
	defer dialCancel()

	dialer := &net.Dialer{
		Timeout: timeout,
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", c.config.Address())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrConnectionTimeout
		}
		return fmt.Errorf("dialing %s: %w", c.config.Address(), err)
	}

	// The handshake itself is not context aware, so bound it with a deadline.
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, c.config.Address(), sshConfig)
	if err != nil {
		_ = netConn.Close()
		if isAuthError(err) {
			return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrConnectionTimeout
		}
		return fmt.Errorf("SSH handshake failed: %w", err)
	}
	_ = netConn.SetDeadline(time.Time{})

	c.conn = ssh.NewClient(sshConn, chans, reqs)

	var keepaliveCtx context.Context
	keepaliveCtx, c.cancel = context.WithCancel(context.Background())
	if interval := c.config.GetKeepaliveInterval(); interval > 0 {
		go c.keepalive(keepaliveCtx, interval)
	}

	c.logger.Debug("SSH connection established",
		slog.String("host", c.config.Host),
		slog.Int("port", c.config.Port),
		slog.String("server_version", string(sshConn.ServerVersion())),
	)

	return nil
}

// Close closes the SSH connection.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	c.logger.Debug("SSH connection closed",
		slog.String("host", c.config.Host),
	)

	return err
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// GetConnection returns the underlying SSH client connection.
// Returns ErrNotConnected if not connected.
// The connection should not be closed directly; use Client.Close() instead.
func (c *Client) GetConnection() (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	return c.conn, nil
}

// buildSSHConfig creates the ssh.ClientConfig from our Config.
func (c *Client) buildSSHConfig() (*ssh.ClientConfig, error) {
	authMethods, err := c.buildAuthMethods()
	if err != nil {
		return nil, fmt.Errorf("building auth methods: %w", err)
	}

	hostKeyCallback, err := c.buildHostKeyCallback()
	if err != nil {
		return nil, fmt.Errorf("building host key callback: %w", err)
	}

	algs := c.config.Algorithms
	return &ssh.ClientConfig{
		Config: ssh.Config{
			KeyExchanges: algs.KeyExchanges,
			Ciphers:      algs.Ciphers,
			MACs:         algs.MACs,
		},
		User:              c.config.User,
		Auth:              authMethods,
		HostKeyCallback:   hostKeyCallback,
		HostKeyAlgorithms: algs.HostKeyAlgorithms,
		Timeout:           c.config.GetTimeout(),
	}, nil
}

// buildAuthMethods creates authentication methods from the config.
// Order: public key, password, keyboard-interactive.
func (c *Client) buildAuthMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if len(c.config.KeyData) > 0 {
		signer, err := ParsePrivateKey(c.config.KeyData, c.config.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
		c.logger.Debug("added public key authentication",
			slog.String("key_type", signer.PublicKey().Type()),
		)
	}

	if c.config.Password != "" {
		methods = append(methods, ssh.Password(c.config.Password))
		c.logger.Debug("added password authentication")
	}

	if c.config.KeyboardInteractive {
		methods = append(methods, ssh.KeyboardInteractive(PasswordChallenge(c.config.Password)))
		c.logger.Debug("added keyboard-interactive authentication")
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication methods configured")
	}

	return methods, nil
}

// PasswordChallenge returns a keyboard-interactive handler that answers every
// prompt with password.
func PasswordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

// ParsePrivateKey parses a PEM private key, handling encrypted keys if a
// passphrase is provided.
func ParsePrivateKey(keyData []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(keyData)
}

// buildHostKeyCallback creates the host key callback based on config.
func (c *Client) buildHostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.config.KnownHostsFile != "" {
		callback, err := knownhosts.New(c.config.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts %s: %w", c.config.KnownHostsFile, err)
		}
		return callback, nil
	}

	if c.config.StrictHostKeyChecking {
		return nil, errors.New("strict host key checking enabled but no known_hosts file configured")
	}

	c.logger.Warn("host key verification disabled - this is insecure",
		slog.String("host", c.config.Host),
	)
	return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // no known_hosts configured
}

// keepalive sends periodic keepalive messages to maintain the connection
// during long transfers.
func (c *Client) keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				return
			}

			_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				c.logger.Warn("keepalive failed",
					slog.String("host", c.config.Host),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// isAuthError checks if an error is an authentication-related error.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods") ||
		strings.Contains(errStr, "permission denied")
}
