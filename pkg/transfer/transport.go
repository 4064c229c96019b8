package transfer

import (
	"context"
	"errors"
	"log/slog"

	"gitlab.bluewillows.net/root/sftpgate/pkg/sshutil"
)

// SSHDialer opens SFTP sessions over SSH using pkg/sshutil.
type SSHDialer struct {
	logger *slog.Logger
}

// DialOption is a functional option for configuring the SSHDialer.
type DialOption func(*SSHDialer)

// WithDialLogger sets the logger passed to the SSH and SFTP clients.
func WithDialLogger(logger *slog.Logger) DialOption {
	return func(d *SSHDialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewSSHDialer creates the default dialer.
func NewSSHDialer(opts ...DialOption) *SSHDialer {
	d := &SSHDialer{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects, authenticates and starts the sftp subsystem.
func (d *SSHDialer) Dial(ctx context.Context, settings Settings) (RemoteFS, error) {
	client, err := sshutil.NewClient(settings.SSHConfig(), sshutil.WithLogger(d.logger))
	if err != nil {
		return nil, newError(KindConfiguration, "connect", err, "invalid connection settings")
	}

	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		if errors.Is(err, sshutil.ErrAuthenticationFailed) {
			return nil, newError(KindAuthentication, "connect", err, "authenticating as %s on %s", settings.Username, settings.SSHConfig().Address())
		}
		return nil, newError(KindConnection, "connect", err, "connecting to %s", settings.SSHConfig().Address())
	}

	fs := sshutil.NewSFTPFileSystem(client, sshutil.WithSFTPLogger(d.logger))
	if err := fs.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, newError(KindConnection, "connect", err, "starting sftp subsystem on %s", settings.SSHConfig().Address())
	}

	return &sftpRemote{SFTPFileSystem: fs, client: client}, nil
}

// sftpRemote closes the SFTP session and its SSH connection together.
type sftpRemote struct {
	*sshutil.SFTPFileSystem
	client *sshutil.Client
}

func (r *sftpRemote) Close() error {
	return errors.Join(r.SFTPFileSystem.Close(), r.client.Close())
}
