package sshutil

import (
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/pkg/sftp"
)

// SFTPFileSystem exposes remote file operations over an SFTP session that
// rides on a connected Client.
type SFTPFileSystem struct {
	client *Client
	logger *slog.Logger

	mu         sync.RWMutex
	sftpClient *sftp.Client
}

// SFTPOption is a functional option for configuring the SFTPFileSystem.
type SFTPOption func(*SFTPFileSystem)

// WithSFTPLogger sets a custom logger for SFTP operations.
func WithSFTPLogger(logger *slog.Logger) SFTPOption {
	return func(fs *SFTPFileSystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// NewSFTPFileSystem creates a new SFTP-based FileSystem.
// The underlying SSH client must be connected before use.
func NewSFTPFileSystem(client *Client, opts ...SFTPOption) *SFTPFileSystem {
	fs := &SFTPFileSystem{
		client: client,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(fs)
	}

	return fs
}

// Connect establishes the SFTP session over the SSH connection.
// The SSH client must be connected before calling this method.
func (fs *SFTPFileSystem) Connect(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient != nil {
		return nil
	}

	sshConn, err := fs.client.GetConnection()
	if err != nil {
		return fmt.Errorf("getting SSH connection: %w", err)
	}

	fs.logger.Debug("establishing SFTP session")

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		return fmt.Errorf("creating SFTP client: %w", err)
	}

	fs.sftpClient = sftpClient
	fs.logger.Debug("SFTP session established")

	return nil
}

// Close closes the SFTP session.
// Safe to call multiple times. Does not close the underlying SSH connection.
func (fs *SFTPFileSystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient == nil {
		return nil
	}

	err := fs.sftpClient.Close()
	fs.sftpClient = nil

	fs.logger.Debug("SFTP session closed")

	return err
}

// getSFTP returns the SFTP client, ensuring it's connected.
func (fs *SFTPFileSystem) getSFTP() (*sftp.Client, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if fs.sftpClient == nil {
		return nil, ErrNotConnected
	}

	return fs.sftpClient, nil
}

// ReadFile reads the contents of a file from the remote system.
func (fs *SFTPFileSystem) ReadFile(path string) ([]byte, error) {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return nil, err
	}

	fs.logger.Debug("reading file", slog.String("path", path))

	file, err := sftpClient.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	fs.logger.Debug("file read successfully",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)

	return data, nil
}

// Create opens path for writing, creating it or truncating an existing file.
// The caller must close the returned writer; the close error reports whether
// the upload was committed.
func (fs *SFTPFileSystem) Create(path string) (io.WriteCloser, error) {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return nil, err
	}

	fs.logger.Debug("opening file for write", slog.String("path", path))

	file, err := sftpClient.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("opening file %s for write: %w", path, err)
	}

	return file, nil
}

// Stat returns file info for a path on the remote system, following symlinks.
func (fs *SFTPFileSystem) Stat(path string) (os.FileInfo, error) {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return nil, err
	}

	fs.logger.Debug("stat file", slog.String("path", path))

	info, err := sftpClient.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return info, nil
}

// Lstat returns file info for a path without following a final symlink.
func (fs *SFTPFileSystem) Lstat(path string) (os.FileInfo, error) {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return nil, err
	}

	info, err := sftpClient.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("lstat %s: %w", path, err)
	}

	return info, nil
}

// Mkdir creates a single directory. The parent must already exist.
func (fs *SFTPFileSystem) Mkdir(path string) error {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return err
	}

	fs.logger.Debug("creating directory", slog.String("path", path))

	if err := sftpClient.Mkdir(path); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}

	return nil
}

// Remove removes a single file or symlink from the remote system.
func (fs *SFTPFileSystem) Remove(path string) error {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return err
	}

	fs.logger.Debug("removing path", slog.String("path", path))

	if err := sftpClient.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	return nil
}

// RemoveDirectory removes an empty directory from the remote system.
func (fs *SFTPFileSystem) RemoveDirectory(path string) error {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return err
	}

	fs.logger.Debug("removing directory", slog.String("path", path))

	if err := sftpClient.RemoveDirectory(path); err != nil {
		return fmt.Errorf("removing directory %s: %w", path, err)
	}

	return nil
}

// ReadDir reads the contents of a directory on the remote system.
func (fs *SFTPFileSystem) ReadDir(path string) ([]iofs.DirEntry, error) {
	sftpClient, err := fs.getSFTP()
	if err != nil {
		return nil, err
	}

	fs.logger.Debug("reading directory", slog.String("path", path))

	infos, err := sftpClient.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", path, err)
	}

	entries := make([]iofs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = &dirEntry{info: info}
	}

	return entries, nil
}

// dirEntry implements iofs.DirEntry for SFTP directory listings.
type dirEntry struct {
	info os.FileInfo
}

func (d *dirEntry) Name() string                 { return d.info.Name() }
func (d *dirEntry) IsDir() bool                  { return d.info.IsDir() }
func (d *dirEntry) Type() iofs.FileMode          { return d.info.Mode().Type() }
func (d *dirEntry) Info() (iofs.FileInfo, error) { return d.info, nil }

// Owner returns the numeric uid and gid reported by the server, if any.
func Owner(info os.FileInfo) (uid, gid uint32, ok bool) {
	stat, ok := info.Sys().(*sftp.FileStat)
	if !ok || stat == nil {
		return 0, 0, false
	}
	return stat.UID, stat.GID, true
}
