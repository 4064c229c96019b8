// Package sshutil provides the SSH and SFTP transport used by sftpgate
// sessions.
//
// # Overview
//
// The package provides two components:
//
//   - [Client]: one authenticated SSH connection with negotiated algorithm
//     sets, keepalive, and idempotent Close
//   - [SFTPFileSystem]: file operations over an SFTP session on a [Client]
//
// Connections are never pooled. Each caller creates a Client, uses it, and
// closes it.
//
// # Basic Usage
//
//	config := &sshutil.Config{
//		Host:     "files.internal",
//		Port:     22,
//		User:     "backup",
//		KeyData:  pemBytes,
//		Algorithms: sshutil.Algorithms{
//			Ciphers: []string{"aes256-gcm@openssh.com"},
//		},
//	}
//
//	client, err := sshutil.NewClient(config)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//
//	fs := sshutil.NewSFTPFileSystem(client)
//	if err := fs.Connect(ctx); err != nil {
//		return err
//	}
//	defer fs.Close()
//
//	entries, err := fs.ReadDir("/upload")
//
// # Authentication
//
// Public key, password and keyboard-interactive methods are offered in that
// order. Keyboard-interactive prompts are answered with the configured
// password.
//
// # Security Considerations
//
// Without a KnownHostsFile the server host key is not verified and a warning
// is logged on every connection. Set KnownHostsFile, and optionally
// StrictHostKeyChecking, for anything outside a trusted network.
package sshutil
