// Package sftptest runs an in-process SSH server with an SFTP subsystem for
// tests. Files are served from a temporary directory on the local disk.
package sftptest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Default credentials accepted by a Server.
const (
	DefaultUser     = "tester"
	DefaultPassword = "s3cret"
)

// Server is a running test SSH server.
type Server struct {
	Host string
	Port int
	// Root is a temporary directory that tests use as the remote tree.
	Root string
	// HostKey is the server's public host key.
	HostKey ssh.PublicKey

	listener    net.Listener
	config      *ssh.ServerConfig
	connections atomic.Int64
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// Option configures a Server.
type Option func(*options)

type options struct {
	user          string
	password      string
	authorizedKey ssh.PublicKey
	interactive   bool
	noPassword    bool
}

// WithCredentials changes the accepted username and password.
func WithCredentials(user, password string) Option {
	return func(o *options) {
		o.user = user
		o.password = password
	}
}

// WithAuthorizedKey accepts public key auth for key.
func WithAuthorizedKey(key ssh.PublicKey) Option {
	return func(o *options) {
		o.authorizedKey = key
	}
}

// WithKeyboardInteractiveOnly disables password auth and requires the
// password as the answer to a single keyboard-interactive prompt.
func WithKeyboardInteractiveOnly() Option {
	return func(o *options) {
		o.interactive = true
		o.noPassword = true
	}
}

// NewServer starts a server on a random loopback port. It is shut down when
// the test finishes.
func NewServer(tb testing.TB, opts ...Option) *Server {
	tb.Helper()

	o := &options{user: DefaultUser, password: DefaultPassword}
	for _, opt := range opts {
		opt(o)
	}

	signer, _ := newSigner(tb)

	config := &ssh.ServerConfig{}
	if !o.noPassword {
		config.PasswordCallback = func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if meta.User() == o.user && string(password) == o.password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", meta.User())
		}
	}
	if o.interactive {
		config.KeyboardInteractiveCallback = func(meta ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := client(meta.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if meta.User() == o.user && len(answers) == 1 && answers[0] == o.password {
				return nil, nil
			}
			return nil, errors.New("keyboard-interactive rejected")
		}
	}
	if o.authorizedKey != nil {
		want := o.authorizedKey.Marshal()
		config.PublicKeyCallback = func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == o.user && bytes.Equal(key.Marshal(), want) {
				return nil, nil
			}
			return nil, errors.New("public key rejected")
		}
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}

	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	s := &Server{
		Host:     host,
		Port:     port,
		Root:     tb.TempDir(),
		HostKey:  signer.PublicKey(),
		listener: listener,
		config:   config,
	}

	s.wg.Add(1)
	go s.acceptLoop()
	tb.Cleanup(s.Close)

	return s
}

// Connections returns the number of TCP connections accepted so far.
func (s *Server) Connections() int64 {
	return s.connections.Load()
}

// Close stops accepting connections and waits for the accept loop to exit.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		_ = s.listener.Close()
		s.wg.Wait()
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.connections.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		_ = netConn.Close()
		return
	}
	defer func() { _ = sshConn.Close() }()

	go func() {
		for req := range reqs {
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		}
	}()

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()

	for req := range requests {
		if req.Type != "subsystem" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var subsystem struct{ Name string }
		if err := ssh.Unmarshal(req.Payload, &subsystem); err != nil || subsystem.Name != "sftp" {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)

		go func() {
			for r := range requests {
				if r.WantReply {
					_ = r.Reply(false, nil)
				}
			}
		}()

		server, err := sftp.NewServer(ch, sftp.WithServerWorkingDirectory(s.Root))
		if err != nil {
			return
		}
		if err := server.Serve(); err != nil && !errors.Is(err, io.EOF) {
			_ = server.Close()
			return
		}
		_ = server.Close()
		return
	}
}

// NewClientKey generates an ed25519 key pair. It returns the PEM encoded
// private key and the matching public key.
func NewClientKey(tb testing.TB) ([]byte, ssh.PublicKey) {
	tb.Helper()
	signer, pemBytes := newSigner(tb)
	return pemBytes, signer.PublicKey()
}

func newSigner(tb testing.TB) (ssh.Signer, []byte) {
	tb.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		tb.Fatalf("signer from key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		tb.Fatalf("marshal private key: %v", err)
	}
	return signer, pem.EncodeToMemory(block)
}
