package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"sort"

	"gitlab.bluewillows.net/root/sftpgate/pkg/remotepath"
	"gitlab.bluewillows.net/root/sftpgate/pkg/sshutil"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RemoteFS is the file surface of an open SFTP connection.
type RemoteFS interface {
	ReadDir(path string) ([]iofs.DirEntry, error)
	ReadFile(path string) ([]byte, error)
	Create(path string) (io.WriteCloser, error)
	Stat(path string) (os.FileInfo, error)
	Lstat(path string) (os.FileInfo, error)
	Mkdir(path string) error
	Remove(path string) error
	RemoveDirectory(path string) error
	Close() error
}

// Dialer opens a RemoteFS for resolved settings. Implementations classify
// failures as authentication or connection errors.
type Dialer interface {
	Dial(ctx context.Context, settings Settings) (RemoteFS, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, settings Settings) (RemoteFS, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, settings Settings) (RemoteFS, error) {
	return f(ctx, settings)
}

// Session owns one connection for the lifetime of one request. A Session is
// not safe for concurrent use and is never reused.
type Session struct {
	dialer Dialer
	logger *slog.Logger

	state State
	fs    RemoteFS
}

// SessionOption is a functional option for configuring a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger used for session events.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession creates an idle session that connects through dialer.
func NewSession(dialer Dialer, opts ...SessionOption) *Session {
	s := &Session{
		dialer: dialer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Connect opens the connection. It may be called only once; on failure the
// session is left Failed.
func (s *Session) Connect(ctx context.Context, settings Settings) error {
	if s.state != StateIdle {
		return newError(KindConnection, "connect", nil, "session is %s", s.state)
	}
	if s.dialer == nil {
		s.state = StateFailed
		return newError(KindConfiguration, "connect", nil, "no dialer configured")
	}

	s.state = StateConnecting
	s.logger.Debug("connecting", slog.Any("settings", settings))

	fs, err := s.dialer.Dial(ctx, settings)
	if err != nil {
		s.state = StateFailed
		if KindOf(err) == KindUnknown {
			err = newError(KindConnection, "connect", err, "connecting to %s:%d", settings.Host, settings.Port)
		}
		return err
	}

	s.fs = fs
	s.state = StateConnected
	s.logger.Debug("connected", slog.String("host", settings.Host), slog.Int("port", settings.Port))
	return nil
}

// Close releases the connection. Only the first call reaches the transport;
// later calls are no-ops. Transport close errors are logged and dropped since
// the peer may already have torn the channel down.
func (s *Session) Close() {
	switch s.state {
	case StateClosed:
		return
	case StateIdle, StateConnecting:
		s.state = StateClosed
		return
	}

	fs := s.fs
	s.fs = nil
	s.state = StateClosed

	if fs == nil {
		return
	}
	if err := fs.Close(); err != nil {
		s.logger.Warn("error closing session", slog.String("error", err.Error()))
	}
}

func (s *Session) remote(op Operation) (RemoteFS, error) {
	if s.state != StateConnected || s.fs == nil {
		return nil, newError(KindConnection, string(op), nil, "session is %s", s.state)
	}
	return s.fs, nil
}

// Entry describes one directory entry.
type Entry struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Size       int64  `json:"size"`
	ModifyTime int64  `json:"modifyTime"`
	Mode       string `json:"mode"`
	Rights     Rights `json:"rights"`
	Owner      uint32 `json:"owner"`
	Group      uint32 `json:"group"`
}

// Rights are the permission letters for each class of user, like "rwx".
type Rights struct {
	User  string `json:"user"`
	Group string `json:"group"`
	Other string `json:"other"`
}

// PutResult describes a completed upload.
type PutResult struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// List returns the entries of dir sorted by name.
func (s *Session) List(_ context.Context, dir string) ([]Entry, error) {
	fs, err := s.remote(OpList)
	if err != nil {
		return nil, err
	}
	dir = remotepath.Normalize(dir)

	dirEntries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, remoteError(OpList, dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			return nil, remoteError(OpList, remotepath.Join(dir, de.Name()), err)
		}
		entries = append(entries, newEntry(info))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

// Get returns the content of the regular file at path.
func (s *Session) Get(_ context.Context, path string) ([]byte, error) {
	fs, err := s.remote(OpGet)
	if err != nil {
		return nil, err
	}
	path = remotepath.Normalize(path)

	info, err := fs.Stat(path)
	if err != nil {
		return nil, remoteError(OpGet, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, newError(KindOperation, string(OpGet), nil, "%s is not a regular file", path)
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, remoteError(OpGet, path, err)
	}
	return data, nil
}

// Put writes src to path, replacing any existing file. A local source is
// opened before any remote I/O.
func (s *Session) Put(ctx context.Context, src Source, path string) (PutResult, error) {
	reader, err := src.open()
	if err != nil {
		return PutResult{}, err
	}
	defer func() { _ = reader.Close() }()

	fs, err := s.remote(OpPut)
	if err != nil {
		return PutResult{}, err
	}
	path = remotepath.Normalize(path)

	w, err := fs.Create(path)
	if err != nil {
		return PutResult{}, remoteError(OpPut, path, err)
	}

	n, err := io.Copy(w, contextReader{ctx: ctx, r: reader})
	if err != nil {
		_ = w.Close()
		return PutResult{}, remoteError(OpPut, path, err)
	}
	if err := w.Close(); err != nil {
		return PutResult{}, remoteError(OpPut, path, err)
	}

	return PutResult{Path: path, Bytes: n}, nil
}

// Delete removes the single file at path.
func (s *Session) Delete(_ context.Context, path string) error {
	if err := checkPath(OpDelete, path); err != nil {
		return err
	}
	fs, err := s.remote(OpDelete)
	if err != nil {
		return err
	}
	path = remotepath.Normalize(path)

	info, err := fs.Lstat(path)
	if err != nil {
		return remoteError(OpDelete, path, err)
	}
	if info.IsDir() {
		return newError(KindOperation, string(OpDelete), nil, "%s is a directory", path)
	}
	if err := fs.Remove(path); err != nil {
		return remoteError(OpDelete, path, err)
	}
	return nil
}

// Mkdir creates one directory. The parent must exist.
func (s *Session) Mkdir(_ context.Context, path string) error {
	if err := checkPath(OpMkdir, path); err != nil {
		return err
	}
	fs, err := s.remote(OpMkdir)
	if err != nil {
		return err
	}
	path = remotepath.Normalize(path)

	if err := fs.Mkdir(path); err != nil {
		return remoteError(OpMkdir, path, err)
	}
	return nil
}

// Rmdir removes the directory at path and everything beneath it. Symlinks
// inside the tree are unlinked, never followed.
func (s *Session) Rmdir(ctx context.Context, path string) error {
	if err := checkPath(OpRmdir, path); err != nil {
		return err
	}
	fs, err := s.remote(OpRmdir)
	if err != nil {
		return err
	}
	path = remotepath.Normalize(path)

	info, err := fs.Lstat(path)
	if err != nil {
		return remoteError(OpRmdir, path, err)
	}
	if !info.IsDir() {
		return newError(KindOperation, string(OpRmdir), nil, "%s is not a directory", path)
	}
	return removeTree(ctx, fs, path)
}

func removeTree(ctx context.Context, fs RemoteFS, dir string) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return remoteError(OpRmdir, dir, err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return newError(KindOperation, string(OpRmdir), err, "removing %s", dir)
		}
		child := remotepath.Join(dir, e.Name())
		if e.IsDir() && e.Type()&iofs.ModeSymlink == 0 {
			if err := removeTree(ctx, fs, child); err != nil {
				return err
			}
			continue
		}
		if err := fs.Remove(child); err != nil {
			return remoteError(OpRmdir, child, err)
		}
	}
	if err := fs.RemoveDirectory(dir); err != nil {
		return remoteError(OpRmdir, dir, err)
	}
	return nil
}

// checkPath rejects the paths an operation must never touch.
func checkPath(op Operation, path string) error {
	n := remotepath.Normalize(path)
	var forbidden bool
	switch op {
	case OpDelete:
		forbidden = n == "/" || n == "./"
	case OpRmdir:
		forbidden = n == "/" || n == "./" || n == "."
	case OpMkdir:
		forbidden = n == "./"
	}
	if forbidden {
		return ValidationError(op, "refusing to %s %q", op, n)
	}
	return nil
}

func remoteError(op Operation, path string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, sshutil.ErrNotConnected) {
		return newError(KindConnection, string(op), err, "%s", path)
	}
	return newError(KindOperation, string(op), err, "%s", path)
}

func newEntry(info os.FileInfo) Entry {
	mode := info.Mode()
	e := Entry{
		Name:       info.Name(),
		Type:       entryType(mode),
		Size:       info.Size(),
		ModifyTime: info.ModTime().UnixMilli(),
		Mode:       mode.String(),
		Rights: Rights{
			User:  rights(mode.Perm() >> 6),
			Group: rights(mode.Perm() >> 3),
			Other: rights(mode.Perm()),
		},
	}
	if uid, gid, ok := sshutil.Owner(info); ok {
		e.Owner = uid
		e.Group = gid
	}
	return e
}

func entryType(mode os.FileMode) string {
	switch {
	case mode&os.ModeSymlink != 0:
		return "l"
	case mode.IsDir():
		return "d"
	default:
		return "-"
	}
}

func rights(bits os.FileMode) string {
	var out []byte
	if bits&4 != 0 {
		out = append(out, 'r')
	}
	if bits&2 != 0 {
		out = append(out, 'w')
	}
	if bits&1 != 0 {
		out = append(out, 'x')
	}
	return string(out)
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
