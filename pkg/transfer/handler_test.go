package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/sftpgate/internal/sftptest"
)

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	mu     sync.Mutex
	opened int
	closed int
	events []Event
}

func (r *recordingObserver) SessionOpened() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened++
}

func (r *recordingObserver) SessionClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

func (r *recordingObserver) RequestFinished(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, srv *sftptest.Server, opts ...HandlerOption) (*Handler, *recordingObserver) {
	t.Helper()

	profile := NewServerProfile(ProfileConfig{
		Name:           "test",
		Host:           srv.Host,
		Port:           srv.Port,
		Username:       sftptest.DefaultUser,
		Password:       sftptest.DefaultPassword,
		ConnectTimeout: 5 * time.Second,
	})
	if !profile.Valid() {
		t.Fatalf("profile invalid: %v", profile.Err())
	}
	registry, err := NewRegistry(profile)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	obs := &recordingObserver{}
	opts = append([]HandlerOption{WithLogger(testLogger()), WithObserver(obs)}, opts...)
	return NewHandler(registry, opts...), obs
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandler_List(t *testing.T) {
	srv := sftptest.NewServer(t)
	h, obs := newTestHandler(t, srv)

	home := filepath.Join(srv.Root, "home", "u")
	mustWrite(t, filepath.Join(home, "one.txt"), "1")
	mustWrite(t, filepath.Join(home, "two.txt"), "22")

	resp := h.Handle(context.Background(), "test", Request{Operation: "list", Payload: StringPayload(home)})
	if resp.Failed() {
		t.Fatalf("Handle() error = %+v", resp.Error)
	}

	entries, ok := resp.Payload.([]Entry)
	if !ok {
		t.Fatalf("Payload type = %T, want []Entry", resp.Payload)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Name != "one.txt" || entries[1].Name != "two.txt" || entries[1].Size != 2 {
		t.Errorf("entries = %+v", entries)
	}
	if entries[0].Owner != uint32(os.Getuid()) {
		t.Errorf("Owner = %d, want %d", entries[0].Owner, os.Getuid())
	}
	if resp.Directory != home {
		t.Errorf("Directory = %q, want %q", resp.Directory, home)
	}
	if !resp.Status.OK || resp.ID == "" || resp.Host != srv.Host || resp.Port != srv.Port {
		t.Errorf("response = %+v", resp)
	}

	if obs.opened != 1 || obs.closed != 1 {
		t.Errorf("sessions opened/closed = %d/%d, want 1/1", obs.opened, obs.closed)
	}
	if len(obs.events) != 1 || obs.events[0].Result != "success" || obs.events[0].Operation != OpList {
		t.Errorf("events = %+v", obs.events)
	}
}

func TestHandler_GetPutDelete(t *testing.T) {
	srv := sftptest.NewServer(t)
	h, obs := newTestHandler(t, srv)
	ctx := context.Background()
	workdir := filepath.Join(srv.Root, "work")
	if err := os.Mkdir(workdir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	local := filepath.Join(t.TempDir(), "upload.txt")
	mustWrite(t, local, "from disk")

	resp := h.Handle(ctx, "test", Request{
		Operation: "put",
		Workdir:   workdir,
		Payload:   ObjectPayload(PutObject{LocalFile: local}),
	})
	if resp.Failed() {
		t.Fatalf("put local error = %+v", resp.Error)
	}
	wantPath := workdir + "/upload.txt"
	if resp.RemotePath != wantPath {
		t.Errorf("RemotePath = %q, want %q", resp.RemotePath, wantPath)
	}
	if got, _ := os.ReadFile(wantPath); string(got) != "from disk" {
		t.Errorf("uploaded content = %q", got)
	}

	resp = h.Handle(ctx, "test", Request{
		Operation: "put",
		Workdir:   workdir,
		Filename:  "upload.txt",
		Payload:   BufferPayload([]byte("overwritten")),
	})
	if resp.Failed() {
		t.Fatalf("put buffer error = %+v", resp.Error)
	}

	resp = h.Handle(ctx, "test", Request{Operation: "get", Workdir: workdir, Filename: "upload.txt"})
	if resp.Failed() {
		t.Fatalf("get error = %+v", resp.Error)
	}
	if data, _ := resp.Payload.([]byte); string(data) != "overwritten" {
		t.Errorf("get payload = %q", data)
	}
	if resp.RemotePath != wantPath {
		t.Errorf("RemotePath = %q, want %q", resp.RemotePath, wantPath)
	}

	resp = h.Handle(ctx, "test", Request{Operation: "delete", Payload: StringPayload(wantPath)})
	if resp.Failed() {
		t.Fatalf("delete error = %+v", resp.Error)
	}
	if resp.DeletedPath != wantPath {
		t.Errorf("DeletedPath = %q, want %q", resp.DeletedPath, wantPath)
	}
	if _, err := os.Stat(wantPath); !os.IsNotExist(err) {
		t.Errorf("file still exists after delete: %v", err)
	}

	resp = h.Handle(ctx, "test", Request{Operation: "get", Payload: StringPayload(wantPath)})
	if !resp.Failed() || resp.Error.Kind != "operation" {
		t.Errorf("get missing = %+v, want operation error", resp.Error)
	}

	var bytesMoved int64
	for _, e := range obs.events {
		bytesMoved += e.Bytes
	}
	if want := int64(len("from disk") + 2*len("overwritten")); bytesMoved != want {
		t.Errorf("bytes = %d, want %d", bytesMoved, want)
	}
}

func TestHandler_MkdirRmdir(t *testing.T) {
	srv := sftptest.NewServer(t)
	h, _ := newTestHandler(t, srv)
	ctx := context.Background()

	tmp := filepath.Join(srv.Root, "tmp")
	work := filepath.Join(tmp, "work")

	resp := h.Handle(ctx, "test", Request{Operation: "mkdir", Payload: StringPayload(filepath.Join(tmp, "a", "b"))})
	if !resp.Failed() || resp.Error.Kind != "operation" {
		t.Errorf("mkdir without parent = %+v, want operation error", resp.Error)
	}

	for _, dir := range []string{tmp, work, filepath.Join(work, "nested")} {
		resp = h.Handle(ctx, "test", Request{Operation: "mkdir", Payload: StringPayload(dir)})
		if resp.Failed() {
			t.Fatalf("mkdir %s error = %+v", dir, resp.Error)
		}
		if resp.CreatedPath != dir {
			t.Errorf("CreatedPath = %q, want %q", resp.CreatedPath, dir)
		}
	}
	mustWrite(t, filepath.Join(work, "nested", "deep.txt"), "x")
	mustWrite(t, filepath.Join(work, "top.txt"), "y")
	mustWrite(t, filepath.Join(tmp, "keep.txt"), "z")
	if err := os.Symlink(filepath.Join(tmp, "keep.txt"), filepath.Join(work, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	outside := filepath.Join(srv.Root, "outside")
	if err := os.Mkdir(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(outside, "safe.txt"), "s")
	if err := os.Symlink(outside, filepath.Join(work, "dirlink")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	resp = h.Handle(ctx, "test", Request{Operation: "rmdir", Payload: StringPayload(work)})
	if resp.Failed() {
		t.Fatalf("rmdir error = %+v", resp.Error)
	}
	if resp.RemovedPath != work {
		t.Errorf("RemovedPath = %q, want %q", resp.RemovedPath, work)
	}

	resp = h.Handle(ctx, "test", Request{Operation: "list", Payload: StringPayload(tmp)})
	if resp.Failed() {
		t.Fatalf("list error = %+v", resp.Error)
	}
	for _, e := range resp.Payload.([]Entry) {
		if e.Name == "work" {
			t.Error("work still listed after rmdir")
		}
	}
	if _, err := os.Stat(filepath.Join(tmp, "keep.txt")); err != nil {
		t.Errorf("symlink target removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "safe.txt")); err != nil {
		t.Errorf("rmdir followed a directory symlink: %v", err)
	}
}

func TestHandler_FailuresBeforeConnect(t *testing.T) {
	srv := sftptest.NewServer(t)
	h, obs := newTestHandler(t, srv)
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "missing.txt")

	tests := []struct {
		name     string
		profile  string
		req      Request
		kind     string
		contains string
	}{
		{
			name:     "unknown operation",
			profile:  "test",
			req:      Request{Operation: "frobnicate"},
			kind:     "validation",
			contains: "frobnicate",
		},
		{
			name:     "missing operation",
			profile:  "test",
			req:      Request{},
			kind:     "validation",
			contains: "operation is required",
		},
		{
			name:     "missing local file",
			profile:  "test",
			req:      Request{Operation: "put", Payload: ObjectPayload(PutObject{LocalFile: missing})},
			kind:     "notfound",
			contains: missing,
		},
		{
			name:     "invalid put payload",
			profile:  "test",
			req:      Request{Operation: "put", Payload: StringPayload("x")},
			kind:     "validation",
			contains: "invalid payload for put",
		},
		{
			name:    "rmdir root",
			profile: "test",
			req:     Request{Operation: "rmdir", Payload: StringPayload("/")},
			kind:    "validation",
		},
		{
			name:    "delete current",
			profile: "test",
			req:     Request{Operation: "delete", Payload: StringPayload("./")},
			kind:    "validation",
		},
		{
			name:    "bad port override",
			profile: "test",
			req:     Request{Operation: "list", Port: 70000},
			kind:    "validation",
		},
		{
			name:     "unknown profile",
			profile:  "nope",
			req:      Request{Operation: "list"},
			kind:     "configuration",
			contains: "nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.Handle(ctx, tt.profile, tt.req)
			if !resp.Failed() {
				t.Fatalf("Handle() succeeded, want %s error", tt.kind)
			}
			if resp.Error.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q (%s)", resp.Error.Kind, tt.kind, resp.Error.Message)
			}
			if !strings.Contains(resp.Error.Message, tt.contains) {
				t.Errorf("Message = %q, want it to contain %q", resp.Error.Message, tt.contains)
			}
			if resp.Status.OK {
				t.Error("Status.OK = true on failure")
			}
		})
	}

	if got := srv.Connections(); got != 0 {
		t.Errorf("server saw %d connections, want 0", got)
	}
	if obs.opened != 0 {
		t.Errorf("sessions opened = %d, want 0", obs.opened)
	}
}

func TestHandler_ErrorSource(t *testing.T) {
	srv := sftptest.NewServer(t)
	h, _ := newTestHandler(t, srv)

	resp := h.Handle(context.Background(), "test", Request{Operation: "list", Payload: StringPayload("/definitely/not/here")})
	if !resp.Failed() {
		t.Fatal("Handle() succeeded, want operation error")
	}
	src := resp.Error.Source
	if src.OperationName != "list" || src.Host != srv.Host || src.Port != srv.Port {
		t.Errorf("Source = %+v", src)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if bytes.Contains(data, []byte(sftptest.DefaultPassword)) {
		t.Errorf("response leaks password: %s", data)
	}
	if !bytes.Contains(data, []byte(`"operationName":"list"`)) {
		t.Errorf("response JSON = %s", data)
	}
}

func TestHandler_AuthenticationFailure(t *testing.T) {
	srv := sftptest.NewServer(t)
	h, obs := newTestHandler(t, srv)

	resp := h.Handle(context.Background(), "test", Request{Operation: "list", Password: "wrong"})
	if !resp.Failed() || resp.Error.Kind != "authentication" {
		t.Fatalf("Handle() error = %+v, want authentication error", resp.Error)
	}
	if strings.Contains(resp.Error.Message, "wrong") {
		t.Errorf("message leaks password: %q", resp.Error.Message)
	}
	if obs.opened != 1 || obs.closed != 1 {
		t.Errorf("sessions opened/closed = %d/%d, want 1/1", obs.opened, obs.closed)
	}
}

func TestHandler_ConnectionFailure(t *testing.T) {
	srv := sftptest.NewServer(t)
	h, _ := newTestHandler(t, srv)
	srv.Close()

	resp := h.Handle(context.Background(), "test", Request{Operation: "list"})
	if !resp.Failed() || resp.Error.Kind != "connection" {
		t.Fatalf("Handle() error = %+v, want connection error", resp.Error)
	}
}

func TestHandler_DialerClosesOnEveryPath(t *testing.T) {
	fs := newMemFS()
	fs.dirs["/d"] = true
	registry, _ := NewRegistry(NewServerProfile(ProfileConfig{Name: "mem", Host: "mem", Username: "u", Password: "pw"}))
	h := NewHandler(registry,
		WithLogger(testLogger()),
		WithIDGenerator(func() string { return "fixed-id" }),
		WithDialer(DialerFunc(func(context.Context, Settings) (RemoteFS, error) { return fs, nil })),
	)

	ok := h.Handle(context.Background(), "", Request{Operation: "list", Payload: StringPayload("/d")})
	failed := h.Handle(context.Background(), "mem", Request{Operation: "get", Payload: StringPayload("/missing")})

	if ok.Failed() || !failed.Failed() {
		t.Fatalf("responses = %+v / %+v", ok.Error, failed.Error)
	}
	if ok.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", ok.ID)
	}
	if fs.closes != 2 {
		t.Errorf("transport closed %d times, want 2", fs.closes)
	}
}

func TestHandler_ConcurrentIsolation(t *testing.T) {
	srv := sftptest.NewServer(t)
	h, _ := newTestHandler(t, srv)

	const workers = 8
	for i := 0; i < workers; i++ {
		if err := os.Mkdir(filepath.Join(srv.Root, fmt.Sprintf("w%d", i)), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	var wg sync.WaitGroup
	responses := make([]Response, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = h.Handle(context.Background(), "test", Request{
				Operation: "put",
				Workdir:   filepath.Join(srv.Root, fmt.Sprintf("w%d", i)),
				Filename:  "out.txt",
				Payload:   BufferPayload([]byte(fmt.Sprintf("worker %d", i))),
			})
		}(i)
	}
	wg.Wait()

	for i, resp := range responses {
		dir := filepath.Join(srv.Root, fmt.Sprintf("w%d", i))
		if resp.Failed() {
			t.Errorf("worker %d error = %+v", i, resp.Error)
			continue
		}
		if resp.Workdir != dir {
			t.Errorf("worker %d Workdir = %q, want %q", i, resp.Workdir, dir)
		}
		if resp.RemotePath != dir+"/out.txt" {
			t.Errorf("worker %d RemotePath = %q", i, resp.RemotePath)
		}
		got, err := os.ReadFile(filepath.Join(dir, "out.txt"))
		if err != nil || string(got) != fmt.Sprintf("worker %d", i) {
			t.Errorf("worker %d content = %q, %v", i, got, err)
		}
	}
}
