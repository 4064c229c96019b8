package transfer

import (
	"context"
	"fmt"
	"path/filepath"

	"gitlab.bluewillows.net/root/sftpgate/pkg/remotepath"
)

// Call is one planned Session invocation.
type Call struct {
	Op     Operation
	Path   string
	Source Source
}

// Result is the outcome of an executed Call.
type Result struct {
	Payload any
	Path    string
	// Bytes is the number of bytes downloaded (get) or uploaded (put).
	Bytes int64
}

// Plan derives the Session call for op from the payload and request
// parameters. It performs no remote I/O: payload shape, dangerous paths and
// the existence of a local put source are all checked here so that a bad
// request never opens a connection.
func Plan(op Operation, payload Payload, params Parameters) (Call, error) {
	call := Call{Op: op}

	switch op {
	case OpList, OpMkdir, OpRmdir:
		call.Path = remotepath.Normalize(firstNonEmpty(payloadString(payload), params.Workdir))
	case OpGet, OpDelete:
		if s := payloadString(payload); s != "" {
			call.Path = remotepath.Normalize(s)
		} else {
			call.Path = remotepath.Join(params.Workdir, params.Filename)
		}
	case OpPut:
		src, path, err := planPut(payload, params)
		if err != nil {
			return Call{}, err
		}
		if err := src.check(); err != nil {
			return Call{}, err
		}
		call.Source = src
		call.Path = path
	default:
		return Call{}, ValidationError("", "invalid operation %q", op)
	}

	if err := checkPath(op, call.Path); err != nil {
		return Call{}, err
	}
	return call, nil
}

func planPut(payload Payload, params Parameters) (Source, string, error) {
	switch payload.Kind {
	case PayloadObject:
		obj := payload.Object
		folder := firstNonEmpty(obj.RemoteFolder, params.Workdir)
		name := firstNonEmpty(obj.Filename, params.Filename)
		if obj.LocalFile != "" {
			local := remotepath.ResolveLocal(obj.LocalFile)
			if name == "" {
				name = filepath.Base(local)
			}
			return LocalFile(local), remotepath.Join(folder, name), nil
		}
		if obj.HasData {
			if name == "" {
				return Source{}, "", ValidationError(OpPut, "filename is required for in-memory data")
			}
			return InMemory(obj.Data), remotepath.Join(folder, name), nil
		}
	case PayloadBuffer:
		if params.Filename == "" {
			return Source{}, "", ValidationError(OpPut, "filename is required for in-memory data")
		}
		return InMemory(payload.Buffer), remotepath.Join(params.Workdir, params.Filename), nil
	case PayloadNone:
		if params.LocalFilename != "" {
			local := remotepath.ResolveLocal(params.LocalFilename)
			name := firstNonEmpty(params.Filename, filepath.Base(local))
			return LocalFile(local), remotepath.Join(params.Workdir, name), nil
		}
	}
	return Source{}, "", ValidationError(OpPut, "invalid payload for put")
}

func payloadString(p Payload) string {
	if p.Kind == PayloadString {
		return p.String
	}
	return ""
}

// Execute runs the call on a connected session.
func (c Call) Execute(ctx context.Context, s *Session) (Result, error) {
	switch c.Op {
	case OpList:
		entries, err := s.List(ctx, c.Path)
		if err != nil {
			return Result{}, err
		}
		return Result{Payload: entries, Path: c.Path}, nil
	case OpGet:
		data, err := s.Get(ctx, c.Path)
		if err != nil {
			return Result{}, err
		}
		return Result{Payload: data, Path: c.Path, Bytes: int64(len(data))}, nil
	case OpPut:
		res, err := s.Put(ctx, c.Source, c.Path)
		if err != nil {
			return Result{}, err
		}
		return Result{Payload: res, Path: res.Path, Bytes: res.Bytes}, nil
	case OpDelete:
		if err := s.Delete(ctx, c.Path); err != nil {
			return Result{}, err
		}
		return Result{Payload: fmt.Sprintf("deleted %s", c.Path), Path: c.Path}, nil
	case OpMkdir:
		if err := s.Mkdir(ctx, c.Path); err != nil {
			return Result{}, err
		}
		return Result{Payload: fmt.Sprintf("created %s", c.Path), Path: c.Path}, nil
	case OpRmdir:
		if err := s.Rmdir(ctx, c.Path); err != nil {
			return Result{}, err
		}
		return Result{Payload: fmt.Sprintf("removed %s", c.Path), Path: c.Path}, nil
	default:
		return Result{}, ValidationError("", "invalid operation %q", c.Op)
	}
}
