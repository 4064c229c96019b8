package transfer

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
)

// Source is the content of a put: either a file on the local disk or an
// in-memory buffer.
type Source struct {
	path string
	data []byte
	mem  bool
}

// LocalFile returns a source streamed from the local file at path.
func LocalFile(path string) Source {
	return Source{path: path}
}

// InMemory returns a source backed by data.
func InMemory(data []byte) Source {
	return Source{data: data, mem: true}
}

// IsLocal reports whether the source is a local file.
func (s Source) IsLocal() bool { return !s.mem }

// Path returns the local file path, or "" for in-memory sources.
func (s Source) Path() string { return s.path }

// check verifies that a local source exists and is a regular file.
func (s Source) check() error {
	if s.mem {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return localFileError(s.path, err)
	}
	if !info.Mode().IsRegular() {
		return newError(KindValidation, string(OpPut), nil, "local file %s is not a regular file", s.path)
	}
	return nil
}

// open returns a reader for the source content.
func (s Source) open() (io.ReadCloser, error) {
	if s.mem {
		return io.NopCloser(bytes.NewReader(s.data)), nil
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, localFileError(s.path, err)
	}
	return f, nil
}

func localFileError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return newError(KindNotFound, string(OpPut), err, "local file %s does not exist", path)
	}
	return newError(KindOperation, string(OpPut), err, "reading local file %s", path)
}
