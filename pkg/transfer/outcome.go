package transfer

import (
	"fmt"
)

// Response is the structured outcome of one request. It echoes the
// non-secret request fields and carries either a result or an error.
type Response struct {
	ID            string `json:"id"`
	Profile       string `json:"profile,omitempty"`
	Operation     string `json:"operation"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	User          string `json:"user,omitempty"`
	Workdir       string `json:"workdir,omitempty"`
	Filename      string `json:"filename,omitempty"`
	LocalFilename string `json:"localFilename,omitempty"`

	Payload     any    `json:"payload,omitempty"`
	Directory   string `json:"directory,omitempty"`
	RemotePath  string `json:"remotePath,omitempty"`
	DeletedPath string `json:"deletedPath,omitempty"`
	CreatedPath string `json:"createdPath,omitempty"`
	RemovedPath string `json:"removedPath,omitempty"`

	Error  *ErrorInfo `json:"error,omitempty"`
	Status Status     `json:"status"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Message string      `json:"message"`
	Kind    string      `json:"kind"`
	Source  ErrorSource `json:"source"`
}

// ErrorSource identifies where a failure happened.
type ErrorSource struct {
	OperationName string `json:"operationName"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
}

// Status is a short human-readable summary.
type Status struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
}

// Failed reports whether the response carries an error.
func (r *Response) Failed() bool {
	return r.Error != nil
}

// newResponse starts a response echoing req.
func newResponse(id, profile string, req Request) Response {
	return Response{
		ID:            id,
		Profile:       profile,
		Operation:     req.Operation,
		Host:          req.Host,
		Port:          req.Port,
		User:          req.User,
		Workdir:       req.Workdir,
		Filename:      req.Filename,
		LocalFilename: req.LocalFilename,
	}
}

// succeed records a successful result.
func (r *Response) succeed(op Operation, res Result) {
	r.Operation = string(op)
	r.Payload = res.Payload
	r.Error = nil

	var text string
	switch op {
	case OpList:
		r.Directory = res.Path
		n := 0
		if entries, ok := res.Payload.([]Entry); ok {
			n = len(entries)
		}
		text = fmt.Sprintf("listed %d entries in %s", n, res.Path)
	case OpGet:
		r.RemotePath = res.Path
		text = fmt.Sprintf("downloaded %s (%d bytes)", res.Path, res.Bytes)
	case OpPut:
		r.RemotePath = res.Path
		text = fmt.Sprintf("uploaded %s (%d bytes)", res.Path, res.Bytes)
	case OpDelete:
		r.DeletedPath = res.Path
		text = "deleted " + res.Path
	case OpMkdir:
		r.CreatedPath = res.Path
		text = "created " + res.Path
	case OpRmdir:
		r.RemovedPath = res.Path
		text = "removed " + res.Path
	}
	r.Status = Status{OK: true, Text: text}
}

// fail records err.
func (r *Response) fail(err error) {
	kind := KindOf(err)
	r.Payload = nil
	r.Error = &ErrorInfo{
		Message: err.Error(),
		Kind:    kind.String(),
		Source: ErrorSource{
			OperationName: r.Operation,
			Host:          r.Host,
			Port:          r.Port,
		},
	}
	r.Status = Status{OK: false, Text: kind.String() + " error"}
}
