package transfer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Operation is one of the six supported remote actions.
type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpPut    Operation = "put"
	OpDelete Operation = "delete"
	OpMkdir  Operation = "mkdir"
	OpRmdir  Operation = "rmdir"
)

// Operations lists every supported operation.
var Operations = []Operation{OpList, OpGet, OpPut, OpDelete, OpMkdir, OpRmdir}

// ParseOperation returns the operation named by name. Matching ignores case
// and surrounding whitespace. No default is assumed for an empty name.
func ParseOperation(name string) (Operation, error) {
	normalized := Operation(strings.ToLower(strings.TrimSpace(name)))
	for _, op := range Operations {
		if op == normalized {
			return op, nil
		}
	}
	if name == "" {
		return "", ValidationError("", "operation is required")
	}
	return "", ValidationError("", "invalid operation %q", name)
}

// Request is one inbound operation request.
type Request struct {
	ID        string  `json:"id,omitempty"`
	Operation string  `json:"operation"`
	Payload   Payload `json:"payload"`

	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`

	Workdir       string `json:"workdir,omitempty"`
	Filename      string `json:"filename,omitempty"`
	LocalFilename string `json:"localFilename,omitempty"`
}

// Overrides returns the request fields that override profile defaults.
func (r Request) Overrides() Overrides {
	return Overrides{
		Host:          r.Host,
		Port:          r.Port,
		User:          r.User,
		Password:      r.Password,
		Workdir:       r.Workdir,
		Filename:      r.Filename,
		LocalFilename: r.LocalFilename,
	}
}

// PayloadKind identifies which variant a Payload holds.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadString
	PayloadBuffer
	PayloadObject
	PayloadInvalid
)

// Payload is the operation-dependent request payload: a path string, a byte
// buffer, or an object describing a put.
type Payload struct {
	Kind   PayloadKind
	String string
	Buffer []byte
	Object PutObject
}

// PutObject is the object form of a put payload.
type PutObject struct {
	LocalFile    string
	RemoteFolder string
	Filename     string
	Data         []byte
	HasData      bool
}

// StringPayload returns a string payload.
func StringPayload(s string) Payload {
	return Payload{Kind: PayloadString, String: s}
}

// BufferPayload returns a buffer payload.
func BufferPayload(b []byte) Payload {
	return Payload{Kind: PayloadBuffer, Buffer: b}
}

// ObjectPayload returns an object payload.
func ObjectPayload(o PutObject) Payload {
	return Payload{Kind: PayloadObject, Object: o}
}

// UnmarshalJSON decodes any JSON value. Shapes that are not a string,
// buffer, or put object decode to PayloadInvalid rather than failing, so
// that the operation can report a validation error.
//
// Buffers are either {"type":"Buffer","data":...} or a bare array of byte
// values. Buffer data may be an array of byte values or a base64 string.
// An object's "data" field may also be a plain string, taken as UTF-8 text.
func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = Payload{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*p = StringPayload(s)
	case '[':
		b, ok := byteArray(trimmed)
		if !ok {
			p.Kind = PayloadInvalid
			return nil
		}
		*p = BufferPayload(b)
	case '{':
		p.decodeObject(trimmed)
	default:
		p.Kind = PayloadInvalid
	}
	return nil
}

func (p *Payload) decodeObject(data []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		p.Kind = PayloadInvalid
		return
	}

	if b, ok := nodeBuffer(fields); ok {
		*p = BufferPayload(b)
		return
	}

	var obj PutObject
	for key, dst := range map[string]*string{
		"localfile":    &obj.LocalFile,
		"remotefolder": &obj.RemoteFolder,
		"filename":     &obj.Filename,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			p.Kind = PayloadInvalid
			return
		}
	}

	if raw, ok := fields["data"]; ok {
		b, ok := dataBytes(raw)
		if !ok {
			p.Kind = PayloadInvalid
			return
		}
		obj.Data = b
		obj.HasData = true
	}

	*p = ObjectPayload(obj)
}

// nodeBuffer decodes {"type":"Buffer","data":...}.
func nodeBuffer(fields map[string]json.RawMessage) ([]byte, bool) {
	var typ string
	if raw, ok := fields["type"]; !ok || json.Unmarshal(raw, &typ) != nil || typ != "Buffer" {
		return nil, false
	}
	raw, ok := fields["data"]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if json.Unmarshal(trimmed, &s) != nil {
			return nil, false
		}
		b, err := base64.StdEncoding.DecodeString(s)
		return b, err == nil
	}
	return byteArray(trimmed)
}

// dataBytes decodes the "data" field of a put object.
func dataBytes(raw json.RawMessage) ([]byte, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}
	switch trimmed[0] {
	case '"':
		var s string
		if json.Unmarshal(trimmed, &s) != nil {
			return nil, false
		}
		return []byte(s), true
	case '[':
		return byteArray(trimmed)
	case '{':
		var fields map[string]json.RawMessage
		if json.Unmarshal(trimmed, &fields) != nil {
			return nil, false
		}
		return nodeBuffer(fields)
	}
	return nil, false
}

func byteArray(raw []byte) ([]byte, bool) {
	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, false
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, false
		}
		out[i] = byte(v)
	}
	return out, true
}

// MarshalJSON encodes the payload back to its JSON form. Buffers use the
// {"type":"Buffer","data":"<base64>"} shape.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadString:
		return json.Marshal(p.String)
	case PayloadBuffer:
		return json.Marshal(struct {
			Type string `json:"type"`
			Data []byte `json:"data"`
		}{"Buffer", p.Buffer})
	case PayloadObject:
		obj := map[string]any{}
		if p.Object.LocalFile != "" {
			obj["localfile"] = p.Object.LocalFile
		}
		if p.Object.RemoteFolder != "" {
			obj["remotefolder"] = p.Object.RemoteFolder
		}
		if p.Object.Filename != "" {
			obj["filename"] = p.Object.Filename
		}
		if p.Object.HasData {
			obj["data"] = map[string]any{"type": "Buffer", "data": p.Object.Data}
		}
		return json.Marshal(obj)
	default:
		return []byte("null"), nil
	}
}
