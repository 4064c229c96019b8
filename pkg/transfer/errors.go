package transfer

import (
	"errors"
	"fmt"
)

// Kind classifies a request failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAuthentication
	KindConnection
	KindValidation
	KindNotFound
	KindOperation
)

// String returns the lower-case name used in responses and metric labels.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindConnection:
		return "connection"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "notfound"
	case KindOperation:
		return "operation"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind. An *Error matches the sentinel of its kind
// with errors.Is.
var (
	// ErrConfiguration indicates a missing, invalid, or incomplete profile.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthentication indicates the server rejected the credentials.
	ErrAuthentication = errors.New("authentication error")

	// ErrConnection indicates a network or handshake failure.
	ErrConnection = errors.New("connection error")

	// ErrValidation indicates an illegal request argument.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a missing local source file.
	ErrNotFound = errors.New("not found")

	// ErrOperation indicates the server refused a file operation.
	ErrOperation = errors.New("operation error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindAuthentication:
		return ErrAuthentication
	case KindConnection:
		return ErrConnection
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindOperation:
		return ErrOperation
	default:
		return nil
	}
}

// Error is a classified failure of one request.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg = msg + ": " + e.Err.Error()
	case msg == "":
		msg = e.Kind.String() + " error"
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// ConfigurationError creates a KindConfiguration error.
func ConfigurationError(format string, args ...any) error {
	return newError(KindConfiguration, "", nil, format, args...)
}

// ValidationError creates a KindValidation error.
func ValidationError(op Operation, format string, args ...any) error {
	return newError(KindValidation, string(op), nil, format, args...)
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsConfiguration returns true if err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsAuthentication returns true if the server rejected the credentials.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsConnection returns true if err is a network or handshake failure.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if a local source file was missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsOperation returns true if the server refused a file operation.
func IsOperation(err error) bool {
	return errors.Is(err, ErrOperation)
}
