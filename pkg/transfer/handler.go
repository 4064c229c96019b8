package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event describes one finished request.
type Event struct {
	RequestID string
	Profile   string
	Operation Operation
	// Result is "success" or the error kind.
	Result   string
	Duration time.Duration
	// Bytes moved by a get or put.
	Bytes int64
}

// Observer receives request lifecycle events. Implementations must be safe
// for concurrent use.
type Observer interface {
	SessionOpened()
	SessionClosed()
	RequestFinished(Event)
}

type noopObserver struct{}

func (noopObserver) SessionOpened()        {}
func (noopObserver) SessionClosed()        {}
func (noopObserver) RequestFinished(Event) {}

// Handler runs requests against the profiles of a Registry. Every request
// gets its own Settings, Parameters and Session; the handler itself holds
// only read-only state and is safe for concurrent use.
type Handler struct {
	registry *Registry
	dialer   Dialer
	logger   *slog.Logger
	observer Observer
	newID    func() string
}

// HandlerOption is a functional option for configuring the Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger for request handling.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithDialer replaces the SSH dialer.
func WithDialer(d Dialer) HandlerOption {
	return func(h *Handler) {
		if d != nil {
			h.dialer = d
		}
	}
}

// WithObserver registers an observer for request events.
func WithObserver(o Observer) HandlerOption {
	return func(h *Handler) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithIDGenerator replaces the request id generator.
func WithIDGenerator(fn func() string) HandlerOption {
	return func(h *Handler) {
		if fn != nil {
			h.newID = fn
		}
	}
}

// NewHandler creates a handler for registry.
func NewHandler(registry *Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		logger:   slog.Default(),
		observer: noopObserver{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.dialer == nil {
		h.dialer = NewSSHDialer(WithDialLogger(h.logger))
	}
	return h
}

// Registry returns the handler's profile registry.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Handle runs one request against the named profile. The session is always
// closed before the response is built.
func (h *Handler) Handle(ctx context.Context, profileName string, req Request) Response {
	start := time.Now()

	id := req.ID
	if id == "" {
		id = h.newID()
	}
	resp := newResponse(id, profileName, req)

	logger := h.logger.With(
		slog.String("request_id", id),
		slog.String("profile", profileName),
		slog.String("operation", req.Operation),
	)

	res, op, err := h.handle(ctx, logger, profileName, req, &resp)

	event := Event{
		RequestID: id,
		Profile:   resp.Profile,
		Operation: op,
		Result:    "success",
		Duration:  time.Since(start),
		Bytes:     res.Bytes,
	}

	if err != nil {
		resp.fail(err)
		event.Result = KindOf(err).String()
		logger.Warn("request failed",
			slog.String("kind", event.Result),
			slog.String("error", err.Error()),
			slog.Duration("duration", event.Duration),
		)
	} else {
		resp.succeed(op, res)
		logger.Info("request completed",
			slog.String("path", res.Path),
			slog.Duration("duration", event.Duration),
		)
	}

	h.observer.RequestFinished(event)
	return resp
}

func (h *Handler) handle(ctx context.Context, logger *slog.Logger, profileName string, req Request, resp *Response) (Result, Operation, error) {
	if h.registry == nil {
		return Result{}, "", ConfigurationError("no profiles configured")
	}
	profile, err := h.registry.Lookup(profileName)
	if err != nil {
		return Result{}, "", err
	}
	resp.Profile = profile.Name()
	if resp.Host == "" {
		resp.Host = profile.Host()
	}
	if resp.Port == 0 {
		resp.Port = profile.Port()
	}

	op, err := ParseOperation(req.Operation)
	if err != nil {
		return Result{}, "", err
	}
	resp.Operation = string(op)

	overrides := req.Overrides()
	settings, err := profile.Resolve(overrides)
	if err != nil {
		return Result{}, op, err
	}
	resp.Host = settings.Host
	resp.Port = settings.Port
	resp.User = settings.Username

	params := profile.Parameters(overrides)
	resp.Workdir = params.Workdir
	resp.Filename = params.Filename
	resp.LocalFilename = params.LocalFilename

	call, err := Plan(op, req.Payload, params)
	if err != nil {
		return Result{}, op, err
	}

	res, err := h.execute(ctx, logger, settings, call)
	return res, op, err
}

// execute runs call on a fresh session. The deferred Close runs on every
// path before execute returns.
func (h *Handler) execute(ctx context.Context, logger *slog.Logger, settings Settings, call Call) (Result, error) {
	session := NewSession(h.dialer, WithSessionLogger(logger))

	h.observer.SessionOpened()
	defer h.observer.SessionClosed()
	defer session.Close()

	if err := session.Connect(ctx, settings); err != nil {
		return Result{}, err
	}
	return call.Execute(ctx, session)
}
