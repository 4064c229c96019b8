// Package health provides HTTP endpoints for health checks and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.bluewillows.net/root/sftpgate/pkg/transfer"
)

// Health status values.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// HealthChecker is a function that checks the health of a component.
// Returns an error if the component is unhealthy.
type HealthChecker func(ctx context.Context) error

// DegradedChecker is a function that checks if a component is in a degraded state.
// Returns (true, message) if degraded, (false, "") if not degraded.
type DegradedChecker func(ctx context.Context) (degraded bool, message string)

// HealthStatus represents the health status of a component.
type HealthStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// DegradedStatus represents a degraded component.
type DegradedStatus struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Response represents a health check response.
type Response struct {
	Status     string           `json:"status"`
	Components []HealthStatus   `json:"components,omitempty"`
	Degraded   []DegradedStatus `json:"degraded,omitempty"`
}

// Checks serves /health, /ready and /metrics.
type Checks struct {
	logger  *slog.Logger
	timeout time.Duration
	metrics http.Handler

	mu               sync.RWMutex
	checkers         map[string]HealthChecker
	degradedCheckers map[string]DegradedChecker
}

// Option is a functional option for configuring Checks.
type Option func(*Checks)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checks) {
		c.logger = logger
	}
}

// WithTimeout sets the timeout for health checks.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Checks) {
		c.timeout = timeout
	}
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *Checks) {
		c.metrics = h
	}
}

// New creates an empty set of checks.
func New(opts ...Option) *Checks {
	c := &Checks{
		logger:           slog.Default(),
		timeout:          5 * time.Second,
		metrics:          promhttp.Handler(),
		checkers:         make(map[string]HealthChecker),
		degradedCheckers: make(map[string]DegradedChecker),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterChecker adds a health checker for the /ready endpoint.
func (c *Checks) RegisterChecker(name string, checker HealthChecker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkers[name] = checker
	c.logger.Debug("registered health checker", slog.String("name", name))
}

// RegisterDegradedChecker adds a degraded state checker for the /ready endpoint.
func (c *Checks) RegisterDegradedChecker(name string, checker DegradedChecker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degradedCheckers[name] = checker
	c.logger.Debug("registered degraded checker", slog.String("name", name))
}

// RegisterProfiles adds one checker per profile. An invalid profile makes
// the service not ready; a profile that does not verify host keys makes it
// degraded.
func (c *Checks) RegisterProfiles(reg *transfer.Registry) {
	for _, p := range reg.Profiles() {
		name := "profile:" + p.Name()
		c.RegisterChecker(name, func(context.Context) error {
			return p.Err()
		})
		if !p.VerifiesHostKey() {
			c.RegisterDegradedChecker(name, func(context.Context) (bool, string) {
				return true, fmt.Sprintf("host key of %s is not verified", p.Host())
			})
		}
	}
}

// Mount registers the endpoints on r.
func (c *Checks) Mount(r chi.Router) {
	r.Get("/health", c.handleHealth)
	r.Get("/ready", c.handleReady)
	r.Handle("/metrics", c.metrics)
}

func (c *Checks) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := Response{Status: "healthy"}
	_ = json.NewEncoder(w).Encode(resp)
}

func (c *Checks) handleReady(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	checkers := make(map[string]HealthChecker, len(c.checkers))
	for name, checker := range c.checkers {
		checkers[name] = checker
	}
	degradedCheckers := make(map[string]DegradedChecker, len(c.degradedCheckers))
	for name, checker := range c.degradedCheckers {
		degradedCheckers[name] = checker
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	var components []HealthStatus
	var degradedList []DegradedStatus
	allHealthy := true

	for _, name := range sortedKeys(checkers) {
		status := HealthStatus{Name: name, Healthy: true}
		if err := checkers[name](ctx); err != nil {
			status.Healthy = false
			status.Error = err.Error()
			allHealthy = false
			c.logger.Warn("health check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
		}
		components = append(components, status)
	}

	for _, name := range sortedKeys(degradedCheckers) {
		if degraded, message := degradedCheckers[name](ctx); degraded {
			degradedList = append(degradedList, DegradedStatus{
				Name:    name,
				Message: message,
			})
			c.logger.Debug("degraded state detected",
				slog.String("component", name),
				slog.String("message", message),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")

	resp := Response{Components: components, Degraded: degradedList}
	switch {
	case !allHealthy:
		resp.Status = StatusNotReady
		w.WriteHeader(http.StatusServiceUnavailable)
	case len(degradedList) > 0:
		// Still functional
		resp.Status = StatusDegraded
		w.WriteHeader(http.StatusOK)
	default:
		resp.Status = StatusReady
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
