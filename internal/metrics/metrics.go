// Package metrics provides Prometheus metrics for sftpgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.bluewillows.net/root/sftpgate/pkg/transfer"
)

// Metric names use the sftpgate_ prefix.
const (
	Namespace = "sftpgate"
)

// Transfer directions for TransferredBytesTotal.
const (
	DirectionDownload = "download"
	DirectionUpload   = "upload"
)

var (
	// BuildInfo exposes the running version as labels on a constant 1.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information about sftpgate.",
	}, []string{"version", "go_version"})

	// OperationsTotal counts finished requests by profile, operation and
	// result. Result is "success" or the error kind.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "operations_total",
		Help:      "Total number of SFTP requests handled.",
	}, []string{"profile", "operation", "result"})

	// OperationDuration observes end-to-end request latency.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of SFTP requests, including connect and close.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation"})

	// SessionsActive is the number of open SFTP sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sessions_active",
		Help:      "Number of SFTP sessions currently open.",
	})

	// TransferredBytesTotal counts file content moved by get and put.
	TransferredBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "transferred_bytes_total",
		Help:      "Total bytes transferred by get and put.",
	}, []string{"direction"})
)

// SetBuildInfo records the build version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Recorder feeds transfer handler events into the package collectors.
type Recorder struct{}

// NewRecorder returns a transfer.Observer backed by the package collectors.
func NewRecorder() *Recorder {
	return &Recorder{}
}

var _ transfer.Observer = (*Recorder)(nil)

// SessionOpened implements transfer.Observer.
func (*Recorder) SessionOpened() { SessionsActive.Inc() }

// SessionClosed implements transfer.Observer.
func (*Recorder) SessionClosed() { SessionsActive.Dec() }

// RequestFinished implements transfer.Observer.
func (*Recorder) RequestFinished(ev transfer.Event) {
	op := string(ev.Operation)
	if op == "" {
		op = "unknown"
	}

	OperationsTotal.WithLabelValues(ev.Profile, op, ev.Result).Inc()
	OperationDuration.WithLabelValues(op).Observe(ev.Duration.Seconds())

	if ev.Bytes <= 0 {
		return
	}
	switch ev.Operation {
	case transfer.OpGet:
		TransferredBytesTotal.WithLabelValues(DirectionDownload).Add(float64(ev.Bytes))
	case transfer.OpPut:
		TransferredBytesTotal.WithLabelValues(DirectionUpload).Add(float64(ev.Bytes))
	}
}
