package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vdx",
			Name:      "commands_total",
			Help:      "Commands answered, by command and reply status.",
		},
		[]string{"command", "status"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vdx",
			Name:      "command_duration_seconds",
			Help:      "Time from parsed command to prepared reply.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"command"},
	)
	responseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vdx",
			Name:      "response_bytes_total",
			Help:      "Bytes written to clients, header included.",
		},
		[]string{"command"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vdx",
			Name:      "sessions_active",
			Help:      "Open client sessions.",
		},
	)
	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vdx",
			Name:      "sessions_total",
			Help:      "Client sessions accepted.",
		},
	)
	sourceConstructions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vdx",
			Name:      "source_constructions_total",
			Help:      "Backend construction attempts by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	downsampledRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vdx",
			Name:      "downsampled_rows_total",
			Help:      "Rows removed by server-side downsampling.",
		},
		[]string{"policy"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vdx",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vdx",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			commandsTotal,
			commandDuration,
			responseBytes,
			sessionsActive,
			sessionsTotal,
			sourceConstructions,
			downsampledRows,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordCommand(command, status string, duration time.Duration) {
	RegisterMetrics()
	commandsTotal.WithLabelValues(command, status).Inc()
	commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordResponseBytes(command string, n int) {
	RegisterMetrics()
	responseBytes.WithLabelValues(command).Add(float64(n))
}

func SessionOpened() {
	RegisterMetrics()
	sessionsTotal.Inc()
	sessionsActive.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	sessionsActive.Dec()
}

func RecordSourceConstruction(kind string, err error) {
	RegisterMetrics()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sourceConstructions.WithLabelValues(kind, outcome).Inc()
}

func RecordDownsample(policy string, before, after int) {
	RegisterMetrics()
	if before > after {
		downsampledRows.WithLabelValues(policy).Add(float64(before - after))
	}
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}
