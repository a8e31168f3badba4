package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "thermoctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	commandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoctl",
			Subsystem: "link",
			Name:      "commands_total",
			Help:      "Commands completed through the serializer.",
		},
		[]string{"op", "success"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "thermoctl",
			Subsystem: "link",
			Name:      "command_duration_seconds",
			Help:      "Command duration including queueing and retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "success"},
	)
	attemptFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoctl",
			Subsystem: "link",
			Name:      "attempt_failures_total",
			Help:      "Failed command attempts by error kind.",
		},
		[]string{"op", "kind"},
	)
	recoveryActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoctl",
			Subsystem: "link",
			Name:      "recovery_actions_total",
			Help:      "Recovery ladder actions applied.",
		},
		[]string{"action", "success"},
	)
	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoctl",
			Subsystem: "gateway",
			Name:      "region_requests_total",
			Help:      "Gateway requests by hub region, cache mode and outcome.",
		},
		[]string{"region", "mode", "outcome"},
	)
	gatewayRecoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoctl",
			Subsystem: "gateway",
			Name:      "link_recoveries_total",
			Help:      "Connection generations advanced while serving gateway requests.",
		},
		[]string{"region"},
	)
	connectionEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "thermoctl",
			Subsystem: "link",
			Name:      "connection_epoch",
			Help:      "Current connection generation.",
		},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thermoctl",
			Subsystem: "memory",
			Name:      "cache_lookups_total",
			Help:      "Region require calls by cache outcome.",
		},
		[]string{"region", "result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration, gatewayRequests, gatewayRecoveries,
			commandTotal, commandDuration, attemptFailures, recoveryActions, connectionEpoch,
			cacheLookups,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordGatewayRequest(region, mode, outcome string, recoveries uint64) {
	RegisterMetrics()
	gatewayRequests.WithLabelValues(region, mode, outcome).Inc()
	if recoveries > 0 {
		gatewayRecoveries.WithLabelValues(region).Add(float64(recoveries))
	}
}

func RecordCommand(op string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	commandTotal.WithLabelValues(op, successLabel).Inc()
	commandDuration.WithLabelValues(op, successLabel).Observe(duration.Seconds())
}

func RecordAttemptFailure(op, kind string) {
	RegisterMetrics()
	attemptFailures.WithLabelValues(op, kind).Inc()
}

func RecordRecovery(action string, success bool) {
	RegisterMetrics()
	recoveryActions.WithLabelValues(action, strconv.FormatBool(success)).Inc()
}

func RecordEpoch(epoch uint64) {
	RegisterMetrics()
	connectionEpoch.Set(float64(epoch))
}

func RecordCacheLookup(region string, hit bool) {
	RegisterMetrics()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(region, result).Inc()
}
