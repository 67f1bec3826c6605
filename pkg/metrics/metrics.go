package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Health check metrics
	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_agent_health_checks_total",
			Help: "Total number of health probes by protocol and status",
		},
		[]string{"protocol", "status"},
	)

	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warren_agent_health_check_duration_seconds",
			Help:    "Health probe duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)

	MonitoredContainers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warren_agent_monitored_containers",
			Help: "Number of containers with a running health check worker",
		},
	)

	ConfigErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_agent_config_errors_total",
			Help: "Total number of rejected health check declarations",
		},
	)

	// Remediation metrics
	RestartsRequested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_agent_restarts_requested_total",
			Help: "Total number of restart requests accepted for dispatch",
		},
	)

	RestartDispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_agent_restart_dispatch_failures_total",
			Help: "Total number of restart requests that could not be dispatched",
		},
	)

	RestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_agent_restarts_total",
			Help: "Total number of completed restart attempts by result",
		},
		[]string{"result"},
	)

	RestartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_agent_restart_duration_seconds",
			Help:    "Time taken to restart a container instance in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Action queue metrics
	QueueEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_agent_queue_events_total",
			Help: "Total number of events pushed onto the action queue by type",
		},
		[]string{"event"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warren_agent_queue_depth",
			Help: "Number of events waiting in the action queue",
		},
	)

	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warren_agent_audit_write_failures_total",
			Help: "Total number of events that could not be written to the audit log",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(HealthChecksTotal)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(MonitoredContainers)
	prometheus.MustRegister(ConfigErrorsTotal)
	prometheus.MustRegister(RestartsRequested)
	prometheus.MustRegister(RestartDispatchFailures)
	prometheus.MustRegister(RestartsTotal)
	prometheus.MustRegister(RestartDuration)
	prometheus.MustRegister(QueueEventsTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(AuditWriteFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
