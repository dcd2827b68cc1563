package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster stats metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zoe_nodes_total",
			Help: "Total number of backend nodes by status",
		},
		[]string{"status"},
	)

	ClusterFreeMemoryBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zoe_cluster_free_memory_bytes",
			Help: "Aggregate free memory across all online nodes, in bytes",
		},
	)

	ClusterFreeCores = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zoe_cluster_free_cores",
			Help: "Aggregate free core count across all online nodes",
		},
	)

	StatsPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zoe_stats_poll_duration_seconds",
			Help:    "Time taken to poll the backend for a cluster stats snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	StatsPollFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoe_stats_poll_failures_total",
			Help: "Total number of cluster stats polls that failed and fell back to a stale snapshot",
		},
	)

	// Execution and service metrics
	ExecutionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zoe_executions_total",
			Help: "Total number of executions by status",
		},
		[]string{"status"},
	)

	ServicesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zoe_services_total",
			Help: "Total number of services by status",
		},
		[]string{"status"},
	)

	// Raft / replicated-log metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zoe_raft_is_leader",
			Help: "Whether this manager node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zoe_raft_peers_total",
			Help: "Total number of Raft peers in the manager cluster",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zoe_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zoe_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoe_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zoe_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Scheduler metrics
	SchedulingPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zoe_scheduling_pass_duration_seconds",
			Help:    "Time taken for one scheduler placement pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ServicesScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoe_services_scheduled_total",
			Help: "Total number of services placed onto a node by the scheduler",
		},
	)

	ServicesUnschedulableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoe_services_unschedulable_total",
			Help: "Total number of scheduling attempts that found no fitting node",
		},
	)

	// Backend driver metrics
	ContainerCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zoe_container_create_duration_seconds",
			Help:    "Time taken to create and start a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerDestroyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zoe_container_destroy_duration_seconds",
			Help:    "Time taken to stop and remove a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event ingest metrics
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoe_events_received_total",
			Help: "Total number of observer events received by action",
		},
		[]string{"action"},
	)

	EventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoe_events_rejected_total",
			Help: "Total number of observer events rejected, by reason",
		},
		[]string{"reason"},
	)

	ContainerDeathsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoe_container_deaths_total",
			Help: "Total number of container death events delivered to the scheduler",
		},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(ClusterFreeMemoryBytes)
	prometheus.MustRegister(ClusterFreeCores)
	prometheus.MustRegister(StatsPollDuration)
	prometheus.MustRegister(StatsPollFailuresTotal)

	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(ServicesTotal)

	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)

	prometheus.MustRegister(SchedulingPassDuration)
	prometheus.MustRegister(ServicesScheduledTotal)
	prometheus.MustRegister(ServicesUnschedulableTotal)

	prometheus.MustRegister(ContainerCreateDuration)
	prometheus.MustRegister(ContainerDestroyDuration)

	prometheus.MustRegister(EventsReceivedTotal)
	prometheus.MustRegister(EventsRejectedTotal)
	prometheus.MustRegister(ContainerDeathsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
