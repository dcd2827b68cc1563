/*
Package metrics defines and registers every Prometheus metric the control
plane exposes, and the /metrics HTTP handler that serves them.

Every metric is named zoe_<subsystem>_<noun>, registered once at package
init via promauto-equivalent prometheus.MustRegister calls, and updated
directly by the subsystem that owns the number - there is no separate
metrics-forwarding layer:

  - pkg/stats.Provider sets NodesTotal, ClusterFreeMemoryBytes,
    ClusterFreeCores and StatsPollFailuresTotal after every backend poll.
  - pkg/scheduler.Scheduler increments ServicesScheduledTotal and
    ServicesUnschedulableTotal from its placement pass, and
    ContainerDeathsTotal from OnContainerDied.
  - pkg/events.Ingest increments EventsReceivedTotal and
    EventsRejectedTotal as it filters the observer's event stream.
  - pkg/api.Server's requestMetrics middleware records APIRequestsTotal
    and APIRequestDuration for every request, keyed by chi's matched
    route pattern rather than the raw path.
  - Collector (this package) samples ExecutionsTotal, ServicesTotal and
    the zoe_raft_* gauges on a 15s tick, since those come from reading
    the whole state store or Raft's own stats rather than one request.

Handler returns the promhttp handler Router() mounts at GET /metrics,
outside the /api/<version> prefix and its authentication requirement -
consistent with most Prometheus deployments scraping over a private
network.

Timer is a small helper for recording a Histogram observation around a
block of code:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ContainerCreateDuration)
*/
package metrics
