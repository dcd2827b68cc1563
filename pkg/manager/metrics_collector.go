package manager

import (
	"time"

	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/storage"
)

// MetricsCollector periodically samples manager state into Prometheus
// gauges: execution/service counts by status and Raft health.
type MetricsCollector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	c.collectExecutionMetrics()
	c.collectServiceMetrics()
	c.collectRaftMetrics()
}

func (c *MetricsCollector) collectExecutionMetrics() {
	executions, err := c.manager.ListExecutions(storage.ExecutionFilter{})
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, execution := range executions {
		counts[string(execution.Status)]++
	}
	for status, count := range counts {
		metrics.ExecutionsTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *MetricsCollector) collectServiceMetrics() {
	executions, err := c.manager.ListExecutions(storage.ExecutionFilter{})
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, execution := range executions {
		services, err := c.manager.ListServicesByExecution(execution.ID)
		if err != nil {
			continue
		}
		for _, service := range services {
			counts[string(service.Status)]++
		}
	}
	for status, count := range counts {
		metrics.ServicesTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *MetricsCollector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats == nil {
		return
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		metrics.RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"].(uint64); ok {
		metrics.RaftPeers.Set(float64(peers))
	}
}
