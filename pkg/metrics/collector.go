package metrics

import (
	"time"

	"github.com/zoe-analytics/zoe/pkg/manager"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// Collector periodically samples the manager's state store and Raft
// status into the gauges Router()'s /metrics endpoint serves, so
// scrape-time reads never touch Raft or BoltDB directly.
type Collector struct {
	manager *manager.Manager
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(mgr *manager.Manager) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick.
func (c *Collector) Start() {
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
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectExecutionAndServiceMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectExecutionAndServiceMetrics() {
	executions, err := c.manager.ListExecutions(storage.ExecutionFilter{})
	if err != nil {
		return
	}

	executionCounts := make(map[types.ExecutionStatus]int)
	serviceCounts := make(map[types.ServiceStatus]int)

	for _, execution := range executions {
		executionCounts[execution.Status]++

		services, err := c.manager.ListServicesByExecution(execution.ID)
		if err != nil {
			continue
		}
		for _, service := range services {
			serviceCounts[service.Status]++
		}
	}

	for status, count := range executionCounts {
		ExecutionsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	for status, count := range serviceCounts {
		ServicesTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	if servers, err := c.manager.GetClusterServers(); err == nil {
		RaftPeers.Set(float64(len(servers)))
	}

	stats := c.manager.GetRaftStats()
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(appliedIndex))
	}
}
