// Package stats implements the cluster stats provider: a poll loop against
// the backend driver that caches the last good snapshot so transient
// backend failures degrade to a stale-but-usable view instead of an error.
package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/runtime"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// ErrUnavailable is returned by Snapshot when the backend has never
// produced a successful poll.
var ErrUnavailable = errors.New("cluster stats unavailable: no successful poll yet")

// DefaultPollInterval is used when configuration does not set one.
const DefaultPollInterval = 5 * time.Second

// Provider polls a backend driver on a fixed interval and serves the last
// good ClusterStats snapshot. It never mutates backend state.
type Provider struct {
	driver   runtime.Driver
	interval time.Duration

	mu         sync.RWMutex
	last       *types.ClusterStats
	lastPoll   time.Time
	lastFailed bool

	stopCh chan struct{}
}

// NewProvider creates a provider polling driver every interval (or
// DefaultPollInterval if interval is zero).
func NewProvider(driver runtime.Driver, interval time.Duration) *Provider {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Provider{
		driver:   driver,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the poll loop in a background goroutine. The first poll
// happens immediately rather than waiting for the first tick.
func (p *Provider) Start() {
	go func() {
		p.poll()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.poll()
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Stop ends the poll loop.
func (p *Provider) Stop() {
	close(p.stopCh)
}

func (p *Provider) poll() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StatsPollDuration)

	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	snapshot, err := p.driver.SnapshotCluster(ctx)
	if err != nil {
		metrics.StatsPollFailuresTotal.Inc()
		log.Error("cluster stats poll failed: " + err.Error())
		p.mu.Lock()
		p.lastFailed = true
		p.mu.Unlock()
		return
	}
	snapshot.PolledAt = time.Now()

	p.mu.Lock()
	p.last = snapshot
	p.lastPoll = snapshot.PolledAt
	p.lastFailed = false
	p.mu.Unlock()

	p.recordMetrics(snapshot)
}

// Snapshot returns the most recent successful poll. If the backend's most
// recent poll failed, the returned snapshot is the last good one with
// Stale=true and Age set to how long ago it was taken. If no poll has ever
// succeeded, ErrUnavailable is returned.
func (p *Provider) Snapshot() (*types.ClusterStats, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.last == nil {
		return nil, ErrUnavailable
	}

	age := time.Since(p.lastPoll)
	stale := p.lastFailed || age > p.interval
	copied := *p.last
	copied.Stale = stale
	copied.Age = age
	return &copied, nil
}

func (p *Provider) recordMetrics(snapshot *types.ClusterStats) {
	online, offline := 0, 0
	var freeMemory int64
	var freeCores float64

	for _, node := range snapshot.Nodes {
		if node.Status == types.NodeOnline {
			online++
			freeMemory += node.MemoryTotal - node.MemoryReserved
			freeCores += node.CoresTotal - node.CoresReserved
		} else {
			offline++
		}
	}

	metrics.NodesTotal.WithLabelValues(string(types.NodeOnline)).Set(float64(online))
	metrics.NodesTotal.WithLabelValues(string(types.NodeOffline)).Set(float64(offline))
	metrics.ClusterFreeMemoryBytes.Set(float64(freeMemory))
	metrics.ClusterFreeCores.Set(freeCores)
}
