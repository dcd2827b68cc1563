package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-analytics/zoe/pkg/runtime"
	"github.com/zoe-analytics/zoe/pkg/types"
)

type fakeStatsDriver struct {
	runtime.Driver
	snapshot *types.ClusterStats
	err      error
	calls    int
}

func (f *fakeStatsDriver) SnapshotCluster(ctx context.Context) (*types.ClusterStats, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func TestProviderSnapshotUnavailableBeforeFirstPoll(t *testing.T) {
	p := NewProvider(&fakeStatsDriver{}, time.Hour)
	_, err := p.Snapshot()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestProviderSnapshotReturnsLastGood(t *testing.T) {
	driver := &fakeStatsDriver{
		snapshot: &types.ClusterStats{
			Nodes: []types.NodeStats{
				{Name: "n1", Status: types.NodeOnline, MemoryTotal: 1000, MemoryReserved: 400, CoresTotal: 4, CoresReserved: 1},
			},
		},
	}
	p := NewProvider(driver, time.Hour)
	p.poll()

	snap, err := p.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.False(t, snap.Stale)
}

func TestProviderFallsBackToStaleOnFailure(t *testing.T) {
	driver := &fakeStatsDriver{
		snapshot: &types.ClusterStats{Nodes: []types.NodeStats{{Name: "n1", Status: types.NodeOnline}}},
	}
	p := NewProvider(driver, time.Millisecond)
	p.poll()

	driver.err = assert.AnError
	p.poll()

	snap, err := p.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Stale)
	assert.Greater(t, snap.Age, time.Duration(0))
}
