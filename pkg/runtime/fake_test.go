package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-analytics/zoe/pkg/types"
)

func TestFakeDriverCreateContainerAssignsPorts(t *testing.T) {
	driver := NewFakeDriver("zoe-test")
	defer driver.Close()

	service := &types.Service{
		ID:    "s1",
		Image: "nginx:latest",
		Ports: []types.DeclaredPort{{Name: "http", Number: 80, Protocol: "tcp"}},
	}

	containerID, ports, err := driver.CreateContainer(context.Background(), service, "node-a")
	require.NoError(t, err)
	assert.NotEmpty(t, containerID)
	require.Len(t, ports, 1)
	assert.Equal(t, "80/tcp", ports[0].InternalName)
	assert.NotZero(t, ports[0].ExternalPort)
}

func TestFakeDriverCreateContainerFailNext(t *testing.T) {
	driver := NewFakeDriver("zoe-test")
	defer driver.Close()

	driver.FailNext(assert.AnError)

	_, _, err := driver.CreateContainer(context.Background(), &types.Service{ID: "s1"}, "node-a")
	assert.ErrorIs(t, err, assert.AnError)

	_, _, err = driver.CreateContainer(context.Background(), &types.Service{ID: "s1"}, "node-a")
	assert.NoError(t, err)
}

func TestFakeDriverSnapshotClusterCountsByNode(t *testing.T) {
	driver := NewFakeDriver("zoe-test")
	defer driver.Close()

	ctx := context.Background()
	_, _, err := driver.CreateContainer(ctx, &types.Service{ID: "s1"}, "node-a")
	require.NoError(t, err)
	_, _, err = driver.CreateContainer(ctx, &types.Service{ID: "s2"}, "node-a")
	require.NoError(t, err)
	_, _, err = driver.CreateContainer(ctx, &types.Service{ID: "s3"}, "node-b")
	require.NoError(t, err)

	stats, err := driver.SnapshotCluster(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Nodes, 2)

	counts := make(map[string]int)
	for _, n := range stats.Nodes {
		counts[n.Name] = n.ContainerCount
	}
	assert.Equal(t, 2, counts["node-a"])
	assert.Equal(t, 1, counts["node-b"])
}

func TestFakeDriverKillEmitsDieEvent(t *testing.T) {
	driver := NewFakeDriver("zoe-test")
	defer driver.Close()

	ctx := context.Background()
	containerID, _, err := driver.CreateContainer(ctx, &types.Service{ID: "s1"}, "node-a")
	require.NoError(t, err)

	stream, err := driver.StreamEvents(ctx)
	require.NoError(t, err)

	// drain the "start" event emitted by CreateContainer
	select {
	case <-stream:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for start event")
	}

	driver.Kill(containerID)

	select {
	case evt := <-stream:
		assert.Equal(t, "die", evt.Action)
		assert.Equal(t, "zoe-test", evt.Prefix)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for die event")
	}
}

func TestFakeDriverDestroyContainerIdempotent(t *testing.T) {
	driver := NewFakeDriver("zoe-test")
	defer driver.Close()

	ctx := context.Background()
	containerID, _, err := driver.CreateContainer(ctx, &types.Service{ID: "s1"}, "node-a")
	require.NoError(t, err)

	require.NoError(t, driver.DestroyContainer(ctx, containerID))
	require.NoError(t, driver.DestroyContainer(ctx, containerID))
	require.NoError(t, driver.DestroyContainer(ctx, "never-existed"))
}
