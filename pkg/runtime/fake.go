package runtime

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zoe-analytics/zoe/pkg/types"
)

// FakeDriver is an in-memory Driver for tests and for exercising the
// scheduler without a real container runtime. It never fails unless told
// to via FailNext, and every created container is immediately "running".
type FakeDriver struct {
	mu         sync.Mutex
	prefix     string
	containers map[string]fakeContainer
	nextID     int
	nextPort   int
	events     chan ContainerEvent
	failNext   error
}

type fakeContainer struct {
	serviceID string
	nodeName  string
}

// NewFakeDriver creates a fake backend scoped to the given deployment
// prefix, used when labeling containers and emitting events.
func NewFakeDriver(prefix string) *FakeDriver {
	return &FakeDriver{
		prefix:     prefix,
		containers: make(map[string]fakeContainer),
		nextPort:   40000,
		events:     make(chan ContainerEvent, 256),
	}
}

// FailNext makes the next CreateContainer call return err instead of
// succeeding; cleared after one use.
func (d *FakeDriver) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = err
}

func (d *FakeDriver) CreateContainer(ctx context.Context, service *types.Service, nodeName string) (string, []types.Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failNext != nil {
		err := d.failNext
		d.failNext = nil
		return "", nil, err
	}

	d.nextID++
	containerID := strconv.Itoa(d.nextID)
	d.containers[containerID] = fakeContainer{serviceID: service.ID, nodeName: nodeName}

	ports := make([]types.Port, 0, len(service.Ports))
	for _, declared := range service.Ports {
		d.nextPort++
		ports = append(ports, types.Port{
			ContainerID:  containerID,
			InternalName: fmt.Sprintf("%d/%s", declared.Number, declared.Protocol),
			ExternalIP:   "127.0.0.1",
			ExternalPort: d.nextPort,
		})
	}

	d.events <- ContainerEvent{Type: "container", Action: "start", Prefix: d.prefix, ContainerID: d.nextID}

	return containerID, ports, nil
}

func (d *FakeDriver) DestroyContainer(ctx context.Context, containerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.containers, containerID)
	return nil
}

func (d *FakeDriver) ListImages(ctx context.Context, nodeName string) ([]types.ImageGroup, error) {
	return []types.ImageGroup{{Names: []string{"fake/image:latest"}}}, nil
}

func (d *FakeDriver) SnapshotCluster(ctx context.Context) (*types.ClusterStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	perNode := make(map[string]int)
	for _, c := range d.containers {
		perNode[c.nodeName]++
	}
	// Before any container exists the cluster is one empty node. Every
	// node reports the same fixed capacity and the image ListImages lists.
	if len(perNode) == 0 {
		perNode["fake-node"] = 0
	}
	images := []types.ImageGroup{{Names: []string{"fake/image:latest"}}}

	nodes := make([]types.NodeStats, 0, len(perNode))
	for name, count := range perNode {
		nodes = append(nodes, types.NodeStats{
			Name:           name,
			Status:         types.NodeOnline,
			MemoryTotal:    64 << 30,
			CoresTotal:     16,
			ContainerCount: count,
			Images:         images,
		})
	}

	return &types.ClusterStats{Nodes: nodes, PolledAt: time.Now()}, nil
}

func (d *FakeDriver) StreamEvents(ctx context.Context) (<-chan ContainerEvent, error) {
	return d.events, nil
}

// Kill simulates the backend reporting that a container died, delivering a
// "die" event on the stream returned by StreamEvents.
func (d *FakeDriver) Kill(containerID string) {
	ordinal, err := strconv.Atoi(containerID)
	if err != nil {
		ordinal = -1
	}

	d.events <- ContainerEvent{Type: "container", Action: "die", Prefix: d.prefix, ContainerID: ordinal}
}

func (d *FakeDriver) Close() error {
	close(d.events)
	return nil
}

var _ Driver = (*FakeDriver)(nil)
