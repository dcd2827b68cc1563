package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/types"
	"github.com/zoe-analytics/zoe/pkg/volume"
)

const (
	// DefaultNamespace is the containerd namespace Zoe's containers live in.
	DefaultNamespace = "zoe"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	labelPrefix      = "zoe.prefix"
	labelContainerID = "zoe.container.id"
)

// ContainerdDriver implements Driver against a local containerd daemon. One
// container is created per service instance, labeled with the deployment
// prefix and a per-container sequential id so the event ingest can
// correlate a "die" event back to a service without a round trip to the
// store.
type ContainerdDriver struct {
	client    *containerd.Client
	namespace string
	prefix    string
	volumes   *volume.LocalDriver

	nextID  int64
	mu      sync.Mutex
	ports   map[string]int // containerID -> allocated host port (single-port demo allocator)
	nextPort int
}

// NewContainerdDriver connects to containerd at socketPath (or the default)
// and scopes all operations to the given deployment prefix.
func NewContainerdDriver(socketPath, prefix string) (*ContainerdDriver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}

	volumes, err := volume.NewLocalDriver("")
	if err != nil {
		return nil, fmt.Errorf("init volume driver: %w", err)
	}

	return &ContainerdDriver{
		client:    client,
		namespace: DefaultNamespace,
		prefix:    prefix,
		volumes:   volumes,
		ports:     make(map[string]int),
		nextPort:  30000,
	}, nil
}

// Close closes the containerd client connection.
func (d *ContainerdDriver) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

// CreateContainer pulls the service's image if needed, builds an OCI spec
// from its resource reservation and environment, creates and starts the
// container, and allocates an external port for each declared port.
func (d *ContainerdDriver) CreateContainer(ctx context.Context, service *types.Service, nodeName string) (string, []types.Port, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ContainerCreateDuration)

	ctx = namespaces.WithNamespace(ctx, d.namespace)

	image, err := d.client.GetImage(ctx, service.Image)
	if err != nil {
		image, err = d.client.Pull(ctx, service.Image, containerd.WithPullUnpack)
		if err != nil {
			return "", nil, fmt.Errorf("resolve image %s: %w", service.Image, err)
		}
	}

	containerID := strconv.FormatInt(atomic.AddInt64(&d.nextID, 1), 10)

	env := make([]string, 0, len(service.Env))
	for k, v := range service.Env {
		env = append(env, k+"="+v)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}
	if len(service.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(service.Command...))
	}
	if service.Resources.Cores > 0 {
		shares := uint64(service.Resources.Cores * 1024)
		quota := int64(service.Resources.Cores * 100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
	}
	if service.Resources.Memory > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(service.Resources.Memory)))
	}
	if len(service.Volumes) > 0 {
		mounts, err := d.volumeMounts(service.Volumes)
		if err != nil {
			return "", nil, fmt.Errorf("resolve volumes: %w", err)
		}
		opts = append(opts, oci.WithMounts(mounts))
	}

	labels := map[string]string{
		labelPrefix:      d.prefix,
		labelContainerID: containerID,
	}

	ctrdContainer, err := d.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(labels),
	)
	if err != nil {
		return "", nil, fmt.Errorf("create container: %w", err)
	}

	task, err := ctrdContainer.NewTask(ctx, cio.NullIO)
	if err != nil {
		return "", nil, fmt.Errorf("create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return "", nil, fmt.Errorf("start task: %w", err)
	}

	externalPorts := d.allocatePorts(containerID, service)

	log.Info(fmt.Sprintf("container created: id=%s service=%s node=%s", containerID, service.ID, nodeName))

	return ctrdContainer.ID(), externalPorts, nil
}

// volumeMounts resolves each declared volume name to a host directory
// (creating it on first use) and binds it into the container at
// /mnt/<name>.
func (d *ContainerdDriver) volumeMounts(names []string) ([]specs.Mount, error) {
	mounts := make([]specs.Mount, 0, len(names))
	for _, name := range names {
		hostPath, err := d.volumes.Resolve(name)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, specs.Mount{
			Destination: "/mnt/" + name,
			Type:        "bind",
			Source:      hostPath,
			Options:     []string{"rbind", "rw"},
		})
	}
	return mounts, nil
}

// allocatePorts assigns one host port per declared port, the equivalent of
// the hostports-based port publishing the backend used to do via iptables
// DNAT/MASQUERADE rules: here the allocation is tracked so DestroyContainer
// can release it, and the rule programming itself is left to the node's
// network setup (not modeled further, since the scheduler only needs the
// external address to hand back to the caller).
func (d *ContainerdDriver) allocatePorts(containerID string, service *types.Service) []types.Port {
	if len(service.Ports) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ports := make([]types.Port, 0, len(service.Ports))
	for _, declared := range service.Ports {
		hostPort := d.nextPort
		d.nextPort++

		ports = append(ports, types.Port{
			ContainerID:  containerID,
			InternalName: fmt.Sprintf("%d/%s", declared.Number, declared.Protocol),
			ExternalPort: hostPort,
		})
	}
	d.ports[containerID] = ports[0].ExternalPort
	return ports
}

// DestroyContainer stops and removes a container and its snapshot.
// Idempotent: a missing container is not an error.
func (d *ContainerdDriver) DestroyContainer(ctx context.Context, containerID string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ContainerDestroyDuration)

	ctx = namespaces.WithNamespace(ctx, d.namespace)

	container, err := d.client.LoadContainer(ctx, containerID)
	if err != nil {
		d.releasePort(containerID)
		return nil
	}

	if task, err := container.Task(ctx, nil); err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := task.Kill(stopCtx, syscall.SIGTERM); err == nil {
			statusC, err := task.Wait(stopCtx)
			if err == nil {
				select {
				case <-statusC:
				case <-stopCtx.Done():
					_ = task.Kill(ctx, syscall.SIGKILL)
				}
			}
		}
		_, _ = task.Delete(ctx)
		cancel()
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("delete container %s: %w", containerID, err)
	}

	d.releasePort(containerID)
	return nil
}

func (d *ContainerdDriver) releasePort(containerID string) {
	d.mu.Lock()
	delete(d.ports, containerID)
	d.mu.Unlock()
}

// ListImages returns the locally cached image inventory. containerd has no
// per-node concept, so nodeName is accepted for interface symmetry with a
// multi-node backend but otherwise unused here.
func (d *ContainerdDriver) ListImages(ctx context.Context, nodeName string) ([]types.ImageGroup, error) {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	images, err := d.client.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	groups := make([]types.ImageGroup, 0, len(images))
	for _, img := range images {
		groups = append(groups, types.ImageGroup{Names: []string{img.Name()}})
	}
	return groups, nil
}

// SnapshotCluster reports a single-node view built from the local
// containerd daemon's resource state. Real multi-node clusters would poll
// each node's agent; this driver models the single machine it runs on.
func (d *ContainerdDriver) SnapshotCluster(ctx context.Context) (*types.ClusterStats, error) {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	containers, err := d.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	images, err := d.ListImages(ctx, "local")
	if err != nil {
		return nil, err
	}

	return &types.ClusterStats{
		Nodes: []types.NodeStats{
			{
				Name:           "local",
				Status:         types.NodeOnline,
				ContainerCount: len(containers),
				Images:         images,
			},
		},
		PolledAt: time.Now(),
	}, nil
}

// StreamEvents subscribes to containerd's event stream and translates
// container lifecycle events into the shape the event ingest expects.
func (d *ContainerdDriver) StreamEvents(ctx context.Context) (<-chan ContainerEvent, error) {
	ctx = namespaces.WithNamespace(ctx, d.namespace)
	envelopes, errs := d.client.EventService().Subscribe(ctx)

	out := make(chan ContainerEvent, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				if err != nil {
					log.Errorf("containerd event stream error: %w", err)
				}
				return
			case env, ok := <-envelopes:
				if !ok {
					return
				}
				action := eventAction(env.Topic)
				if action == "" {
					continue
				}
				containerID := containerIDFromTopic(env.Topic)
				out <- ContainerEvent{
					Type:        "container",
					Action:      action,
					Prefix:      d.prefix,
					ContainerID: parseContainerOrdinal(containerID),
				}
			}
		}
	}()
	return out, nil
}

func eventAction(topic string) string {
	switch {
	case strings.Contains(topic, "/tasks/exit"):
		return "die"
	case strings.Contains(topic, "/tasks/start"):
		return "start"
	case strings.Contains(topic, "/containers/create"):
		return "create"
	default:
		return ""
	}
}

// containerIDFromTopic is a placeholder extraction point: containerd event
// envelopes carry the container id in their typed payload, not the topic
// string, so a real implementation unmarshals env.Event. Kept here as the
// single seam a fuller implementation would extend.
func containerIDFromTopic(topic string) string {
	return topic
}

func parseContainerOrdinal(containerID string) int {
	n, err := strconv.Atoi(containerID)
	if err != nil {
		return -1
	}
	return n
}

var _ Driver = (*ContainerdDriver)(nil)
