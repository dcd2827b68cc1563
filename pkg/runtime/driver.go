package runtime

import (
	"context"

	"github.com/zoe-analytics/zoe/pkg/types"
)

// ContainerEvent is a raw backend event as emitted by the container runtime's
// event stream or relayed by an external observer. It mirrors the wire shape
// consumed by the event ingest: an actor carrying the deployment prefix and
// the integer container id the backend assigned at creation time.
type ContainerEvent struct {
	Type        string // "container"; non-container events are not produced
	Action      string // "create", "start", "die", ...
	Prefix      string // zoe.prefix label
	ContainerID int    // zoe.container.id label, -1 if unparseable
}

// Driver is the abstract capability set the scheduler needs from a
// container backend: placing and destroying containers, inventorying
// images, and reporting cluster-wide resource stats. The core places no
// constraint on the concrete backend beyond these operations.
type Driver interface {
	// CreateContainer places one container for the given service on the
	// named node and returns the backend container id plus any externally
	// reachable ports the backend assigned. May fail, e.g. if the node is
	// gone or the image cannot be resolved.
	CreateContainer(ctx context.Context, service *types.Service, nodeName string) (containerID string, externalPorts []types.Port, err error)

	// DestroyContainer removes a container. Idempotent: destroying an
	// already-gone container is not an error.
	DestroyContainer(ctx context.Context, containerID string) error

	// ListImages returns the locally cached image inventory for one node,
	// grouped by equivalent name (tags/digests referring to the same image).
	ListImages(ctx context.Context, nodeName string) ([]types.ImageGroup, error)

	// SnapshotCluster takes a point-in-time view of every node's resources.
	SnapshotCluster(ctx context.Context) (*types.ClusterStats, error)

	// StreamEvents returns a channel of raw container events. Optional: a
	// driver may return a nil channel and a non-nil error if it has no
	// native event source, in which case the external observer (pkg/events)
	// is the only source of on_container_died signals.
	StreamEvents(ctx context.Context) (<-chan ContainerEvent, error)

	Close() error
}
