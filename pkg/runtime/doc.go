/*
Package runtime implements the backend driver: the abstract capability set
the scheduler needs from a container runtime (create/destroy a container,
list a node's cached images, snapshot cluster resources) behind the Driver
interface.

ContainerdDriver is the production implementation, backed by a local
containerd daemon. FakeDriver is an in-memory stand-in used by tests and by
the scheduler's own test suite, so scheduling logic can be exercised without
a real container runtime.

Every container this package creates is labeled with the deployment prefix
(zoe.prefix) and a per-container ordinal (zoe.container.id); the event
ingest (pkg/events) uses these labels to correlate a runtime "die" event
back to the service that owns the container.
*/
package runtime
