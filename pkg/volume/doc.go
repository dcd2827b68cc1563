/*
Package volume resolves the volume names a service declares to host
directories bind-mounted into its container.

A ZApp service names its volumes as plain strings:

	{
	  "name": "spark-worker",
	  "volumes": ["shuffle-scratch"]
	}

LocalDriver maps each name to a directory under its base path
(/var/lib/zoe/volumes by default), creating it on first use. Two
services that declare the same volume name share the same directory,
whether they belong to the same execution or not - there is no
per-execution namespacing, since the spec gives volumes no owner beyond
the name itself.

pkg/runtime's ContainerdDriver calls Resolve for every name a service
declares and bind-mounts the result at /mnt/<name> before starting the
container. The fake driver used in tests never touches disk and has no
volume handling of its own.

There is no remote or networked volume backend: the control plane and
every container it schedules are assumed to share one filesystem, the
same assumption pkg/runtime.ContainerdDriver makes about the containerd
socket it talks to.
*/
package volume
