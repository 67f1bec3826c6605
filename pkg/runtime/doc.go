/*
Package runtime connects the agent to containerd.

The agent never creates containers. It reads the ones running in the
"warren" namespace and restarts them on request:

	rt, err := runtime.NewContainerdRuntime(runtime.Config{
		SocketPath:  "/run/containerd/containerd.sock",
		Namespace:   "warren",
		StopTimeout: 10 * time.Second,
	})

ListContainers returns a types.Container for every container whose task is
running, with identity and health check settings taken from its
io.warren.* labels. Containers without a task, or whose task is stopped,
are skipped.

RestartInstance locates a container by its io.warren.service.id and
io.warren.service.instance_number labels and restarts its task:

	SIGTERM → wait StopTimeout → SIGKILL → delete task → new task → start

The container and its snapshot are kept, so the restarted process sees the
same filesystem. Missing containers are reported as types.ErrContainerNotFound.
*/
package runtime
