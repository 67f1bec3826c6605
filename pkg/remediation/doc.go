/*
Package remediation restarts unhealthy service instances off the probing path.

Health workers call RequestRestart, which never blocks: the request is queued
on a bounded channel and picked up by a small pool of dispatcher goroutines.
A request for an instance that is already queued or in flight is coalesced.

Each request is retried with exponential backoff until it succeeds, the
instance disappears (types.ErrContainerNotFound) or MaxElapsed runs out.

	d := remediation.NewDispatcher(rt, remediation.DefaultConfig())
	d.Start()
	defer d.Stop()

	if err := d.RequestRestart("web", 2); errors.Is(err, remediation.ErrDispatchQueueFull) {
		...
	}
*/
package remediation
