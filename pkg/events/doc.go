/*
Package events defines the agent's action queue and the events it carries.

Every health check worker pushes onto one shared Queue; the audit consumer
drains it. Two event types exist:

	container:health   one per probe cycle, Data is a health.Result
	container:restart  one per unhealthy result, Data is a RestartAction

For a single cycle the restart event is always pushed after the health event
from the same worker. Events of different workers interleave freely.

The queue is unbounded so producers never block:

	q := events.NewQueue()
	_ = q.Push(events.NewHealthEvent(result))

	for {
		event, err := q.Pop(ctx)
		if err != nil {
			return // context done or queue closed and drained
		}
		handle(event)
	}
*/
package events
