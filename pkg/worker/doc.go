/*
Package worker runs the per-container health check loops of the Warren agent.

# Architecture

	┌────────────────────── HealthMonitor ──────────────────────┐
	│  sync loop: ListContainers every sync_interval            │
	│    - start a worker per container with a protocol label   │
	│    - restart a worker whose health check labels changed   │
	│    - stop workers of containers that went away            │
	└──────┬──────────────────────┬─────────────────────┬───────┘
	       │                      │                     │
	┌──────▼───────┐      ┌───────▼──────┐      ┌───────▼──────┐
	│ HealthCheck  │      │ HealthCheck  │      │ HealthCheck  │
	│ Worker (c1)  │      │ Worker (c2)  │      │ Worker (c3)  │
	└──────┬───────┘      └───────┬──────┘      └───────┬──────┘
	       │ Push                 │                     │
	┌──────▼──────────────────────▼─────────────────────▼───────┐
	│                     events.Queue                          │
	└───────────────────────────────────────────────────────────┘

Every worker is its own goroutine with its own schedule. Workers share
nothing but the queue, so a hung probe only delays its own container.

# Worker Lifecycle

	Created → Waiting(initial_delay) → {Probing → Dispatching → Waiting(interval)}* → Terminated

A probe cycle:

 1. Run the HTTP or TCP probe against the container's overlay IP
 2. Push the result onto the queue as a container:health event
 3. If unhealthy, call Restarter.RequestRestart(service_id, instance_number)
    and push a container:restart event

Every unhealthy result requests a restart. The worker keeps no failure
streak and applies no cool-down; coalescing and backoff belong to the
restarter.

The interval is driven by a time.Ticker started before the first probe, so
probe latency does not push later cycles back.

# Cancellation

Workers stop when their context is cancelled. A probe in flight is allowed
to finish (it is bounded by its timeout) but its result is dropped. After
HealthMonitor.Stop returns no worker pushes to the queue again.

# Configuration Errors

Labels are parsed once, by NewHealthCheckWorker. A *health.ConfigError
keeps the worker from starting; the monitor logs it, increments
warren_agent_config_errors_total and ignores the container until its labels
change.
*/
package worker
