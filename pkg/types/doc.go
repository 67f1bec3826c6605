/*
Package types defines the data structures shared by the Warren agent.

The central type is Container, the agent's read-only view of a running
container: its runtime ID, display name, overlay IP, service identity and the
labels it was created with. Labels are the configuration source for health
checking; every key the agent understands lives under the io.warren. prefix.

# Labels

Health check declaration:

	io.warren.health_check.protocol       http | tcp (absence disables checking)
	io.warren.health_check.uri            HTTP path, default "/"
	io.warren.health_check.port           port to probe (required)
	io.warren.health_check.timeout        per-probe deadline in seconds
	io.warren.health_check.interval       seconds between probes
	io.warren.health_check.initial_delay  seconds before the first probe

Container identity:

	io.warren.container.name              display name
	io.warren.container.overlay_cidr      overlay address, e.g. 10.81.0.5/16
	io.warren.service.id                  owning service
	io.warren.service.instance_number     instance number within the service

# Usage

	c := types.ContainerFromLabels(id, labels)
	if !c.HealthCheckEnabled() {
		return
	}

Label values are parsed into typed configuration by pkg/health.
*/
package types
