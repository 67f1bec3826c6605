/*
Package health implements the container health probes of the Warren agent.

A container opts into health checking through io.warren.health_check.* labels.
ParseConfig turns those labels into a typed Config once, when the container's
worker starts. The two probe strategies then produce a normalized Result on
every cycle.

# Architecture

	┌────────────────────────────────────────────────────────┐
	│                 container labels                       │
	└───────────────────────┬────────────────────────────────┘
	                        │ ParseConfig (once)
	                        ▼
	┌────────────────────────────────────────────────────────┐
	│  Config{Protocol, URI, Port, Timeout, Interval, ...}   │
	└───────────────┬────────────────────────┬───────────────┘
	                │                        │
	                ▼                        ▼
	        ┌───────────────┐        ┌───────────────┐
	        │ HTTPChecker   │        │ TCPChecker    │
	        │ GET {uri}     │        │ connect :port │
	        └───────┬───────┘        └───────┬───────┘
	                │                        │
	                ▼                        ▼
	        Result{Status, StatusCode, Failure, Err, ...}

# HTTP Probe

	GET http://{overlay_ip}:{port}{uri}
	User-Agent: Warren-Agent/{version}

  - 200 → healthy, StatusCode 200
  - any other code → unhealthy, StatusCode preserved (redirects are not followed)
  - timeout → unhealthy, no StatusCode, Failure "timeout"
  - refused, reset, DNS, protocol error → unhealthy, no StatusCode, Failure "connection"

# TCP Probe

A bare connect to {overlay_ip}:{port}. The socket is closed immediately.

  - connected within Timeout → healthy, StatusCode "open"
  - refused, other error, or deadline exceeded → unhealthy, StatusCode "closed"

The dial runs under its own watchdog, so the Timeout holds even when the
underlying dialer does not honor its context.

# Errors

Probes never return errors. Network failures become unhealthy results and
are recorded in Result.Err wrapping ErrProbeTimeout or ErrProbeConnection:

	if errors.Is(res.Err, health.ErrProbeTimeout) {
		...
	}

ParseConfig is the only operation that fails. It returns a *ConfigError
wrapping ErrUnsupportedProtocol, ErrMissingLabel or ErrInvalidValue:

	cfg, err := health.ParseConfig(container.Labels)
	var cfgErr *health.ConfigError
	if errors.As(err, &cfgErr) {
		logger.Error().Str("label", cfgErr.Label).Msg("Invalid health check")
	}

# Usage

	res := health.CheckHTTPStatus(ctx, "10.81.0.5", 8080, "/health", 10*time.Second)
	if !res.Healthy() {
		...
	}

	res = health.CheckTCPStatus(ctx, "10.81.0.5", 6379, 3*time.Second)

Callers that want to swap the network in tests depend on the Prober
interface; NetworkProber is the real implementation.
*/
package health
