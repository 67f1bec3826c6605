/*
Package metrics exposes the agent's Prometheus metrics and its own health
endpoints.

Metrics are package-level collectors registered at init and updated inline by
the components that own them:

	warren_agent_health_checks_total{protocol,status}      worker, per probe
	warren_agent_health_check_duration_seconds{protocol}   worker, per probe
	warren_agent_monitored_containers                      collector
	warren_agent_config_errors_total                       health monitor
	warren_agent_restarts_requested_total                  remediation
	warren_agent_restart_dispatch_failures_total           remediation
	warren_agent_restarts_total{result}                    remediation
	warren_agent_restart_duration_seconds                  remediation
	warren_agent_queue_events_total{event}                 action queue
	warren_agent_queue_depth                               collector
	warren_agent_audit_write_failures_total                audit consumer

Timing uses the Timer helper:

	timer := metrics.NewTimer()
	res := prober.CheckTCPStatus(ctx, ip, port, timeout)
	timer.ObserveDurationVec(metrics.HealthCheckDuration, "tcp")

NewMux serves /metrics alongside /health and /ready. Readiness requires every
entry of CriticalComponents to be registered and healthy.
*/
package metrics
