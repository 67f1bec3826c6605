/*
Package config loads the agent configuration with koanf.

Sources are layered, later ones winning:

 1. Defaults()
 2. a YAML file (--config, default /etc/warren-agent/config.yaml)
 3. WARREN_AGENT_* environment variables

Environment variables map to keys by dropping the prefix, lowercasing and
turning the first underscore into a dot:

	WARREN_AGENT_MONITOR_SYNC_INTERVAL=10s   → monitor.sync_interval
	WARREN_AGENT_REMEDIATION_MAX_ELAPSED=1m  → remediation.max_elapsed

Durations accept Go duration strings ("30s", "2m").
*/
package config
