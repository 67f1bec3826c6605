/*
Package log provides structured logging for the Warren agent using zerolog.

A single global Logger is configured once with Init and shared by every
package. Components derive child loggers that carry their own context fields:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("health-monitor")
	logger.Info().Int("containers", n).Msg("Synced health checks")

	wlog := log.WithContainer("health-worker", c.ID, c.Name)
	wlog.Warn().Str("status", "unhealthy").Msg("Health check failed")

Console output (JSONOutput false) is meant for development; production agents
log JSON to stdout where the node's log shipper picks it up.

Until Init is called, Logger writes JSON to stdout at the zerolog default
level, so library code and tests can log safely without setup.
*/
package log
