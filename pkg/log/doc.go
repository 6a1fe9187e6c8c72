/*
Package log provides bsud's structured logging, wrapping zerolog with a
package-level global logger plus component/drive-scoped child loggers.

# Usage

Initializing the logger once at startup:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component and drive loggers:

	schedLog := log.WithComponent("supervisor")
	schedLog.Info().Msg("starting drive workers")

	driveLog := log.WithDrive("data")
	driveLog.Info().Int("size_gib", 20).Msg("volume attached")

JSON output (production):

	{"level":"info","component":"supervisor","time":"2026-01-01T00:00:00Z","message":"starting drive workers"}

Console output (development, human-readable, colorized).
*/
package log
