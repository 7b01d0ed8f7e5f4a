/*
Package log provides structured operational logging using zerolog.

This is the worker's own log, not the task's. Everything the worker says
about itself (claims, reclaims, container lifecycle, hook dispatch, infra
errors) flows through zerolog as structured JSON; everything a task says
about itself flows through pkg/logstream with the exact line formats the
task transcript requires. The two never mix.

# Core Components

Global Logger:
  - Package-level zerolog.Logger, initialized once via log.Init()
  - Thread-safe for concurrent writes from all run goroutines

Configuration:
  - Level: debug/info/warn/error threshold
  - JSONOutput: JSON (production) vs console (development)
  - Output: io.Writer destination, default stdout

Context Loggers:
  - WithComponent: component name on every event
  - WithWorkerID: worker identity context

Components receive their child logger at construction and derive
further context from it; the runner chains task_id and run_id onto the
worker logger per run.

# Usage

Initializing:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component logging:

	logger := log.WithComponent("queue")
	logger.Info().Str("call", "claim-task").Msg("queue call succeeded")
	logger.Error().Err(err).Msg("reclaim failed")

Output (JSON format):

	{"level":"info","component":"queue","time":"2026-02-11T10:30:00Z","message":"queue call succeeded"}

# Best Practices

Do:
  - Derive one child logger per component or run and pass it down
  - Use typed fields (.Str, .Int, .Err) for queryable data
  - Keep Info level in production

Don't:
  - Write task transcript lines here (they belong to the log stream)
  - Log payload env values (submitters put credentials in them)
*/
package log
