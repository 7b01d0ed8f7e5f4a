/*
Package worker implements the task execution loop: polling the queue,
claiming runs, and driving each one through its container lifecycle.

The worker is the orchestrating layer of the process. It owns no
container or queue mechanics itself; those live in the runtime and
queue packages. What it owns is the order in which everything happens
and the decision of how each run ends.

# Architecture

	┌──────────────────────── WORKER ─────────────────────────┐
	│                                                          │
	│  ┌────────────┐   one task per free slot   ┌──────────┐  │
	│  │ Poll loop  ├───────────────────────────▶│TaskRunner│  │
	│  │ (capacity- │                            │ (per-run │  │
	│  │  gated)    │                            │  state   │  │
	│  └────────────┘                            │  machine)│  │
	│                                            └────┬─────┘  │
	│  ┌────────────┐                                 │        │
	│  │ Reaper loop│◀── skips containers owned ──────┤        │
	│  │ (max age)  │    by active runs               │        │
	│  └────────────┘                                 │        │
	└─────────────────────────────────────────────────┼────────┘
	                                                  │
	             queue ◀── claim / reclaim / report ──┤
	             engine ◀── create / start / remove ──┤
	             store  ◀── terminal run records ─────┘

# Run Lifecycle

A TaskRunner moves each run through a fixed sequence of phases:

 1. Claimed: the lease manager claims the run and keeps reclaiming it
    in the background until the run resolves.
 2. Linking: feature link hooks start companion containers and
    contribute links and mounts.
 3. Created: the run container is created (not started), then created
    hooks attach log consumers. Only after the last hook returns is
    the held log stream released.
 4. Validating: the raw payload is checked against the task payload
    schema. Violations resolve the run as a submitter error with the
    sentinel exit code; the container never starts.
 5. Running: the deadline watchdog is armed, the container starts, and
    the runner waits for exit, lease failure, or cancellation.
 6. StoppedHooks: the watchdog is disarmed, stopped hooks collect
    artifacts, the result footer is written, and the stream is ended
    so consumers receive the complete transcript.
 7. KilledHooks: the container is removed, then killed hooks tear down
    companion containers.
 8. Reported: the queue learns whether the run succeeded, and the
    terminal record is persisted.

# Error Handling

How a run ends depends on whose fault the failure is:

  - Submitter errors (invalid payload) and run failures (non-zero
    exit) are still resolved with the queue; they report failure.
  - Infrastructure errors (hook failures, engine errors, a lost
    lease) report nothing. The lease is released and left to lapse so
    the queue can reissue the run to a healthy worker.

# Reaper

Containers from crashed runs or a previous worker process would
otherwise accumulate forever. The reaper loop periodically lists the
engine's containers and removes any older than the configured maximum
age, skipping those an active run still owns.
*/
package worker
