/*
Package types defines the core data structures shared across the worker.

These types model one claimed task run end to end: the task and its
submitter-provided payload, the lease the queue granted for it, and the
outcome the worker reports back and persists.

# Core Types

Task Identity:
  - Task: One claimed run (taskId, runId, raw + decoded payload)
  - WorkerIdentity: provisionerId/workerType/workerGroup/workerId tuple
  - Claim: Lease with absolute takenUntil expiry, replaced on reclaim

Execution Request:
  - Payload: Image, command, env, maxRunTime, feature flags, artifacts, links
  - Artifact: Declared file or directory to collect after the run
  - ContainerLink: Companion container wiring (alias env var, hosts entry)

Results:
  - RunOutcome: Success flag, exit code, start/finish timestamps
  - RunRecord: Persisted history entry, including infra-abort errors
  - Phase: Typed orchestrator state constants

# State Machine

A run moves through phases strictly forward:

	idle → claimed → linking → created → validating → running
	                                         ↓            ↓
	                                   (invalid)    stopped-hooks
	                                         ↓            ↓
	                                      reported ← killed-hooks

An invalid payload short-circuits from validating to reported with the
InvalidPayloadExitCode sentinel; the container never starts and the
stopped/killed hooks are skipped.

# Design Patterns

All enums use typed string constants. Wire-facing types (Payload and its
children) carry JSON tags matching the queue's payload format; internal
types (Claim, RunOutcome) do not. Claims are immutable: a reclaim produces
a new Claim value rather than mutating the old one, so a run can safely
read its current lease while the reclaim cadence replaces it.
*/
package types
