/*
Package lease keeps a claimed run's queue lease alive.

A claim grants the worker a window ending at takenUntil. The manager
renews at a fixed fraction of the remaining window:

	nextReclaim = (takenUntil - now) / 1.3

so a 600,000 ms window renews after roughly 461,538 ms, comfortably
before expiry even under latency jitter, and shorter windows compress
proportionally.

Two invariants matter here:

  - At most one pending reclaim timer exists per run. Every successful
    claim cancels the previous timer before scheduling the next, and a
    generation counter turns an already-fired stale timer into a no-op.

  - A lease that cannot be renewed never fails silently. After the
    configured retries (default zero) the cadence stops and the error
    is delivered on Err, where the orchestrator selects on it alongside
    the container's exit.

Cancel is idempotent and is called on every exit path; canceling does
not resolve the run with the queue, it only stops renewing.
*/
package lease
