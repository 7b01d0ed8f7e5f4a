/*
Package queue implements the worker's view of the upstream task queue.

The queue owns scheduling, retries, and task state; the worker only
polls for work, keeps its lease alive, and resolves runs. Three calls
cover all of that:

  - PollTask: POST /claim-work/{provisionerId}/{workerType}, returns the
    next pending run or ErrNoWork on 204
  - ClaimTask: POST /task/{taskId}/runs/{runId}/claim, grants a fresh
    lease; the same call serves the initial claim and every reclaim
  - ReportCompleted: POST /task/{taskId}/runs/{runId}/completed

Requests authenticate with a bearer token. Non-2xx answers surface as
*APIError with the status code and a body snippet so callers can log
something useful without dumping whole error pages.

Note that PollTask does not validate payloads. A task whose payload the
schema will reject must still be claimed and reported as a submitter
error; rejecting it at poll time would strand it in the queue.
*/
package queue
