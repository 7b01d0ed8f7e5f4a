/*
Package storage persists the worker's run history.

Every terminal run, whether it was reported to the queue or aborted on
an infrastructure error, leaves one RunRecord in an embedded BoltDB
database under the worker's data directory. The history answers "what
did this worker run and how did it go" across restarts and feeds the
runs-recorded metrics.

# Architecture

	┌──────────────── RUN HISTORY ────────────────┐
	│                                              │
	│  ┌──────────────────────────────────┐       │
	│  │            RunStore               │       │
	│  │  - File: <dataDir>/docker-worker.db│      │
	│  │  - Format: B+tree with MVCC       │       │
	│  │  - Transactions: ACID with fsync  │       │
	│  └──────────────────┬───────────────┘       │
	│                     │                        │
	│  ┌──────────────────▼───────────────┐       │
	│  │          Bucket: task_runs        │       │
	│  │  key   "<taskId>/<runId>"         │       │
	│  │  value JSON RunRecord             │       │
	│  └──────────────────────────────────┘       │
	└──────────────────────────────────────────────┘

# Usage

	store, err := storage.NewRunStore("/var/lib/docker-worker")
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.Put(&types.RunRecord{
		TaskID:  "abc123",
		RunID:   0,
		Success: true,
	})

	record, err := store.Get("abc123", 0)
	recent, err := store.List(20)
	succeeded, failed, err := store.CountByResult()

# Design Patterns

Single Writer:
  - The worker process owns the database file exclusively
  - BoltDB serializes Update transactions internally

Scan-based Queries:
  - List and CountByResult walk the whole bucket
  - Worker-local history stays small, so full scans stay cheap and the
    bucket needs no secondary index

Error Handling:
  - Wrapped errors with context: fmt.Errorf("failed to X: %w", err)
  - Get on an absent run returns "run not found"
  - Put is an upsert, re-recording a run replaces its entry
*/
package storage
