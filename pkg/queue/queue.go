package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/indygreg/docker-worker/pkg/types"
)

// ErrNoWork is returned by PollTask when the queue has nothing pending
// for this worker's provisioner and worker type.
var ErrNoWork = errors.New("no task available")

// Queue is the upstream task queue as the worker sees it. ClaimTask
// serves both the initial claim and every reclaim; the queue decides
// whether the lease can still be renewed.
type Queue interface {
	// PollTask asks for the next pending task for this worker. It
	// returns ErrNoWork when the queue is empty.
	PollTask(ctx context.Context) (*types.Task, error)

	// ClaimTask claims or reclaims a run, returning the fresh lease
	ClaimTask(ctx context.Context, taskID string, runID int, identity types.WorkerIdentity) (types.Claim, error)

	// ReportCompleted resolves a run as succeeded or failed
	ReportCompleted(ctx context.Context, taskID string, runID int, success bool) error
}

// APIError is a non-2xx answer from the queue
type APIError struct {
	Call       string // Which RPC failed
	StatusCode int
	Body       string // Response body snippet
}

func (e *APIError) Error() string {
	return fmt.Sprintf("queue %s returned %d: %s", e.Call, e.StatusCode, e.Body)
}
