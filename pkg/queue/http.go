package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/indygreg/docker-worker/pkg/metrics"
	"github.com/indygreg/docker-worker/pkg/types"
)

// maxErrorBody caps how much of an error response is kept for the
// error message.
const maxErrorBody = 256

// Client talks to the queue's REST API
type Client struct {
	baseURL     string
	accessToken string
	identity    types.WorkerIdentity
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewClient creates a queue client. baseURL is the API root without a
// trailing slash; timeout bounds every call.
func NewClient(baseURL, accessToken string, identity types.WorkerIdentity, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		identity:    identity,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// claimedTask is the wire shape of a polled task. The payload stays raw
// here: it is validated against the schema during the run, not at poll
// time, so a malformed payload still produces a claimable run that
// reports a submitter error.
type claimedTask struct {
	TaskID  string          `json:"taskId"`
	RunID   int             `json:"runId"`
	Created time.Time       `json:"created"`
	Payload json.RawMessage `json:"payload"`
}

// claimResponse is the wire shape of a claim or reclaim answer
type claimResponse struct {
	WorkerID    string    `json:"workerId"`
	WorkerGroup string    `json:"workerGroup"`
	TakenUntil  time.Time `json:"takenUntil"`
}

// workerBody identifies this worker in claim requests
type workerBody struct {
	WorkerGroup string `json:"workerGroup"`
	WorkerID    string `json:"workerId"`
}

// PollTask asks for the next pending task. A 204 means the queue is
// empty and maps to ErrNoWork.
func (c *Client) PollTask(ctx context.Context) (*types.Task, error) {
	path := fmt.Sprintf("/claim-work/%s/%s", c.identity.ProvisionerID, c.identity.WorkerType)
	body := workerBody{WorkerGroup: c.identity.WorkerGroup, WorkerID: c.identity.WorkerID}

	status, data, err := c.post(ctx, "poll-task", path, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, ErrNoWork
	}

	var wire claimedTask
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode claim-work response: %w", err)
	}

	task := &types.Task{
		TaskID:  wire.TaskID,
		RunID:   wire.RunID,
		Created: wire.Created,
		Raw:     wire.Payload,
	}

	// Best-effort decode. A payload the schema will reject may still
	// decode partially or not at all; the run handles both.
	var payload types.Payload
	if err := json.Unmarshal(wire.Payload, &payload); err == nil {
		task.Payload = &payload
	} else {
		c.logger.Debug().Str("task_id", wire.TaskID).Err(err).Msg("payload does not decode, leaving validation to the run")
	}

	return task, nil
}

// ClaimTask claims or reclaims a run lease
func (c *Client) ClaimTask(ctx context.Context, taskID string, runID int, identity types.WorkerIdentity) (types.Claim, error) {
	path := fmt.Sprintf("/task/%s/runs/%d/claim", taskID, runID)
	body := workerBody{WorkerGroup: identity.WorkerGroup, WorkerID: identity.WorkerID}

	_, data, err := c.post(ctx, "claim-task", path, body)
	if err != nil {
		return types.Claim{}, err
	}

	var wire claimResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return types.Claim{}, fmt.Errorf("failed to decode claim response: %w", err)
	}

	return types.Claim{
		WorkerID:    wire.WorkerID,
		WorkerGroup: wire.WorkerGroup,
		TakenUntil:  wire.TakenUntil,
	}, nil
}

// ReportCompleted resolves a run
func (c *Client) ReportCompleted(ctx context.Context, taskID string, runID int, success bool) error {
	path := fmt.Sprintf("/task/%s/runs/%d/completed", taskID, runID)
	body := struct {
		Success bool `json:"success"`
	}{Success: success}

	_, _, err := c.post(ctx, "report-completed", path, body)
	return err
}

// post sends a JSON POST and returns the status code and body. Non-2xx
// answers become an *APIError carrying a body snippet.
func (c *Client) post(ctx context.Context, call, path string, body interface{}) (int, []byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode %s request: %w", call, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build %s request: %w", call, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.QueueRequests.WithLabelValues(call, "error").Inc()
		return 0, nil, fmt.Errorf("failed to call queue %s: %w", call, err)
	}
	defer resp.Body.Close()

	metrics.QueueRequests.WithLabelValues(call, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s response: %w", call, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return resp.StatusCode, nil, &APIError{Call: call, StatusCode: resp.StatusCode, Body: snippet}
	}

	return resp.StatusCode, data, nil
}
