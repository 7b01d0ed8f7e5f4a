package types

import (
	"encoding/json"
	"time"
)

// InvalidPayloadExitCode is the sentinel exit code reported for a run whose
// payload failed schema validation. The container never starts, so no real
// exit code exists; -1 cannot collide with any process exit status.
const InvalidPayloadExitCode = -1

// Phase represents the orchestrator's position in a task run
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseClaimed      Phase = "claimed"
	PhaseLinking      Phase = "linking"
	PhaseCreated      Phase = "created"
	PhaseValidating   Phase = "validating"
	PhaseRunning      Phase = "running"
	PhaseStoppedHooks Phase = "stopped-hooks"
	PhaseKilledHooks  Phase = "killed-hooks"
	PhaseReported     Phase = "reported"
)

// WorkerIdentity identifies this worker process to the upstream queue
type WorkerIdentity struct {
	ProvisionerID string
	WorkerType    string
	WorkerGroup   string
	WorkerID      string
}

// Claim is the lease the queue granted for a task run. It is replaced
// wholesale on every successful reclaim; no field is updated in place.
type Claim struct {
	WorkerID    string
	WorkerGroup string
	TakenUntil  time.Time // Absolute lease expiry
}

// Task represents one claimed run of a queued task
type Task struct {
	TaskID  string
	RunID   int
	Created time.Time
	Raw     json.RawMessage // Payload as received, validated before use
	Payload *Payload        // Decoded payload; fields unreliable until validated
}

// Payload is the submitter-provided execution request carried by a task
type Payload struct {
	Image      string              `json:"image"`
	Command    []string            `json:"command"`
	Env        map[string]string   `json:"env,omitempty"`
	MaxRunTime int                 `json:"maxRunTime"` // Seconds
	Features   map[string]bool     `json:"features,omitempty"`
	Artifacts  map[string]Artifact `json:"artifacts,omitempty"`
	Links      []ContainerLink     `json:"links,omitempty"`
}

// Artifact declares a file or directory to collect from the run container
type Artifact struct {
	Type    ArtifactType `json:"type"`
	Path    string       `json:"path"`
	Expires time.Time    `json:"expires,omitempty"`
}

// ArtifactType defines what an artifact path points at
type ArtifactType string

const (
	ArtifactTypeFile      ArtifactType = "file"
	ArtifactTypeDirectory ArtifactType = "directory"
)

// ContainerLink connects the run container to a companion container.
// Links render as LINK_<ALIAS>_NAME environment variables; links with a
// known Address additionally appear in the container's hosts file.
type ContainerLink struct {
	Name    string `json:"name"`              // Companion container ID
	Alias   string `json:"alias"`             // Hostname inside the run container
	Address string `json:"address,omitempty"` // IP address, when known
}

// RunOutcome captures the terminal result of a single container run
type RunOutcome struct {
	Success    bool
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock time the run took
func (o RunOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// RunRecord is the persisted history entry for a terminal run
type RunRecord struct {
	TaskID     string
	RunID      int
	WorkerID   string
	Phase      Phase // Last phase reached
	Success    bool
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string // Infra error text, empty for reported runs
	Artifacts  []ArtifactRecord
}

// ArtifactRecord is the collected metadata for one declared artifact
type ArtifactRecord struct {
	Name    string
	Type    ArtifactType
	Path    string
	Missing bool // Declared but absent when the run stopped
	Expires time.Time
}
