package runtime

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/indygreg/docker-worker/pkg/types"
)

// ContainerSpec describes one run container. It is derived, never
// stored: the orchestrator builds it fresh for each run from the
// payload, the injected identity environment, and whatever links the
// feature hooks contributed.
type ContainerSpec struct {
	ID      string
	Image   string
	Command []string
	Env     map[string]string
	Mounts  []specs.Mount
	Links   []types.ContainerLink
}

// NewContainerSpec builds the spec for a task run. Payload env comes
// first, then TASK_ID and RUN_ID, then one LINK_<ALIAS>_NAME variable
// per link; later entries win on collision.
func NewContainerSpec(task *types.Task, links []types.ContainerLink, mounts []specs.Mount) ContainerSpec {
	env := make(map[string]string)
	if task.Payload != nil {
		for k, v := range task.Payload.Env {
			env[k] = v
		}
	}
	env["TASK_ID"] = task.TaskID
	env["RUN_ID"] = strconv.Itoa(task.RunID)
	for _, link := range links {
		env[LinkEnvName(link.Alias)] = link.Name
	}

	spec := ContainerSpec{
		ID:     "run-" + uuid.New().String(),
		Env:    env,
		Mounts: mounts,
		Links:  links,
	}
	if task.Payload != nil {
		spec.Image = task.Payload.Image
		spec.Command = task.Payload.Command
	}
	return spec
}

// EnvSlice renders the environment as sorted KEY=VALUE pairs
func (s ContainerSpec) EnvSlice() []string {
	pairs := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

// LinkEnvName maps a link alias to its environment variable. Runs of
// characters an env name cannot hold collapse to underscores.
func LinkEnvName(alias string) string {
	var b strings.Builder
	b.WriteString("LINK_")
	for _, r := range strings.ToUpper(alias) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteString("_NAME")
	return b.String()
}

// ContainerInfo is the slice of container metadata the reaper needs
type ContainerInfo struct {
	ID        string
	CreatedAt time.Time
}

// Engine creates and manages run containers
type Engine interface {
	// Prepare pulls the image if needed and creates the container with
	// its output wired to w. The container is created, not started;
	// Start is the caller's explicit step.
	Prepare(ctx context.Context, spec ContainerSpec, w io.Writer) (Container, error)

	// Containers lists the containers in the engine's namespace
	Containers(ctx context.Context) ([]ContainerInfo, error)

	// ContainerIDs lists just the IDs
	ContainerIDs(ctx context.Context) ([]string, error)

	// Remove deletes a container by ID, killing its process first if
	// one is still running. Removing an absent container is not an
	// error.
	Remove(ctx context.Context, id string) error

	// Close releases the engine's connection
	Close() error
}

// Container is one prepared run container
type Container interface {
	// ID returns the container's identifier
	ID() string

	// Start begins execution
	Start(ctx context.Context) error

	// Wait blocks until the container exits and every byte of output
	// has been flushed to the prepare-time writer, then returns the
	// exit code. Output is fully drained before the code is returned,
	// never after.
	Wait(ctx context.Context) (int, error)

	// Kill terminates the container with SIGKILL. Killing a container
	// that already exited is a no-op.
	Kill(ctx context.Context) error

	// Remove deletes the container, its task, and its snapshot.
	// Idempotent.
	Remove(ctx context.Context) error
}
