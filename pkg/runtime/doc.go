/*
Package runtime executes task run containers through containerd.

The runtime package wraps containerd's client API behind the Engine and
Container interfaces. It handles image pulling, OCI spec generation from
a payload-derived ContainerSpec, task creation with stdio piped into the
run's log stream, exit code extraction, and cleanup of containers and
their snapshots.

# Architecture

	┌────────────────────── RUNTIME ──────────────────────┐
	│                                                      │
	│  ┌──────────────────────────────────────────┐       │
	│  │            Containerd (Engine)            │       │
	│  │  - Socket: /run/containerd/containerd.sock│       │
	│  │  - Namespace: docker-worker               │       │
	│  └──────────────────┬───────────────────────┘       │
	│                     │ Prepare(spec, w)               │
	│  ┌──────────────────▼───────────────────────┐       │
	│  │          runContainer (Container)         │       │
	│  │  - Start: launch the prepared task        │       │
	│  │  - Wait: exit status, then stdio drain    │       │
	│  │  - Kill: SIGKILL (no-op after exit)       │       │
	│  │  - Remove: task + container + snapshot    │       │
	│  └──────────────────┬───────────────────────┘       │
	│                     │                                │
	│  ┌──────────────────▼───────────────────────┐       │
	│  │            Containerd Daemon              │       │
	│  │  - Snapshotter: overlayfs for layers      │       │
	│  │  - Runtime: runc (io.containerd.runc.v2)  │       │
	│  └──────────────────────────────────────────┘       │
	└──────────────────────────────────────────────────────┘

# Container Lifecycle

Prepare:
 1. Pull the image if it is not already cached (WithPullUnpack)
 2. Generate the OCI spec: image config, merged environment, command
    override, extra bind mounts
 3. Create the container with a fresh snapshot
 4. Create the task with stdout and stderr piped into the run's writer
 5. Register the exit watcher before anything starts

Wait:
 1. Block on the exit watcher registered during Prepare
 2. Drain the stdio copiers so every byte reached the writer
 3. Only then surface the exit code

The drain-before-extract ordering is what lets callers treat the exit
code as "the run is over, the log is complete". Reversing the two steps
would let a completion report race the tail of the log.

# Environment Injection

ContainerSpec merges three environment layers, later layers winning:

 1. The payload's env map
 2. TASK_ID and RUN_ID identifying the run
 3. LINK_<ALIAS>_NAME for each container link

Links that carry an address additionally get a hosts file entry; see
HostsMount.

# Usage

	engine, err := runtime.NewContainerd("/run/containerd/containerd.sock", "docker-worker")
	if err != nil {
		return err
	}
	defer engine.Close()

	spec := runtime.NewContainerSpec(task, links, mounts)
	container, err := engine.Prepare(ctx, spec, logWriter)
	if err != nil {
		return err
	}
	defer container.Remove(context.Background())

	if err := container.Start(ctx); err != nil {
		return err
	}
	exitCode, err := container.Wait(ctx)

# Design Patterns

Namespace Isolation:
  - All run containers live in a dedicated containerd namespace
  - Context wrapped per call: namespaces.WithNamespace(ctx, namespace)
  - Listing and cleanup are scoped to the namespace only

Error Handling:
  - Wrapped errors with context: fmt.Errorf("failed to X: %w", err)
  - Not-found on kill and remove is swallowed, both are idempotent
  - Prepare rolls back the container and snapshot when task creation
    fails partway

# Integration Points

This package integrates with:

  - pkg/types: payload and link definitions
  - pkg/worker: run orchestration and the deadline watchdog
  - pkg/logstream: the writer handed to Prepare
  - containerd: low-level container runtime operations

# See Also

  - pkg/worker for the run state machine
  - containerd documentation: https://containerd.io/
  - OCI runtime spec: https://github.com/opencontainers/runtime-spec
*/
package runtime
