package runtime

import (
	"context"
	"fmt"
	"io"
	"syscall"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
)

// Containerd implements Engine against a containerd daemon
type Containerd struct {
	client    *containerd.Client
	namespace string
}

// NewContainerd connects to a containerd daemon
func NewContainerd(socketPath, namespace string) (*Containerd, error) {
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd at %s: %w", socketPath, err)
	}
	return &Containerd{client: client, namespace: namespace}, nil
}

// Close releases the client connection
func (c *Containerd) Close() error {
	return c.client.Close()
}

func (c *Containerd) ns(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, c.namespace)
}

func (c *Containerd) ensureImage(ctx context.Context, ref string) (containerd.Image, error) {
	image, err := c.client.GetImage(ctx, ref)
	if err == nil {
		return image, nil
	}
	image, err = c.client.Pull(ctx, ref, containerd.WithPullUnpack)
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return image, nil
}

// Prepare pulls the image if it is not already present and creates the
// container and its task with stdout and stderr piped into w. The task
// is created but not started, and its exit watcher is registered here
// so no exit event can slip past before Wait is called.
func (c *Containerd) Prepare(ctx context.Context, spec ContainerSpec, w io.Writer) (Container, error) {
	if spec.Image == "" {
		return nil, fmt.Errorf("container spec has no image")
	}
	ctx = c.ns(ctx)

	image, err := c.ensureImage(ctx, spec.Image)
	if err != nil {
		return nil, err
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.EnvSlice()),
	}
	if len(spec.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(spec.Command...))
	}
	if len(spec.Mounts) > 0 {
		opts = append(opts, oci.WithMounts(spec.Mounts))
	}

	container, err := c.client.NewContainer(ctx, spec.ID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.ID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", spec.ID, err)
	}

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, w, w)))
	if err != nil {
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("failed to create task for container %s: %w", spec.ID, err)
	}

	exitCh, err := task.Wait(ctx)
	if err != nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("failed to watch task for container %s: %w", spec.ID, err)
	}

	return &runContainer{
		id:        spec.ID,
		namespace: c.namespace,
		container: container,
		task:      task,
		exitCh:    exitCh,
	}, nil
}

// Containers lists the containers in the engine's namespace with their
// creation times
func (c *Containerd) Containers(ctx context.Context) ([]ContainerInfo, error) {
	ctx = c.ns(ctx)
	list, err := c.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	infos := make([]ContainerInfo, 0, len(list))
	for _, container := range list {
		info, err := container.Info(ctx)
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to inspect container %s: %w", container.ID(), err)
		}
		infos = append(infos, ContainerInfo{ID: info.ID, CreatedAt: info.CreatedAt})
	}
	return infos, nil
}

// ContainerIDs lists just the container IDs
func (c *Containerd) ContainerIDs(ctx context.Context) ([]string, error) {
	ctx = c.ns(ctx)
	list, err := c.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, container := range list {
		ids = append(ids, container.ID())
	}
	return ids, nil
}

// Remove deletes a container by ID, force-killing its task if one is
// still running. A container that is already gone is not an error.
func (c *Containerd) Remove(ctx context.Context, id string) error {
	ctx = c.ns(ctx)
	container, err := c.client.LoadContainer(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load container %s: %w", id, err)
	}
	if task, err := container.Task(ctx, nil); err == nil {
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to delete task for container %s: %w", id, err)
		}
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete container %s: %w", id, err)
	}
	return nil
}

// runContainer is one prepared container plus its exit watcher
type runContainer struct {
	id        string
	namespace string
	container containerd.Container
	task      containerd.Task
	exitCh    <-chan containerd.ExitStatus
}

func (r *runContainer) ns(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}

// ID returns the container's identifier
func (r *runContainer) ID() string {
	return r.id
}

// Start begins execution of the prepared task
func (r *runContainer) Start(ctx context.Context) error {
	if err := r.task.Start(r.ns(ctx)); err != nil {
		return fmt.Errorf("failed to start container %s: %w", r.id, err)
	}
	return nil
}

// Wait blocks until the task exits, drains its stdio copiers, and then
// returns the exit code. The drain happens before the code is handed
// back so every byte the process wrote has reached the log writer by
// the time the caller sees the result.
func (r *runContainer) Wait(ctx context.Context) (int, error) {
	select {
	case status := <-r.exitCh:
		code, _, err := status.Result()
		if err != nil {
			return 0, fmt.Errorf("failed to wait for container %s: %w", r.id, err)
		}
		r.task.IO().Wait()
		return int(code), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Kill sends SIGKILL to the task. Killing a task that already finished
// is a no-op.
func (r *runContainer) Kill(ctx context.Context) error {
	err := r.task.Kill(r.ns(ctx), syscall.SIGKILL)
	if err != nil && !errdefs.IsNotFound(err) && !errdefs.IsFailedPrecondition(err) {
		return fmt.Errorf("failed to kill container %s: %w", r.id, err)
	}
	return nil
}

// Remove deletes the task, the container, and its snapshot. Safe to
// call more than once.
func (r *runContainer) Remove(ctx context.Context) error {
	ctx = r.ns(ctx)
	if _, err := r.task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete task for container %s: %w", r.id, err)
	}
	if err := r.container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete container %s: %w", r.id, err)
	}
	return nil
}
