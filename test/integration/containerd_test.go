package integration

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/indygreg/docker-worker/pkg/runtime"
	"github.com/indygreg/docker-worker/pkg/types"
)

const (
	testSocket    = "/run/containerd/containerd.sock"
	testNamespace = "docker-worker-test"
	testImage     = "docker.io/library/alpine:3.20"
)

// syncBuffer guards concurrent writes from the stdio copiers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestRunToCompletion tests the basic run workflow:
// prepare → start → wait → exit code and output → remove
func TestRunToCompletion(t *testing.T) {
	// Skip if containerd is not available
	engine, err := runtime.NewContainerd(testSocket, testNamespace)
	if err != nil {
		t.Skipf("Containerd not available: %v", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	task := &types.Task{
		TaskID: "integration-test",
		RunID:  0,
		Payload: &types.Payload{
			Image:      testImage,
			Command:    []string{"/bin/sh", "-c", "echo run output: $TASK_ID"},
			MaxRunTime: 60,
		},
	}

	spec := runtime.NewContainerSpec(task, nil, nil)
	out := &syncBuffer{}

	t.Log("Step 1: Preparing container...")
	container, err := engine.Prepare(ctx, spec, out)
	if err != nil {
		t.Fatalf("Failed to prepare container: %v", err)
	}
	t.Logf("✓ Container prepared: %s", container.ID())

	// Ensure cleanup
	defer func() {
		t.Log("Cleanup: Removing container...")
		if err := container.Remove(context.Background()); err != nil {
			t.Logf("Warning: Failed to remove container: %v", err)
		}
	}()

	t.Log("Step 2: Starting container...")
	if err := container.Start(ctx); err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}
	t.Log("✓ Container started")

	t.Log("Step 3: Waiting for exit...")
	exitCode, err := container.Wait(ctx)
	if err != nil {
		t.Fatalf("Failed to wait for container: %v", err)
	}
	t.Logf("✓ Container exited with code %d", exitCode)

	if exitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", exitCode)
	}
	if !strings.Contains(out.String(), "run output: integration-test") {
		t.Errorf("Expected injected TASK_ID in output, got: %q", out.String())
	}

	t.Log("✅ All steps completed successfully!")
}

// TestRunFailureExitCode tests that a failing command's exit code is
// surfaced as-is
func TestRunFailureExitCode(t *testing.T) {
	engine, err := runtime.NewContainerd(testSocket, testNamespace)
	if err != nil {
		t.Skipf("Containerd not available: %v", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	task := &types.Task{
		TaskID: "integration-test-fail",
		RunID:  0,
		Payload: &types.Payload{
			Image:      testImage,
			Command:    []string{"/bin/sh", "-c", "exit 7"},
			MaxRunTime: 60,
		},
	}

	container, err := engine.Prepare(ctx, runtime.NewContainerSpec(task, nil, nil), &syncBuffer{})
	if err != nil {
		t.Fatalf("Failed to prepare container: %v", err)
	}
	defer container.Remove(context.Background())

	if err := container.Start(ctx); err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}

	exitCode, err := container.Wait(ctx)
	if err != nil {
		t.Fatalf("Failed to wait for container: %v", err)
	}
	if exitCode != 7 {
		t.Errorf("Expected exit code 7, got %d", exitCode)
	}
	t.Logf("✓ Exit code surfaced: %d", exitCode)
}

// TestListContainers tests listing containers in the worker namespace
func TestListContainers(t *testing.T) {
	engine, err := runtime.NewContainerd(testSocket, testNamespace)
	if err != nil {
		t.Skipf("Containerd not available: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()

	t.Log("Listing containers in worker namespace...")
	ids, err := engine.ContainerIDs(ctx)
	if err != nil {
		t.Fatalf("Failed to list containers: %v", err)
	}

	t.Logf("Found %d containers in worker namespace", len(ids))
	for _, id := range ids {
		t.Logf("  - %s", id)
	}
}

// TestRemoveAbsentContainer tests that removing a container that does
// not exist is a no-op
func TestRemoveAbsentContainer(t *testing.T) {
	engine, err := runtime.NewContainerd(testSocket, testNamespace)
	if err != nil {
		t.Skipf("Containerd not available: %v", err)
	}
	defer engine.Close()

	if err := engine.Remove(context.Background(), "run-does-not-exist"); err != nil {
		t.Errorf("Removing an absent container should be a no-op, got: %v", err)
	}
	t.Log("✓ Absent container remove is a no-op")
}
