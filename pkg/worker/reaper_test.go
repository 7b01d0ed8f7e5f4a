package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indygreg/docker-worker/pkg/runtime"
)

func TestReapContainersRemovesOnlyStale(t *testing.T) {
	f := newWorkerFixture(t)
	now := f.fc.Now()
	f.engine.infos = []runtime.ContainerInfo{
		{ID: "run-stale", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "run-fresh", CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "run-owned", CreatedAt: now.Add(-3 * time.Hour)},
	}
	f.w.active.Add("run-owned")

	f.w.reapContainers(time.Hour)

	assert.Equal(t, []string{"run-stale"}, f.engine.removed)
}

func TestReapContainersSurvivesListError(t *testing.T) {
	f := newWorkerFixture(t)
	f.engine.listErr = errors.New("containerd unavailable")

	f.w.reapContainers(time.Hour)

	assert.Empty(t, f.engine.removed)
}

func TestReapContainersContinuesPastRemoveError(t *testing.T) {
	f := newWorkerFixture(t)
	now := f.fc.Now()
	f.engine.infos = []runtime.ContainerInfo{
		{ID: "run-a", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "run-b", CreatedAt: now.Add(-2 * time.Hour)},
	}
	f.engine.removeErr = errors.New("still has a task")

	// Both removals fail; neither aborts the sweep.
	f.w.reapContainers(time.Hour)
	assert.Empty(t, f.engine.removed)

	f.engine.removeErr = nil
	f.w.reapContainers(time.Hour)
	assert.Equal(t, []string{"run-a", "run-b"}, f.engine.removed)
}

func TestReaperLoopSweepsAtStartupAndOnTick(t *testing.T) {
	f := newWorkerFixture(t)
	now := f.fc.Now()
	f.engine.infos = []runtime.ContainerInfo{
		{ID: "run-leftover", CreatedAt: now.Add(-2 * time.Hour)},
	}

	f.w.Start()

	// Startup sweep, before any tick.
	require.Eventually(t, func() bool {
		f.engine.mu.Lock()
		defer f.engine.mu.Unlock()
		return len(f.engine.removed) == 1
	}, 5*time.Second, 10*time.Millisecond)

	f.engine.mu.Lock()
	f.engine.infos = append(f.engine.infos, runtime.ContainerInfo{
		ID:        "run-later",
		CreatedAt: now.Add(-90 * time.Minute),
	})
	f.engine.mu.Unlock()

	// Both the reaper ticker and the poll loop's sleep must be armed
	// before time moves, or the tick would be missed.
	f.fc.WaitForTimers(2)
	interval := time.Duration(f.cfg.Worker.ReaperInterval) * time.Second
	f.fc.Advance(interval)

	require.Eventually(t, func() bool {
		f.engine.mu.Lock()
		defer f.engine.mu.Unlock()
		return len(f.engine.removed) == 2
	}, 5*time.Second, 10*time.Millisecond)

	stopWorker(t, f.w)
}

func TestActiveRuns(t *testing.T) {
	var nilSet *ActiveRuns
	nilSet.Add("x")
	nilSet.Remove("x")
	assert.False(t, nilSet.Has("x"))

	set := &ActiveRuns{}
	assert.False(t, set.Has("a"))
	set.Add("a")
	assert.True(t, set.Has("a"))
	set.Remove("a")
	assert.False(t, set.Has("a"))
}
