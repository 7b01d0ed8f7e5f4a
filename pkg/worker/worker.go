package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/indygreg/docker-worker/pkg/clock"
	"github.com/indygreg/docker-worker/pkg/config"
	"github.com/indygreg/docker-worker/pkg/queue"
	"github.com/indygreg/docker-worker/pkg/runtime"
	"github.com/indygreg/docker-worker/pkg/storage"
	"github.com/indygreg/docker-worker/pkg/types"
)

// Worker polls the queue for pending tasks and executes each claimed
// run through a TaskRunner. Concurrency is bounded by the configured
// capacity; the poll loop only asks for work while a run slot is free.
type Worker struct {
	cfg    *config.Config
	queue  queue.Queue
	engine runtime.Engine
	runner *TaskRunner
	active *ActiveRuns
	clk    clock.Clock
	logger zerolog.Logger

	slots  chan struct{}
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Worker wired to the given queue, container engine and
// run history store.
func New(cfg *config.Config, q queue.Queue, engine runtime.Engine, store storage.Store, clk clock.Clock, logger zerolog.Logger) (*Worker, error) {
	active := &ActiveRuns{}
	runner, err := NewTaskRunner(q, engine, store, active, clk, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task runner: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:    cfg,
		queue:  q,
		engine: engine,
		runner: runner,
		active: active,
		clk:    clk,
		logger: logger,
		slots:  make(chan struct{}, cfg.Worker.Capacity),
		stopCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start launches the poll and reaper loops
func (w *Worker) Start() {
	w.logger.Info().
		Str("worker_id", w.cfg.Worker.WorkerID).
		Int("capacity", w.cfg.Worker.Capacity).
		Msg("Worker starting")

	w.wg.Add(2)
	go w.pollLoop()
	go w.reaperLoop()
}

// Stop shuts the worker down and waits for in-flight runs to finish
// or abort.
func (w *Worker) Stop() {
	w.logger.Info().Msg("Worker stopping")
	close(w.stopCh)
	w.cancel()
	w.wg.Wait()
	w.logger.Info().Msg("Worker stopped")
}

// pollLoop claims a run slot, polls the queue, and dispatches each
// returned task to the runner on its own goroutine. An empty or
// failing poll releases the slot and sleeps one interval.
func (w *Worker) pollLoop() {
	defer w.wg.Done()
	interval := time.Duration(w.cfg.Worker.PollInterval) * time.Second

	for {
		select {
		case w.slots <- struct{}{}:
		case <-w.stopCh:
			return
		}

		task, err := w.queue.PollTask(w.ctx)
		if err != nil {
			<-w.slots
			if errors.Is(err, queue.ErrNoWork) {
				w.logger.Debug().Msg("No work available")
			} else if w.ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("Failed to poll for work")
			}
			select {
			case <-w.clk.After(interval):
			case <-w.stopCh:
				return
			}
			continue
		}

		w.wg.Add(1)
		go w.dispatch(task)
	}
}

// dispatch runs one task and releases its run slot when done.
func (w *Worker) dispatch(task *types.Task) {
	defer w.wg.Done()
	defer func() { <-w.slots }()

	if err := w.runner.Run(w.ctx, task); err != nil {
		w.logger.Error().Err(err).
			Str("task_id", task.TaskID).
			Int("run_id", task.RunID).
			Msg("Task run failed")
	}
}

// ActiveRuns tracks the container IDs owned by in-flight runs so the
// reaper never removes a container out from under its run. A nil
// ActiveRuns tracks nothing.
type ActiveRuns struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// Add marks a container as owned by an active run
func (a *ActiveRuns) Add(id string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ids == nil {
		a.ids = make(map[string]struct{})
	}
	a.ids[id] = struct{}{}
}

// Remove releases a container's active mark
func (a *ActiveRuns) Remove(id string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.ids, id)
}

// Has reports whether a container belongs to an active run
func (a *ActiveRuns) Has(id string) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.ids[id]
	return ok
}
