package worker

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/indygreg/docker-worker/pkg/clock"
	"github.com/indygreg/docker-worker/pkg/config"
	"github.com/indygreg/docker-worker/pkg/features"
	"github.com/indygreg/docker-worker/pkg/lease"
	"github.com/indygreg/docker-worker/pkg/logstream"
	"github.com/indygreg/docker-worker/pkg/metrics"
	"github.com/indygreg/docker-worker/pkg/queue"
	"github.com/indygreg/docker-worker/pkg/runtime"
	"github.com/indygreg/docker-worker/pkg/schema"
	"github.com/indygreg/docker-worker/pkg/storage"
	"github.com/indygreg/docker-worker/pkg/types"
	"github.com/indygreg/docker-worker/pkg/watchdog"
)

// teardownTimeout bounds best-effort kill/remove calls issued outside
// the normal lifecycle, where the original run context may already be
// canceled.
const teardownTimeout = 30 * time.Second

// TaskRunner drives claimed tasks through the run lifecycle: claim,
// link, create, validate, run, stop, remove, report. One TaskRunner
// serves all runs; per-run state lives in a taskRun.
type TaskRunner struct {
	queue     queue.Queue
	engine    runtime.Engine
	store     storage.Store
	registry  features.Registry
	validator *schema.Validator
	active    *ActiveRuns
	clk       clock.Clock
	cfg       *config.Config
	logger    zerolog.Logger
}

// NewTaskRunner creates a TaskRunner wired to the given queue, engine
// and run store. active may be nil when no reaper shares the engine.
func NewTaskRunner(q queue.Queue, engine runtime.Engine, store storage.Store, active *ActiveRuns, clk clock.Clock, cfg *config.Config, logger zerolog.Logger) (*TaskRunner, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payload validator: %w", err)
	}
	return &TaskRunner{
		queue:     q,
		engine:    engine,
		store:     store,
		registry:  features.Builtin(),
		validator: validator,
		active:    active,
		clk:       clk,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run executes one task run to completion. It returns nil for runs
// resolved with the queue, including failed and invalid-payload runs.
// A non-nil error means an infrastructure failure: the run is left
// unreported so its lease lapses and the queue can reissue it.
func (r *TaskRunner) Run(ctx context.Context, task *types.Task) error {
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	t := &taskRun{
		r:    r,
		task: task,
		logger: r.logger.With().
			Str("task_id", task.TaskID).
			Int("run_id", task.RunID).
			Logger(),
		phase: types.PhaseIdle,
	}
	return t.execute(ctx)
}

// taskRun holds the mutable state of a single run as it moves through
// the lifecycle phases.
type taskRun struct {
	r      *TaskRunner
	task   *types.Task
	logger zerolog.Logger

	phase     types.Phase
	lease     *lease.Manager
	stream    *logstream.Stream
	pipeline  *features.Pipeline
	rc        *features.RunContext
	dog       *watchdog.Watchdog
	container runtime.Container
	outcome   types.RunOutcome
}

func (t *taskRun) execute(ctx context.Context) error {
	timer := metrics.NewTimer()
	t.lease = lease.NewManager(t.r.queue, t.r.clk, t.r.cfg.Identity(),
		t.r.cfg.Worker.ReclaimRetries,
		time.Duration(t.r.cfg.Worker.ReclaimRetryDelay)*time.Second,
		t.logger)
	claim, err := t.lease.Claim(ctx, t.task.TaskID, t.task.RunID)
	if err != nil {
		return fmt.Errorf("failed to claim task: %w", err)
	}
	defer t.lease.Cancel()
	metrics.TasksClaimed.Inc()
	timer.ObserveDurationVec(metrics.PhaseDuration, "claim")
	t.phase = types.PhaseClaimed
	t.logger.Info().Time("taken_until", claim.TakenUntil).Msg("Task claimed")

	runDir := filepath.Join(t.r.cfg.Worker.DataDir, "runs",
		fmt.Sprintf("%s-%d", t.task.TaskID, t.task.RunID))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return t.abort(fmt.Errorf("failed to create run directory: %w", err))
	}

	t.pipeline = features.NewPipeline(t.r.registry, t.featureFlags(), features.Env{
		Engine:     t.r.engine,
		ProxyImage: t.r.cfg.Worker.AuthProxyImage,
		Logger:     t.logger,
	})
	t.rc = &features.RunContext{
		Task:   t.task,
		Claim:  claim,
		Stream: logstream.New(),
		Engine: t.r.engine,
		RunDir: runDir,
		Tag:    t.r.cfg.Worker.TaskLogPrefix,
		Logger: t.logger,
	}
	t.stream = t.rc.Stream
	t.logger.Debug().Strs("features", t.pipeline.Names()).Msg("Feature pipeline assembled")

	// The header is buffered by the held stream until every consumer
	// has attached.
	t.logLine("taskId: %s, workerId: %s", t.task.TaskID, t.r.cfg.Worker.WorkerID)

	timer = metrics.NewTimer()
	t.phase = types.PhaseLinking
	links, err := t.pipeline.Link(ctx, t.rc)
	if err != nil {
		return t.abort(err)
	}
	if t.task.Payload != nil && len(t.task.Payload.Links) > 0 {
		links = append(append([]types.ContainerLink{}, t.task.Payload.Links...), links...)
	}
	timer.ObserveDurationVec(metrics.PhaseDuration, "link")

	// A task without a decodable payload cannot describe a container.
	// Skip creation; validation below turns it into a submitter error.
	timer = metrics.NewTimer()
	if t.task.Payload != nil {
		if err := t.createContainer(ctx, links, runDir); err != nil {
			return t.abort(err)
		}
		t.r.active.Add(t.container.ID())
		defer t.r.active.Remove(t.container.ID())
	}
	t.phase = types.PhaseCreated
	if err := t.pipeline.Created(ctx, t.rc); err != nil {
		return t.abort(err)
	}
	timer.ObserveDurationVec(metrics.PhaseDuration, "created")

	// Every consumer is attached now. Release the held buffer so the
	// header reaches them before any container output.
	t.stream.Release()

	t.phase = types.PhaseValidating
	violations := t.r.validator.Validate(t.task.Raw)
	if len(violations) > 0 {
		return t.resolveInvalid(ctx, violations)
	}

	t.phase = types.PhaseRunning
	exitCode, err := t.runContainer(ctx)
	if err != nil {
		return t.abort(err)
	}

	t.phase = types.PhaseStoppedHooks
	timer = metrics.NewTimer()
	if err := t.pipeline.Stopped(ctx, t.rc); err != nil {
		return t.abort(err)
	}
	timer.ObserveDurationVec(metrics.PhaseDuration, "stopped")

	seconds := int(math.Round(t.outcome.Duration().Seconds()))
	t.logFooter(exitCode, seconds)

	// The full transcript must reach every consumer before the
	// container and its log files are torn down.
	if err := t.stream.End(); err != nil {
		t.logger.Warn().Err(err).Msg("Log stream delivery failed")
	}

	timer = metrics.NewTimer()
	if err := t.container.Remove(ctx); err != nil {
		return t.abort(fmt.Errorf("failed to remove container: %w", err))
	}
	timer.ObserveDurationVec(metrics.PhaseDuration, "removed")

	t.phase = types.PhaseKilledHooks
	timer = metrics.NewTimer()
	if err := t.pipeline.Killed(ctx, t.rc); err != nil {
		return t.abort(err)
	}
	timer.ObserveDurationVec(metrics.PhaseDuration, "killed")

	if err := t.report(ctx, t.outcome.Success); err != nil {
		return t.abort(err)
	}
	result := "failed"
	if t.outcome.Success {
		result = "succeeded"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()
	t.logger.Info().
		Bool("success", t.outcome.Success).
		Int("exit_code", exitCode).
		Dur("duration", t.outcome.Duration()).
		Time("lease_until", t.lease.Current().TakenUntil).
		Msg("Task run resolved")
	t.record(t.outcome.Success, exitCode, "")
	return nil
}

// featureFlags layers payload feature requests over worker-level
// defaults; the payload wins where both name a feature.
func (t *taskRun) featureFlags() map[string]bool {
	var payload map[string]bool
	if t.task.Payload != nil {
		payload = t.task.Payload.Features
	}
	if len(t.r.cfg.Worker.Features) == 0 {
		return payload
	}
	merged := make(map[string]bool, len(t.r.cfg.Worker.Features)+len(payload))
	for name, enabled := range t.r.cfg.Worker.Features {
		merged[name] = enabled
	}
	for name, enabled := range payload {
		merged[name] = enabled
	}
	return merged
}

// createContainer builds the container spec from the payload, the
// accumulated links and the mounts contributed by link hooks, then
// asks the engine for a created (not started) container.
func (t *taskRun) createContainer(ctx context.Context, links []types.ContainerLink, runDir string) error {
	mounts := t.rc.Mounts
	hostsMount, err := runtime.HostsMount(runDir, links)
	if err != nil {
		return fmt.Errorf("failed to build hosts file: %w", err)
	}
	if hostsMount != nil {
		mounts = append(mounts, *hostsMount)
	}
	spec := runtime.NewContainerSpec(t.task, links, mounts)
	container, err := t.r.engine.Prepare(ctx, spec, t.stream)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	t.container = container
	t.logger.Debug().Str("container_id", container.ID()).Msg("Container created")
	return nil
}

// runContainer arms the deadline watchdog, starts the container and
// waits for it to exit, its lease to fail, or the run context to be
// canceled. On success the outcome fields are populated and the exit
// code returned.
func (t *taskRun) runContainer(ctx context.Context) (int, error) {
	maxRunTime := t.task.Payload.MaxRunTime
	t.dog = watchdog.New(t.r.clk)
	t.dog.Arm(time.Duration(maxRunTime)*time.Second, func() {
		t.logLine("Task timeout after %d seconds. Force killing container.", maxRunTime)
		metrics.TaskTimeouts.Inc()
		metrics.TimeoutMaxRunTime.Set(float64(maxRunTime))
		killCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := t.container.Kill(killCtx); err != nil {
			t.logger.Error().Err(err).Msg("Failed to kill container at deadline")
		}
	})

	timer := metrics.NewTimer()
	t.outcome.StartedAt = t.r.clk.Now()
	if err := t.container.Start(ctx); err != nil {
		t.dog.Disarm()
		return 0, fmt.Errorf("failed to start container: %w", err)
	}
	t.logger.Info().
		Str("container_id", t.container.ID()).
		Int("max_run_time", maxRunTime).
		Msg("Container started")

	type waitResult struct {
		code int
		err  error
	}
	waitCh := make(chan waitResult, 1)
	go func() {
		code, err := t.container.Wait(ctx)
		waitCh <- waitResult{code: code, err: err}
	}()

	var exitCode int
	select {
	case res := <-waitCh:
		if res.err != nil {
			t.dog.Disarm()
			return 0, fmt.Errorf("failed to wait for container: %w", res.err)
		}
		exitCode = res.code
	case err := <-t.lease.Err():
		t.dog.Disarm()
		return 0, fmt.Errorf("lease lost during run: %w", err)
	case <-ctx.Done():
		t.dog.Disarm()
		return 0, ctx.Err()
	}
	t.outcome.FinishedAt = t.r.clk.Now()
	t.outcome.ExitCode = exitCode
	t.outcome.Success = exitCode == 0
	timer.ObserveDurationVec(metrics.PhaseDuration, "run")

	// Disarm before anything else so a deadline racing the natural
	// exit cannot fire against a dead container.
	t.dog.Disarm()
	if t.dog.Fired() {
		t.logger.Warn().Int("exit_code", exitCode).Msg("Run was force-killed at its deadline")
	}
	return exitCode, nil
}

// resolveInvalid resolves a run whose payload failed schema
// validation: the violations and an unsuccessful footer go to the log,
// the never-started container is removed, and the run is reported as
// failed with the sentinel exit code.
func (t *taskRun) resolveInvalid(ctx context.Context, violations []schema.ValidationError) error {
	t.logger.Warn().Int("violations", len(violations)).Msg("Payload failed schema validation")
	t.logBlock(schema.FormatErrors(violations))
	t.logFooter(types.InvalidPayloadExitCode, 0)
	if err := t.stream.End(); err != nil {
		t.logger.Warn().Err(err).Msg("Log stream delivery failed")
	}
	if t.container != nil {
		if err := t.container.Remove(ctx); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to remove unstarted container")
		}
	}
	if err := t.report(ctx, false); err != nil {
		return t.abort(err)
	}
	metrics.RunsTotal.WithLabelValues("failed").Inc()
	t.record(false, types.InvalidPayloadExitCode, "")
	return nil
}

// report resolves the run with the queue and retires the lease. The
// phase only reaches Reported once the queue has acknowledged.
func (t *taskRun) report(ctx context.Context, success bool) error {
	timer := metrics.NewTimer()
	if err := t.r.queue.ReportCompleted(ctx, t.task.TaskID, t.task.RunID, success); err != nil {
		return fmt.Errorf("failed to report completion: %w", err)
	}
	timer.ObserveDurationVec(metrics.PhaseDuration, "report_completed")
	t.lease.Cancel()
	t.phase = types.PhaseReported
	return nil
}

// abort tears down a run after an infrastructure failure. Nothing is
// reported to the queue: the lease is released and left to lapse so
// the queue can hand the run to another worker. The cause is recorded
// in run history and returned.
func (t *taskRun) abort(cause error) error {
	if t.dog != nil {
		t.dog.Disarm()
	}
	if t.stream != nil {
		if err := t.stream.End(); err != nil {
			t.logger.Warn().Err(err).Msg("Log stream delivery failed")
		}
	}
	if t.container != nil {
		// The run context may already be gone; teardown gets its own.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := t.container.Kill(cleanupCtx); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to kill container during abort")
		}
		if err := t.container.Remove(cleanupCtx); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to remove container during abort")
		}
	}
	t.lease.Cancel()
	metrics.RunsTotal.WithLabelValues("aborted").Inc()
	t.logger.Error().Err(cause).Str("phase", string(t.phase)).Msg("Task run aborted")
	t.record(false, 0, cause.Error())
	return cause
}

// record persists the run's terminal state. History is advisory, so a
// failed write is logged and otherwise ignored.
func (t *taskRun) record(success bool, exitCode int, infraErr string) {
	rec := &types.RunRecord{
		TaskID:     t.task.TaskID,
		RunID:      t.task.RunID,
		WorkerID:   t.r.cfg.Worker.WorkerID,
		Phase:      t.phase,
		Success:    success,
		ExitCode:   exitCode,
		StartedAt:  t.outcome.StartedAt,
		FinishedAt: t.outcome.FinishedAt,
		Error:      infraErr,
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = t.r.clk.Now()
	}
	if t.rc != nil {
		rec.Artifacts = t.rc.Artifacts
	}
	if err := t.r.store.Put(rec); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to record run history")
	}
}

// logLine writes one tagged, CRLF-terminated line to the task log.
func (t *taskRun) logLine(format string, args ...interface{}) {
	line := t.r.cfg.Worker.TaskLogPrefix + fmt.Sprintf(format, args...) + "\r\n"
	if _, err := t.stream.Write([]byte(line)); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to write task log line")
	}
}

// logBlock writes a tagged multi-line block, terminated like any other
// worker line.
func (t *taskRun) logBlock(block string) {
	if _, err := t.stream.Write([]byte(t.r.cfg.Worker.TaskLogPrefix + block + "\r\n")); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to write task log block")
	}
}

// logFooter writes the terminal result line of the task log.
func (t *taskRun) logFooter(exitCode, seconds int) {
	result := "Unsuccessful"
	if exitCode == 0 {
		result = "Successful"
	}
	t.logLine("%s task run with exit code: %d completed in %d seconds", result, exitCode, seconds)
}
