package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/indygreg/docker-worker/pkg/clock"
	"github.com/indygreg/docker-worker/pkg/metrics"
	"github.com/indygreg/docker-worker/pkg/types"
)

// ReclaimDivisor controls how far into the lease window the renewal
// happens. Renewing at (takenUntil - now) / 1.3 leaves roughly a
// quarter of the window as slack for network latency, and being a
// fraction rather than a fixed offset it scales across short and long
// windows alike.
const ReclaimDivisor = 1.3

// Claimer is the slice of the queue the lease manager needs. The
// same call serves the initial claim and every renewal.
type Claimer interface {
	ClaimTask(ctx context.Context, taskID string, runID int, identity types.WorkerIdentity) (types.Claim, error)
}

// Manager keeps one run's lease alive. Claim performs the initial
// claim and starts the cadence: every successful claim schedules
// exactly one future reclaim, canceling the previous timer before
// scheduling the next, so at most one pending timer exists at any
// instant. A reclaim that fails past the retry budget stops the
// cadence and surfaces on Err.
//
// A Manager belongs to a single run. Create a fresh one per task.
type Manager struct {
	queue      Claimer
	clk        clock.Clock
	identity   types.WorkerIdentity
	retries    int
	retryDelay time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	taskID string
	runID  int
	claim  types.Claim
	timer  *clock.Timer
	gen    uint64
	active bool

	errCh chan error
}

// NewManager creates a lease manager for one run
func NewManager(queue Claimer, clk clock.Clock, identity types.WorkerIdentity, retries int, retryDelay time.Duration, logger zerolog.Logger) *Manager {
	if retryDelay <= 0 {
		// AfterFunc(0) runs inline; retries need a real delay.
		retryDelay = time.Second
	}
	return &Manager{
		queue:      queue,
		clk:        clk,
		identity:   identity,
		retries:    retries,
		retryDelay: retryDelay,
		logger:     logger,
		errCh:      make(chan error, 1),
	}
}

// Claim performs the initial claim for the run and starts the reclaim
// cadence. The context lives as long as the run; reclaims use it too.
func (m *Manager) Claim(ctx context.Context, taskID string, runID int) (types.Claim, error) {
	claim, err := m.queue.ClaimTask(ctx, taskID, runID, m.identity)
	if err != nil {
		return types.Claim{}, fmt.Errorf("failed to claim task %s run %d: %w", taskID, runID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	m.taskID = taskID
	m.runID = runID
	m.claim = claim
	m.active = true
	m.scheduleLocked(claim)
	return claim, nil
}

// Current returns the most recent claim. The claim is replaced
// wholesale on every successful reclaim.
func (m *Manager) Current() types.Claim {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claim
}

// Err delivers the terminal reclaim failure, if one ever happens. The
// channel holds one error; the cadence has already stopped by the time
// it is readable.
func (m *Manager) Err() <-chan error {
	return m.errCh
}

// Cancel stops the cadence. Idempotent, safe concurrently with a
// firing timer: the generation counter makes an in-flight reclaim a
// no-op.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// scheduleLocked replaces the pending reclaim timer with one firing at
// (takenUntil - now) / ReclaimDivisor from now. Callers hold m.mu.
func (m *Manager) scheduleLocked(claim types.Claim) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	gen := m.gen

	remaining := claim.TakenUntil.Sub(m.clk.Now())
	delay := time.Duration(float64(remaining) / ReclaimDivisor)
	if delay < time.Millisecond {
		// An expired or near-expired lease renews on the next tick.
		// Never zero: AfterFunc(0) would run inline under m.mu.
		delay = time.Millisecond
	}

	m.logger.Debug().
		Str("task_id", m.taskID).
		Int("run_id", m.runID).
		Dur("delay", delay).
		Time("taken_until", claim.TakenUntil).
		Msg("reclaim scheduled")

	m.timer = m.clk.AfterFunc(delay, func() { m.reclaim(gen, 0) })
}

// reclaim renews the lease. attempt counts retries after a failure.
func (m *Manager) reclaim(gen uint64, attempt int) {
	m.mu.Lock()
	if !m.active || gen != m.gen {
		// A stale timer: the cadence was canceled or rescheduled
		// while this fire was in flight.
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	taskID := m.taskID
	runID := m.runID
	m.mu.Unlock()

	claim, err := m.queue.ClaimTask(ctx, taskID, runID, m.identity)
	if err != nil {
		metrics.TaskReclaims.WithLabelValues("failure").Inc()

		if attempt < m.retries {
			m.logger.Warn().
				Str("task_id", taskID).
				Int("run_id", runID).
				Int("attempt", attempt+1).
				Err(err).
				Msg("reclaim failed, retrying")

			m.mu.Lock()
			if m.active && gen == m.gen {
				m.timer = m.clk.AfterFunc(m.retryDelay, func() { m.reclaim(gen, attempt+1) })
			}
			m.mu.Unlock()
			return
		}

		// Out of retries. The run must not keep executing against a
		// lease it cannot renew; stop the cadence and let the
		// orchestrator observe the loss.
		m.mu.Lock()
		if m.active && gen == m.gen {
			m.active = false
			m.timer = nil
		}
		m.mu.Unlock()

		select {
		case m.errCh <- fmt.Errorf("failed to reclaim task %s run %d: %w", taskID, runID, err):
		default:
		}
		return
	}

	metrics.TaskReclaims.WithLabelValues("success").Inc()

	m.mu.Lock()
	if m.active && gen == m.gen {
		m.claim = claim
		m.scheduleLocked(claim)
	}
	m.mu.Unlock()
}
