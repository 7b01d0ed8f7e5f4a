package watchdog

import (
	"sync"
	"time"

	"github.com/indygreg/docker-worker/pkg/clock"
)

// Watchdog enforces a single run's wall-clock deadline. Arm starts the
// countdown; Disarm stops it. If the deadline passes first, onExpire
// runs exactly once. The typical wiring points onExpire at the
// container's kill switch.
type Watchdog struct {
	clk clock.Clock

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
	fired bool
}

// New creates a disarmed watchdog
func New(clk clock.Clock) *Watchdog {
	return &Watchdog{clk: clk}
}

// Arm schedules onExpire to run once d elapses. Arming an already
// armed watchdog replaces the pending deadline; the old one can no
// longer fire.
func (w *Watchdog) Arm(d time.Duration, onExpire func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
	w.fired = false
	gen := w.gen

	if d < time.Millisecond {
		// A degenerate deadline still fires through the timer rather
		// than inline under the lock.
		d = time.Millisecond
	}

	w.timer = w.clk.AfterFunc(d, func() {
		w.mu.Lock()
		if gen != w.gen {
			// Disarmed or re-armed while the fire was in flight.
			w.mu.Unlock()
			return
		}
		w.fired = true
		w.timer = nil
		w.mu.Unlock()

		onExpire()
	})
}

// Disarm cancels the pending deadline. Idempotent, and safe to call
// after the watchdog has fired.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Fired reports whether the current or most recent arming expired.
// Arm resets it.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}
