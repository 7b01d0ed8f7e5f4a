package clock

import "time"

// Clock abstracts time operations so that timer-driven components (the
// lease reclaim cadence, the deadline watchdog, the poll loop) can be
// tested deterministically. Production code injects Real(); tests inject
// Fake() and advance time explicitly.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. Equivalent to time.After; d <= 0 delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules f to run after d and returns a Timer whose
	// Stop cancels the pending call. The Timer's C is nil, matching
	// time.AfterFunc.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering on C every d. Panics if
	// d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d
	Sleep(d time.Duration)
}

// Timer is a scheduled one-shot event. C is nil for AfterFunc timers.
type Timer struct {
	C <-chan time.Time

	stop  func() bool
	reset func(time.Duration) bool
}

// Stop prevents the timer from firing. It reports whether the call
// stopped the timer; false means it already fired or was stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Reset re-arms the timer to fire after d. It reports whether the timer
// was still active before the reset.
func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }

// Ticker delivers periodic ticks on C. C has capacity 1; ticks the
// consumer misses are dropped, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop turns the ticker off. It does not close C.
func (t *Ticker) Stop() { t.stop() }

// Reset changes the tick interval and restarts the cycle
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }

// Real returns a Clock backed by the time package
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop, reset: t.Reset}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop, reset: t.Reset}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
