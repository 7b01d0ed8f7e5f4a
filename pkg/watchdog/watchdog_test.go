package watchdog

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/indygreg/docker-worker/pkg/clock"
)

func TestFiresAtDeadline(t *testing.T) {
	fc := clock.Fake(time.Unix(0, 0))
	w := New(fc)

	var fires atomic.Int32
	w.Arm(5*time.Second, func() { fires.Add(1) })

	fc.Advance(4 * time.Second)
	assert.Equal(t, int32(0), fires.Load())
	assert.False(t, w.Fired())

	fc.Advance(1 * time.Second)
	assert.Equal(t, int32(1), fires.Load(), "fires at the deadline")
	assert.True(t, w.Fired())

	fc.Advance(time.Hour)
	assert.Equal(t, int32(1), fires.Load(), "one-shot, never refires")
}

func TestMaxRunTimeSecondsToDeadline(t *testing.T) {
	fc := clock.Fake(time.Unix(0, 0))
	w := New(fc)

	// maxRunTime of 10 seconds arms a 10,000 ms deadline.
	var fires atomic.Int32
	w.Arm(time.Duration(10)*time.Second, func() { fires.Add(1) })

	fc.Advance(9999 * time.Millisecond)
	assert.Equal(t, int32(0), fires.Load())

	fc.Advance(time.Millisecond)
	assert.Equal(t, int32(1), fires.Load())
}

func TestDisarmPreventsFire(t *testing.T) {
	fc := clock.Fake(time.Unix(0, 0))
	w := New(fc)

	var fires atomic.Int32
	w.Arm(5*time.Second, func() { fires.Add(1) })
	w.Disarm()

	fc.Advance(time.Hour)
	assert.Equal(t, int32(0), fires.Load())
	assert.False(t, w.Fired())
	assert.Equal(t, 0, fc.PendingCount())
}

func TestDisarmIdempotentAndSafeAfterFire(t *testing.T) {
	fc := clock.Fake(time.Unix(0, 0))
	w := New(fc)

	var fires atomic.Int32
	w.Arm(time.Second, func() { fires.Add(1) })
	fc.Advance(time.Second)
	assert.Equal(t, int32(1), fires.Load())

	// Disarming after the fire, repeatedly, must be harmless.
	w.Disarm()
	w.Disarm()
	assert.Equal(t, int32(1), fires.Load())
}

func TestRearmReplacesDeadline(t *testing.T) {
	fc := clock.Fake(time.Unix(0, 0))
	w := New(fc)

	var first, second atomic.Int32
	w.Arm(5*time.Second, func() { first.Add(1) })
	fc.Advance(3 * time.Second)

	w.Arm(5*time.Second, func() { second.Add(1) })
	assert.Equal(t, 1, fc.PendingCount(), "re-arm leaves a single pending deadline")

	// The original deadline point passes without firing.
	fc.Advance(2 * time.Second)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(0), second.Load())

	fc.Advance(3 * time.Second)
	assert.Equal(t, int32(0), first.Load(), "replaced deadline never fires")
	assert.Equal(t, int32(1), second.Load())
}

func TestFiredResetsOnArm(t *testing.T) {
	fc := clock.Fake(time.Unix(0, 0))
	w := New(fc)

	w.Arm(time.Second, func() {})
	fc.Advance(time.Second)
	assert.True(t, w.Fired())

	w.Arm(time.Minute, func() {})
	assert.False(t, w.Fired())
	w.Disarm()
}
