/*
Package clock abstracts time for testability.

The worker's correctness rests on timer arithmetic: the lease manager
schedules reclaims at a fixed fraction of the remaining lease window, and
the watchdog kills a container the moment maxRunTime elapses. Testing
either against the real clock means sleeps and flakes. Instead, every
component that schedules work takes a Clock; production wiring passes
Real() and tests pass Fake().

# Usage

Production:

	lease := lease.NewManager(queue, clock.Real(), ...)

Tests:

	fc := clock.Fake(time.Unix(0, 0))
	mgr := lease.NewManager(queue, fc, ...)
	fc.WaitForTimers(1)              // reclaim timer registered
	fc.Advance(461538 * time.Millisecond) // fires it deterministically

FakeClock fires expired waiters in deadline order during Advance, runs
AfterFunc callbacks synchronously, and exposes PendingCount so tests can
assert invariants like "exactly one reclaim timer exists".
*/
package clock
