/*
Package metrics defines the worker's Prometheus metrics.

All metrics register on the default registry at package init and are
exposed through the /metrics endpoint served by pkg/api. Counters and
phase timers are observed inline where the work happens; the Collector
periodically samples the state only a scan can see (run history counts,
containers present in the runtime namespace).

# Metric Categories

Claims:
  - docker_worker_tasks_claimed_total: runs claimed from the queue
  - docker_worker_task_reclaims_total{result}: lease renewals

Run lifecycle:
  - docker_worker_phase_duration_seconds{phase}: time spent in each
    phase (claim, link, created, run, stopped, killed, removed,
    report_completed)
  - docker_worker_runs_active: runs currently executing
  - docker_worker_runs_total{result}: finished runs

Timeouts:
  - docker_worker_task_timeouts_total: runs killed at their deadline
  - docker_worker_timeout_max_run_time_seconds: maxRunTime of the most
    recent deadline kill

Queue client:
  - docker_worker_queue_requests_total{call,status}

# Usage

Timing a phase:

	timer := metrics.NewTimer()
	err := runner.link(ctx)
	timer.ObserveDurationVec(metrics.PhaseDuration, "link")

The Timer helper exists because most phases observe into the same
HistogramVec with only the label changing; prometheus.NewTimer binds the
observer too early for that.
*/
package metrics
