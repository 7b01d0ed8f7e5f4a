package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Claim metrics
	TasksClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docker_worker_tasks_claimed_total",
			Help: "Total number of task runs claimed from the queue",
		},
	)

	TaskReclaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_worker_task_reclaims_total",
			Help: "Total number of lease reclaim attempts by result",
		},
		[]string{"result"},
	)

	// Run lifecycle metrics
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docker_worker_phase_duration_seconds",
			Help:    "Duration of each run phase in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	RunsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docker_worker_runs_active",
			Help: "Number of task runs currently executing",
		},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_worker_runs_total",
			Help: "Total number of finished task runs by result",
		},
		[]string{"result"},
	)

	// Timeout metrics
	TaskTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docker_worker_task_timeouts_total",
			Help: "Total number of runs force-killed at their deadline",
		},
	)

	TimeoutMaxRunTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docker_worker_timeout_max_run_time_seconds",
			Help: "maxRunTime of the most recent run that hit its deadline",
		},
	)

	// Queue client metrics
	QueueRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docker_worker_queue_requests_total",
			Help: "Total number of queue API calls by call name and status",
		},
		[]string{"call", "status"},
	)

	// Collector-sampled state
	RunsRecorded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docker_worker_runs_recorded",
			Help: "Task runs in the local history store by result",
		},
		[]string{"result"},
	)

	ContainersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docker_worker_containers",
			Help: "Containers present in the worker's runtime namespace",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksClaimed)
	prometheus.MustRegister(TaskReclaims)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(RunsActive)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(TaskTimeouts)
	prometheus.MustRegister(TimeoutMaxRunTime)
	prometheus.MustRegister(QueueRequests)
	prometheus.MustRegister(RunsRecorded)
	prometheus.MustRegister(ContainersActive)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
