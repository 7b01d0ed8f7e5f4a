/*
Package api provides the worker's HTTP sidecar server.

The server carries no task execution traffic. It exposes the process
to operators and schedulers:

	GET /health   liveness: the process is up
	GET /ready    readiness: critical components report healthy
	GET /live     kubelet-style liveness probe
	GET /metrics  Prometheus metrics
	GET /runs     recent run history (?limit=N, default 50), or one
	              full record with ?taskId=X&runId=N

Health state is fed by the components themselves through
metrics.SetComponentHealth; the handlers here only render it. Run
history comes straight from the storage layer, most recent first.
*/
package api
