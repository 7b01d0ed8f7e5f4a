/*
Package config loads and validates the worker's YAML configuration.

A config file has five sections: worker (identity + run loop tuning),
queue (upstream endpoint + credentials), runtime (containerd socket and
namespace), log (operational log level/format), and server (health and
metrics listen address). Load layers the file over Default, so a minimal
file only needs the identity and queue fields:

	worker:
	  provisionerId: aws-provisioner-v1
	  workerType: gecko-t-linux
	  workerGroup: us-west-2
	  workerId: i-0abc123
	queue:
	  baseUrl: https://queue.example.net/v1
	  accessToken: "..."

Durations are plain integer seconds. Validation fails fast on missing
identity fields rather than letting the first queue call explain it.
*/
package config
