/*
Package features hooks optional behavior into the run lifecycle.

A feature implements Handler and receives up to four hooks per run:
link (before the container is created), created (container exists, not
started), stopped (container exited, still present), and killed
(container removed). Features embed Base and override only the hooks
they need.

# Hook Dispatch

The Registry is an ordered list; NewPipeline filters it down to one
run's enabled set. Whether a feature runs is decided per run: the
payload's features flag wins when present, otherwise the registry
default applies. Dispatch at every hook point is sequential in registry
order and stops at the first error, which propagates to the
orchestrator as a hook failure. Link and created hook failures count
against the task; stopped and killed failures surface after the run
already has a result.

# Built-in Features

liveLog (default on):
  - created: opens live.log under the run directory and attaches it to
    the log stream, so the transcript survives on disk
  - stopped: records the transcript as the run's log artifact

artifacts (default on):
  - link: allocates a scratch directory and mounts it at /artifacts
    inside the run container
  - stopped: walks the payload's declared artifacts, records what was
    produced, and writes a transcript line for anything missing

authProxy (default off):
  - link: starts a companion proxy container and links it under the
    auth-proxy alias
  - killed: kills and removes the companion

# Usage

	env := features.Env{Engine: engine, ProxyImage: cfg.AuthProxyImage, Logger: logger}
	pipeline := features.NewPipeline(features.Builtin(), task.Payload.Features, env)

	links, err := pipeline.Link(ctx, rc)
	// create the container with links and rc.Mounts folded in
	err = pipeline.Created(ctx, rc)
	// run ...
	err = pipeline.Stopped(ctx, rc)
	// remove the container ...
	err = pipeline.Killed(ctx, rc)
*/
package features
