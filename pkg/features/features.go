package features

import (
	"context"
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/indygreg/docker-worker/pkg/logstream"
	"github.com/indygreg/docker-worker/pkg/runtime"
	"github.com/indygreg/docker-worker/pkg/types"
)

// Handler receives the lifecycle hooks of one task run. Implementations
// embed Base and override only the hooks they care about.
type Handler interface {
	// Link runs before the run container is created. Returned links
	// are folded into the container spec alongside the payload's own.
	Link(ctx context.Context, rc *RunContext) ([]types.ContainerLink, error)

	// Created runs after the run container exists but before it starts
	Created(ctx context.Context, rc *RunContext) error

	// Stopped runs after the container exited, while it is still
	// present for artifact collection
	Stopped(ctx context.Context, rc *RunContext) error

	// Killed runs after the container is removed, as the final cleanup
	// point for companion resources
	Killed(ctx context.Context, rc *RunContext) error
}

// Base provides no-op hooks
type Base struct{}

func (Base) Link(ctx context.Context, rc *RunContext) ([]types.ContainerLink, error) {
	return nil, nil
}

func (Base) Created(ctx context.Context, rc *RunContext) error {
	return nil
}

func (Base) Stopped(ctx context.Context, rc *RunContext) error {
	return nil
}

func (Base) Killed(ctx context.Context, rc *RunContext) error {
	return nil
}

// Env is the process-wide wiring handed to feature constructors
type Env struct {
	Engine     runtime.Engine
	ProxyImage string
	Logger     zerolog.Logger
}

// Entry registers one feature: its payload flag name, whether it runs
// when the payload does not mention it, and its constructor. A fresh
// handler is built per run so features may carry per-run state.
type Entry struct {
	Name    string
	Default bool
	New     func(env Env) Handler
}

// Registry is an ordered feature list. Hook dispatch follows
// registration order.
type Registry []Entry

// Builtin returns the standard feature registry
func Builtin() Registry {
	return Registry{
		{Name: "liveLog", Default: true, New: func(env Env) Handler {
			return &liveLog{}
		}},
		{Name: "artifacts", Default: true, New: func(env Env) Handler {
			return &artifacts{}
		}},
		{Name: "authProxy", Default: false, New: func(env Env) Handler {
			return &authProxy{engine: env.Engine, image: env.ProxyImage, logger: env.Logger}
		}},
	}
}

// RunContext is the state the hooks of one run share. Hooks run
// sequentially, so appends need no locking.
type RunContext struct {
	Task   *types.Task
	Claim  types.Claim
	Stream *logstream.Stream
	Engine runtime.Engine

	// RunDir is the per-run scratch root on the host
	RunDir string

	// Tag prefixes worker-authored transcript lines
	Tag string

	Logger zerolog.Logger

	// Mounts collects container mounts contributed during the link
	// phase, before the container spec is built
	Mounts []specs.Mount

	// Artifacts collects metadata records in the order hooks add them
	Artifacts []types.ArtifactRecord
}

// Logf writes a worker-tagged line to the run transcript
func (rc *RunContext) Logf(format string, args ...interface{}) {
	line := rc.Tag + fmt.Sprintf(format, args...) + "\r\n"
	_, _ = rc.Stream.Write([]byte(line))
}

type namedHandler struct {
	name    string
	handler Handler
}

// Pipeline dispatches hooks to the enabled features of one run, in
// registry order. The first hook error aborts the dispatch and
// propagates.
type Pipeline struct {
	handlers []namedHandler
}

// NewPipeline resolves which features run: a payload flag wins, absent
// flags fall back to the registry default.
func NewPipeline(registry Registry, flags map[string]bool, env Env) *Pipeline {
	p := &Pipeline{}
	for _, entry := range registry {
		enabled := entry.Default
		if v, ok := flags[entry.Name]; ok {
			enabled = v
		}
		if enabled {
			p.handlers = append(p.handlers, namedHandler{entry.Name, entry.New(env)})
		}
	}
	return p
}

// Names returns the enabled feature names in dispatch order
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.handlers))
	for i, nh := range p.handlers {
		names[i] = nh.name
	}
	return names
}

// Link dispatches the link hooks and gathers every contributed link
func (p *Pipeline) Link(ctx context.Context, rc *RunContext) ([]types.ContainerLink, error) {
	var links []types.ContainerLink
	for _, nh := range p.handlers {
		contributed, err := nh.handler.Link(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("failed to run %s link hook: %w", nh.name, err)
		}
		links = append(links, contributed...)
	}
	return links, nil
}

// Created dispatches the created hooks
func (p *Pipeline) Created(ctx context.Context, rc *RunContext) error {
	for _, nh := range p.handlers {
		if err := nh.handler.Created(ctx, rc); err != nil {
			return fmt.Errorf("failed to run %s created hook: %w", nh.name, err)
		}
	}
	return nil
}

// Stopped dispatches the stopped hooks
func (p *Pipeline) Stopped(ctx context.Context, rc *RunContext) error {
	for _, nh := range p.handlers {
		if err := nh.handler.Stopped(ctx, rc); err != nil {
			return fmt.Errorf("failed to run %s stopped hook: %w", nh.name, err)
		}
	}
	return nil
}

// Killed dispatches the killed hooks
func (p *Pipeline) Killed(ctx context.Context, rc *RunContext) error {
	for _, nh := range p.handlers {
		if err := nh.handler.Killed(ctx, rc); err != nil {
			return fmt.Errorf("failed to run %s killed hook: %w", nh.name, err)
		}
	}
	return nil
}
