package features

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indygreg/docker-worker/pkg/logstream"
	"github.com/indygreg/docker-worker/pkg/types"
)

// recordingHandler notes every hook invocation in a shared trace
type recordingHandler struct {
	Base
	name  string
	trace *[]string

	links      []types.ContainerLink
	linkErr    error
	createdErr error
	stoppedErr error
	killedErr  error
}

func (h *recordingHandler) Link(ctx context.Context, rc *RunContext) ([]types.ContainerLink, error) {
	*h.trace = append(*h.trace, h.name+":link")
	return h.links, h.linkErr
}

func (h *recordingHandler) Created(ctx context.Context, rc *RunContext) error {
	*h.trace = append(*h.trace, h.name+":created")
	return h.createdErr
}

func (h *recordingHandler) Stopped(ctx context.Context, rc *RunContext) error {
	*h.trace = append(*h.trace, h.name+":stopped")
	return h.stoppedErr
}

func (h *recordingHandler) Killed(ctx context.Context, rc *RunContext) error {
	*h.trace = append(*h.trace, h.name+":killed")
	return h.killedErr
}

func registryOf(handlers ...*recordingHandler) Registry {
	reg := make(Registry, len(handlers))
	for i, h := range handlers {
		h := h
		reg[i] = Entry{Name: h.name, Default: true, New: func(Env) Handler { return h }}
	}
	return reg
}

func testRunContext() *RunContext {
	return &RunContext{
		Task:   &types.Task{TaskID: "t1", RunID: 0, Payload: &types.Payload{Image: "alpine"}},
		Stream: logstream.New(),
		Logger: zerolog.Nop(),
	}
}

func TestPipelineGating(t *testing.T) {
	registry := Registry{
		{Name: "alwaysOn", Default: true, New: func(Env) Handler { return Base{} }},
		{Name: "alwaysOff", Default: false, New: func(Env) Handler { return Base{} }},
		{Name: "toggled", Default: true, New: func(Env) Handler { return Base{} }},
	}

	tests := []struct {
		name  string
		flags map[string]bool
		want  []string
	}{
		{"defaults apply when flags absent", nil, []string{"alwaysOn", "toggled"}},
		{"flag false overrides default true", map[string]bool{"toggled": false}, []string{"alwaysOn"}},
		{"flag true overrides default false", map[string]bool{"alwaysOff": true}, []string{"alwaysOn", "alwaysOff", "toggled"}},
		{"flag matching default is harmless", map[string]bool{"alwaysOn": true}, []string{"alwaysOn", "toggled"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(registry, tt.flags, Env{})
			assert.Equal(t, tt.want, p.Names())
		})
	}
}

func TestPipelineDispatchOrder(t *testing.T) {
	var trace []string
	first := &recordingHandler{name: "first", trace: &trace}
	second := &recordingHandler{name: "second", trace: &trace}

	p := NewPipeline(registryOf(first, second), nil, Env{})
	rc := testRunContext()
	ctx := context.Background()

	_, err := p.Link(ctx, rc)
	require.NoError(t, err)
	require.NoError(t, p.Created(ctx, rc))
	require.NoError(t, p.Stopped(ctx, rc))
	require.NoError(t, p.Killed(ctx, rc))

	assert.Equal(t, []string{
		"first:link", "second:link",
		"first:created", "second:created",
		"first:stopped", "second:stopped",
		"first:killed", "second:killed",
	}, trace)
}

func TestPipelineFirstErrorAborts(t *testing.T) {
	var trace []string
	first := &recordingHandler{name: "first", trace: &trace}
	second := &recordingHandler{name: "second", trace: &trace, createdErr: assert.AnError}
	third := &recordingHandler{name: "third", trace: &trace}

	p := NewPipeline(registryOf(first, second, third), nil, Env{})
	err := p.Created(context.Background(), testRunContext())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "second created hook")
	assert.Equal(t, []string{"first:created", "second:created"}, trace)
}

func TestPipelineLinkGathersContributions(t *testing.T) {
	var trace []string
	first := &recordingHandler{name: "first", trace: &trace, links: []types.ContainerLink{{Name: "c1", Alias: "db"}}}
	second := &recordingHandler{name: "second", trace: &trace}
	third := &recordingHandler{name: "third", trace: &trace, links: []types.ContainerLink{{Name: "c2", Alias: "cache"}}}

	p := NewPipeline(registryOf(first, second, third), nil, Env{})
	links, err := p.Link(context.Background(), testRunContext())

	require.NoError(t, err)
	assert.Equal(t, []types.ContainerLink{{Name: "c1", Alias: "db"}, {Name: "c2", Alias: "cache"}}, links)
}

func TestPipelineLinkErrorDropsEarlierLinks(t *testing.T) {
	var trace []string
	first := &recordingHandler{name: "first", trace: &trace, links: []types.ContainerLink{{Name: "c1", Alias: "db"}}}
	second := &recordingHandler{name: "second", trace: &trace, linkErr: assert.AnError}

	p := NewPipeline(registryOf(first, second), nil, Env{})
	links, err := p.Link(context.Background(), testRunContext())

	require.Error(t, err)
	assert.Nil(t, links)
}

func TestBuiltinRegistryOrder(t *testing.T) {
	p := NewPipeline(Builtin(), nil, Env{})
	assert.Equal(t, []string{"liveLog", "artifacts"}, p.Names())

	p = NewPipeline(Builtin(), map[string]bool{"authProxy": true}, Env{})
	assert.Equal(t, []string{"liveLog", "artifacts", "authProxy"}, p.Names())
}

func TestNewPipelineBuildsFreshHandlers(t *testing.T) {
	built := 0
	registry := Registry{{Name: "counted", Default: true, New: func(Env) Handler {
		built++
		return Base{}
	}}}

	NewPipeline(registry, nil, Env{})
	NewPipeline(registry, nil, Env{})

	assert.Equal(t, 2, built)
}
