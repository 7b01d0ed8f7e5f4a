package features

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/indygreg/docker-worker/pkg/runtime"
	"github.com/indygreg/docker-worker/pkg/types"
)

// proxyAlias is the hostname the run container reaches the proxy under
const proxyAlias = "auth-proxy"

// authProxy runs a companion proxy container for the lifetime of the
// run. The run container finds it through its link; the killed hook
// tears it down after the run container itself is gone.
type authProxy struct {
	Base
	engine runtime.Engine
	image  string
	logger zerolog.Logger

	proxy runtime.Container
}

func (a *authProxy) Link(ctx context.Context, rc *RunContext) ([]types.ContainerLink, error) {
	if a.image == "" {
		return nil, fmt.Errorf("auth proxy enabled but no proxy image configured")
	}

	spec := runtime.ContainerSpec{
		ID:    "proxy-" + uuid.New().String(),
		Image: a.image,
		Env: map[string]string{
			"TASK_ID": rc.Task.TaskID,
			"RUN_ID":  strconv.Itoa(rc.Task.RunID),
		},
	}

	proxy, err := a.engine.Prepare(ctx, spec, io.Discard)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare auth proxy: %w", err)
	}
	if err := proxy.Start(ctx); err != nil {
		_ = proxy.Remove(ctx)
		return nil, fmt.Errorf("failed to start auth proxy: %w", err)
	}

	a.proxy = proxy
	a.logger.Info().Str("container_id", proxy.ID()).Msg("Auth proxy started")
	return []types.ContainerLink{{Name: proxy.ID(), Alias: proxyAlias}}, nil
}

func (a *authProxy) Killed(ctx context.Context, rc *RunContext) error {
	if a.proxy == nil {
		return nil
	}
	if err := a.proxy.Kill(ctx); err != nil {
		a.logger.Warn().Err(err).Str("container_id", a.proxy.ID()).Msg("Failed to kill auth proxy")
	}
	if err := a.proxy.Remove(ctx); err != nil {
		return fmt.Errorf("failed to remove auth proxy: %w", err)
	}
	a.logger.Debug().Str("container_id", a.proxy.ID()).Msg("Auth proxy removed")
	a.proxy = nil
	return nil
}
