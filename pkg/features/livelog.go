package features

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/indygreg/docker-worker/pkg/types"
)

// transcriptName is the run transcript file under the run directory
const transcriptName = "live.log"

// liveLog persists the run transcript to disk. It attaches a file
// consumer to the log stream before the stream is released, so the held
// header and everything after it land in the file in delivery order.
// The stream closes the file when the run's transcript ends.
type liveLog struct {
	Base
	path string
}

func (l *liveLog) Created(ctx context.Context, rc *RunContext) error {
	path := filepath.Join(rc.RunDir, transcriptName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript file: %w", err)
	}
	rc.Stream.Attach(f)
	l.path = path
	rc.Logger.Debug().Str("path", path).Msg("Transcript file attached")
	return nil
}

func (l *liveLog) Stopped(ctx context.Context, rc *RunContext) error {
	if l.path == "" {
		return nil
	}
	rc.Artifacts = append(rc.Artifacts, types.ArtifactRecord{
		Name: "public/logs/live.log",
		Type: types.ArtifactTypeFile,
		Path: l.path,
	})
	return nil
}
