package features

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/indygreg/docker-worker/pkg/types"
)

// containerArtifactRoot is where the scratch directory appears inside
// the run container
const containerArtifactRoot = "/artifacts"

// artifacts stages a per-run scratch directory into the container at
// /artifacts and, once the container stopped, walks the payload's
// declared artifacts to record what the run actually produced.
type artifacts struct {
	Base
	scratchDir string
}

func (a *artifacts) Link(ctx context.Context, rc *RunContext) ([]types.ContainerLink, error) {
	dir := filepath.Join(rc.RunDir, "artifacts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact scratch dir: %w", err)
	}
	a.scratchDir = dir
	rc.Mounts = append(rc.Mounts, specs.Mount{
		Source:      dir,
		Destination: containerArtifactRoot,
		Type:        "bind",
		Options:     []string{"rw", "bind"},
	})
	return nil, nil
}

func (a *artifacts) Stopped(ctx context.Context, rc *RunContext) error {
	if rc.Task.Payload == nil || len(rc.Task.Payload.Artifacts) == 0 {
		return nil
	}

	names := make([]string, 0, len(rc.Task.Payload.Artifacts))
	for name := range rc.Task.Payload.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl := rc.Task.Payload.Artifacts[name]
		record := types.ArtifactRecord{
			Name:    name,
			Type:    decl.Type,
			Path:    decl.Path,
			Expires: decl.Expires,
		}

		hostPath, ok := a.hostPath(decl.Path)
		if !ok {
			record.Missing = true
			rc.Logf("Artifact \"%s\" path \"%s\" is outside %s and cannot be collected", name, decl.Path, containerArtifactRoot)
		} else if missing := checkArtifact(hostPath, decl.Path, decl.Type); missing != "" {
			record.Missing = true
			rc.Logf("Artifact \"%s\" %s", name, missing)
		} else {
			record.Path = hostPath
			rc.Logger.Debug().Str("artifact", name).Str("path", hostPath).Msg("Artifact collected")
		}

		rc.Artifacts = append(rc.Artifacts, record)
	}
	return nil
}

// hostPath maps an in-container artifact path to the scratch directory.
// Paths that do not resolve under the scratch directory, including
// traversal attempts, are rejected.
func (a *artifacts) hostPath(containerPath string) (string, bool) {
	if containerPath == containerArtifactRoot {
		return a.scratchDir, true
	}
	rel, found := strings.CutPrefix(containerPath, containerArtifactRoot+"/")
	if !found {
		return "", false
	}
	mapped := filepath.Join(a.scratchDir, rel)
	if mapped != a.scratchDir && !strings.HasPrefix(mapped, a.scratchDir+string(filepath.Separator)) {
		return "", false
	}
	return mapped, true
}

// checkArtifact returns an empty string when the host path holds what
// the declaration promised, or the transcript message when it does not.
// Messages cite the declared in-container path, never the host mapping.
func checkArtifact(hostPath, declaredPath string, declared types.ArtifactType) string {
	info, err := os.Stat(hostPath)
	if err != nil {
		return fmt.Sprintf("not found at path \"%s\"", declaredPath)
	}
	if declared == types.ArtifactTypeDirectory && !info.IsDir() {
		return fmt.Sprintf("expected a directory at path \"%s\"", declaredPath)
	}
	if declared == types.ArtifactTypeFile && info.IsDir() {
		return fmt.Sprintf("expected a file at path \"%s\"", declaredPath)
	}
	return ""
}
