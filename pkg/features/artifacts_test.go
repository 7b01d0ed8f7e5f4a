package features

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indygreg/docker-worker/pkg/types"
)

func TestArtifactsLinkMountsScratchDir(t *testing.T) {
	rc := testRunContext()
	rc.RunDir = t.TempDir()

	a := &artifacts{}
	links, err := a.Link(context.Background(), rc)
	require.NoError(t, err)
	assert.Nil(t, links)

	require.Len(t, rc.Mounts, 1)
	mount := rc.Mounts[0]
	assert.Equal(t, containerArtifactRoot, mount.Destination)
	assert.Equal(t, filepath.Join(rc.RunDir, "artifacts"), mount.Source)
	assert.Equal(t, "bind", mount.Type)
	assert.Equal(t, []string{"rw", "bind"}, mount.Options)
	assert.DirExists(t, mount.Source)
}

func TestArtifactsStoppedCollectsDeclarations(t *testing.T) {
	rc := testRunContext()
	rc.RunDir = t.TempDir()
	rc.Tag = "[docker-worker] "
	rc.Task.Payload.Artifacts = map[string]types.Artifact{
		"public/out.txt":  {Type: types.ArtifactTypeFile, Path: "/artifacts/out.txt"},
		"public/logs":     {Type: types.ArtifactTypeDirectory, Path: "/artifacts/logs"},
		"public/gone.txt": {Type: types.ArtifactTypeFile, Path: "/artifacts/gone.txt"},
		"public/bad":      {Type: types.ArtifactTypeDirectory, Path: "/artifacts/bad"},
		"host/secret":     {Type: types.ArtifactTypeFile, Path: "/etc/passwd"},
	}
	ctx := context.Background()

	a := &artifacts{}
	_, err := a.Link(ctx, rc)
	require.NoError(t, err)

	scratch := filepath.Join(rc.RunDir, "artifacts")
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "out.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "logs"), 0755))
	// Declared a directory, the run produced a file
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "bad"), []byte("x"), 0644))

	transcript := &bytes.Buffer{}
	rc.Stream.Attach(transcript)
	rc.Stream.Release()

	require.NoError(t, a.Stopped(ctx, rc))
	require.NoError(t, rc.Stream.End())

	// Records are appended in sorted declaration-name order
	require.Len(t, rc.Artifacts, 5)
	byName := map[string]types.ArtifactRecord{}
	var names []string
	for _, record := range rc.Artifacts {
		byName[record.Name] = record
		names = append(names, record.Name)
	}
	assert.Equal(t, []string{"host/secret", "public/bad", "public/gone.txt", "public/logs", "public/out.txt"}, names)

	assert.False(t, byName["public/out.txt"].Missing)
	assert.Equal(t, filepath.Join(scratch, "out.txt"), byName["public/out.txt"].Path)
	assert.False(t, byName["public/logs"].Missing)
	assert.True(t, byName["public/gone.txt"].Missing)
	assert.True(t, byName["public/bad"].Missing)
	assert.True(t, byName["host/secret"].Missing)

	out := transcript.String()
	assert.Contains(t, out, `[docker-worker] Artifact "public/gone.txt" not found at path "/artifacts/gone.txt"`)
	assert.Contains(t, out, `[docker-worker] Artifact "public/bad" expected a directory at path "/artifacts/bad"`)
	assert.Contains(t, out, `[docker-worker] Artifact "host/secret" path "/etc/passwd" is outside /artifacts and cannot be collected`)
	assert.NotContains(t, out, "out.txt not found")
}

func TestArtifactsStoppedNoDeclarations(t *testing.T) {
	rc := testRunContext()
	rc.RunDir = t.TempDir()

	a := &artifacts{}
	_, err := a.Link(context.Background(), rc)
	require.NoError(t, err)
	require.NoError(t, a.Stopped(context.Background(), rc))
	assert.Empty(t, rc.Artifacts)
}

func TestArtifactsHostPathRejectsTraversal(t *testing.T) {
	a := &artifacts{scratchDir: "/data/run1/artifacts"}

	tests := []struct {
		path string
		ok   bool
	}{
		{"/artifacts", true},
		{"/artifacts/out.txt", true},
		{"/artifacts/nested/deep.txt", true},
		{"/artifacts/../etc/passwd", false},
		{"/artifactsevil/x", false},
		{"/etc/passwd", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, ok := a.hostPath(tt.path)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
