package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indygreg/docker-worker/pkg/types"
)

func TestNewContainerSpec(t *testing.T) {
	task := &types.Task{
		TaskID: "abc123",
		RunID:  0,
		Payload: &types.Payload{
			Image:   "docker.io/library/alpine:latest",
			Command: []string{"sh", "-c", "true"},
			Env:     map[string]string{"FOO": "bar"},
		},
	}
	links := []types.ContainerLink{
		{Name: "run-db-1", Alias: "db", Address: "10.0.0.5"},
	}

	spec := NewContainerSpec(task, links, nil)

	assert.True(t, strings.HasPrefix(spec.ID, "run-"))
	assert.Equal(t, "docker.io/library/alpine:latest", spec.Image)
	assert.Equal(t, []string{"sh", "-c", "true"}, spec.Command)
	assert.Equal(t, "bar", spec.Env["FOO"])
	assert.Equal(t, "abc123", spec.Env["TASK_ID"])
	assert.Equal(t, "0", spec.Env["RUN_ID"])
	assert.Equal(t, "run-db-1", spec.Env["LINK_DB_NAME"])
	assert.Equal(t, links, spec.Links)
}

func TestNewContainerSpecInjectedEnvWins(t *testing.T) {
	task := &types.Task{
		TaskID: "real-task",
		RunID:  2,
		Payload: &types.Payload{
			Image: "alpine",
			Env:   map[string]string{"TASK_ID": "spoofed", "RUN_ID": "99"},
		},
	}

	spec := NewContainerSpec(task, nil, nil)

	assert.Equal(t, "real-task", spec.Env["TASK_ID"])
	assert.Equal(t, "2", spec.Env["RUN_ID"])
}

func TestNewContainerSpecNilPayload(t *testing.T) {
	task := &types.Task{TaskID: "t1", RunID: 1}

	spec := NewContainerSpec(task, nil, nil)

	assert.Empty(t, spec.Image)
	assert.Equal(t, "t1", spec.Env["TASK_ID"])
	assert.Equal(t, "1", spec.Env["RUN_ID"])
}

func TestEnvSliceSorted(t *testing.T) {
	spec := ContainerSpec{Env: map[string]string{
		"ZEBRA": "z",
		"ALPHA": "a",
		"MID":   "m",
	}}

	assert.Equal(t, []string{"ALPHA=a", "MID=m", "ZEBRA=z"}, spec.EnvSlice())
}

func TestLinkEnvName(t *testing.T) {
	tests := []struct {
		alias string
		want  string
	}{
		{"db", "LINK_DB_NAME"},
		{"auth-proxy", "LINK_AUTH_PROXY_NAME"},
		{"cache.v2", "LINK_CACHE_V2_NAME"},
		{"redis6", "LINK_REDIS6_NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			assert.Equal(t, tt.want, LinkEnvName(tt.alias))
		})
	}
}

func TestHostsMount(t *testing.T) {
	dir := t.TempDir()
	links := []types.ContainerLink{
		{Name: "run-db-1", Alias: "db", Address: "10.0.0.5"},
		{Name: "run-proxy-1", Alias: "proxy"},
		{Name: "run-cache-1", Alias: "cache", Address: "10.0.0.9"},
	}

	mount, err := HostsMount(dir, links)
	require.NoError(t, err)
	require.NotNil(t, mount)

	assert.Equal(t, "/etc/hosts", mount.Destination)
	assert.Equal(t, "bind", mount.Type)
	assert.Equal(t, []string{"ro", "bind"}, mount.Options)
	assert.Equal(t, filepath.Join(dir, "hosts"), mount.Source)

	content, err := os.ReadFile(mount.Source)
	require.NoError(t, err)
	assert.Contains(t, string(content), "127.0.0.1\tlocalhost")
	assert.Contains(t, string(content), "10.0.0.5\tdb")
	assert.Contains(t, string(content), "10.0.0.9\tcache")
	// Address-less links resolve through env vars only
	assert.NotContains(t, string(content), "proxy")
}

func TestHostsMountNoAddressedLinks(t *testing.T) {
	links := []types.ContainerLink{
		{Name: "run-proxy-1", Alias: "proxy"},
	}

	mount, err := HostsMount(t.TempDir(), links)
	require.NoError(t, err)
	assert.Nil(t, mount)
}

func TestHostsMountNoLinks(t *testing.T) {
	mount, err := HostsMount(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Nil(t, mount)
}
