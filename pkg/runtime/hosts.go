package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/indygreg/docker-worker/pkg/types"
)

// hostsPreamble keeps loopback resolution intact when the generated
// file shadows the image's /etc/hosts
const hostsPreamble = "127.0.0.1\tlocalhost\n::1\tlocalhost ip6-localhost ip6-loopback\n"

// HostsMount renders a hosts file for the links that carry an address
// and returns a read-only bind mount placing it over /etc/hosts. Links
// without an address resolve through their environment variable only;
// when no link has an address there is nothing to mount and HostsMount
// returns nil.
func HostsMount(dir string, links []types.ContainerLink) (*specs.Mount, error) {
	addressed := make([]types.ContainerLink, 0, len(links))
	for _, link := range links {
		if link.Address != "" {
			addressed = append(addressed, link)
		}
	}
	if len(addressed) == 0 {
		return nil, nil
	}

	content := hostsPreamble
	for _, link := range addressed {
		content += fmt.Sprintf("%s\t%s\n", link.Address, link.Alias)
	}

	path := filepath.Join(dir, "hosts")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write hosts file: %w", err)
	}

	return &specs.Mount{
		Source:      path,
		Destination: "/etc/hosts",
		Type:        "bind",
		Options:     []string{"ro", "bind"},
	}, nil
}
