package config

import (
	"fmt"
	"time"
)

// Mesh holds the gossip mesh server's settings.
type Mesh struct {
	// Host is the interface the mesh server binds to.
	Host string `yaml:"Host"`
	// AdvertiseHost is the host peers should dial back to reach this node.
	// Defaults to Host when empty.
	AdvertiseHost string `yaml:"AdvertiseHost"`
	// BasePort is the first port the mesh server attempts to bind.
	BasePort int `yaml:"BasePort"`
	// PortRange bounds how many ports past BasePort are attempted before
	// binding fails.
	PortRange int `yaml:"PortRange"`
	// Discover is the address of a seed peer to join the mesh through. If
	// empty, this node starts its own mesh.
	Discover string `yaml:"Discover"`
	// AcceptTimeout bounds how long the accept loop blocks between checks
	// for shutdown.
	AcceptTimeout time.Duration `yaml:"AcceptTimeout"`
	// DialTimeout bounds how long a connection to a peer may take.
	DialTimeout time.Duration `yaml:"DialTimeout"`
}

// Validate returns an error if the Mesh configuration is not valid.
func (m Mesh) Validate() error {
	if m.BasePort <= 0 || m.BasePort > 65535 {
		return fmt.Errorf("invalid Mesh.BasePort: %d", m.BasePort)
	}
	return nil
}
