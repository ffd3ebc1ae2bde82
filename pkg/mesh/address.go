package mesh

import (
	"fmt"
	"net"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Address is a peer's dialable location. It marshals to and from the
// two-element sequence form used on the wire ([host, port]) rather than a
// mapping, matching how the mesh protocol has always described a node.
type Address struct {
	Host string
	Port int
}

// ParseAddress splits a "host:port" string into an Address.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("mesh: invalid address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, fmt.Errorf("mesh: invalid port in address %q: %w", s, err)
	}
	return Address{Host: host, Port: port}, nil
}

// String renders the address in dial-ready "host:port" form.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// MarshalYAML renders the address as the [host, port] sequence.
func (a Address) MarshalYAML() (interface{}, error) {
	return []interface{}{a.Host, a.Port}, nil
}

// UnmarshalYAML parses the address back out of a [host, port] sequence.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	var parts []interface{}
	if err := value.Decode(&parts); err != nil {
		return fmt.Errorf("mesh: address is not a sequence: %w", err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("mesh: address sequence has %d elements, want 2", len(parts))
	}
	host, ok := parts[0].(string)
	if !ok {
		return fmt.Errorf("mesh: address host is not a string")
	}
	port, ok := toInt(parts[1])
	if !ok {
		return fmt.Errorf("mesh: address port is not an integer")
	}
	a.Host = host
	a.Port = port
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// NodeList is the reply payload for ActionGetNodeList: every known peer's
// token mapped to its Address.
type NodeList map[string]Address
