package mesh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrPeerUnreachable is returned when a peer cannot be dialed.
var ErrPeerUnreachable = errors.New("mesh: peer unreachable")

// LocalIdentity is the information a Node needs about the local server to
// stamp and register outbound connections: every frame a Node sends carries
// the local token, not the remote peer's.
type LocalIdentity interface {
	Token() string
	Address() string
}

// Node is a single remote peer: its dial address and, once known, its
// token.
type Node struct {
	Address string
	Token   string
}

// SendMessage dials the node, sends a single frame, and returns its reply.
// Each call opens and closes its own connection, matching the protocol's
// one-shot-per-connection model.
func (n *Node) SendMessage(ctx context.Context, local LocalIdentity, action Action, payload interface{}, dialTimeout time.Duration) (Frame, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.Address)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}
	c := NewConn(conn, local.Token())
	defer c.Close()

	if err := c.Send(action, payload); err != nil {
		return Frame{}, err
	}
	return c.Receive()
}

// register performs the RegisterNewServer handshake with the peer,
// announcing the local address, and sets n.Token from the reply's sender
// token (replacing any token already held).
func (n *Node) register(ctx context.Context, local LocalIdentity, dialTimeout time.Duration) error {
	addr, err := ParseAddress(local.Address())
	if err != nil {
		return fmt.Errorf("mesh: local address: %w", err)
	}
	frame, err := n.SendMessage(ctx, local, ActionRegisterNewServer, addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("mesh: register with %s: %w", n.Address, err)
	}
	if frame.SenderToken == "" {
		return fmt.Errorf("mesh: register with %s: peer returned no token", n.Address)
	}
	n.Token = frame.SenderToken
	return nil
}
