package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(Config{
		Host:          "127.0.0.1",
		AdvertiseHost: "127.0.0.1",
		BasePort:      0,
		PortRange:     1,
		AcceptTimeout: 50 * time.Millisecond,
		DialTimeout:   time.Second,
	}, zap.NewNop())
	require.NoError(t, s.Listen())
	return s
}

func TestServerTokenIsStable(t *testing.T) {
	s := newTestServer(t)
	first := s.Token()
	second := s.Token()
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestServerNeverAddsSelfToMembership(t *testing.T) {
	a := newTestServer(t)
	ctx := context.Background()
	go func() { _ = a.Serve(ctx) }()
	defer a.Stop()

	b := newTestServer(t)
	go func() { _ = b.Serve(ctx) }()
	defer b.Stop()

	require.NoError(t, b.DiscoverMesh(ctx, a.Address()))

	members := b.Members()
	_, present := members[b.Token()]
	require.False(t, present)

	members = a.Members()
	_, present = members[a.Token()]
	require.False(t, present)
}

func TestDiscoverMeshConverges(t *testing.T) {
	ctx := context.Background()

	a := newTestServer(t)
	go func() { _ = a.Serve(ctx) }()
	defer a.Stop()

	b := newTestServer(t)
	go func() { _ = b.Serve(ctx) }()
	defer b.Stop()

	c := newTestServer(t)
	go func() { _ = c.Serve(ctx) }()
	defer c.Stop()

	require.NoError(t, b.DiscoverMesh(ctx, a.Address()))
	require.NoError(t, c.DiscoverMesh(ctx, a.Address()))

	require.Eventually(t, func() bool {
		return len(c.Members()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	members := c.Members()
	_, sawB := members[b.Token()]
	require.True(t, sawB)
}

func TestServerStopIsBounded(t *testing.T) {
	s := newTestServer(t)
	done := make(chan struct{})
	go func() {
		_ = s.Serve(context.Background())
		close(done)
	}()

	start := time.Now()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Stop")
	}
	require.Less(t, time.Since(start), time.Second)
}
