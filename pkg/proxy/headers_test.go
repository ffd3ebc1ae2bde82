package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripHopByHop(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "keep-alive")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Content-Type", "text/plain")

	out := stripHopByHop(h)
	require.Empty(t, out.Get("Connection"))
	require.Empty(t, out.Get("Transfer-Encoding"))
	require.Equal(t, "text/plain", out.Get("Content-Type"))
}
