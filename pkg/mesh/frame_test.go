package mesh

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		payload interface{}
	}{
		{"nil", nil},
		{"list", []interface{}{"a", 1, true}},
		{"map", map[string]interface{}{"host": "10.0.0.1", "port": 7300}},
		{"string", "hello mesh"},
		{"large string", strings.Repeat("x", 1<<20)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire, err := EncodeFrame("tok-abc", ActionSaveCacheEntry, tc.payload)
			require.NoError(t, err)
			require.True(t, strings.HasSuffix(string(wire), terminator))

			frame, err := DecodeFrame(wire)
			require.NoError(t, err)
			require.Equal(t, "tok-abc", frame.SenderToken)
			require.Equal(t, ActionSaveCacheEntry, frame.Action)

			var got interface{}
			require.NoError(t, frame.Decode(&got))
			require.Equal(t, tc.payload, got)
		})
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	_, err := DecodeFrame([]byte("not-base64-and-no-terminator"))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeFrameWrongFieldCount(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("only-one-field"))
	wire := append([]byte(encoded), terminator...)
	_, err := DecodeFrame(wire)
	require.ErrorIs(t, err, ErrMalformedFrame)
}
