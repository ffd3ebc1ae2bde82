package mesh

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// separator joins the three fields of a frame before it is base64-encoded.
// terminator marks the end of a frame on the wire so a reader knows when to
// stop accumulating bytes.
const (
	separator  = "&&"
	terminator = ";;"
)

// ErrMalformedFrame is returned when a received frame cannot be decoded into
// exactly the three fields the protocol requires.
var ErrMalformedFrame = errors.New("mesh: malformed frame")

// ErrTransportBroken is returned when the underlying connection fails while
// sending or receiving a frame.
var ErrTransportBroken = errors.New("mesh: transport broken")

// Frame is a single message exchanged over a mesh connection: the sender's
// token, the requested action, and an opaque YAML-encoded payload that the
// handler for that action decodes on its own terms.
type Frame struct {
	SenderToken string
	Action      Action
	RawPayload  []byte
}

// Decode unmarshals the frame's payload into v.
func (f Frame) Decode(v interface{}) error {
	if len(f.RawPayload) == 0 || string(f.RawPayload) == "null\n" {
		return nil
	}
	return yaml.Unmarshal(f.RawPayload, v)
}

// EncodeFrame serializes token, action and payload into wire bytes,
// terminator included.
func EncodeFrame(token string, action Action, payload interface{}) ([]byte, error) {
	raw, err := yaml.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mesh: encode payload: %w", err)
	}
	joined := strings.Join([]string{token, string(action), string(raw)}, separator)
	encoded := base64.StdEncoding.EncodeToString([]byte(joined))
	return append([]byte(encoded), terminator...), nil
}

// DecodeFrame parses wire bytes, terminator included, back into a Frame.
func DecodeFrame(buf []byte) (Frame, error) {
	raw := string(buf)
	if !strings.HasSuffix(raw, terminator) {
		return Frame{}, fmt.Errorf("%w: missing terminator", ErrMalformedFrame)
	}
	raw = strings.TrimSuffix(raw, terminator)
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	parts := strings.Split(string(decoded), separator)
	if len(parts) != 3 {
		return Frame{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedFrame, len(parts))
	}
	return Frame{
		SenderToken: parts[0],
		Action:      Action(parts[1]),
		RawPayload:  []byte(parts[2]),
	}, nil
}
