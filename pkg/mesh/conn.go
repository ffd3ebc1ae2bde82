package mesh

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"runtime"
)

// readChunkSize is how much we read from the socket per call while
// accumulating a frame.
const readChunkSize = 4096

// Conn is a one-shot messaging connection: a single Send paired with a
// single Receive, matching the mesh protocol's one-action-per-connection
// model. It is not safe for concurrent use.
type Conn struct {
	conn        net.Conn
	localToken  string
}

// NewConn wraps conn for frame exchange, stamping outgoing frames with
// localToken.
func NewConn(conn net.Conn, localToken string) *Conn {
	return &Conn{conn: conn, localToken: localToken}
}

// Send encodes and writes a single frame.
func (c *Conn) Send(action Action, payload interface{}) error {
	frame, err := EncodeFrame(c.localToken, action, payload)
	if err != nil {
		return err
	}
	for written := 0; written < len(frame); {
		n, err := c.conn.Write(frame[written:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransportBroken, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: zero-length write", ErrTransportBroken)
		}
		written += n
	}
	return nil
}

// Receive reads until a terminated frame has been accumulated and decodes
// it.
func (c *Conn) Receive() (Frame, error) {
	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if bytes.HasSuffix(buf.Bytes(), []byte(terminator)) {
			break
		}
		if err != nil {
			if isTemporary(err) {
				runtime.Gosched()
				continue
			}
			return Frame{}, fmt.Errorf("%w: %v", ErrTransportBroken, err)
		}
	}
	return DecodeFrame(buf.Bytes())
}

// Close half-closes then fully closes the underlying connection, swallowing
// any error: a failure to close cleanly carries no information the caller
// can act on.
func (c *Conn) Close() error {
	type halfCloser interface {
		CloseRead() error
		CloseWrite() error
	}
	if hc, ok := c.conn.(halfCloser); ok {
		_ = hc.CloseWrite()
		_ = hc.CloseRead()
	}
	_ = c.conn.Close()
	return nil
}

func isTemporary(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
