// Package framing maps a byte stream to a sequence of discrete messages
// and back.
//
// Every message on the wire is a 4-byte big-endian length prefix followed by
// that many payload bytes. The payload is an opaque blob produced and
// consumed by the channel protocol layer; this package is purely a codec
// over a live stream and carries no retry logic.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// MaxMessageSize is the maximum allowed payload length in bytes.
// The cap is protocol-imposed: message lengths must fit in a signed 16-bit
// value on the remote side, so anything above 32767 is a framing violation.
const MaxMessageSize = 32767

// headerSize is the size of the length prefix.
const headerSize = 4

// FramingError reports a length prefix or payload outside the allowed
// [0, MaxMessageSize] range. It is fatal to the connection it occurred on.
type FramingError struct {
	Length int64
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing: message length %d outside [0, %d]", e.Length, MaxMessageSize)
}

// TruncatedStreamError reports that the peer closed the stream before a
// complete message arrived. Treated as a disconnect by callers.
type TruncatedStreamError struct {
	Expected int
	Got      int
}

func (e *TruncatedStreamError) Error() string {
	return fmt.Sprintf("framing: stream ended after %d of %d message bytes", e.Got, e.Expected)
}

// WriteMessage writes a 4-byte length prefix followed by the payload.
// Returns a FramingError if the payload exceeds MaxMessageSize.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return &FramingError{Length: int64(len(payload))}
	}

	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(payload)))
	copy(frame[headerSize:], payload)

	// A single Write keeps prefix and payload contiguous on the wire.
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage blocks until a complete length-prefixed message is available
// or the stream ends.
//
// A clean stream end on a message boundary returns io.EOF. A stream that
// ends mid-header or mid-payload returns a TruncatedStreamError. A declared
// length that is negative (high bit set) or exceeds MaxMessageSize returns
// a FramingError.
func ReadMessage(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, &TruncatedStreamError{Expected: headerSize, Got: n}
		}
		return nil, fmt.Errorf("read message header: %w", err)
	}

	declared := binary.BigEndian.Uint32(header[:])
	// Bit 31 set means the peer sent a negative signed length.
	if declared&0x80000000 != 0 {
		return nil, &FramingError{Length: int64(int32(declared))}
	}
	if declared > MaxMessageSize {
		return nil, &FramingError{Length: int64(declared)}
	}

	payload := make([]byte, declared)
	n, err = io.ReadFull(r, payload)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, &TruncatedStreamError{Expected: int(declared), Got: n}
		}
		return nil, fmt.Errorf("read message payload: %w", err)
	}
	return payload, nil
}

// Conn pairs both directions of the framed codec over a single net.Conn.
// Writes are serialized so concurrent senders cannot interleave frames;
// reads are expected from a single receive loop and are not locked.
type Conn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// NewConn wraps an established connection with framed message I/O.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// WriteMessage sends one framed message, serializing concurrent writers.
func (c *Conn) WriteMessage(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.conn, payload)
}

// ReadMessage receives the next framed message.
func (c *Conn) ReadMessage() ([]byte, error) {
	return ReadMessage(c.conn)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address of the underlying connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
