// Package ipc defines the process-boundary protocol between channel callers
// and the paylink daemon.
//
// Each caller holds one framed socket to the daemon. Requests flow caller to
// daemon and get exactly one response each; events flow daemon to caller at
// any time, unsolicited. Message bodies are XDR-encoded; frames use the
// 4-byte length prefix from pkg/framing. The socket doubles as the liveness
// signal — when it drops, the daemon treats the caller as dead.
package ipc

import (
	"bytes"
	"errors"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// ErrRemoteUnreachable reports that the peer's socket is gone.
var ErrRemoteUnreachable = errors.New("ipc: remote unreachable")

// Request operations, caller to daemon.
const (
	OpOpenSession int32 = iota + 1
	OpPay
	OpClose
	OpMessage
)

// Response statuses. StatusOK aside, these mirror the channel error codes
// so the caller can reconstruct a typed error.
const (
	StatusOK int32 = iota
	StatusInvalidState
	StatusInvalidRequest
	StatusNoSuchChannel
	StatusNotSpendable
	StatusInsufficientValue
	StatusInternal
)

// Event types, daemon to caller.
const (
	EvMessage int32 = iota + 1
	EvChannelOpen
	EvDestroy
)

// Packet kinds on the daemon-to-caller direction.
const (
	KindResponse int32 = iota + 1
	KindEvent
)

// Request is one caller-to-daemon invocation.
type Request struct {
	// Op selects the operation.
	Op int32

	// Caller is the caller's claimed identity. The server pins it on first
	// use; later requests on the same connection must match.
	Caller string

	// Token identifies the session for Pay, Close, and Message.
	Token string

	// HostID identifies the counterparty for OpenSession.
	HostID string

	// Amount is the requested payment for Pay.
	Amount int64

	// CounterpartyClose asks Close to run a negotiated close first.
	CounterpartyClose bool

	// Payload carries protocol bytes for Message.
	Payload []byte
}

// Response answers one Request.
type Response struct {
	Status int32

	// Token is the fresh session token for OpenSession.
	Token string

	// Applied is the actually-applied amount for Pay.
	Applied int64

	// Detail is a human-readable error description when Status != StatusOK.
	Detail string
}

// Event is one unsolicited daemon-to-caller notification.
type Event struct {
	Type  int32
	Token string

	// Payload carries protocol bytes for EvMessage and the contract
	// identifier for EvChannelOpen.
	Payload []byte

	// Reason is the close reason ordinal for EvDestroy.
	Reason int32
}

// Packet is the daemon-to-caller frame body: a response or an event.
type Packet struct {
	Kind     int32
	Response Response
	Event    Event
}

// EncodeRequest serializes a Request for the wire.
func EncodeRequest(req *Request) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, req); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRequest parses a Request from a frame body.
func DecodeRequest(data []byte) (*Request, error) {
	req := &Request{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return req, nil
}

// EncodePacket serializes a Packet for the wire.
func EncodePacket(pkt *Packet) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, pkt); err != nil {
		return nil, fmt.Errorf("failed to encode packet: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePacket parses a Packet from a frame body.
func DecodePacket(data []byte) (*Packet, error) {
	pkt := &Packet{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), pkt); err != nil {
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}
	return pkt, nil
}
