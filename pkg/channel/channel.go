// Package channel defines the contract between the session/connection
// management layer and the payment-channel protocol state machine.
//
// The protocol itself (message formats, signatures, contract semantics) is
// an external collaborator: this package only fixes the surface the link,
// session, and registry layers need — opaque binary messages in and out,
// payment increments, and close events with a typed reason vocabulary.
package channel

// Protocol is one payment-channel state machine instance.
//
// Implementations consume inbound wire messages via ReceiveMessage and emit
// outbound messages and lifecycle events through the Events handler they
// were constructed with. All methods may be called from multiple goroutines;
// implementations must serialize internally.
type Protocol interface {
	// ConnectionOpen tells the protocol its transport is ready. The protocol
	// responds by emitting its opening handshake via Events.SendToServer.
	ConnectionOpen()

	// ConnectionClosed tells the protocol its transport is gone. The channel
	// construct itself stays resumable; no settlement is implied.
	ConnectionClosed()

	// ReceiveMessage delivers one inbound wire message. A message that fails
	// to parse returns an error with CodeInvalidMessage; a value outside the
	// channel's negotiated range returns CodeValueOutOfRange. Neither is
	// fatal to the session.
	ReceiveMessage(msg []byte) error

	// IncrementPayment commits up to amount to the counterparty and returns
	// the amount actually applied, which may be smaller than requested when
	// the remainder would leave the channel unsettleable. Returns
	// CodeValueOutOfRange when the channel cannot cover any of the request,
	// and CodeInvalidState when the channel is not in a spendable state.
	IncrementPayment(amount int64) (int64, error)

	// Close begins a negotiated close, releasing locked funds back to their
	// owner. Returns CodeAlreadyClosed if a close already happened; callers
	// treat that as benign.
	Close() error
}

// Events receives the protocol's outbound traffic and lifecycle signals.
// One Events handler is bound to each Protocol instance at construction.
type Events interface {
	// SendToServer carries an outbound wire message toward the counterparty.
	SendToServer(msg []byte)

	// ChannelOpen signals that the channel finished opening. contractID
	// identifies the underlying channel contract and is stable across
	// reconnects.
	ChannelOpen(contractID []byte)

	// DestroyConnection signals that the channel is finished, with the
	// reason the teardown happened. After this no further events fire.
	DestroyConnection(reason CloseReason)
}

// Factory builds a Protocol bound to a host identifier and a spend cap.
// The registry uses it to create one instance per open session, capped at
// the calling tenant's remaining quota.
type Factory func(hostID string, maxValue int64, events Events) Protocol
