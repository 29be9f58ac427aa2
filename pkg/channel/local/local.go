// Package local implements an in-process payment-channel protocol.
//
// It keeps the full channel state machine in memory: no counterparty, no
// signatures, just the open/spend/close lifecycle with the spend cap
// enforced. It backs single-node deployments and is the reference
// implementation for the Protocol contract.
package local

import (
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/paylink/pkg/channel"
)

// Protocol is one in-process channel instance.
type Protocol struct {
	mu       sync.Mutex
	events   channel.Events
	maxValue int64
	spent    int64
	open     bool
	closed   bool
}

// Factory returns a channel.Factory producing local protocol instances.
func Factory() channel.Factory {
	return func(hostID string, maxValue int64, events channel.Events) channel.Protocol {
		return &Protocol{events: events, maxValue: maxValue}
	}
}

// ConnectionOpen mints a contract identifier and announces the channel open.
func (p *Protocol) ConnectionOpen() {
	p.mu.Lock()
	if p.closed || p.open {
		p.mu.Unlock()
		return
	}
	p.open = true
	p.mu.Unlock()

	id := uuid.New()
	p.events.ChannelOpen(id[:])
}

// ConnectionClosed marks the transport gone. The channel stays resumable.
func (p *Protocol) ConnectionClosed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
}

// ReceiveMessage relays the counterparty's message back out unchanged.
// A local channel has no remote peer, so inbound traffic is treated as
// application payload and echoed to the caller's event stream.
func (p *Protocol) ReceiveMessage(msg []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return channel.NewInvalidStateError("receive", "closed")
	}
	if len(msg) == 0 {
		p.mu.Unlock()
		return channel.NewInvalidMessageError("empty message")
	}
	p.mu.Unlock()

	p.events.SendToServer(msg)
	return nil
}

// IncrementPayment commits up to amount, clamped to the remaining capacity.
func (p *Protocol) IncrementPayment(amount int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, channel.NewInvalidStateError("increment", "closed")
	}
	if amount < 0 {
		return 0, channel.NewValueOutOfRangeError("negative amount")
	}

	remaining := p.maxValue - p.spent
	if remaining <= 0 {
		return 0, channel.NewInvalidStateError("increment", "exhausted")
	}
	applied := amount
	if applied > remaining {
		applied = remaining
	}
	p.spent += applied
	return applied, nil
}

// Close settles the channel. A second close is reported as already closed.
func (p *Protocol) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return channel.NewAlreadyClosedError()
	}
	p.closed = true
	p.open = false
	return nil
}

// Spent reports the cumulative amount committed on this channel.
func (p *Protocol) Spent() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spent
}
