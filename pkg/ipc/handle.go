package ipc

import (
	"fmt"
	"sync"

	"github.com/marmos91/paylink/pkg/framing"
)

// CallbackHandle is the daemon's capability for reaching back into one
// caller: delivering events and learning about the caller's death.
//
// The registry holds one per session; the IPC server provides the concrete
// implementation bound to the caller's socket.
type CallbackHandle interface {
	// Invoke delivers one event to the caller. Returns an error wrapping
	// ErrRemoteUnreachable when the caller's socket is gone.
	Invoke(ev Event) error

	// WatchForDeath registers fn to run once when the caller dies. A handle
	// that is already dead runs fn immediately.
	WatchForDeath(fn func())

	// Close releases the handle's transport.
	Close() error
}

// ConnHandle implements CallbackHandle over a framed connection. The server
// that owns the connection's read loop reports death via NotifyDeath when
// the socket drops.
type ConnHandle struct {
	conn *framing.Conn

	mu       sync.Mutex
	dead     bool
	watchers []func()
}

// NewConnHandle wraps an established framed connection.
func NewConnHandle(conn *framing.Conn) *ConnHandle {
	return &ConnHandle{conn: conn}
}

// Invoke encodes ev and writes it as one frame.
func (h *ConnHandle) Invoke(ev Event) error {
	h.mu.Lock()
	dead := h.dead
	h.mu.Unlock()
	if dead {
		return fmt.Errorf("%w: caller is dead", ErrRemoteUnreachable)
	}

	data, err := EncodePacket(&Packet{Kind: KindEvent, Event: ev})
	if err != nil {
		return err
	}
	if err := h.conn.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnreachable, err)
	}
	return nil
}

// Respond writes a response frame. Used by the IPC server, not the registry.
func (h *ConnHandle) Respond(resp Response) error {
	data, err := EncodePacket(&Packet{Kind: KindResponse, Response: resp})
	if err != nil {
		return err
	}
	if err := h.conn.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnreachable, err)
	}
	return nil
}

// WatchForDeath registers fn to fire once when the caller dies.
func (h *ConnHandle) WatchForDeath(fn func()) {
	h.mu.Lock()
	if h.dead {
		h.mu.Unlock()
		fn()
		return
	}
	h.watchers = append(h.watchers, fn)
	h.mu.Unlock()
}

// NotifyDeath marks the handle dead and fires the registered watchers
// exactly once. Safe to call more than once.
func (h *ConnHandle) NotifyDeath() {
	h.mu.Lock()
	if h.dead {
		h.mu.Unlock()
		return
	}
	h.dead = true
	watchers := h.watchers
	h.watchers = nil
	h.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// Close closes the underlying connection.
func (h *ConnHandle) Close() error {
	return h.conn.Close()
}

var _ CallbackHandle = (*ConnHandle)(nil)
