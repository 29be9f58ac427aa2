// Package link maintains one logical channel to one remote endpoint over an
// unreliable transport.
//
// A Link presents an "always trying to be connected" surface: writes that
// fail are queued and replayed over a fresh socket, transparently to the
// caller. The reconnect policy is deliberately one-shot — a failed connect
// attempt marks the link as permanently failed and the owning session must
// explicitly reopen. Callers relying on retry must re-invoke; the link never
// retries on its own.
package link

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/framing"
	"github.com/marmos91/paylink/pkg/metrics"
)

// State is the connection state of a Link.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned by Send after Close has been called.
	ErrClosed = errors.New("link: closed")

	// ErrPermanentlyFailed is returned by Send once the link has given up
	// connecting. The owning session must treat the channel as permanently
	// closed; no further reconnect attempts happen.
	ErrPermanentlyFailed = errors.New("link: permanently failed")
)

// Handler receives inbound traffic and disconnection notices from a Link.
//
// Callbacks are delivered from the link's receive goroutine, one at a time,
// in wire arrival order. Handlers may call Send from a callback but must not
// call Close from one.
type Handler interface {
	// MessageReceived delivers one inbound message.
	MessageReceived(msg []byte)

	// LinkDown reports that the socket died for a reason other than a local
	// Close. The link does not reconnect on its own after this; the next
	// Send runs the reconnect path.
	LinkDown()
}

// DialFunc opens one connection to addr, bounded by timeout.
type DialFunc func(addr string, timeout time.Duration) (net.Conn, error)

// Config holds the dial parameters for a Link.
type Config struct {
	// RemoteAddr is the remote endpoint in host:port form.
	RemoteAddr string

	// ConnectTimeout bounds each connect attempt.
	ConnectTimeout time.Duration

	// Dial overrides the dial function. Nil means net.DialTimeout over TCP.
	// Tests use this to inject pipes and failure modes.
	Dial DialFunc
}

// Link owns a single socket to a single remote endpoint, together with the
// queue of messages not yet delivered to it.
type Link struct {
	remoteAddr string
	timeout    time.Duration
	dial       DialFunc
	handler    Handler
	metrics    metrics.LinkMetrics

	// opMu serializes Send, Connect, and Close, including the dial and
	// queue replay they perform. It guarantees at most one live socket.
	opMu   sync.Mutex
	conn   *framing.Conn
	raw    net.Conn
	done   chan struct{} // closed when the current socket's receive loop exits
	closed bool

	// dispatchMu serializes handler callbacks across receive loops, so a
	// replaced socket draining its last message never overlaps delivery
	// from its successor.
	dispatchMu sync.Mutex

	// queueMu guards only the queue slice; it is never held across I/O.
	queueMu sync.Mutex
	queue   [][]byte

	state  atomic.Int32
	gaveUp atomic.Bool
}

// New creates a Link. No socket is opened until Connect.
// m may be nil to disable metrics collection.
func New(cfg Config, handler Handler, m metrics.LinkMetrics) *Link {
	dial := cfg.Dial
	if dial == nil {
		dial = func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		}
	}
	return &Link{
		remoteAddr: cfg.RemoteAddr,
		timeout:    cfg.ConnectTimeout,
		dial:       dial,
		handler:    handler,
		metrics:    m,
	}
}

// State returns the current connection state.
func (l *Link) State() State {
	return State(l.state.Load())
}

// GaveUp reports whether the link has permanently failed.
func (l *Link) GaveUp() bool {
	return l.gaveUp.Load()
}

// QueueLen returns the number of messages awaiting replay.
func (l *Link) QueueLen() int {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	return len(l.queue)
}

// Connect opens the initial socket, blocking until the connection is
// established or the attempt fails. A failed initial connect marks the link
// as permanently failed, matching the one-shot reconnect policy.
func (l *Link) Connect() error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := l.openSocket(); err != nil {
		l.gaveUp.Store(true)
		if l.metrics != nil {
			l.metrics.RecordGiveUp()
		}
		return fmt.Errorf("%w: %v", ErrPermanentlyFailed, err)
	}
	return nil
}

// Send delivers one message to the remote endpoint.
//
// When connected, the write happens immediately. On write failure the
// message is queued and the reconnect path runs: one dial attempt, full
// queue replay in insertion order, then a fresh receive loop. A failed dial
// marks the link permanently failed and returns ErrPermanentlyFailed; the
// owning session must treat the channel as closed.
func (l *Link) Send(msg []byte) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.gaveUp.Load() {
		return ErrPermanentlyFailed
	}
	if len(msg) > framing.MaxMessageSize {
		return &framing.FramingError{Length: int64(len(msg))}
	}

	if l.State() == StateConnected && l.conn != nil {
		if err := l.conn.WriteMessage(msg); err == nil {
			return nil
		} else {
			logger.Warn("Link write failed, queuing and reopening socket",
				logger.RemoteAddr(l.remoteAddr), logger.Err(err))
		}
	}

	l.enqueue(msg)

	if err := l.openSocket(); err != nil {
		l.gaveUp.Store(true)
		logger.Error("Link reconnect failed, giving up",
			logger.RemoteAddr(l.remoteAddr), logger.Err(err))
		if l.metrics != nil {
			l.metrics.RecordGiveUp()
		}
		return fmt.Errorf("%w: %v", ErrPermanentlyFailed, err)
	}
	return nil
}

// Close tears the link down deterministically: it detaches and closes the
// socket, then waits for the receive loop to observe the closure and exit
// before returning. No callback fires after Close returns. Safe to call
// more than once.
//
// The join happens with opMu released. A handler callback in flight may be
// blocked in Send waiting for opMu; it must be able to acquire it, observe
// the closed flag, and return ErrClosed so the receive loop can exit.
func (l *Link) Close() error {
	l.opMu.Lock()
	if l.closed {
		l.opMu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	done := l.done
	l.conn = nil
	l.raw = nil
	l.done = nil
	l.state.Store(int32(StateClosing))
	l.opMu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	// done can outlive conn: a loop that already reported a remote failure
	// detaches the socket but stays joinable until it exits.
	if done != nil {
		<-done
	}

	// Barrier for a replaced loop still draining its final callback. Any
	// Send that callback issues observes the closed flag and gets ErrClosed,
	// so the callback cannot outlive this acquisition.
	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()

	return nil
}

// enqueue appends a message to the replay queue.
func (l *Link) enqueue(msg []byte) {
	l.queueMu.Lock()
	l.queue = append(l.queue, msg)
	n := len(l.queue)
	l.queueMu.Unlock()

	if l.metrics != nil {
		l.metrics.RecordQueueDepth(n)
	}
}

// closeSocket detaches and closes any live socket without joining its
// receive loop. The caller may be that very loop, dispatching the callback
// that led here, so a join would wait on the caller's own goroutine; the
// loop instead finds its socket detached when the read fails and exits on
// its own. Caller must hold opMu.
func (l *Link) closeSocket() {
	if l.conn == nil {
		return
	}

	_ = l.conn.Close()
	l.conn = nil
	l.raw = nil
	l.done = nil
}

// openSocket runs one connect attempt and, on success, replays the whole
// outbound queue in insertion order before starting a fresh receive loop.
// Caller must hold opMu.
func (l *Link) openSocket() error {
	if l.gaveUp.Load() {
		return ErrPermanentlyFailed
	}

	l.closeSocket()

	l.state.Store(int32(StateConnecting))
	raw, err := l.dial(l.remoteAddr, l.timeout)
	if err != nil {
		l.state.Store(int32(StateDisconnected))
		return fmt.Errorf("connect %s: %w", l.remoteAddr, err)
	}

	l.raw = raw
	l.conn = framing.NewConn(raw)
	l.state.Store(int32(StateConnected))
	if l.metrics != nil {
		l.metrics.RecordConnect()
	}

	// Replay queued messages in order. A message leaves the queue only
	// after its write succeeded; on a write failure the server presumably
	// already terminated the session, so the remainder stays queued for
	// the next attempt and we keep the socket for the receive loop to
	// observe its fate.
	for {
		l.queueMu.Lock()
		if len(l.queue) == 0 {
			l.queueMu.Unlock()
			break
		}
		msg := l.queue[0]
		l.queueMu.Unlock()

		if err := l.conn.WriteMessage(msg); err != nil {
			logger.Warn("Link queue replay aborted",
				logger.RemoteAddr(l.remoteAddr),
				logger.Queued(l.QueueLen()),
				logger.Err(err))
			break
		}

		l.queueMu.Lock()
		l.queue = l.queue[1:]
		l.queueMu.Unlock()
	}

	done := make(chan struct{})
	l.done = done
	go l.receiveLoop(l.conn, done)

	return nil
}

// receiveLoop reads framed messages for the lifetime of one socket and
// dispatches them to the handler in arrival order.
func (l *Link) receiveLoop(conn *framing.Conn, done chan struct{}) {
	defer close(done)

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			// Only the loop that still owns the link's current socket gets
			// to report a failure. A loop whose socket was deliberately
			// closed or replaced finds itself detached and exits quietly.
			// l.done stays attached so a concurrent Close can still join
			// this goroutine and uphold its no-callback-after-Close promise.
			l.opMu.Lock()
			current := l.conn == conn
			if current {
				l.conn = nil
				l.raw = nil
				l.state.Store(int32(StateDisconnected))
			}
			l.opMu.Unlock()

			if !current {
				logger.Debug("Link receive loop terminating",
					logger.RemoteAddr(l.remoteAddr))
				return
			}
			logger.Warn("Link receive failed",
				logger.RemoteAddr(l.remoteAddr), logger.Err(err))
			if l.metrics != nil {
				l.metrics.RecordDisconnect()
			}
			// Reconnect policy belongs to the session layer via Send's
			// fallback path; this loop only reports the disconnection.
			l.dispatchMu.Lock()
			l.handler.LinkDown()
			l.dispatchMu.Unlock()
			return
		}

		l.dispatchMu.Lock()
		l.handler.MessageReceived(msg)
		l.dispatchMu.Unlock()
	}
}
