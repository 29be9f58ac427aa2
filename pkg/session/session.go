// Package session provides the caller-facing handle for one logical payment
// channel on the client side.
//
// A Session pairs a reconnecting link with a channel protocol instance and
// exposes the four operations an application needs: Start, Pay, Suspend, and
// Settle. Everything else — framing, reconnects, queue replay, protocol
// events — happens underneath.
package session

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/channel"
	"github.com/marmos91/paylink/pkg/link"
	"github.com/marmos91/paylink/pkg/metrics"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateCreated State = iota
	StateStarting
	StateOpen
	StateSuspending
	StateSettling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateOpen:
		return "open"
	case StateSuspending:
		return "suspending"
	case StateSettling:
		return "settling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Listener receives the session's asynchronous lifecycle events. Callbacks
// fire from internal goroutines; implementations must be safe for that and
// must not call back into the Session from Closed.
type Listener interface {
	// Opened reports that the channel finished opening. contractID is
	// stable across reconnects and identifies the channel construct.
	Opened(contractID []byte)

	// OpenFailed reports that Start could not establish the channel. The
	// session is Closed; the caller may build a new one to retry.
	OpenFailed()

	// Closed reports that the channel is finished, with the reason.
	Closed(reason channel.CloseReason)
}

// Config holds the parameters for a Session.
type Config struct {
	// RemoteAddr is the counterparty endpoint in host:port form.
	RemoteAddr string

	// ConnectTimeout bounds each socket connect attempt.
	ConnectTimeout time.Duration

	// HostID identifies the counterparty to the channel protocol.
	HostID string

	// MaxValue caps the value this session may commit to the channel.
	MaxValue int64

	// Factory builds the channel protocol instance once the transport is up.
	Factory channel.Factory

	// Dial overrides the link's dial function; nil means TCP. Tests use it.
	Dial link.DialFunc

	// Metrics is the link instrumentation; nil disables collection.
	Metrics metrics.LinkMetrics
}

// Session is one logical payment channel from the caller's point of view.
//
// The mutex guards state, token, and the protocol pointer. Start's
// background goroutine holds it across connect and protocol construction, so
// inbound messages racing ahead of open-completion block until the protocol
// is in place instead of being dropped or misrouted.
type Session struct {
	cfg      Config
	listener Listener
	link     *link.Link

	mu       sync.Mutex
	state    State
	token    string
	proto    channel.Protocol
	settling bool
}

// New creates a Session in the Created state. No I/O happens until Start.
func New(cfg Config, listener Listener) *Session {
	s := &Session{
		cfg:      cfg,
		listener: listener,
		state:    StateCreated,
	}
	s.link = link.New(link.Config{
		RemoteAddr:     cfg.RemoteAddr,
		ConnectTimeout: cfg.ConnectTimeout,
		Dial:           cfg.Dial,
	}, s, cfg.Metrics)
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the session token assigned when the channel opened, or the
// empty string before that.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Start begins opening the channel. It transitions Created to Starting and
// returns immediately; the handshake runs on a background goroutine and
// completion arrives through the Listener as Opened or OpenFailed.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateCreated {
		state := s.state.String()
		s.mu.Unlock()
		return channel.NewInvalidStateError("start", state)
	}
	s.state = StateStarting
	s.mu.Unlock()

	go s.open()
	return nil
}

// open establishes the transport and constructs the protocol. The mutex is
// held from before the receive loop starts until the protocol is installed,
// so the loop's first inbound delivery waits for the protocol instead of
// racing it.
func (s *Session) open() {
	s.mu.Lock()

	if err := s.link.Connect(); err != nil {
		s.state = StateClosed
		s.mu.Unlock()
		logger.Error("Session open failed",
			logger.Host(s.cfg.HostID), logger.Err(err))
		s.listener.OpenFailed()
		return
	}

	proto := s.cfg.Factory(s.cfg.HostID, s.cfg.MaxValue, s)
	s.proto = proto
	s.mu.Unlock()

	// ConnectionOpen runs outside the mutex: the protocol may emit its
	// ChannelOpen event synchronously, which re-enters the session.
	proto.ConnectionOpen()
}

// Pay commits up to amount to the counterparty and returns the amount
// actually applied, which may be smaller when the channel's remaining
// capacity is insufficient. Valid only while Open and not suspending or
// settling.
func (s *Session) Pay(amount int64) (int64, error) {
	s.mu.Lock()
	if s.state != StateOpen || s.settling {
		state := s.state.String()
		s.mu.Unlock()
		return 0, channel.NewInvalidStateError("pay", state)
	}
	proto := s.proto
	s.mu.Unlock()

	return proto.IncrementPayment(amount)
}

// Suspend stops using the channel without releasing funds. The channel
// construct stays resumable later under the same token. A second call fails
// with an invalid-state error.
func (s *Session) Suspend() error {
	s.mu.Lock()
	if s.state != StateOpen || s.settling {
		state := s.state.String()
		s.mu.Unlock()
		return channel.NewInvalidStateError("suspend", state)
	}
	s.state = StateSuspending
	proto := s.proto
	s.mu.Unlock()

	proto.ConnectionClosed()
	// Close joins the receive loop; must not run under the mutex, because
	// the loop may be blocked delivering a message through it.
	if err := s.link.Close(); err != nil {
		logger.Warn("Session link close failed",
			logger.Token(s.Token()), logger.Err(err))
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	logger.Info("Session suspended", logger.Token(s.Token()))
	return nil
}

// Settle begins a negotiated close that releases the channel's locked funds
// back to their owner. Completion is signaled asynchronously via the
// Listener's Closed event.
func (s *Session) Settle() error {
	s.mu.Lock()
	if s.state != StateOpen || s.settling {
		state := s.state.String()
		s.mu.Unlock()
		return channel.NewInvalidStateError("settle", state)
	}
	s.settling = true
	s.state = StateSettling
	proto := s.proto
	s.mu.Unlock()

	if err := proto.Close(); err != nil && !channel.HasCode(err, channel.CodeAlreadyClosed) {
		return err
	}
	return nil
}

// MessageReceived implements link.Handler, delivering inbound wire bytes to
// the protocol. Parse failures and value-range faults are logged and
// dropped; the session survives them.
func (s *Session) MessageReceived(msg []byte) {
	s.mu.Lock()
	proto := s.proto
	state := s.state
	s.mu.Unlock()

	if proto == nil || state == StateClosed {
		logger.Debug("Dropping message for inactive session",
			logger.Token(s.Token()), logger.MsgLen(len(msg)))
		return
	}
	if err := proto.ReceiveMessage(msg); err != nil {
		logger.Warn("Inbound message rejected by protocol",
			logger.Token(s.Token()), logger.MsgLen(len(msg)), logger.Err(err))
	}
}

// LinkDown implements link.Handler. The socket died without a local close;
// the channel construct itself stays resumable, so the session remains Open
// and the next Pay runs the link's reconnect path.
func (s *Session) LinkDown() {
	s.mu.Lock()
	proto := s.proto
	state := s.state
	s.mu.Unlock()

	logger.Warn("Session transport lost",
		logger.Token(s.Token()), logger.State(state.String()))
	if proto != nil && state == StateOpen {
		proto.ConnectionClosed()
	}
}

// SendToServer implements channel.Events, carrying protocol output to the
// link. A permanently failed link tears the session down with reason
// ConnectionClosed.
func (s *Session) SendToServer(msg []byte) {
	err := s.link.Send(msg)
	if err == nil {
		return
	}
	logger.Error("Session outbound send failed",
		logger.Token(s.Token()), logger.MsgLen(len(msg)), logger.Err(err))
	if errors.Is(err, link.ErrPermanentlyFailed) {
		s.destroy(channel.ReasonConnectionClosed)
	}
}

// ChannelOpen implements channel.Events. The transition only fires from
// Starting: an open racing a teardown must not resurrect a Closed session.
func (s *Session) ChannelOpen(contractID []byte) {
	s.mu.Lock()
	if s.state != StateStarting {
		state := s.state
		s.mu.Unlock()
		logger.Debug("Ignoring channel open",
			logger.Host(s.cfg.HostID), logger.State(state.String()))
		return
	}
	s.state = StateOpen
	s.token = hex.EncodeToString(contractID)
	s.mu.Unlock()

	logger.Info("Session open", logger.Token(s.Token()), logger.Host(s.cfg.HostID))
	s.listener.Opened(contractID)
}

// DestroyConnection implements channel.Events: the protocol declared the
// channel finished.
func (s *Session) DestroyConnection(reason channel.CloseReason) {
	s.destroy(reason)
}

// destroy moves the session to Closed exactly once, tears the link down,
// and notifies the listener.
func (s *Session) destroy(reason channel.CloseReason) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	// The protocol may declare destruction from inside the receive loop's
	// dispatch; closing the link there would deadlock on joining that same
	// loop, so the close runs on its own goroutine.
	go func() {
		if err := s.link.Close(); err != nil {
			logger.Warn("Session link close failed",
				logger.Token(s.Token()), logger.Err(err))
		}
	}()

	logger.Info("Session closed",
		logger.Token(s.Token()), logger.Reason(reason.String()))
	s.listener.Closed(reason)
}
