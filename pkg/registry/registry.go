// Package registry multiplexes many independent channel protocol instances
// behind one process boundary, with per-caller quota accounting and caller
// liveness tracking.
//
// One exclusive lock guards the session map and all quota movements. The
// quota check and its deduction form a single atomic unit under that lock;
// protocol and socket I/O always happen outside it. Because the protocol may
// apply less than requested, Pay reserves the requested amount up front and
// refunds the unapplied remainder afterwards — the quota can never go
// negative and two concurrent payments can never both spend the same funds.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/channel"
	"github.com/marmos91/paylink/pkg/ipc"
	"github.com/marmos91/paylink/pkg/metrics"
	"github.com/marmos91/paylink/pkg/store/balance"
)

// SessionInfo is a read-only snapshot of one live session, served to the
// control plane.
type SessionInfo struct {
	Token    string `json:"token"`
	CallerID string `json:"caller_id"`
	HostID   string `json:"host_id"`
}

// record is one live session entry.
type record struct {
	token    string
	callerID string
	hostID   string
	proto    channel.Protocol
	handle   ipc.CallbackHandle
}

// Registry owns every live session and the quota ledger behind them.
type Registry struct {
	balances balance.Store
	factory  channel.Factory
	metrics  metrics.RegistryMetrics

	mu       sync.Mutex
	sessions map[string]*record
}

// New creates an empty registry. m may be nil to disable metrics.
func New(balances balance.Store, factory channel.Factory, m metrics.RegistryMetrics) *Registry {
	return &Registry{
		balances: balances,
		factory:  factory,
		metrics:  m,
		sessions: make(map[string]*record),
	}
}

// OpenSession creates a channel protocol instance for callerID toward
// hostID and returns its fresh session token. The protocol is capped at the
// caller's remaining quota. A death watch on the caller's handle disconnects
// the session — never settles it — if the caller's process disappears.
func (r *Registry) OpenSession(callerID, hostID string, handle ipc.CallbackHandle) (string, error) {
	if callerID == "" {
		return "", channel.NewInvalidRequestError("caller identity missing")
	}
	if handle == nil {
		return "", channel.NewInvalidRequestError("callback handle missing")
	}

	quota, err := r.balances.Get(callerID)
	if err != nil {
		return "", err
	}

	token := uuid.New().String()
	rec := &record{
		token:    token,
		callerID: callerID,
		hostID:   hostID,
		handle:   handle,
	}
	rec.proto = r.factory(hostID, quota, &sessionEvents{registry: r, rec: rec})

	r.mu.Lock()
	r.sessions[token] = rec
	active := len(r.sessions)
	r.mu.Unlock()

	handle.WatchForDeath(func() { r.callerDied(rec) })

	if r.metrics != nil {
		r.metrics.RecordSessionOpened()
		r.metrics.SetActiveSessions(active)
	}
	logger.Info("Session opened",
		logger.Token(token), logger.Caller(callerID), logger.Host(hostID),
		logger.Remaining(quota))

	// The entry is registered before the handshake starts, so inbound
	// bytes racing ahead of the caller's open() return find their session.
	rec.proto.ConnectionOpen()

	return token, nil
}

// Pay commits up to amount on the caller's session and returns the amount
// actually applied.
//
// The requested amount is reserved from the quota under the lock; after the
// protocol reports what it really applied, the difference is refunded. A
// protocol state fault surfaces as a not-spendable error and evicts the
// session.
func (r *Registry) Pay(callerID, token string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, channel.NewValueOutOfRangeError("negative amount")
	}

	r.mu.Lock()
	rec, ok := r.lookupLocked(callerID, token)
	if !ok {
		r.mu.Unlock()
		r.rejectPayment("no_such_channel")
		return 0, channel.NewNoSuchChannelError(token)
	}
	remaining, err := r.balances.Get(callerID)
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	if amount > remaining {
		r.mu.Unlock()
		r.rejectPayment("insufficient_value")
		return 0, channel.NewInsufficientValueError(amount, remaining)
	}
	// Reserve the full request while the lock is held. Concurrent payments
	// see the reduced quota, so two of them can never both spend the same
	// funds.
	if _, err := r.balances.Increment(callerID, -amount); err != nil {
		r.mu.Unlock()
		return 0, err
	}
	r.mu.Unlock()

	applied, err := rec.proto.IncrementPayment(amount)
	if err != nil {
		r.refund(callerID, amount)
		if channel.HasCode(err, channel.CodeInvalidState) {
			r.evict(rec, channel.ReasonChannelExhausted, false)
			r.rejectPayment("not_spendable")
			return 0, channel.NewNotSpendableError(token)
		}
		r.rejectPayment("value_out_of_range")
		return 0, err
	}
	if applied < amount {
		r.refund(callerID, amount-applied)
	}

	if r.metrics != nil {
		r.metrics.RecordPayment(applied)
	}
	logger.Debug("Payment applied",
		logger.Token(token), logger.Caller(callerID),
		logger.Amount(amount), logger.Applied(applied))
	return applied, nil
}

// Close removes the session from the registry. When counterpartyClose is
// set, the protocol first runs a negotiated close — an already-closed fault
// is benign — and local resources are released regardless.
func (r *Registry) Close(callerID, token string, counterpartyClose bool) error {
	r.mu.Lock()
	rec, ok := r.lookupLocked(callerID, token)
	if !ok {
		r.mu.Unlock()
		return channel.NewNoSuchChannelError(token)
	}
	delete(r.sessions, token)
	active := len(r.sessions)
	r.mu.Unlock()

	if counterpartyClose {
		if err := rec.proto.Close(); err != nil && !channel.HasCode(err, channel.CodeAlreadyClosed) {
			logger.Warn("Negotiated close failed",
				logger.Token(token), logger.Err(err))
		}
	}
	rec.proto.ConnectionClosed()

	if r.metrics != nil {
		r.metrics.RecordSessionClosed(channel.ReasonClientRequestedClose.String())
		r.metrics.SetActiveSessions(active)
	}
	logger.Info("Session closed by caller",
		logger.Token(token), logger.Caller(callerID))
	return nil
}

// MessageReceived delivers inbound protocol bytes to the caller's session.
// Parse failures and value-range faults are logged and dropped; neither is
// fatal to the session.
func (r *Registry) MessageReceived(callerID, token string, msg []byte) error {
	r.mu.Lock()
	rec, ok := r.lookupLocked(callerID, token)
	r.mu.Unlock()
	if !ok {
		return channel.NewNoSuchChannelError(token)
	}

	if err := rec.proto.ReceiveMessage(msg); err != nil {
		if channel.HasCode(err, channel.CodeInvalidMessage) ||
			channel.HasCode(err, channel.CodeValueOutOfRange) {
			logger.Warn("Dropping rejected inbound message",
				logger.Token(token), logger.MsgLen(len(msg)), logger.Err(err))
			return nil
		}
		return err
	}
	return nil
}

// Sessions returns a snapshot of every live session.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, rec := range r.sessions {
		infos = append(infos, SessionInfo{
			Token:    rec.token,
			CallerID: rec.callerID,
			HostID:   rec.hostID,
		})
	}
	return infos
}

// Quota returns the caller's remaining quota.
func (r *Registry) Quota(callerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances.Get(callerID)
}

// Grant raises the caller's quota by delta and returns the new total.
func (r *Registry) Grant(callerID string, delta int64) (int64, error) {
	if callerID == "" {
		return 0, channel.NewInvalidRequestError("caller identity missing")
	}
	if delta <= 0 {
		return 0, channel.NewValueOutOfRangeError("grant must be positive")
	}

	r.mu.Lock()
	total, err := r.balances.Increment(callerID, delta)
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	logger.Info("Quota granted",
		logger.Caller(callerID), logger.Amount(delta), logger.Remaining(total))
	return total, nil
}

// CloseAll evicts every live session, used during daemon shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	recs := make([]*record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		recs = append(recs, rec)
	}
	r.mu.Unlock()

	for _, rec := range recs {
		r.evict(rec, channel.ReasonConnectionClosed, true)
	}
}

// lookupLocked finds the record for token owned by callerID. A token owned
// by a different caller is indistinguishable from a missing one.
func (r *Registry) lookupLocked(callerID, token string) (*record, bool) {
	rec, ok := r.sessions[token]
	if !ok || rec.callerID != callerID {
		return nil, false
	}
	return rec, true
}

// callerDied handles a liveness-detected death of the caller's process: the
// session is disconnected, never settled.
func (r *Registry) callerDied(rec *record) {
	logger.Warn("Caller died, disconnecting session",
		logger.Token(rec.token), logger.Caller(rec.callerID))
	r.evict(rec, channel.ReasonConnectionClosed, false)
}

// evict removes a session and disconnects its protocol. When notify is set
// the caller learns about it through a destroy event.
func (r *Registry) evict(rec *record, reason channel.CloseReason, notify bool) {
	r.mu.Lock()
	if _, ok := r.sessions[rec.token]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, rec.token)
	active := len(r.sessions)
	r.mu.Unlock()

	rec.proto.ConnectionClosed()

	if notify {
		if err := rec.handle.Invoke(ipc.Event{
			Type:   ipc.EvDestroy,
			Token:  rec.token,
			Reason: int32(reason),
		}); err != nil {
			logger.Debug("Destroy notification undeliverable",
				logger.Token(rec.token), logger.Err(err))
		}
	}

	if r.metrics != nil {
		r.metrics.RecordSessionClosed(reason.String())
		r.metrics.SetActiveSessions(active)
	}
	logger.Info("Session evicted",
		logger.Token(rec.token), logger.Caller(rec.callerID),
		logger.Reason(reason.String()))
}

func (r *Registry) refund(callerID string, amount int64) {
	if amount == 0 {
		return
	}
	r.mu.Lock()
	_, err := r.balances.Increment(callerID, amount)
	r.mu.Unlock()
	if err != nil {
		logger.Error("Quota refund failed",
			logger.Caller(callerID), logger.Amount(amount), logger.Err(err))
	}
}

func (r *Registry) rejectPayment(code string) {
	if r.metrics != nil {
		r.metrics.RecordPaymentRejected(code)
	}
}

// sessionEvents adapts channel.Events for one server-side session: protocol
// output crosses the IPC boundary back to the caller.
type sessionEvents struct {
	registry *Registry
	rec      *record
}

func (e *sessionEvents) SendToServer(msg []byte) {
	if err := e.rec.handle.Invoke(ipc.Event{
		Type:    ipc.EvMessage,
		Token:   e.rec.token,
		Payload: msg,
	}); err != nil {
		logger.Warn("Outbound protocol message undeliverable",
			logger.Token(e.rec.token), logger.Err(err))
	}
}

func (e *sessionEvents) ChannelOpen(contractID []byte) {
	if err := e.rec.handle.Invoke(ipc.Event{
		Type:    ipc.EvChannelOpen,
		Token:   e.rec.token,
		Payload: contractID,
	}); err != nil {
		logger.Warn("Channel-open notification undeliverable",
			logger.Token(e.rec.token), logger.Err(err))
	}
}

func (e *sessionEvents) DestroyConnection(reason channel.CloseReason) {
	e.registry.evict(e.rec, reason, true)
}
