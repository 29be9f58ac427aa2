package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/paylink/pkg/channel"
	"github.com/marmos91/paylink/pkg/ipc"
	"github.com/marmos91/paylink/pkg/store/balance/memory"
)

// fakeHandle records delivered events and lets tests simulate caller death.
type fakeHandle struct {
	mu     sync.Mutex
	events []ipc.Event
	deaths []func()
	dead   bool
}

func (h *fakeHandle) Invoke(ev ipc.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return fmt.Errorf("%w: caller is dead", ipc.ErrRemoteUnreachable)
	}
	h.events = append(h.events, ev)
	return nil
}

func (h *fakeHandle) WatchForDeath(fn func()) {
	h.mu.Lock()
	if h.dead {
		h.mu.Unlock()
		fn()
		return
	}
	h.deaths = append(h.deaths, fn)
	h.mu.Unlock()
}

func (h *fakeHandle) Close() error { return nil }

func (h *fakeHandle) die() {
	h.mu.Lock()
	h.dead = true
	deaths := h.deaths
	h.deaths = nil
	h.mu.Unlock()
	for _, fn := range deaths {
		fn()
	}
}

func (h *fakeHandle) eventsOfType(typ int32) []ipc.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []ipc.Event
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// fakeProtocol is a scriptable channel.Protocol.
type fakeProtocol struct {
	mu         sync.Mutex
	maxValue   int64
	events     channel.Events
	connOpens  int
	connCloses int
	closes     int
	received   [][]byte

	capacity int64 // 0 means unlimited
	payErr   error
	closeErr error
	recvErr  error
}

func (p *fakeProtocol) ConnectionOpen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connOpens++
}

func (p *fakeProtocol) ConnectionClosed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connCloses++
}

func (p *fakeProtocol) ReceiveMessage(msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, msg)
	return p.recvErr
}

func (p *fakeProtocol) IncrementPayment(amount int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payErr != nil {
		return 0, p.payErr
	}
	if p.capacity > 0 && amount > p.capacity {
		amount = p.capacity
	}
	return amount, nil
}

func (p *fakeProtocol) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return p.closeErr
}

type fixture struct {
	registry *Registry
	store    *memory.BalanceStore
	protos   []*fakeProtocol
	mu       sync.Mutex
}

func newFixture() *fixture {
	f := &fixture{store: memory.New()}
	factory := func(hostID string, maxValue int64, events channel.Events) channel.Protocol {
		p := &fakeProtocol{maxValue: maxValue, events: events}
		f.mu.Lock()
		f.protos = append(f.protos, p)
		f.mu.Unlock()
		return p
	}
	f.registry = New(f.store, factory, nil)
	return f
}

func (f *fixture) lastProto() *fakeProtocol {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.protos[len(f.protos)-1]
}

func (f *fixture) grant(t *testing.T, caller string, amount int64) {
	t.Helper()
	_, err := f.registry.Grant(caller, amount)
	require.NoError(t, err)
}

func (f *fixture) open(t *testing.T, caller string) (string, *fakeHandle) {
	t.Helper()
	h := &fakeHandle{}
	token, err := f.registry.OpenSession(caller, "host-1", h)
	require.NoError(t, err)
	return token, h
}

func TestOpenSessionValidation(t *testing.T) {
	f := newFixture()

	_, err := f.registry.OpenSession("", "host-1", &fakeHandle{})
	assert.True(t, channel.HasCode(err, channel.CodeInvalidRequest))

	_, err = f.registry.OpenSession("alice", "host-1", nil)
	assert.True(t, channel.HasCode(err, channel.CodeInvalidRequest))
}

func TestOpenSessionBindsQuotaAndStartsProtocol(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 75_000)

	token, _ := f.open(t, "alice")
	assert.NotEmpty(t, token)

	p := f.lastProto()
	assert.EqualValues(t, 75_000, p.maxValue, "protocol capped at remaining quota")
	assert.Equal(t, 1, p.connOpens)

	token2, _ := f.open(t, "alice")
	assert.NotEqual(t, token, token2, "every open gets a fresh token")
}

func TestPayUnknownToken(t *testing.T) {
	f := newFixture()

	_, err := f.registry.Pay("alice", "no-such-token", 10)
	assert.True(t, channel.HasCode(err, channel.CodeNoSuchChannel))
}

func TestPayCrossTenantIsNoSuchChannel(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, _ := f.open(t, "alice")

	// Bob probing alice's token learns nothing beyond "no such channel".
	_, err := f.registry.Pay("bob", token, 10)
	assert.True(t, channel.HasCode(err, channel.CodeNoSuchChannel))
}

func TestPayInsufficientQuota(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 100)
	token, _ := f.open(t, "alice")

	_, err := f.registry.Pay("alice", token, 101)
	assert.True(t, channel.HasCode(err, channel.CodeInsufficientValue))

	remaining, err := f.registry.Quota("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 100, remaining, "a rejected payment must not move the quota")
}

func TestPayDeductsAppliedAmountNotRequested(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 100_000)
	token, _ := f.open(t, "alice")

	// The channel can only cover 50000 of the 60000 request.
	f.lastProto().mu.Lock()
	f.lastProto().capacity = 50_000
	f.lastProto().mu.Unlock()

	applied, err := f.registry.Pay("alice", token, 60_000)
	require.NoError(t, err)
	assert.EqualValues(t, 50_000, applied)

	remaining, err := f.registry.Quota("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 50_000, remaining, "deduct exactly what was applied")
}

func TestConcurrentPaymentsCannotOverspend(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 100)
	token1, _ := f.open(t, "alice")
	token2, _ := f.open(t, "alice")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, token := range []string{token1, token2} {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			_, results[i] = f.registry.Pay("alice", token, 80)
		}(i, token)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, channel.HasCode(err, channel.CodeInsufficientValue))
		}
	}
	assert.Equal(t, 1, successes, "exactly one of two 80-value payments may pass a 100 quota")

	remaining, err := f.registry.Quota("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 20, remaining)
	assert.GreaterOrEqual(t, remaining, int64(0), "quota must never go negative")
}

func TestPayStateFaultEvictsSession(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, _ := f.open(t, "alice")

	p := f.lastProto()
	p.mu.Lock()
	p.payErr = channel.NewInvalidStateError("increment", "closed")
	p.mu.Unlock()

	_, err := f.registry.Pay("alice", token, 10)
	assert.True(t, channel.HasCode(err, channel.CodeNotSpendable))

	// The session is gone and the reservation was refunded.
	_, err = f.registry.Pay("alice", token, 10)
	assert.True(t, channel.HasCode(err, channel.CodeNoSuchChannel))

	remaining, qerr := f.registry.Quota("alice")
	require.NoError(t, qerr)
	assert.EqualValues(t, 1000, remaining)
}

func TestCloseNegotiatedAndIdempotent(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, _ := f.open(t, "alice")
	p := f.lastProto()

	require.NoError(t, f.registry.Close("alice", token, true))
	p.mu.Lock()
	closes, connCloses := p.closes, p.connCloses
	p.mu.Unlock()
	assert.Equal(t, 1, closes, "counterparty close runs the negotiated close")
	assert.Equal(t, 1, connCloses)

	// Second close is a typed rejection, never a crash.
	err := f.registry.Close("alice", token, true)
	assert.True(t, channel.HasCode(err, channel.CodeNoSuchChannel))
}

func TestCloseTreatsAlreadyClosedAsBenign(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, _ := f.open(t, "alice")

	p := f.lastProto()
	p.mu.Lock()
	p.closeErr = channel.NewAlreadyClosedError()
	p.mu.Unlock()

	assert.NoError(t, f.registry.Close("alice", token, true))
}

func TestCloseWithoutCounterpartyCloseSkipsProtocolClose(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, _ := f.open(t, "alice")
	p := f.lastProto()

	require.NoError(t, f.registry.Close("alice", token, false))
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Zero(t, p.closes)
}

func TestMessageReceivedAbsorbsParseFailures(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, _ := f.open(t, "alice")

	p := f.lastProto()
	p.mu.Lock()
	p.recvErr = channel.NewInvalidMessageError("garbage")
	p.mu.Unlock()

	assert.NoError(t, f.registry.MessageReceived("alice", token, []byte("garbage")))

	p.mu.Lock()
	p.recvErr = channel.NewValueOutOfRangeError("too big")
	p.mu.Unlock()
	assert.NoError(t, f.registry.MessageReceived("alice", token, []byte("big")))

	// The session survived both faults.
	_, err := f.registry.Pay("alice", token, 1)
	assert.NoError(t, err)
}

func TestMessageReceivedUnknownToken(t *testing.T) {
	f := newFixture()
	err := f.registry.MessageReceived("alice", "nope", []byte("x"))
	assert.True(t, channel.HasCode(err, channel.CodeNoSuchChannel))
}

func TestCallerDeathDisconnectsWithoutSettling(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, h := f.open(t, "alice")
	p := f.lastProto()

	h.die()

	p.mu.Lock()
	closes, connCloses := p.closes, p.connCloses
	p.mu.Unlock()
	assert.Zero(t, closes, "death must never settle the channel")
	assert.Equal(t, 1, connCloses, "death disconnects the protocol")

	_, err := f.registry.Pay("alice", token, 10)
	assert.True(t, channel.HasCode(err, channel.CodeNoSuchChannel))
}

func TestProtocolDestroyNotifiesCaller(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, h := f.open(t, "alice")
	p := f.lastProto()

	p.events.DestroyConnection(channel.ReasonServerRequestedClose)

	destroys := h.eventsOfType(ipc.EvDestroy)
	require.Len(t, destroys, 1)
	assert.Equal(t, token, destroys[0].Token)
	assert.EqualValues(t, channel.ReasonServerRequestedClose, destroys[0].Reason)

	assert.Empty(t, f.registry.Sessions())
}

func TestProtocolOutputReachesCaller(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, h := f.open(t, "alice")
	p := f.lastProto()

	p.events.SendToServer([]byte("wire-bytes"))
	p.events.ChannelOpen([]byte{0xCA, 0xFE})

	msgs := h.eventsOfType(ipc.EvMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, token, msgs[0].Token)
	assert.Equal(t, []byte("wire-bytes"), msgs[0].Payload)

	opens := h.eventsOfType(ipc.EvChannelOpen)
	require.Len(t, opens, 1)
	assert.Equal(t, []byte{0xCA, 0xFE}, opens[0].Payload)
}

func TestSessionsSnapshot(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	token, _ := f.open(t, "alice")

	infos := f.registry.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, SessionInfo{Token: token, CallerID: "alice", HostID: "host-1"}, infos[0])
}

func TestGrantValidation(t *testing.T) {
	f := newFixture()

	_, err := f.registry.Grant("", 10)
	assert.True(t, channel.HasCode(err, channel.CodeInvalidRequest))

	_, err = f.registry.Grant("alice", 0)
	assert.True(t, channel.HasCode(err, channel.CodeValueOutOfRange))

	total, err := f.registry.Grant("alice", 500)
	require.NoError(t, err)
	assert.EqualValues(t, 500, total)
}

func TestCloseAllEvictsEverything(t *testing.T) {
	f := newFixture()
	f.grant(t, "alice", 1000)
	_, h1 := f.open(t, "alice")
	_, h2 := f.open(t, "alice")

	f.registry.CloseAll()

	assert.Empty(t, f.registry.Sessions())
	assert.Len(t, h1.eventsOfType(ipc.EvDestroy), 1)
	assert.Len(t, h2.eventsOfType(ipc.EvDestroy), 1)
}
