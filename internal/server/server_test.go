package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/paylink/pkg/channel"
	"github.com/marmos91/paylink/pkg/ipc"
	"github.com/marmos91/paylink/pkg/registry"
	"github.com/marmos91/paylink/pkg/store/balance/memory"
)

// echoProtocol opens immediately and applies payments up to its capacity.
type echoProtocol struct {
	mu       sync.Mutex
	events   channel.Events
	capacity int64
	closed   bool
}

func (p *echoProtocol) ConnectionOpen() {
	p.events.ChannelOpen([]byte{0xC0, 0x01})
}

func (p *echoProtocol) ConnectionClosed() {}

func (p *echoProtocol) ReceiveMessage(msg []byte) error {
	// Echo inbound bytes back out, exercising the event path.
	p.events.SendToServer(msg)
	return nil
}

func (p *echoProtocol) IncrementPayment(amount int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, channel.NewInvalidStateError("increment", "closed")
	}
	if amount > p.capacity {
		amount = p.capacity
	}
	p.capacity -= amount
	return amount, nil
}

func (p *echoProtocol) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return channel.NewAlreadyClosedError()
	}
	p.closed = true
	return nil
}

type fixture struct {
	server   *Server
	registry *registry.Registry
	cancel   context.CancelFunc
}

func startServer(t *testing.T, capacity int64) *fixture {
	t.Helper()

	store := memory.New()
	factory := func(hostID string, maxValue int64, events channel.Events) channel.Protocol {
		c := capacity
		if maxValue < c {
			c = maxValue
		}
		return &echoProtocol{events: events, capacity: c}
	}
	reg := registry.New(store, factory, nil)
	_, err := reg.Grant("alice", 100_000)
	require.NoError(t, err)

	srv := New(Config{Network: "tcp", Addr: "127.0.0.1:0"}, reg)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()

	select {
	case <-srv.WaitReady():
	case <-time.After(time.Second):
		t.Fatal("server never became ready")
	}

	f := &fixture{server: srv, registry: reg, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})
	return f
}

func dialClient(t *testing.T, f *fixture, onEvent func(ipc.Event)) *ipc.Client {
	t.Helper()
	client, err := ipc.Dial("tcp", f.server.Addr().String(), onEvent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestOpenPayCloseOverSocket(t *testing.T) {
	f := startServer(t, 1_000_000)

	events := make(chan ipc.Event, 16)
	client := dialClient(t, f, func(ev ipc.Event) { events <- ev })

	resp, err := client.Call(&ipc.Request{
		Op: ipc.OpOpenSession, Caller: "alice", HostID: "host-1",
	})
	require.NoError(t, err)
	require.Equal(t, ipc.StatusOK, resp.Status)
	token := resp.Token
	require.NotEmpty(t, token)

	// The protocol announced the channel open.
	select {
	case ev := <-events:
		assert.Equal(t, ipc.EvChannelOpen, ev.Type)
		assert.Equal(t, token, ev.Token)
	case <-time.After(time.Second):
		t.Fatal("channel-open event never arrived")
	}

	resp, err = client.Call(&ipc.Request{
		Op: ipc.OpPay, Caller: "alice", Token: token, Amount: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, ipc.StatusOK, resp.Status)
	assert.EqualValues(t, 500, resp.Applied)

	resp, err = client.Call(&ipc.Request{
		Op: ipc.OpClose, Caller: "alice", Token: token, CounterpartyClose: true,
	})
	require.NoError(t, err)
	assert.Equal(t, ipc.StatusOK, resp.Status)
	assert.Empty(t, f.registry.Sessions())
}

func TestPartialPaymentOverSocket(t *testing.T) {
	f := startServer(t, 50_000)
	client := dialClient(t, f, nil)

	resp, err := client.Call(&ipc.Request{
		Op: ipc.OpOpenSession, Caller: "alice", HostID: "host-1",
	})
	require.NoError(t, err)
	token := resp.Token

	resp, err = client.Call(&ipc.Request{
		Op: ipc.OpPay, Caller: "alice", Token: token, Amount: 60_000,
	})
	require.NoError(t, err)
	assert.Equal(t, ipc.StatusOK, resp.Status)
	assert.EqualValues(t, 50_000, resp.Applied)

	quota, err := f.registry.Quota("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 50_000, quota)
}

func TestMessageEchoRoundTrip(t *testing.T) {
	f := startServer(t, 1_000_000)

	events := make(chan ipc.Event, 16)
	client := dialClient(t, f, func(ev ipc.Event) { events <- ev })

	resp, err := client.Call(&ipc.Request{
		Op: ipc.OpOpenSession, Caller: "alice", HostID: "host-1",
	})
	require.NoError(t, err)
	token := resp.Token

	// Drain the channel-open event first.
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("channel-open event never arrived")
	}

	resp, err = client.Call(&ipc.Request{
		Op: ipc.OpMessage, Caller: "alice", Token: token, Payload: []byte("ping"),
	})
	require.NoError(t, err)
	assert.Equal(t, ipc.StatusOK, resp.Status)

	select {
	case ev := <-events:
		assert.Equal(t, ipc.EvMessage, ev.Type)
		assert.Equal(t, []byte("ping"), ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("echoed message never arrived")
	}
}

func TestUnknownTokenStatus(t *testing.T) {
	f := startServer(t, 1_000_000)
	client := dialClient(t, f, nil)

	resp, err := client.Call(&ipc.Request{
		Op: ipc.OpPay, Caller: "alice", Token: "bogus", Amount: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, ipc.StatusNoSuchChannel, resp.Status)
}

func TestMissingCallerIdentityRejected(t *testing.T) {
	f := startServer(t, 1_000_000)
	client := dialClient(t, f, nil)

	resp, err := client.Call(&ipc.Request{Op: ipc.OpOpenSession, HostID: "host-1"})
	require.NoError(t, err)
	assert.Equal(t, ipc.StatusInvalidRequest, resp.Status)
}

func TestCallerDisconnectTearsDownSessions(t *testing.T) {
	f := startServer(t, 1_000_000)
	client := dialClient(t, f, nil)

	resp, err := client.Call(&ipc.Request{
		Op: ipc.OpOpenSession, Caller: "alice", HostID: "host-1",
	})
	require.NoError(t, err)
	require.Equal(t, ipc.StatusOK, resp.Status)
	require.Len(t, f.registry.Sessions(), 1)

	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		return len(f.registry.Sessions()) == 0
	}, time.Second, 5*time.Millisecond, "dead caller's sessions must be disconnected")
}
