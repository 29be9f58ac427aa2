package ipc

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/paylink/pkg/framing"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		Op:                OpPay,
		Token:             "2f9c1a",
		Amount:            50_000,
		CounterpartyClose: true,
		Payload:           []byte{0x01, 0x02},
	}

	data, err := EncodeRequest(req)
	require.NoError(t, err)

	got, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestPacketRoundTrip(t *testing.T) {
	pkt := &Packet{
		Kind: KindEvent,
		Event: Event{
			Type:    EvDestroy,
			Token:   "2f9c1a",
			Reason:  8,
			Payload: []byte("bye"),
		},
	}

	data, err := EncodePacket(pkt)
	require.NoError(t, err)

	got, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, pkt, got)
}

func TestDecodeRequestRejectsGarbage(t *testing.T) {
	_, err := DecodeRequest([]byte{0xFF})
	assert.Error(t, err)
}

func TestConnHandleDeathWatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	h := NewConnHandle(framing.NewConn(server))

	var fired atomic.Int32
	h.WatchForDeath(func() { fired.Add(1) })

	h.NotifyDeath()
	h.NotifyDeath()
	assert.EqualValues(t, 1, fired.Load(), "death fires watchers exactly once")

	// Registering on a dead handle fires immediately.
	h.WatchForDeath(func() { fired.Add(1) })
	assert.EqualValues(t, 2, fired.Load())
}

func TestConnHandleInvokeAfterDeath(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	h := NewConnHandle(framing.NewConn(server))

	h.NotifyDeath()
	err := h.Invoke(Event{Type: EvMessage, Token: "t"})
	assert.ErrorIs(t, err, ErrRemoteUnreachable)
}

func TestClientCallAndEvents(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	framed := framing.NewConn(serverConn)

	events := make(chan Event, 4)
	client := NewClient(clientConn, func(ev Event) { events <- ev })
	defer client.Close()

	// Daemon side: answer the first request and then push one event.
	go func() {
		data, err := framed.ReadMessage()
		if err != nil {
			return
		}
		req, err := DecodeRequest(data)
		if err != nil {
			return
		}
		resp, _ := EncodePacket(&Packet{
			Kind:     KindResponse,
			Response: Response{Status: StatusOK, Token: req.HostID + "-token"},
		})
		_ = framed.WriteMessage(resp)

		ev, _ := EncodePacket(&Packet{
			Kind:  KindEvent,
			Event: Event{Type: EvChannelOpen, Token: "t1", Payload: []byte{0xCA}},
		})
		_ = framed.WriteMessage(ev)
	}()

	resp, err := client.Call(&Request{Op: OpOpenSession, HostID: "host-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "host-1-token", resp.Token)

	select {
	case ev := <-events:
		assert.Equal(t, EvChannelOpen, ev.Type)
		assert.Equal(t, "t1", ev.Token)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestCallFailsWhenConnectionDies(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	client := NewClient(clientConn, nil)
	defer client.Close()

	go func() {
		// Swallow the request, then drop the socket without answering.
		framed := framing.NewConn(serverConn)
		_, _ = framed.ReadMessage()
		_ = framed.Close()
	}()

	_, err := client.Call(&Request{Op: OpPay, Token: "t"})
	assert.ErrorIs(t, err, ErrRemoteUnreachable)
}
