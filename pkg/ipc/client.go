package ipc

import (
	"fmt"
	"net"
	"sync"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/framing"
)

// Client is the caller side of the IPC boundary: it sends requests, waits
// for their responses, and dispatches unsolicited events to a handler.
//
// Requests are serialized — one outstanding at a time — which keeps
// response correlation trivial: the next response frame answers the current
// request. Events may interleave freely and are dispatched from the read
// loop's goroutine.
type Client struct {
	conn    *framing.Conn
	onEvent func(Event)

	reqMu sync.Mutex // one outstanding request at a time
	resp  chan Response
	done  chan struct{}

	closeOnce sync.Once
}

// NewClient wraps an established connection to the daemon. onEvent may be
// nil to ignore events.
func NewClient(conn net.Conn, onEvent func(Event)) *Client {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	c := &Client{
		conn:    framing.NewConn(conn),
		onEvent: onEvent,
		resp:    make(chan Response, 1),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to the daemon's IPC listener.
func Dial(network, addr string, onEvent func(Event)) (*Client, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial daemon at %s: %w", addr, err)
	}
	return NewClient(conn, onEvent), nil
}

// Call sends one request and blocks until its response arrives or the
// connection dies.
func (c *Client) Call(req *Request) (*Response, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	data, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if err := c.conn.WriteMessage(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnreachable, err)
	}

	select {
	case resp := <-c.resp:
		return &resp, nil
	case <-c.done:
		return nil, fmt.Errorf("%w: connection lost", ErrRemoteUnreachable)
	}
}

// Close tears the connection down. In-flight Calls fail with
// ErrRemoteUnreachable.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		pkt, err := DecodePacket(data)
		if err != nil {
			logger.Warn("Dropping undecodable daemon packet", logger.Err(err))
			continue
		}
		switch pkt.Kind {
		case KindResponse:
			select {
			case c.resp <- pkt.Response:
			default:
				// No Call is waiting; the peer violated the one-outstanding-
				// request contract.
				logger.Warn("Dropping unmatched response frame")
			}
		case KindEvent:
			c.onEvent(pkt.Event)
		default:
			logger.Warn("Dropping daemon packet of unknown kind", "kind", pkt.Kind)
		}
	}
}
