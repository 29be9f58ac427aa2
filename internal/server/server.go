// Package server implements the caller-facing IPC listener of the paylink
// daemon.
//
// Each accepted connection belongs to one caller process. Requests are
// framed and XDR-encoded per pkg/ipc; the connection itself doubles as the
// caller's callback handle and its liveness signal — when the socket drops,
// the caller is declared dead and its sessions are disconnected.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/channel"
	"github.com/marmos91/paylink/pkg/framing"
	"github.com/marmos91/paylink/pkg/ipc"
	"github.com/marmos91/paylink/pkg/registry"
)

// maxConns bounds concurrent caller connections.
const maxConns = 256

// Config holds the IPC listener settings.
type Config struct {
	// Network is "tcp" or "unix".
	Network string

	// Addr is the listen address: host:port for tcp, a socket path for unix.
	Addr string
}

// Server accepts caller connections and dispatches their requests onto the
// registry.
type Server struct {
	config   Config
	registry *registry.Registry

	listener      net.Listener
	shutdown      chan struct{}
	shutdownOnce  sync.Once
	wg            sync.WaitGroup
	listenerReady chan struct{}
	connSemaphore chan struct{}
}

// New creates an IPC server for the given registry.
func New(cfg Config, reg *registry.Registry) *Server {
	return &Server{
		config:        cfg,
		registry:      reg,
		shutdown:      make(chan struct{}),
		listenerReady: make(chan struct{}),
		connSemaphore: make(chan struct{}, maxConns),
	}
}

// Serve binds the listener and blocks accepting connections until the
// context is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen(s.config.Network, s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", s.config.Network, s.config.Addr, err)
	}
	s.listener = listener
	close(s.listenerReady)

	logger.Info("IPC server started",
		"network", s.config.Network, "address", listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	s.acceptLoop()
	s.wg.Wait()
	return nil
}

// WaitReady returns a channel closed once the listener is bound.
func (s *Server) WaitReady() <-chan struct{} {
	return s.listenerReady
}

// Addr returns the bound listener address, useful with port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop shuts the server down: the listener closes, and every live caller
// connection is dropped, which marks those callers dead.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug("IPC accept error", logger.Err(err))
				return
			}
		}

		select {
		case s.connSemaphore <- struct{}{}:
		default:
			logger.Warn("IPC connection limit reached, rejecting",
				logger.RemoteAddr(conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() { <-s.connSemaphore }()
			s.handleConn(c)
		}(conn)
	}
}

// handleConn serves one caller for the lifetime of its connection.
func (s *Server) handleConn(conn net.Conn) {
	framed := framing.NewConn(conn)
	handle := ipc.NewConnHandle(framed)
	remoteAddr := conn.RemoteAddr().String()

	// Connection loss is the death signal: the registry's death watches
	// disconnect (never settle) this caller's sessions.
	defer func() {
		handle.NotifyDeath()
		_ = framed.Close()
	}()

	// The caller's identity is pinned by its first request; a connection
	// cannot switch identities midway.
	var caller string

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		data, err := framed.ReadMessage()
		if err != nil {
			if err != io.EOF {
				logger.Debug("IPC connection lost",
					logger.RemoteAddr(remoteAddr), logger.Err(err))
			}
			return
		}

		req, err := ipc.DecodeRequest(data)
		if err != nil {
			logger.Warn("Dropping undecodable IPC request",
				logger.RemoteAddr(remoteAddr), logger.Err(err))
			return
		}

		if caller == "" {
			caller = req.Caller
		} else if req.Caller != "" && req.Caller != caller {
			s.respond(handle, ipc.Response{
				Status: ipc.StatusInvalidRequest,
				Detail: "caller identity changed mid-connection",
			})
			continue
		}

		resp := s.dispatch(caller, handle, req)
		s.respond(handle, resp)
	}
}

func (s *Server) dispatch(caller string, handle *ipc.ConnHandle, req *ipc.Request) ipc.Response {
	switch req.Op {
	case ipc.OpOpenSession:
		token, err := s.registry.OpenSession(caller, req.HostID, handle)
		if err != nil {
			return errorResponse(err)
		}
		return ipc.Response{Status: ipc.StatusOK, Token: token}

	case ipc.OpPay:
		applied, err := s.registry.Pay(caller, req.Token, req.Amount)
		if err != nil {
			return errorResponse(err)
		}
		return ipc.Response{Status: ipc.StatusOK, Applied: applied}

	case ipc.OpClose:
		if err := s.registry.Close(caller, req.Token, req.CounterpartyClose); err != nil {
			return errorResponse(err)
		}
		return ipc.Response{Status: ipc.StatusOK}

	case ipc.OpMessage:
		if err := s.registry.MessageReceived(caller, req.Token, req.Payload); err != nil {
			return errorResponse(err)
		}
		return ipc.Response{Status: ipc.StatusOK}

	default:
		return ipc.Response{
			Status: ipc.StatusInvalidRequest,
			Detail: fmt.Sprintf("unknown operation %d", req.Op),
		}
	}
}

func (s *Server) respond(handle *ipc.ConnHandle, resp ipc.Response) {
	if err := handle.Respond(resp); err != nil && !errors.Is(err, ipc.ErrRemoteUnreachable) {
		logger.Warn("IPC response write failed", logger.Err(err))
	}
}

// errorResponse maps the channel error taxonomy onto wire statuses.
func errorResponse(err error) ipc.Response {
	status := ipc.StatusInternal
	if code, ok := channel.CodeOf(err); ok {
		switch code {
		case channel.CodeInvalidState:
			status = ipc.StatusInvalidState
		case channel.CodeInvalidRequest:
			status = ipc.StatusInvalidRequest
		case channel.CodeNoSuchChannel:
			status = ipc.StatusNoSuchChannel
		case channel.CodeNotSpendable:
			status = ipc.StatusNotSpendable
		case channel.CodeInsufficientValue:
			status = ipc.StatusInsufficientValue
		}
	}
	return ipc.Response{Status: status, Detail: err.Error()}
}
