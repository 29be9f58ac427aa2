package controlplane

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/registry"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Server is the control-plane HTTP server.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a control-plane server listening on addr.
func NewServer(addr string, reg *registry.Registry) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(reg),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Serve runs the HTTP server until the context is cancelled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Control plane started", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control plane serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control plane shutdown: %w", err)
	}
	logger.Info("Control plane stopped")
	return <-errCh
}
