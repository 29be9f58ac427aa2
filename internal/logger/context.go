package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for IPC invocations.
type LogContext struct {
	Caller     string    // Caller identity (application ID)
	Token      string    // Session token, once assigned
	Host       string    // Host identifier the channel targets
	RemoteAddr string    // Caller's connection address
	StartTime  time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a caller connection
func NewLogContext(remoteAddr string) *LogContext {
	return &LogContext{
		RemoteAddr: remoteAddr,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithCaller returns a copy with the caller identity set
func (lc *LogContext) WithCaller(caller string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Caller = caller
	}
	return clone
}

// WithToken returns a copy with the session token set
func (lc *LogContext) WithToken(token string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Token = token
	}
	return clone
}

// WithHost returns a copy with the host identifier set
func (lc *LogContext) WithHost(host string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Host = host
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
