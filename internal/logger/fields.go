package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that session,
// caller, and link activity can be correlated when aggregating logs.
const (
	// ========================================================================
	// Session & Caller
	// ========================================================================
	KeyToken      = "token"       // Session token binding a caller to channel state
	KeyCaller     = "caller"      // Caller identity (application ID)
	KeyCallerName = "caller_name" // Caller display name
	KeyHost       = "host"        // Host identifier the channel is opened against
	KeyContract   = "contract"    // Channel contract identifier (hex)

	// ========================================================================
	// Link & Transport
	// ========================================================================
	KeyRemoteAddr = "remote_addr" // Remote endpoint address
	KeyLinkState  = "link_state"  // Link state: disconnected, connecting, connected, closing
	KeyQueued     = "queued"      // Number of messages queued for replay
	KeyMsgLen     = "msg_len"     // Wire message payload length

	// ========================================================================
	// Value Accounting
	// ========================================================================
	KeyAmount    = "amount"    // Requested payment amount
	KeyApplied   = "applied"   // Amount actually applied by the protocol
	KeyRemaining = "remaining" // Caller's remaining quota

	// ========================================================================
	// Lifecycle
	// ========================================================================
	KeyReason = "reason" // Channel close reason
	KeyState  = "state"  // Session state

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// Token returns a slog.Attr for a session token
func Token(t string) slog.Attr {
	return slog.String(KeyToken, t)
}

// Caller returns a slog.Attr for a caller identity
func Caller(id string) slog.Attr {
	return slog.String(KeyCaller, id)
}

// CallerName returns a slog.Attr for a caller display name
func CallerName(name string) slog.Attr {
	return slog.String(KeyCallerName, name)
}

// Host returns a slog.Attr for a host identifier
func Host(id string) slog.Attr {
	return slog.String(KeyHost, id)
}

// Contract returns a slog.Attr for a contract identifier (formatted as hex)
func Contract(id []byte) slog.Attr {
	return slog.String(KeyContract, fmt.Sprintf("%x", id))
}

// RemoteAddr returns a slog.Attr for a remote endpoint address
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// LinkState returns a slog.Attr for a link state
func LinkState(state string) slog.Attr {
	return slog.String(KeyLinkState, state)
}

// Queued returns a slog.Attr for the replay queue depth
func Queued(n int) slog.Attr {
	return slog.Int(KeyQueued, n)
}

// MsgLen returns a slog.Attr for a wire message payload length
func MsgLen(n int) slog.Attr {
	return slog.Int(KeyMsgLen, n)
}

// Amount returns a slog.Attr for a requested payment amount
func Amount(v int64) slog.Attr {
	return slog.Int64(KeyAmount, v)
}

// Applied returns a slog.Attr for the amount actually applied
func Applied(v int64) slog.Attr {
	return slog.Int64(KeyApplied, v)
}

// Remaining returns a slog.Attr for a caller's remaining quota
func Remaining(v int64) slog.Attr {
	return slog.Int64(KeyRemaining, v)
}

// Reason returns a slog.Attr for a channel close reason
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// State returns a slog.Attr for a session state
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
