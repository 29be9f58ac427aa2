package channel

// CloseReason says why a channel was torn down or never opened.
//
// The vocabulary spans three failure domains: protocol negotiation failures
// (version, time window, requested value), channel lifecycle (exhausted,
// client/server requested), and transport-level trouble (remote errors,
// invalid messages, connection loss).
type CloseReason int

const (
	// ReasonNoAcceptableVersion means version negotiation failed.
	ReasonNoAcceptableVersion CloseReason = iota

	// ReasonTimeWindowTooLarge means the server demanded a lock time too
	// far in the future.
	ReasonTimeWindowTooLarge

	// ReasonServerRequestedTooMuchValue means the server wanted more value
	// committed than the client allows.
	ReasonServerRequestedTooMuchValue

	// ReasonChannelExhausted means the channel ran out of value.
	ReasonChannelExhausted

	// ReasonClientRequestedClose means the local caller asked for teardown.
	ReasonClientRequestedClose

	// ReasonServerRequestedClose means the counterparty asked for teardown.
	ReasonServerRequestedClose

	// ReasonRemoteSentError means the remote side reported a protocol error.
	ReasonRemoteSentError

	// ReasonRemoteSentInvalidMessage means the remote side sent something
	// that failed to parse or was out of order.
	ReasonRemoteSentInvalidMessage

	// ReasonConnectionClosed means the transport died and the link gave up
	// reconnecting.
	ReasonConnectionClosed

	// ReasonUnknown covers everything else.
	ReasonUnknown
)

func (r CloseReason) String() string {
	switch r {
	case ReasonNoAcceptableVersion:
		return "no_acceptable_version"
	case ReasonTimeWindowTooLarge:
		return "time_window_too_large"
	case ReasonServerRequestedTooMuchValue:
		return "server_requested_too_much_value"
	case ReasonChannelExhausted:
		return "channel_exhausted"
	case ReasonClientRequestedClose:
		return "client_requested_close"
	case ReasonServerRequestedClose:
		return "server_requested_close"
	case ReasonRemoteSentError:
		return "remote_sent_error"
	case ReasonRemoteSentInvalidMessage:
		return "remote_sent_invalid_message"
	case ReasonConnectionClosed:
		return "connection_closed"
	default:
		return "unknown"
	}
}
