package channel

import "fmt"

// Error represents a domain error from channel and session operations.
//
// These are business-rule errors (wrong state, unknown token, quota
// exceeded) as opposed to infrastructure errors (socket failures, framing
// violations). The IPC and HTTP layers translate Error codes to their own
// status vocabularies.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Token is the session token related to the error (if applicable)
	Token string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Token != "" {
		return e.Message + ": " + e.Token
	}
	return e.Message
}

// ErrorCode represents the category of a channel error.
type ErrorCode int

const (
	// CodeInvalidState indicates an operation was invoked in the wrong
	// session or channel state. Surfaced synchronously to the caller.
	CodeInvalidState ErrorCode = iota

	// CodeInvalidRequest indicates a malformed open request; no session
	// is created.
	CodeInvalidRequest

	// CodeNoSuchChannel indicates the token is unknown or owned by a
	// different caller. Cross-tenant access is reported identically to a
	// missing token, never redirected.
	CodeNoSuchChannel

	// CodeNotSpendable indicates the channel is no longer in a spendable
	// state; the owning session is evicted.
	CodeNotSpendable

	// CodeInsufficientValue indicates the requested amount exceeds the
	// caller's remaining quota.
	CodeInsufficientValue

	// CodeValueOutOfRange indicates a value outside the channel's
	// negotiated range; absorbed by the registry, never fatal.
	CodeValueOutOfRange

	// CodeInvalidMessage indicates an inbound message failed to parse;
	// logged and dropped.
	CodeInvalidMessage

	// CodeAlreadyClosed indicates a close was requested on a channel that
	// already closed. Benign during teardown.
	CodeAlreadyClosed
)

// CodeOf extracts the ErrorCode from err, or returns ok=false when err is
// not a channel Error.
func CodeOf(err error) (ErrorCode, bool) {
	if e, ok := err.(*Error); ok {
		return e.Code, true
	}
	return 0, false
}

// HasCode reports whether err is a channel Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// ============================================================================
// Error Factory Functions
// ============================================================================

// NewInvalidStateError creates an Error for an operation invoked in the
// wrong state.
func NewInvalidStateError(op, state string) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: op + " invalid in state " + state,
	}
}

// NewInvalidRequestError creates an Error for a malformed open request.
func NewInvalidRequestError(detail string) *Error {
	return &Error{
		Code:    CodeInvalidRequest,
		Message: "invalid request: " + detail,
	}
}

// NewNoSuchChannelError creates an Error for an unknown or foreign token.
func NewNoSuchChannelError(token string) *Error {
	return &Error{
		Code:    CodeNoSuchChannel,
		Message: "no such channel",
		Token:   token,
	}
}

// NewNotSpendableError creates an Error for a channel that can no longer
// make payments.
func NewNotSpendableError(token string) *Error {
	return &Error{
		Code:    CodeNotSpendable,
		Message: "channel not in spendable state",
		Token:   token,
	}
}

// NewInsufficientValueError creates an Error for a payment exceeding the
// caller's remaining quota.
func NewInsufficientValueError(requested, remaining int64) *Error {
	return &Error{
		Code:    CodeInsufficientValue,
		Message: fmt.Sprintf("insufficient value: requested %d, remaining %d", requested, remaining),
	}
}

// NewValueOutOfRangeError creates an Error for a value outside the
// channel's range.
func NewValueOutOfRangeError(detail string) *Error {
	return &Error{
		Code:    CodeValueOutOfRange,
		Message: "value out of range: " + detail,
	}
}

// NewInvalidMessageError creates an Error for an unparseable inbound
// message.
func NewInvalidMessageError(detail string) *Error {
	return &Error{
		Code:    CodeInvalidMessage,
		Message: "invalid message: " + detail,
	}
}

// NewAlreadyClosedError creates an Error for a close on an already-closed
// channel.
func NewAlreadyClosedError() *Error {
	return &Error{
		Code:    CodeAlreadyClosed,
		Message: "channel already closed",
	}
}
