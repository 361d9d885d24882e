package a2a

import (
	"errors"
	"fmt"
)

// ErrorCode is a JSON-RPC 2.0 / A2A protocol error code. JSON-RPC 2.0
// reserves -32768 to -32000: -32700 and -32600 to -32603 are its predefined
// errors, and the A2A protocol's own codes (-32001 to -32007) sit in the
// server-error part of that range.
type ErrorCode int

// Error codes used uniformly by the server and any ServerTransport.
const (
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603

	CodeTaskNotFound                            ErrorCode = -32001
	CodeTaskNotCancelable                       ErrorCode = -32002
	CodePushNotificationNotSupported            ErrorCode = -32003
	CodeUnsupportedOperation                    ErrorCode = -32004
	CodeContentTypeNotSupported                 ErrorCode = -32005
	CodeInvalidAgentResponse                    ErrorCode = -32006
	CodeAuthenticatedExtendedCardNotConfigured  ErrorCode = -32007
)

// Error is a protocol error: a typed failure carrying a wire error code and
// message, as defined by §4.1 of the protocol error taxonomy. The transport
// maps an Error to a JSON-RPC error object, preserving Code and Message
// verbatim. Any other error reaching the transport or session boundary is
// wrapped as InternalError (see NewInternalError).
type Error struct {
	Code    ErrorCode
	Message string
	// Cause is the underlying error that produced this protocol error, if
	// any. It is not part of the wire representation; it exists for logs
	// and errors.Unwrap.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, allowing
// errors.Is(err, a2a.ErrTaskNotFound) style sentinel comparisons.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// NewParseError reports that the request body could not be decoded.
func NewParseError(cause error) *Error {
	return &Error{Code: CodeParseError, Message: "request body not decodable", Cause: cause}
}

// NewInvalidRequest reports a structurally invalid JSON-RPC request.
func NewInvalidRequest(msg string) *Error {
	return newError(CodeInvalidRequest, msg)
}

// NewMethodNotFound reports an unknown A2A method name.
func NewMethodNotFound(method string) *Error {
	return newError(CodeMethodNotFound, fmt.Sprintf("unknown method %q", method))
}

// NewInvalidParams reports that request params failed a schema or semantic
// check (for example, a contextId mismatch).
func NewInvalidParams(msg string) *Error {
	return newError(CodeInvalidParams, msg)
}

// NewInternalError wraps any non-protocol failure, preserving its message.
// Any exception leaving the agent executor that is not already an *Error
// must be wrapped with this constructor before it crosses the Session
// boundary.
func NewInternalError(cause error) *Error {
	if cause == nil {
		return newError(CodeInternalError, "internal error")
	}
	return &Error{Code: CodeInternalError, Message: cause.Error(), Cause: cause}
}

// NewTaskNotFound reports that taskId is not present in TaskStorage.
func NewTaskNotFound(taskID string) *Error {
	return newError(CodeTaskNotFound, fmt.Sprintf("task %q not found", taskID))
}

// NewTaskNotCancelable reports a cancel attempt against a task that has
// already reached a terminal state other than Canceled.
func NewTaskNotCancelable(taskID string) *Error {
	return newError(CodeTaskNotCancelable, fmt.Sprintf("task %q is not cancelable", taskID))
}

// NewPushNotificationNotSupported reports that the agent card's capability
// flag is false, or no PushNotificationConfigStorage is configured.
func NewPushNotificationNotSupported() *Error {
	return newError(CodePushNotificationNotSupported, "push notifications are not supported")
}

// NewUnsupportedOperation reports streaming requested on a non-streaming
// agent card, resubscription to an unknown/finished task, or a send to an
// already-running task.
func NewUnsupportedOperation(msg string) *Error {
	return newError(CodeUnsupportedOperation, msg)
}

// NewInvalidAgentResponse reports that the agent executor produced an event
// shape the session processor does not recognize as legal.
func NewInvalidAgentResponse(msg string) *Error {
	return newError(CodeInvalidAgentResponse, msg)
}

// NewAuthenticatedExtendedCardNotConfigured reports that
// agent/getAuthenticatedExtendedCard was called but no extended card is
// configured or the capability flag is false.
func NewAuthenticatedExtendedCardNotConfigured() *Error {
	return newError(CodeAuthenticatedExtendedCardNotConfigured, "authenticated extended card not configured")
}

// AsError reports whether err is (or wraps) an *Error, returning it if so.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
