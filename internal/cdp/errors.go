package cdp

import (
	"errors"
	"fmt"
)

// Error codes used in error frames. Handle-lookup failures share the
// generic server-error code; only unknown methods and bad params get the
// JSON-RPC specific ones.
const (
	codeServerError    = -32000
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Error is a command failure that maps onto a CDP error frame. Handlers
// return it (or wrap it); the dispatcher converts it. It is never fatal to
// the session.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func protocolErr(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func methodNotFound(method string) *Error {
	return protocolErr(codeMethodNotFound, "'%s' wasn't found", method)
}

func invalidParams(format string, args ...any) *Error {
	return protocolErr(codeInvalidParams, format, args...)
}

func targetNotFound(targetID string) *Error {
	if targetID == "" {
		return protocolErr(codeServerError, "no target available")
	}
	return protocolErr(codeServerError, "no target with given id found: %s", targetID)
}

func nodeNotFound(nodeID int) *Error {
	return protocolErr(codeServerError, "could not find node with given id: %d", nodeID)
}

func objectNotFound(objectID string) *Error {
	return protocolErr(codeServerError, "could not find object with given id: %s", objectID)
}

func requestNotFound(requestID string) *Error {
	return protocolErr(codeServerError, "invalid interception id: %s", requestID)
}

// errorInfo converts any handler error into the wire representation.
func errorInfo(err error) *ErrorInfo {
	var cdpErr *Error
	if errors.As(err, &cdpErr) {
		return &ErrorInfo{Code: cdpErr.Code, Message: cdpErr.Message}
	}
	return &ErrorInfo{Code: codeServerError, Message: err.Error()}
}
