package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JSON-RPC error codes the translator recognizes. Everything outside this
// set is passed through to callers verbatim.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeResourceNotFound = -32002
)

// ProtocolError is an error object returned by a remote peer over an
// established connection. Code and Message are preserved exactly as
// received.
type ProtocolError struct {
	Code    int64
	Message string
	Data    json.RawMessage
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("jsonrpc error %d", e.Code)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// AsProtocolError unwraps err looking for a peer error object.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsResourceNotFound reports whether err is the peer's resource-not-found
// code.
func IsResourceNotFound(err error) bool {
	perr, ok := AsProtocolError(err)
	return ok && perr.Code == CodeResourceNotFound
}
