// Package a2ahttp is the reference ServerTransport (C8): it decodes
// JSON-RPC 2.0 requests over HTTP, dispatches them to an
// a2aserver.RequestHandler, and frames streaming responses as
// Server-Sent Events. It is intentionally thin — stdlib net/http and
// encoding/json only, since wire framing is out of scope for the
// protocol-facing core (§1) and no concrete transport is required by it.
package a2ahttp

import (
	"encoding/json"

	"goa.design/a2a-runtime/a2a"
)

// jsonrpcVersion is the only JSON-RPC version this transport accepts.
const jsonrpcVersion = "2.0"

type (
	// rpcRequest is the wire envelope of one JSON-RPC call.
	rpcRequest struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}

	// rpcResponse is the wire envelope of one JSON-RPC reply: result XOR
	// error, client id preserved verbatim.
	rpcResponse struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result,omitempty"`
		Error   *rpcError       `json:"error,omitempty"`
	}

	// rpcError is the wire shape of a JSON-RPC error object.
	rpcError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

func newResult(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func newError(id json.RawMessage, err error) rpcResponse {
	return rpcResponse{JSONRPC: jsonrpcVersion, ID: id, Error: toRPCError(err)}
}

// toRPCError maps a protocol a2a.Error to its wire code, preserving code and
// message; any other error is mapped to InternalError (§4.8, §7).
func toRPCError(err error) *rpcError {
	if e, ok := a2a.AsError(err); ok {
		return &rpcError{Code: int(e.Code), Message: e.Message}
	}
	wrapped := a2a.NewInternalError(err)
	return &rpcError{Code: int(wrapped.Code), Message: wrapped.Message}
}
