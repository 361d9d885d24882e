package a2ahttp

import (
	"context"
	"encoding/json"
	"net/http"

	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2aserver"
	"goa.design/a2a-runtime/a2aserver/telemetry"
)

// streamingMethods names the two RPCs that respond with an SSE stream
// instead of a single JSON body (§4.8).
var streamingMethods = map[string]bool{
	"message/stream":    true,
	"tasks/resubscribe": true,
}

// Transport is the reference ServerTransport (C8): a single http.Handler
// that decodes JSON-RPC 2.0 requests, dispatches them to a RequestHandler,
// and encodes unary results as JSON or streaming results as SSE.
type Transport struct {
	handler a2aserver.RequestHandler
	logger  telemetry.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportLogger overrides the transport's Logger. Without this
// option a Transport logs nothing.
func WithTransportLogger(l telemetry.Logger) TransportOption {
	return func(t *Transport) { t.logger = l }
}

// NewTransport constructs a Transport over handler.
func NewTransport(handler a2aserver.RequestHandler, opts ...TransportOption) *Transport {
	t := &Transport{handler: handler, logger: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ServeHTTP implements http.Handler. Every A2A RPC is POSTed as a JSON-RPC
// 2.0 envelope to this single endpoint; a client-side counterpart would
// decode the same rpcResponse envelope this handler writes.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t.logger.Debug(ctx, "request received", "remoteAddr", r.RemoteAddr)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		t.logger.Warn(ctx, "request decode failed", "error", err)
		t.writeJSON(w, newError(nil, a2a.NewParseError(err)))
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		t.logger.Warn(ctx, "malformed JSON-RPC request", "method", req.Method)
		t.writeJSON(w, newError(req.ID, a2a.NewInvalidRequest("malformed JSON-RPC 2.0 request")))
		return
	}

	t.logger.Info(ctx, "method dispatched", "method", req.Method)
	call := callContextFromRequest(r)

	if streamingMethods[req.Method] {
		t.serveStreaming(w, r, req, call)
		return
	}
	t.serveUnary(w, r, req, call)
}

func (t *Transport) serveUnary(w http.ResponseWriter, r *http.Request, req rpcRequest, call a2aserver.CallContext) {
	ctx := r.Context()

	switch req.Method {
	case "agent/getAuthenticatedExtendedCard":
		card, err := t.handler.OnGetAuthenticatedExtendedCard(ctx, call)
		t.reply(w, req.ID, card, err)

	case "message/send":
		var params a2a.MessageSendParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		event, err := t.handler.OnSendMessage(ctx, call, params)
		t.reply(w, req.ID, event, err)

	case "tasks/get":
		var params a2a.TaskQueryParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		task, err := t.handler.OnGetTask(ctx, params)
		t.reply(w, req.ID, task, err)

	case "tasks/cancel":
		var params a2a.TaskIDParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		task, err := t.handler.OnCancelTask(ctx, params)
		t.reply(w, req.ID, task, err)

	case "tasks/pushNotificationConfig/get":
		var params a2a.GetTaskPushConfigParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		cfg, err := t.handler.OnGetTaskPushConfig(ctx, params)
		t.reply(w, req.ID, cfg, err)

	case "tasks/pushNotificationConfig/list":
		var params a2a.ListTaskPushConfigParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		cfgs, err := t.handler.OnListTaskPushConfig(ctx, params)
		t.reply(w, req.ID, cfgs, err)

	case "tasks/pushNotificationConfig/set":
		var params a2a.SetTaskPushConfigParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		cfg, err := t.handler.OnSetTaskPushConfig(ctx, params)
		t.reply(w, req.ID, cfg, err)

	case "tasks/pushNotificationConfig/delete":
		var params a2a.DeleteTaskPushConfigParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		err := t.handler.OnDeleteTaskPushConfig(ctx, params)
		t.reply(w, req.ID, struct{}{}, err)

	default:
		t.writeJSON(w, newError(req.ID, a2a.NewMethodNotFound(req.Method)))
	}
}

func (t *Transport) serveStreaming(w http.ResponseWriter, r *http.Request, req rpcRequest, call a2aserver.CallContext) {
	ctx := r.Context()

	var (
		sub *a2aserver.Subscription
		err error
	)
	switch req.Method {
	case "message/stream":
		var params a2a.MessageSendParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		sub, err = t.handler.OnSendMessageStream(ctx, call, params)
	case "tasks/resubscribe":
		var params a2a.TaskIDParams
		if !t.decodeParams(w, req, &params) {
			return
		}
		sub, err = t.handler.OnResubscribe(ctx, params)
	}
	if err != nil {
		t.logger.Warn(ctx, "method dispatch failed", "method", req.Method, "error", err)
		t.writeJSON(w, newError(req.ID, err))
		return
	}
	streamSubscription(w, r, sub)
}

func (t *Transport) decodeParams(w http.ResponseWriter, req rpcRequest, dst any) bool {
	if len(req.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		t.writeJSON(w, newError(req.ID, a2a.NewInvalidParams(err.Error())))
		return false
	}
	return true
}

func (t *Transport) reply(w http.ResponseWriter, id json.RawMessage, result any, err error) {
	if err != nil {
		t.logger.Warn(context.Background(), "method dispatch failed", "error", err)
		t.writeJSON(w, newError(id, err))
		return
	}
	t.writeJSON(w, newResult(id, result))
}

func (t *Transport) writeJSON(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// callContextFromRequest extracts the opaque CallContext the core passes
// through to handlers without inspecting (§4.8 step 5): the incoming HTTP
// headers, verbatim.
func callContextFromRequest(r *http.Request) a2aserver.CallContext {
	return a2aserver.CallContext{Headers: map[string][]string(r.Header)}
}
