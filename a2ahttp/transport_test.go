package a2ahttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2aserver"
)

type stubHandler struct {
	onGetTask      func(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error)
	onSendMessage  func(ctx context.Context, call a2aserver.CallContext, params a2a.MessageSendParams) (a2a.Event, error)
	onSendStream   func(ctx context.Context, call a2aserver.CallContext, params a2a.MessageSendParams) (*a2aserver.Subscription, error)
	onResubscribe  func(ctx context.Context, params a2a.TaskIDParams) (*a2aserver.Subscription, error)
}

func (s *stubHandler) OnGetAuthenticatedExtendedCard(ctx context.Context, call a2aserver.CallContext) (*a2a.AgentCard, error) {
	return nil, a2a.NewAuthenticatedExtendedCardNotConfigured()
}

func (s *stubHandler) OnSendMessage(ctx context.Context, call a2aserver.CallContext, params a2a.MessageSendParams) (a2a.Event, error) {
	return s.onSendMessage(ctx, call, params)
}

func (s *stubHandler) OnSendMessageStream(ctx context.Context, call a2aserver.CallContext, params a2a.MessageSendParams) (*a2aserver.Subscription, error) {
	return s.onSendStream(ctx, call, params)
}

func (s *stubHandler) OnGetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
	return s.onGetTask(ctx, params)
}

func (s *stubHandler) OnCancelTask(ctx context.Context, params a2a.TaskIDParams) (*a2a.Task, error) {
	return nil, a2a.NewTaskNotFound(params.ID)
}

func (s *stubHandler) OnResubscribe(ctx context.Context, params a2a.TaskIDParams) (*a2aserver.Subscription, error) {
	return s.onResubscribe(ctx, params)
}

func (s *stubHandler) OnGetTaskPushConfig(ctx context.Context, params a2a.GetTaskPushConfigParams) (a2a.PushNotificationConfig, error) {
	return a2a.PushNotificationConfig{}, a2a.NewPushNotificationNotSupported()
}

func (s *stubHandler) OnListTaskPushConfig(ctx context.Context, params a2a.ListTaskPushConfigParams) ([]a2a.PushNotificationConfig, error) {
	return nil, a2a.NewPushNotificationNotSupported()
}

func (s *stubHandler) OnSetTaskPushConfig(ctx context.Context, params a2a.SetTaskPushConfigParams) (a2a.PushNotificationConfig, error) {
	return a2a.PushNotificationConfig{}, a2a.NewPushNotificationNotSupported()
}

func (s *stubHandler) OnDeleteTaskPushConfig(ctx context.Context, params a2a.DeleteTaskPushConfigParams) error {
	return a2a.NewPushNotificationNotSupported()
}

func postJSON(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTransportDispatchesUnaryMethod(t *testing.T) {
	handler := &stubHandler{
		onGetTask: func(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
			require.Equal(t, "t1", params.ID)
			return &a2a.Task{ID: "t1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}, nil
		},
	}
	transport := NewTransport(handler)

	rec := postJSON(t, transport, `{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":"t1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
}

func TestTransportMapsUnknownMethodToMethodNotFound(t *testing.T) {
	transport := NewTransport(&stubHandler{})
	rec := postJSON(t, transport, `{"jsonrpc":"2.0","id":1,"method":"bogus/method"}`)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, int(a2a.CodeMethodNotFound), resp.Error.Code)
}

func TestTransportRejectsMalformedJSON(t *testing.T) {
	transport := NewTransport(&stubHandler{})
	rec := postJSON(t, transport, `not json`)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, int(a2a.CodeParseError), resp.Error.Code)
}

func TestTransportRejectsMissingMethod(t *testing.T) {
	transport := NewTransport(&stubHandler{})
	rec := postJSON(t, transport, `{"jsonrpc":"2.0","id":1}`)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, int(a2a.CodeInvalidRequest), resp.Error.Code)
}

func TestTransportPropagatesHandlerError(t *testing.T) {
	handler := &stubHandler{
		onSendMessage: func(ctx context.Context, call a2aserver.CallContext, params a2a.MessageSendParams) (a2a.Event, error) {
			return nil, a2a.NewInvalidParams("bad message")
		},
	}
	transport := NewTransport(handler)
	rec := postJSON(t, transport, `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1"}}}`)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, int(a2a.CodeInvalidParams), resp.Error.Code)
}

func TestTransportRejectsNonPost(t *testing.T) {
	transport := NewTransport(&stubHandler{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (l *recordingLogger) Debug(context.Context, string, ...any) {}
func (l *recordingLogger) Info(_ context.Context, msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}
func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *recordingLogger) Error(context.Context, string, ...any) {}

func TestTransportLogsDispatchedMethodAndHandlerError(t *testing.T) {
	logger := &recordingLogger{}
	handler := &stubHandler{
		onGetTask: func(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
			return nil, a2a.NewTaskNotFound(params.ID)
		},
	}
	transport := NewTransport(handler, WithTransportLogger(logger))

	rec := postJSON(t, transport, `{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":"missing"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	require.Contains(t, logger.infos, "method dispatched")
	require.Contains(t, logger.warns, "method dispatch failed")
}

func TestTransportStreamingMethodPropagatesHandlerError(t *testing.T) {
	handler := &stubHandler{
		onSendStream: func(ctx context.Context, call a2aserver.CallContext, params a2a.MessageSendParams) (*a2aserver.Subscription, error) {
			return nil, a2a.NewUnsupportedOperation("streaming unavailable in this stub")
		},
	}
	transport := NewTransport(handler)

	rec := postJSON(t, transport, `{"jsonrpc":"2.0","id":1,"method":"message/stream","params":{"message":{"messageId":"m1"}}}`)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, int(a2a.CodeUnsupportedOperation), resp.Error.Code)
}
