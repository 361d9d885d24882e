package a2aserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2a/push"
	"goa.design/a2a-runtime/a2a/storage"
	"goa.design/a2a-runtime/a2aserver/telemetry"
)

// recordingSpan and recordingTracer capture every span started and its
// recorded status, so tests can assert the per-RPC tracing contract without
// a real OTEL exporter.
type recordingSpan struct {
	mu     *sync.Mutex
	ended  *bool
	status *codes.Code
}

func (s recordingSpan) End(...trace.SpanEndOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.ended = true
}
func (recordingSpan) AddEvent(string, ...any) {}
func (s recordingSpan) SetStatus(code codes.Code, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.status = code
}
func (recordingSpan) RecordError(error, ...trace.EventOption) {}

type recordingTracer struct {
	mu    sync.Mutex
	spans []string
}

func (t *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, telemetry.Span) {
	t.mu.Lock()
	t.spans = append(t.spans, name)
	t.mu.Unlock()
	var ended bool
	var status codes.Code
	return ctx, recordingSpan{mu: &t.mu, ended: &ended, status: &status}
}
func (t *recordingTracer) Span(context.Context) telemetry.Span { return recordingSpan{mu: &t.mu, ended: new(bool), status: new(codes.Code)} }

func (t *recordingTracer) names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.spans...)
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters []string
}

func (m *recordingMetrics) IncCounter(name string, _ float64, _ ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, name)
}
func (*recordingMetrics) RecordTimer(string, time.Duration, ...string) {}
func (*recordingMetrics) RecordGauge(string, float64, ...string)       {}

func (m *recordingMetrics) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.counters...)
}

func testCard(streaming, pushSupport bool) a2a.AgentCard {
	return a2a.AgentCard{
		Name: "test-agent",
		Capabilities: a2a.AgentCapabilities{
			Streaming:         streaming,
			PushNotifications: pushSupport,
		},
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestOnSendMessageNonBlockingReturnsFirstEvent(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()

	exec := &funcExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, p *SessionEventProcessor) error {
		if err := p.SendTaskEvent(ctx, &a2a.Task{ID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted}}); err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
		return p.SendTaskEvent(ctx, &a2a.TaskStatusUpdateEvent{TaskID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}, Final: true})
	}}

	server := NewA2AServer(testCard(false, false), exec, taskStore, msgStore)

	params := a2a.MessageSendParams{
		Message:       a2a.Message{MessageID: "m1"},
		Configuration: &a2a.MessageConfiguration{Blocking: boolPtr(false)},
	}
	event, err := server.OnSendMessage(context.Background(), CallContext{}, params)
	require.NoError(t, err)
	task, ok := event.(*a2a.Task)
	require.True(t, ok)
	require.Equal(t, a2a.TaskStateSubmitted, task.Status.State)
}

func TestOnSendMessageBlockingAwaitsCompletion(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()

	exec := &funcExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, p *SessionEventProcessor) error {
		if err := p.SendTaskEvent(ctx, &a2a.Task{ID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}); err != nil {
			return err
		}
		return p.SendTaskEvent(ctx, &a2a.TaskStatusUpdateEvent{TaskID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}, Final: true})
	}}

	server := NewA2AServer(testCard(false, false), exec, taskStore, msgStore)

	params := a2a.MessageSendParams{
		Message:       a2a.Message{MessageID: "m1"},
		Configuration: &a2a.MessageConfiguration{HistoryLength: intPtr(0)},
	}
	event, err := server.OnSendMessage(context.Background(), CallContext{}, params)
	require.NoError(t, err)
	task, ok := event.(*a2a.Task)
	require.True(t, ok)
	require.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestOnSendMessageBlockingInterruptsOnAuthRequired(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()

	exec := &funcExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, p *SessionEventProcessor) error {
		return p.SendTaskEvent(ctx, &a2a.Task{ID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateAuthRequired}})
	}}

	server := NewA2AServer(testCard(false, false), exec, taskStore, msgStore)

	event, err := server.OnSendMessage(context.Background(), CallContext{}, a2a.MessageSendParams{Message: a2a.Message{MessageID: "m1"}})
	require.NoError(t, err)
	task, ok := event.(*a2a.Task)
	require.True(t, ok)
	require.Equal(t, a2a.TaskStateAuthRequired, task.Status.State)
}

func TestOnSendMessageStreamRequiresStreamingCapability(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	exec := &funcExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, p *SessionEventProcessor) error {
		return p.SendTaskEvent(ctx, &a2a.Task{ID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}})
	}}
	server := NewA2AServer(testCard(false, false), exec, taskStore, msgStore)

	_, err := server.OnSendMessageStream(context.Background(), CallContext{}, a2a.MessageSendParams{Message: a2a.Message{MessageID: "m1"}})
	require.Error(t, err)
	e, ok := a2a.AsError(err)
	require.True(t, ok)
	require.Equal(t, a2a.CodeUnsupportedOperation, e.Code)
}

func TestOnSendMessageStreamDeliversEvents(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	exec := &funcExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, p *SessionEventProcessor) error {
		if err := p.SendTaskEvent(ctx, &a2a.Task{ID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}); err != nil {
			return err
		}
		return p.SendTaskEvent(ctx, &a2a.TaskStatusUpdateEvent{TaskID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}, Final: true})
	}}
	server := NewA2AServer(testCard(true, false), exec, taskStore, msgStore)

	sub, err := server.OnSendMessageStream(context.Background(), CallContext{}, a2a.MessageSendParams{Message: a2a.Message{MessageID: "m1"}})
	require.NoError(t, err)
	defer sub.Close()

	var states []a2a.TaskState
	for i := 0; i < 2; i++ {
		select {
		case e := <-sub.Events():
			state, _ := eventState(e)
			states = append(states, state)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for streamed event")
		}
	}
	require.Equal(t, []a2a.TaskState{a2a.TaskStateWorking, a2a.TaskStateCompleted}, states)
}

func TestOnCancelTaskLiveSessionCooperativeCancel(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()

	started := make(chan struct{})
	exec := &funcExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, p *SessionEventProcessor) error {
		if err := p.SendTaskEvent(ctx, &a2a.Task{ID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}); err != nil {
			return err
		}
		close(started)
		<-ctx.Done()
		if err := p.SendTaskEvent(context.Background(), &a2a.TaskStatusUpdateEvent{TaskID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateCanceled}, Final: true}); err != nil {
			return err
		}
		return ErrCanceled
	}}
	server := NewA2AServer(testCard(false, false), exec, taskStore, msgStore)

	_, err := server.OnSendMessage(context.Background(), CallContext{}, a2a.MessageSendParams{
		Message:       a2a.Message{MessageID: "m1"},
		Configuration: &a2a.MessageConfiguration{Blocking: boolPtr(false)},
	})
	require.NoError(t, err)
	<-started

	task, err := server.OnCancelTask(context.Background(), a2a.TaskIDParams{ID: "t1"})
	require.NoError(t, err)
	require.Equal(t, a2a.TaskStateCanceled, task.Status.State)
}

func TestOnCancelTaskAlreadyTerminalFails(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	require.NoError(t, taskStore.Update(context.Background(), &a2a.Task{ID: "t1", ContextID: "c1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}))

	server := NewA2AServer(testCard(false, false), &funcExecutor{}, taskStore, msgStore)
	_, err := server.OnCancelTask(context.Background(), a2a.TaskIDParams{ID: "t1"})
	require.Error(t, err)
	e, ok := a2a.AsError(err)
	require.True(t, ok)
	require.Equal(t, a2a.CodeUnsupportedOperation, e.Code)
}

func TestOnCancelTaskWritesCanceledEventForIdleTask(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	require.NoError(t, taskStore.Update(context.Background(), &a2a.Task{ID: "t1", ContextID: "c1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted}}))

	server := NewA2AServer(testCard(false, false), &funcExecutor{}, taskStore, msgStore)
	task, err := server.OnCancelTask(context.Background(), a2a.TaskIDParams{ID: "t1"})
	require.NoError(t, err)
	require.Equal(t, a2a.TaskStateCanceled, task.Status.State)
}

func TestOnResubscribeRequiresLiveSession(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	server := NewA2AServer(testCard(true, false), &funcExecutor{}, taskStore, msgStore)

	_, err := server.OnResubscribe(context.Background(), a2a.TaskIDParams{ID: "missing"})
	require.Error(t, err)
}

func TestPushConfigCRUDRequiresCapability(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	server := NewA2AServer(testCard(false, false), &funcExecutor{}, taskStore, msgStore)

	_, err := server.OnSetTaskPushConfig(context.Background(), a2a.SetTaskPushConfigParams{TaskID: "t1", Config: a2a.PushNotificationConfig{ID: "cfg1"}})
	require.Error(t, err)
	e, ok := a2a.AsError(err)
	require.True(t, ok)
	require.Equal(t, a2a.CodePushNotificationNotSupported, e.Code)
}

func TestPushConfigCRUDWithCapability(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	configs := push.NewInMemoryConfigStorage()
	sender := fakeSenderFunc(func(ctx context.Context, cfg a2a.PushNotificationConfig, task *a2a.Task) error { return nil })

	server := NewA2AServer(testCard(false, true), &funcExecutor{}, taskStore, msgStore, WithPushNotificationStorage(configs, sender))

	cfg, err := server.OnSetTaskPushConfig(context.Background(), a2a.SetTaskPushConfigParams{TaskID: "t1", Config: a2a.PushNotificationConfig{ID: "cfg1", URL: "https://example.com"}})
	require.NoError(t, err)
	require.Equal(t, "cfg1", cfg.ID)

	all, err := server.OnListTaskPushConfig(context.Background(), a2a.ListTaskPushConfigParams{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, server.OnDeleteTaskPushConfig(context.Background(), a2a.DeleteTaskPushConfigParams{TaskID: "t1", ConfigID: "cfg1"}))
}

func TestRPCHandlersStartAndEndASpanPerCall(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	tracer := &recordingTracer{}
	server := NewA2AServer(testCard(false, false), &funcExecutor{}, taskStore, msgStore, WithTracer(tracer))

	_, _ = server.OnGetAuthenticatedExtendedCard(context.Background(), CallContext{})
	_, _ = server.OnGetTask(context.Background(), a2a.TaskQueryParams{ID: "missing"})

	names := tracer.names()
	require.Contains(t, names, "a2aserver.agent/getAuthenticatedExtendedCard")
	require.Contains(t, names, "a2aserver.tasks/get")
}

func TestOnCancelTaskIncrementsCanceledCounter(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	require.NoError(t, taskStore.Update(context.Background(), &a2a.Task{ID: "t1", ContextID: "c1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted}}))

	metrics := &recordingMetrics{}
	server := NewA2AServer(testCard(false, false), &funcExecutor{}, taskStore, msgStore, WithMetrics(metrics))

	_, err := server.OnCancelTask(context.Background(), a2a.TaskIDParams{ID: "t1"})
	require.NoError(t, err)
	require.Contains(t, metrics.names(), "a2aserver.task.canceled")
}

func TestSessionManagerIncrementsTaskCreatedCounter(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	metrics := &recordingMetrics{}

	exec := &funcExecutor{execute: func(ctx context.Context, reqCtx *RequestContext, p *SessionEventProcessor) error {
		return p.SendTaskEvent(ctx, &a2a.Task{ID: "t1", ContextID: reqCtx.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}})
	}}
	server := NewA2AServer(testCard(false, false), exec, taskStore, msgStore, WithMetrics(metrics))

	_, err := server.OnSendMessage(context.Background(), CallContext{}, a2a.MessageSendParams{Message: a2a.Message{MessageID: "m1"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, name := range metrics.names() {
			if name == "a2aserver.task.created" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestOnGetAuthenticatedExtendedCardNotConfigured(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	server := NewA2AServer(testCard(false, false), &funcExecutor{}, taskStore, msgStore)

	_, err := server.OnGetAuthenticatedExtendedCard(context.Background(), CallContext{})
	require.Error(t, err)
	e, ok := a2a.AsError(err)
	require.True(t, ok)
	require.Equal(t, a2a.CodeAuthenticatedExtendedCardNotConfigured, e.Code)
}

func TestOnGetAuthenticatedExtendedCardConfigured(t *testing.T) {
	taskStore := storage.NewInMemoryTaskStorage()
	msgStore := storage.NewInMemoryMessageStorage()
	extended := testCard(true, true)
	extended.Name = "extended"
	server := NewA2AServer(testCard(false, false), &funcExecutor{}, taskStore, msgStore, WithExtendedCard(extended))

	card, err := server.OnGetAuthenticatedExtendedCard(context.Background(), CallContext{})
	require.NoError(t, err)
	require.Equal(t, "extended", card.Name)
}
