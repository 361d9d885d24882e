// Package a2aserver implements the protocol-facing core of an A2A agent
// runtime: the per-run event sink (SessionEventProcessor), the execution
// wrapper (Session), the live-session registry (SessionManager), and the
// RequestHandler that maps the ten A2A RPCs onto them.
package a2aserver

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2a/push"
	"goa.design/a2a-runtime/a2a/storage"
	"goa.design/a2a-runtime/a2aserver/telemetry"
)

// RequestHandler is the transport-agnostic dispatcher for the ten A2A RPCs
// (§4.7). A ServerTransport (C8) decodes wire requests, calls the matching
// method, and encodes the result or error back onto the wire.
type RequestHandler interface {
	OnGetAuthenticatedExtendedCard(ctx context.Context, call CallContext) (*a2a.AgentCard, error)
	OnSendMessage(ctx context.Context, call CallContext, params a2a.MessageSendParams) (a2a.Event, error)
	OnSendMessageStream(ctx context.Context, call CallContext, params a2a.MessageSendParams) (*Subscription, error)
	OnGetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error)
	OnCancelTask(ctx context.Context, params a2a.TaskIDParams) (*a2a.Task, error)
	OnResubscribe(ctx context.Context, params a2a.TaskIDParams) (*Subscription, error)
	OnGetTaskPushConfig(ctx context.Context, params a2a.GetTaskPushConfigParams) (a2a.PushNotificationConfig, error)
	OnListTaskPushConfig(ctx context.Context, params a2a.ListTaskPushConfigParams) ([]a2a.PushNotificationConfig, error)
	OnSetTaskPushConfig(ctx context.Context, params a2a.SetTaskPushConfigParams) (a2a.PushNotificationConfig, error)
	OnDeleteTaskPushConfig(ctx context.Context, params a2a.DeleteTaskPushConfigParams) error
}

// A2AServer is the reference RequestHandler implementation (§4.7).
type A2AServer struct {
	card     a2a.AgentCard
	executor AgentExecutor

	taskStore storage.TaskStorage
	msgStore  storage.MessageStorage
	manager   *SessionManager

	pushConfigs push.ConfigStorage
	pushSender  push.Sender

	extendedCard *a2a.AgentCard

	clock   a2a.Clock
	logger  telemetry.Logger
	tracer  telemetry.Tracer
	metrics telemetry.Metrics
}

// ServerOption configures an A2AServer.
type ServerOption func(*A2AServer)

// WithExtendedCard configures the card returned by
// agent/getAuthenticatedExtendedCard. Without this option the RPC always
// fails with AuthenticatedExtendedCardNotConfigured.
func WithExtendedCard(card a2a.AgentCard) ServerOption {
	return func(s *A2AServer) { s.card.SupportsAuthenticatedExtended = true; s.extendedCard = &card }
}

// WithPushNotificationStorage wires push notification config storage and
// delivery. Without this option, push CRUD and delivery are unavailable
// regardless of the AgentCard's capability flag.
func WithPushNotificationStorage(configs push.ConfigStorage, sender push.Sender) ServerOption {
	return func(s *A2AServer) {
		s.pushConfigs = configs
		s.pushSender = sender
	}
}

// WithClock overrides the server's Clock.
func WithClock(c a2a.Clock) ServerOption {
	return func(s *A2AServer) { s.clock = c }
}

// WithLogger overrides the server's Logger.
func WithLogger(l telemetry.Logger) ServerOption {
	return func(s *A2AServer) { s.logger = l }
}

// WithTracer overrides the server's Tracer.
func WithTracer(t telemetry.Tracer) ServerOption {
	return func(s *A2AServer) { s.tracer = t }
}

// WithMetrics overrides the server's Metrics.
func WithMetrics(m telemetry.Metrics) ServerOption {
	return func(s *A2AServer) { s.metrics = m }
}

// NewA2AServer constructs the reference A2AServer.
func NewA2AServer(card a2a.AgentCard, executor AgentExecutor, taskStore storage.TaskStorage, msgStore storage.MessageStorage, opts ...ServerOption) *A2AServer {
	s := &A2AServer{
		card:      card,
		executor:  executor,
		taskStore: taskStore,
		msgStore:  msgStore,
		clock:     a2a.SystemClock,
		logger:    telemetry.NewNoopLogger(),
		tracer:    telemetry.NewNoopTracer(),
		metrics:   telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.manager = NewSessionManager(taskStore,
		WithPushNotifications(s.pushConfigs, s.pushSender),
		WithManagerLogger(s.logger),
		WithManagerMetrics(s.metrics),
	)
	return s
}

// Manager exposes the server's SessionManager, primarily for tests and
// operational introspection.
func (s *A2AServer) Manager() *SessionManager { return s.manager }

// Logger exposes the server's Logger so a ServerTransport constructed
// around this server (e.g. a2ahttp.NewTransport) can log through the same
// backend rather than defaulting to its own no-op.
func (s *A2AServer) Logger() telemetry.Logger { return s.logger }

func (s *A2AServer) requirePush() error {
	if !s.card.Capabilities.PushNotifications || s.pushConfigs == nil || s.pushSender == nil {
		return a2a.NewPushNotificationNotSupported()
	}
	return nil
}

func (s *A2AServer) requireStreaming() error {
	if !s.card.Capabilities.Streaming {
		return a2a.NewUnsupportedOperation("agent does not support streaming")
	}
	return nil
}

// startRPCSpan starts the per-call span for an RPC method, tagging it with
// taskID/contextID when already known at call entry (both are frequently
// empty here and filled in only once the session resolves them).
func (s *A2AServer) startRPCSpan(ctx context.Context, method, taskID, contextID string) (context.Context, telemetry.Span) {
	attrs := []attribute.KeyValue{attribute.String("method", method)}
	if taskID != "" {
		attrs = append(attrs, attribute.String("task_id", taskID))
	}
	if contextID != "" {
		attrs = append(attrs, attribute.String("context_id", contextID))
	}
	return s.tracer.Start(ctx, "a2aserver."+method, trace.WithAttributes(attrs...))
}

// endRPCSpan closes a span started by startRPCSpan, recording err (if any)
// before ending it.
func endRPCSpan(span telemetry.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// OnGetAuthenticatedExtendedCard implements agent/getAuthenticatedExtendedCard.
func (s *A2AServer) OnGetAuthenticatedExtendedCard(ctx context.Context, _ CallContext) (card *a2a.AgentCard, err error) {
	_, span := s.startRPCSpan(ctx, "agent/getAuthenticatedExtendedCard", "", "")
	defer func() { endRPCSpan(span, err) }()

	if s.extendedCard == nil || !s.card.SupportsAuthenticatedExtended {
		return nil, a2a.NewAuthenticatedExtendedCardNotConfigured()
	}
	cp := *s.extendedCard
	return &cp, nil
}

// startSession implements the shared setup of message/send and
// message/stream (§4.7): resolving the target context/task, constructing a
// bound SessionEventProcessor, wrapping it in a Session, and registering it
// with the manager. It does not start the session: the caller subscribes to
// its events first and then calls Start, so no event precedes that
// subscription.
func (s *A2AServer) startSession(ctx context.Context, call CallContext, params a2a.MessageSendParams) (*Session, error) {
	msg := params.Message

	var (
		contextID string
		procOpts  []ProcessorOption
	)

	if msg.TaskID != "" {
		if _, live := s.manager.SessionForTask(msg.TaskID); live {
			return nil, a2a.NewUnsupportedOperation("task still running")
		}
		task, err := s.taskStore.Get(ctx, msg.TaskID, nil, false)
		if err != nil {
			return nil, err
		}
		if msg.ContextID != "" && msg.ContextID != task.ContextID {
			return nil, a2a.NewInvalidParams(fmt.Sprintf("message contextId %q does not match task contextId %q", msg.ContextID, task.ContextID))
		}
		contextID = task.ContextID
		procOpts = append(procOpts, WithCurrentTask(msg.TaskID))
	} else {
		contextID = msg.ContextID
		if contextID == "" {
			contextID = a2a.NewContextID()
		}
	}

	procOpts = append(procOpts, WithProcessorClock(s.clock), WithProcessorLogger(s.logger))
	processor := NewSessionEventProcessor(contextID, s.taskStore, s.msgStore, procOpts...)

	reqCtx := &RequestContext{
		ContextID: contextID,
		Call:      call,
		Params:    params,
		Tasks:     storage.NewContextTaskStorage(s.taskStore, contextID),
		Messages:  storage.NewContextMessageStorage(s.msgStore, contextID),
	}

	session := NewSession(ctx, processor, s.executor, reqCtx, WithSessionLogger(s.logger))
	s.manager.AddSession(session)
	return session, nil
}

// OnSendMessage implements message/send (§4.7).
func (s *A2AServer) OnSendMessage(ctx context.Context, call CallContext, params a2a.MessageSendParams) (event a2a.Event, err error) {
	ctx, span := s.startRPCSpan(ctx, "message/send", params.Message.TaskID, params.Message.ContextID)
	defer func() { endRPCSpan(span, err) }()

	session, err := s.startSession(ctx, call, params)
	if err != nil {
		return nil, err
	}

	sub := session.Events()
	defer sub.Close()
	session.Start()

	if params.Configuration.EffectiveBlocking() {
		var (
			final         a2a.Event
			interruptTask string
		)
		err := sub.Range(ctx, func(e a2a.Event) bool {
			final = e
			if taskID, authRequired := authRequiredInterrupt(e); authRequired {
				interruptTask = taskID
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if interruptTask != "" {
			return s.taskStore.Get(ctx, interruptTask, params.Configuration.EffectiveHistoryLength(), true)
		}
		if final == nil {
			return nil, a2a.NewInternalError(errEmptyEventStream)
		}
		return s.resolveFinalEvent(ctx, params, final)
	}

	var first a2a.Event
	err = sub.Range(ctx, func(e a2a.Event) bool {
		first = e
		return false
	})
	if first == nil {
		if err == nil {
			err = a2a.NewInternalError(errEmptyEventStream)
		}
		return nil, err
	}
	switch first.(type) {
	case a2a.Message, *a2a.Task:
		return first, nil
	default:
		return nil, a2a.NewInternalError(fmt.Errorf("unexpected event type %T as first event", first))
	}
}

// resolveFinalEvent implements step 4 of message/send: a terminal Message is
// returned verbatim; a terminal task event is resolved to the stored
// snapshot with the caller's requested historyLength, artifacts included.
func (s *A2AServer) resolveFinalEvent(ctx context.Context, params a2a.MessageSendParams, final a2a.Event) (a2a.Event, error) {
	if msg, ok := final.(a2a.Message); ok {
		return msg, nil
	}
	taskID, ok := a2a.EventTaskID(final)
	if !ok {
		return nil, a2a.NewInternalError(fmt.Errorf("unexpected event type %T as final event", final))
	}
	task, err := s.taskStore.Get(ctx, taskID, params.Configuration.EffectiveHistoryLength(), true)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// OnSendMessageStream implements message/stream (§4.7).
func (s *A2AServer) OnSendMessageStream(ctx context.Context, call CallContext, params a2a.MessageSendParams) (sub *Subscription, err error) {
	ctx, span := s.startRPCSpan(ctx, "message/stream", params.Message.TaskID, params.Message.ContextID)
	defer func() { endRPCSpan(span, err) }()

	if err := s.requireStreaming(); err != nil {
		return nil, err
	}
	session, err := s.startSession(ctx, call, params)
	if err != nil {
		return nil, err
	}
	sub = session.Events()
	session.Start()
	return sub, nil
}

// OnGetTask implements tasks/get (§4.7).
func (s *A2AServer) OnGetTask(ctx context.Context, params a2a.TaskQueryParams) (task *a2a.Task, err error) {
	ctx, span := s.startRPCSpan(ctx, "tasks/get", params.ID, "")
	defer func() { endRPCSpan(span, err) }()
	return s.taskStore.Get(ctx, params.ID, params.HistoryLength, true)
}

// OnCancelTask implements tasks/cancel (§4.7).
func (s *A2AServer) OnCancelTask(ctx context.Context, params a2a.TaskIDParams) (task *a2a.Task, err error) {
	ctx, span := s.startRPCSpan(ctx, "tasks/cancel", params.ID, "")
	defer func() { endRPCSpan(span, err) }()

	if session, live := s.manager.SessionForTask(params.ID); live {
		contextID := session.ContextID()
		reqCtx := &RequestContext{
			ContextID: contextID,
			Tasks:     storage.NewContextTaskStorage(s.taskStore, contextID),
			Messages:  storage.NewContextMessageStorage(s.msgStore, contextID),
		}
		if err := s.executor.Cancel(ctx, reqCtx, session); err != nil && !isCancellation(err) {
			return nil, a2a.NewInternalError(err)
		}
		session.Close()
		_ = session.Join(ctx)
		s.metrics.IncCounter("a2aserver.task.canceled", 1, "taskId", params.ID)
		return s.taskStore.Get(ctx, params.ID, nil, true)
	}

	t, err := s.taskStore.Get(ctx, params.ID, nil, true)
	if err != nil {
		return nil, err
	}
	if t.Status.State == a2a.TaskStateCanceled {
		return t, nil
	}
	if t.Status.State.Terminal() {
		return nil, a2a.NewUnsupportedOperation(fmt.Sprintf("task %q is already in terminal state %q", params.ID, t.Status.State))
	}

	cancelEvent := &a2a.TaskStatusUpdateEvent{
		TaskID:    t.ID,
		ContextID: t.ContextID,
		Status:    a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: a2a.FormatTimestamp(s.clock())},
		Final:     true,
	}
	if err := s.taskStore.Update(ctx, cancelEvent); err != nil {
		return nil, err
	}
	s.metrics.IncCounter("a2aserver.task.canceled", 1, "taskId", params.ID)
	return s.taskStore.Get(ctx, params.ID, nil, true)
}

// OnResubscribe implements tasks/resubscribe (§4.7).
func (s *A2AServer) OnResubscribe(ctx context.Context, params a2a.TaskIDParams) (sub *Subscription, err error) {
	_, span := s.startRPCSpan(ctx, "tasks/resubscribe", params.ID, "")
	defer func() { endRPCSpan(span, err) }()

	if err := s.requireStreaming(); err != nil {
		return nil, err
	}
	session, live := s.manager.SessionForTask(params.ID)
	if !live {
		return nil, a2a.NewUnsupportedOperation(fmt.Sprintf("task %q has no live session", params.ID))
	}
	return session.Events(), nil
}

// OnGetTaskPushConfig implements tasks/pushNotificationConfig/get (§4.7).
func (s *A2AServer) OnGetTaskPushConfig(ctx context.Context, params a2a.GetTaskPushConfigParams) (cfg a2a.PushNotificationConfig, err error) {
	ctx, span := s.startRPCSpan(ctx, "tasks/pushNotificationConfig/get", params.TaskID, "")
	defer func() { endRPCSpan(span, err) }()

	if err := s.requirePush(); err != nil {
		return a2a.PushNotificationConfig{}, err
	}
	return s.pushConfigs.Get(ctx, params.TaskID, params.ConfigID)
}

// OnListTaskPushConfig implements tasks/pushNotificationConfig/list (§4.7).
func (s *A2AServer) OnListTaskPushConfig(ctx context.Context, params a2a.ListTaskPushConfigParams) (cfgs []a2a.PushNotificationConfig, err error) {
	ctx, span := s.startRPCSpan(ctx, "tasks/pushNotificationConfig/list", params.TaskID, "")
	defer func() { endRPCSpan(span, err) }()

	if err := s.requirePush(); err != nil {
		return nil, err
	}
	return s.pushConfigs.GetAll(ctx, params.TaskID)
}

// OnSetTaskPushConfig implements tasks/pushNotificationConfig/set (§4.7).
func (s *A2AServer) OnSetTaskPushConfig(ctx context.Context, params a2a.SetTaskPushConfigParams) (cfg a2a.PushNotificationConfig, err error) {
	ctx, span := s.startRPCSpan(ctx, "tasks/pushNotificationConfig/set", params.TaskID, "")
	defer func() { endRPCSpan(span, err) }()

	if err := s.requirePush(); err != nil {
		return a2a.PushNotificationConfig{}, err
	}
	return s.pushConfigs.Save(ctx, params.TaskID, params.Config)
}

// OnDeleteTaskPushConfig implements tasks/pushNotificationConfig/delete (§4.7).
func (s *A2AServer) OnDeleteTaskPushConfig(ctx context.Context, params a2a.DeleteTaskPushConfigParams) (err error) {
	ctx, span := s.startRPCSpan(ctx, "tasks/pushNotificationConfig/delete", params.TaskID, "")
	defer func() { endRPCSpan(span, err) }()

	if err := s.requirePush(); err != nil {
		return err
	}
	return s.pushConfigs.Delete(ctx, params.TaskID, params.ConfigID)
}

func isCancellation(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// authRequiredInterrupt reports whether e is a task event announcing
// AuthRequired, and if so its taskId. A non-streaming blocking caller is
// unblocked as soon as the task pauses for auth rather than waiting for a
// terminal state that will never arrive without client action (supplements
// §4.7's blocking contract; grounded on the vendored A2A SDK's
// shouldInterruptNonStreaming).
func authRequiredInterrupt(e a2a.Event) (string, bool) {
	switch v := e.(type) {
	case *a2a.Task:
		return v.ID, v.Status.State == a2a.TaskStateAuthRequired
	case *a2a.TaskStatusUpdateEvent:
		return v.TaskID, v.Status.State == a2a.TaskStateAuthRequired
	default:
		return "", false
	}
}
