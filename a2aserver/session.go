package a2aserver

import (
	"context"
	"errors"
	"sync"

	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2aserver/telemetry"
)

// ErrCanceled is returned by an AgentExecutor's execute/cancel to signal
// cooperative cancellation. It is always propagated to Session.Join's
// caller untouched, never wrapped as InternalError (§4.5, §7).
var ErrCanceled = errors.New("session canceled")

// AgentExecutor is the consumed interface driving one agent invocation
// (§6). execute must drive processor until the run reaches a terminal or
// pause state; cancel must cause a concurrently running execute to return
// promptly.
type AgentExecutor interface {
	Execute(ctx context.Context, reqCtx *RequestContext, processor *SessionEventProcessor) error
	Cancel(ctx context.Context, reqCtx *RequestContext, session *Session) error
}

// Session wraps one invocation of AgentExecutor.Execute (§4.5): it owns the
// goroutine running execute, exposes the processor's event stream, and
// reconciles execute's outcome with the stream's lifecycle.
type Session struct {
	processor *SessionEventProcessor
	executor  AgentExecutor
	reqCtx    *RequestContext
	logger    telemetry.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger overrides the session's Logger. Without this option a
// Session logs nothing.
func WithSessionLogger(l telemetry.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession constructs a Session. Call Start to begin execution.
func NewSession(parent context.Context, processor *SessionEventProcessor, executor AgentExecutor, reqCtx *RequestContext, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancelCause(parent)
	s := &Session{
		processor: processor,
		executor:  executor,
		reqCtx:    reqCtx,
		logger:    telemetry.NewNoopLogger(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ContextID delegates to the processor.
func (s *Session) ContextID() string { return s.processor.ContextID() }

// TaskIDs delegates to the processor.
func (s *Session) TaskIDs() []string { return s.processor.TaskIDs() }

// Events exposes the processor's event stream.
func (s *Session) Events() *Subscription { return s.processor.Subscribe() }

// Start schedules execute on a new goroutine.
func (s *Session) Start() {
	s.logger.Info(context.Background(), "session started", "contextId", s.processor.ContextID())
	go func() {
		err := s.executor.Execute(s.ctx, s.reqCtx, s.processor)
		s.finish(err)
	}()
}

func (s *Session) finish(err error) {
	ctx := context.Background()
	contextID := s.processor.ContextID()
	switch {
	case err == nil:
		if cerr := s.processor.Close(); cerr != nil {
			err = cerr
		}
		s.logger.Info(ctx, "session finished", "contextId", contextID)
	case errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled):
		s.processor.CloseExceptionally(ErrCanceled)
		err = ErrCanceled
		s.logger.Info(ctx, "session canceled", "contextId", contextID)
	default:
		if _, ok := a2a.AsError(err); !ok {
			err = a2a.NewInternalError(err)
		}
		s.processor.CloseExceptionally(err)
		s.logger.Error(ctx, "session failed", "contextId", contextID, "error", err)
	}
	s.doneOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Join suspends until execute returns or throws, returning its outcome.
func (s *Session) Join(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close requests cooperative cancellation of execute. It does not close the
// processor itself: the processor is closed when execute returns (see
// finish), so an executor that ignores cancellation keeps the stream open.
// Close does not block for execute to observe cancellation; callers that
// need that should Join afterward.
func (s *Session) Close() {
	s.logger.Info(context.Background(), "session cancel requested", "contextId", s.processor.ContextID())
	s.cancel(ErrCanceled)
}

// Done reports whether the session's execute has returned.
func (s *Session) Done() <-chan struct{} { return s.done }
