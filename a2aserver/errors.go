package a2aserver

import "errors"

var (
	// errSubscriberTooSlow is wrapped in an a2a.Error (InternalError) and
	// delivered only to the offending subscription when its buffer overflows
	// (§5).
	errSubscriberTooSlow = errors.New("subscriber dropped: event buffer full")

	// errProcessorClosed is returned by SessionEventProcessor methods once
	// Close or CloseExceptionally has been called.
	errProcessorClosed = errors.New("event processor closed")

	// errUnfinalizedTask is wrapped in an a2a.Error (InternalError) when
	// Close is called while a task the processor touched is neither in a
	// terminal state nor a pause state (§4.4).
	errUnfinalizedTask = errors.New("close called with a task in a non-terminal, non-pause state")

	// errSessionAlreadyActive names the case of a second Session requested
	// for a taskId that already has a live one. Nothing in this package
	// returns it: A2AServer.startSession rejects that case with an
	// UnsupportedOperation error instead.
	errSessionAlreadyActive = errors.New("a live session already exists for this task")

	// errNotLocked is returned by fifoMutex.unlock when called on a mutex
	// that is not currently held (§4.6).
	errNotLocked = errors.New("unlock called on a mutex that is not locked")

	// errTaskOwnerConflict names the case of the same taskId surfacing from
	// two sessions with overlapping lifetimes, which message/send is gated
	// against. SessionManager does not return or raise it: its watcher logs
	// the conflict and keeps the first session indexed for that taskId.
	errTaskOwnerConflict = errors.New("task id observed from two concurrent sessions")

	// errEmptyEventStream is wrapped in an a2a.Error (InternalError) when an
	// AgentExecutor returns without emitting a single event (§8, "Boundary
	// behaviors").
	errEmptyEventStream = errors.New("agent executor produced no events")
)
