package a2aserver

import (
	"context"
	"fmt"
	"sync"

	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2a/storage"
	"goa.design/a2a-runtime/a2aserver/telemetry"
)

// SessionEventProcessor is the per-run event sink an AgentExecutor drives
// (§4.4). It is bound to one contextId, validates every event the executor
// produces, applies task events to storage, and re-broadcasts everything on
// a hot multi-subscriber stream.
type SessionEventProcessor struct {
	contextID   string
	currentTask string // optional: set when resuming an existing task

	taskStore storage.TaskStorage
	msgStore  storage.MessageStorage
	clock     a2a.Clock
	logger    telemetry.Logger

	stream       *eventStream
	replayPolicy ReplayPolicy

	mu        sync.Mutex
	taskIDs   map[string]struct{}
	lastState map[string]a2a.TaskState
	closed    bool
}

// ProcessorOption configures a SessionEventProcessor.
type ProcessorOption func(*SessionEventProcessor)

// WithCurrentTask binds the processor to an existing taskId, as happens when
// message/send resumes a paused task (§4.7).
func WithCurrentTask(taskID string) ProcessorOption {
	return func(p *SessionEventProcessor) { p.currentTask = taskID }
}

// WithProcessorClock overrides the processor's Clock.
func WithProcessorClock(c a2a.Clock) ProcessorOption {
	return func(p *SessionEventProcessor) { p.clock = c }
}

// WithProcessorLogger overrides the processor's Logger.
func WithProcessorLogger(l telemetry.Logger) ProcessorOption {
	return func(p *SessionEventProcessor) { p.logger = l }
}

// WithReplayPolicy overrides the processor's event stream replay policy.
func WithReplayPolicy(r ReplayPolicy) ProcessorOption {
	return func(p *SessionEventProcessor) { p.replayPolicy = r }
}

// NewSessionEventProcessor constructs a processor bound to contextID.
func NewSessionEventProcessor(contextID string, taskStore storage.TaskStorage, msgStore storage.MessageStorage, opts ...ProcessorOption) *SessionEventProcessor {
	p := &SessionEventProcessor{
		contextID:    contextID,
		taskStore:    taskStore,
		msgStore:     msgStore,
		clock:        a2a.SystemClock,
		logger:       telemetry.NewNoopLogger(),
		taskIDs:      make(map[string]struct{}),
		lastState:    make(map[string]a2a.TaskState),
		replayPolicy: ReplayLastSnapshot,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stream = newEventStream(p.replayPolicy)
	return p
}

// ContextID returns the contextId this processor is bound to.
func (p *SessionEventProcessor) ContextID() string { return p.contextID }

// CurrentTask returns the taskId this processor was resumed for, if any.
func (p *SessionEventProcessor) CurrentTask() (string, bool) {
	return p.currentTask, p.currentTask != ""
}

// TaskIDs returns every taskId observed so far during this run.
func (p *SessionEventProcessor) TaskIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.taskIDs))
	for id := range p.taskIDs {
		out = append(out, id)
	}
	return out
}

// Subscribe attaches a new subscriber to the processor's event stream.
func (p *SessionEventProcessor) Subscribe() *Subscription { return p.stream.subscribe() }

// SendMessage adds message to MessageStorage[contextId] and broadcasts it
// (§4.4). It rejects a message whose ContextID, if set, does not match this
// processor's contextId.
func (p *SessionEventProcessor) SendMessage(ctx context.Context, message a2a.Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errProcessorClosed
	}
	p.mu.Unlock()

	if message.ContextID != "" && message.ContextID != p.contextID {
		return a2a.NewInvalidParams(fmt.Sprintf("message contextId %q does not match session contextId %q", message.ContextID, p.contextID))
	}
	if message.ContextID == "" {
		message.ContextID = p.contextID
	}

	if err := p.msgStore.Append(ctx, message); err != nil {
		return err
	}
	p.stream.publish(message)
	return nil
}

// SendTaskEvent validates, applies to storage, and broadcasts a task event
// (§4.4). e must be *a2a.Task, *a2a.TaskStatusUpdateEvent, or
// *a2a.TaskArtifactUpdateEvent.
func (p *SessionEventProcessor) SendTaskEvent(ctx context.Context, e a2a.Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errProcessorClosed
	}
	p.mu.Unlock()

	taskID, ok := a2a.EventTaskID(e)
	if !ok {
		return a2a.NewInvalidAgentResponse(fmt.Sprintf("unexpected event type %T for sendTaskEvent", e))
	}
	if cid, _ := a2a.EventContextID(e); cid != p.contextID {
		return a2a.NewInvalidParams(fmt.Sprintf("event contextId %q does not match session contextId %q", cid, p.contextID))
	}

	if err := p.taskStore.Update(ctx, e); err != nil {
		return err
	}

	p.mu.Lock()
	p.taskIDs[taskID] = struct{}{}
	if state, ok := eventState(e); ok {
		p.lastState[taskID] = state
	}
	p.mu.Unlock()

	p.stream.publish(e)
	return nil
}

// Close terminates the stream cleanly. It is only legal when the last
// recorded status of every task observed during this run is terminal or a
// pause state (§4.4); otherwise the stream is closed with an InternalError
// and that error is returned.
func (p *SessionEventProcessor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	for taskID, state := range p.lastState {
		if !state.Terminal() && !state.IsPauseState() {
			p.closed = true
			p.mu.Unlock()
			err := a2a.NewInternalError(fmt.Errorf("%w: task %q in state %q", errUnfinalizedTask, taskID, state))
			p.stream.close(err)
			return err
		}
	}
	p.closed = true
	p.mu.Unlock()
	p.stream.close(nil)
	return nil
}

// CloseExceptionally terminates the stream with err as its terminal error.
func (p *SessionEventProcessor) CloseExceptionally(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.stream.close(err)
}

func eventState(e a2a.Event) (a2a.TaskState, bool) {
	switch v := e.(type) {
	case *a2a.Task:
		return v.Status.State, true
	case *a2a.TaskStatusUpdateEvent:
		return v.Status.State, true
	default:
		return "", false
	}
}
