// Package storage implements the TaskStorage and MessageStorage contracts
// (spec §4.2): persisting task snapshots and per-context message history,
// and applying the event-delta rules that keep a Task's invariants (§3)
// intact under concurrent readers and a single serialized writer per task.
package storage

import (
	"context"
	"fmt"
	"sync"

	"goa.design/a2a-runtime/a2a"
)

type (
	// TaskStorage persists Task snapshots keyed by taskId and applies the
	// event-delta rules of §4.2.
	TaskStorage interface {
		// Get returns a Task snapshot. historyLength bounds the number of
		// trailing history messages included: 0 means none, nil means all.
		// includeArtifacts controls whether Artifacts is populated.
		Get(ctx context.Context, taskID string, historyLength *int, includeArtifacts bool) (*a2a.Task, error)
		// Update applies an event to storage. e must be *a2a.Task,
		// *a2a.TaskStatusUpdateEvent, or *a2a.TaskArtifactUpdateEvent.
		Update(ctx context.Context, e a2a.Event) error
		// ListByContext returns every task recorded under contextID, in
		// the order their initial Task event was stored.
		ListByContext(ctx context.Context, contextID string) ([]*a2a.Task, error)
	}

	// MessageStorage is an append-only, per-context log of observed
	// messages (user inputs and agent turns).
	MessageStorage interface {
		// Append records a message under its ContextID.
		Append(ctx context.Context, msg a2a.Message) error
		// List returns the ordered messages recorded for contextID.
		List(ctx context.Context, contextID string) ([]a2a.Message, error)
	}

	// ContextTaskStorage is a TaskStorage view bound to one contextId,
	// handed to an AgentExecutor so it cannot observe other contexts'
	// tasks (§4.2).
	ContextTaskStorage interface {
		Get(ctx context.Context, taskID string, historyLength *int, includeArtifacts bool) (*a2a.Task, error)
		ListByContext(ctx context.Context) ([]*a2a.Task, error)
	}

	// ContextMessageStorage is a MessageStorage view bound to one
	// contextId.
	ContextMessageStorage interface {
		List(ctx context.Context) ([]a2a.Message, error)
	}
)

// NewContextTaskStorage binds store to contextID, offering a read-only view
// scoped to that context.
func NewContextTaskStorage(store TaskStorage, contextID string) ContextTaskStorage {
	return &boundTaskStorage{store: store, contextID: contextID}
}

// NewContextMessageStorage binds store to contextID.
func NewContextMessageStorage(store MessageStorage, contextID string) ContextMessageStorage {
	return &boundMessageStorage{store: store, contextID: contextID}
}

type boundTaskStorage struct {
	store     TaskStorage
	contextID string
}

func (b *boundTaskStorage) Get(ctx context.Context, taskID string, historyLength *int, includeArtifacts bool) (*a2a.Task, error) {
	task, err := b.store.Get(ctx, taskID, historyLength, includeArtifacts)
	if err != nil {
		return nil, err
	}
	if task.ContextID != b.contextID {
		return nil, fmt.Errorf("task %q belongs to context %q, not %q", taskID, task.ContextID, b.contextID)
	}
	return task, nil
}

func (b *boundTaskStorage) ListByContext(ctx context.Context) ([]*a2a.Task, error) {
	return b.store.ListByContext(ctx, b.contextID)
}

type boundMessageStorage struct {
	store     MessageStorage
	contextID string
}

func (b *boundMessageStorage) List(ctx context.Context) ([]a2a.Message, error) {
	return b.store.List(ctx, b.contextID)
}

// inMemoryTaskStorage is the reference TaskStorage implementation. Safe for
// concurrent readers; writes are serialized by an internal mutex. Per-taskId
// write ordering across a run is additionally the owning
// SessionEventProcessor's responsibility; this storage does not itself
// enforce it.
type inMemoryTaskStorage struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
	// order preserves per-context task insertion order for ListByContext.
	order map[string][]string
}

// NewInMemoryTaskStorage constructs the reference in-memory TaskStorage.
func NewInMemoryTaskStorage() TaskStorage {
	return &inMemoryTaskStorage{
		tasks: make(map[string]*a2a.Task),
		order: make(map[string][]string),
	}
}

func (s *inMemoryTaskStorage) Get(_ context.Context, taskID string, historyLength *int, includeArtifacts bool) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, a2a.NewTaskNotFound(taskID)
	}
	return snapshot(task, historyLength, includeArtifacts), nil
}

func (s *inMemoryTaskStorage) Update(_ context.Context, e a2a.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch v := e.(type) {
	case *a2a.Task:
		if _, exists := s.tasks[v.ID]; exists {
			return a2a.NewInvalidAgentResponse(fmt.Sprintf("task %q already exists", v.ID))
		}
		cp := cloneTask(v)
		s.tasks[v.ID] = cp
		s.order[v.ContextID] = append(s.order[v.ContextID], v.ID)
		return nil

	case *a2a.TaskStatusUpdateEvent:
		task, ok := s.tasks[v.TaskID]
		if !ok {
			return a2a.NewTaskNotFound(v.TaskID)
		}
		if task.ContextID != v.ContextID {
			return a2a.NewInvalidParams(fmt.Sprintf("context mismatch for task %q: have %q, event carries %q", v.TaskID, task.ContextID, v.ContextID))
		}
		task.Status = v.Status
		if v.Status.Message != nil {
			task.History = append(task.History, *v.Status.Message)
		}
		return nil

	case *a2a.TaskArtifactUpdateEvent:
		task, ok := s.tasks[v.TaskID]
		if !ok {
			return a2a.NewTaskNotFound(v.TaskID)
		}
		if task.ContextID != v.ContextID {
			return a2a.NewInvalidParams(fmt.Sprintf("context mismatch for task %q: have %q, event carries %q", v.TaskID, task.ContextID, v.ContextID))
		}
		applyArtifact(task, v)
		return nil

	default:
		return a2a.NewInvalidAgentResponse(fmt.Sprintf("unexpected event type %T for storage update", e))
	}
}

func (s *inMemoryTaskStorage) ListByContext(_ context.Context, contextID string) ([]*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[contextID]
	out := make([]*a2a.Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok {
			out = append(out, snapshot(task, nil, true))
		}
	}
	return out, nil
}

// applyArtifact implements the append/replace rule of §4.2: Append == true
// with a matching artifactId concatenates parts; otherwise the artifact is
// inserted or replaced wholesale.
func applyArtifact(task *a2a.Task, e *a2a.TaskArtifactUpdateEvent) {
	if e.Append {
		for i := range task.Artifacts {
			if task.Artifacts[i].ArtifactID == e.Artifact.ArtifactID {
				task.Artifacts[i].Parts = append(task.Artifacts[i].Parts, e.Artifact.Parts...)
				return
			}
		}
	}
	for i := range task.Artifacts {
		if task.Artifacts[i].ArtifactID == e.Artifact.ArtifactID {
			task.Artifacts[i] = e.Artifact
			return
		}
	}
	task.Artifacts = append(task.Artifacts, e.Artifact)
}

// snapshot returns a defensive copy of task, bounding history per
// historyLength (nil = all, 0 = none) and optionally omitting artifacts.
func snapshot(task *a2a.Task, historyLength *int, includeArtifacts bool) *a2a.Task {
	cp := *task
	cp.History = boundHistory(task.History, historyLength)
	if includeArtifacts {
		cp.Artifacts = append([]a2a.Artifact(nil), task.Artifacts...)
	} else {
		cp.Artifacts = nil
	}
	return &cp
}

func boundHistory(history []a2a.Message, historyLength *int) []a2a.Message {
	if historyLength == nil {
		return append([]a2a.Message(nil), history...)
	}
	n := *historyLength
	if n <= 0 {
		return nil
	}
	if n >= len(history) {
		return append([]a2a.Message(nil), history...)
	}
	return append([]a2a.Message(nil), history[len(history)-n:]...)
}

func cloneTask(task *a2a.Task) *a2a.Task {
	cp := *task
	cp.History = append([]a2a.Message(nil), task.History...)
	cp.Artifacts = append([]a2a.Artifact(nil), task.Artifacts...)
	return &cp
}

// inMemoryMessageStorage is the reference MessageStorage implementation.
type inMemoryMessageStorage struct {
	mu       sync.RWMutex
	messages map[string][]a2a.Message
}

// NewInMemoryMessageStorage constructs the reference in-memory
// MessageStorage.
func NewInMemoryMessageStorage() MessageStorage {
	return &inMemoryMessageStorage{messages: make(map[string][]a2a.Message)}
}

func (s *inMemoryMessageStorage) Append(_ context.Context, msg a2a.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ContextID] = append(s.messages[msg.ContextID], msg)
	return nil
}

func (s *inMemoryMessageStorage) List(_ context.Context, contextID string) ([]a2a.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]a2a.Message(nil), s.messages[contextID]...), nil
}
