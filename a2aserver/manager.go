package a2aserver

import (
	"context"
	"fmt"
	"sync"

	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2a/push"
	"goa.design/a2a-runtime/a2a/storage"
	"goa.design/a2a-runtime/a2aserver/telemetry"
)

// SessionManager is the registry of live sessions keyed by taskId (§4.6): it
// indexes sessions as their processors emit Task/TaskStatusUpdateEvent
// events, serializes cross-cutting per-task operations via taskLocks, and
// fires push notifications exactly once per task reaching a terminal state.
type SessionManager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	taskLocks map[string]*fifoMutex

	taskStore   storage.TaskStorage
	pushConfigs push.ConfigStorage
	pushSender  push.Sender
	logger      telemetry.Logger
	metrics     telemetry.Metrics
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithPushNotifications wires the config storage and sender used to deliver
// terminal task snapshots (§4.3, §4.6). Without this option the manager
// performs no push delivery.
func WithPushNotifications(configs push.ConfigStorage, sender push.Sender) ManagerOption {
	return func(m *SessionManager) {
		m.pushConfigs = configs
		m.pushSender = sender
	}
}

// WithManagerLogger overrides the manager's Logger.
func WithManagerLogger(l telemetry.Logger) ManagerOption {
	return func(m *SessionManager) { m.logger = l }
}

// WithManagerMetrics overrides the manager's Metrics.
func WithManagerMetrics(metrics telemetry.Metrics) ManagerOption {
	return func(m *SessionManager) { m.metrics = metrics }
}

// NewSessionManager constructs a SessionManager backed by taskStore for
// fetching terminal snapshots to push.
func NewSessionManager(taskStore storage.TaskStorage, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		sessions:  make(map[string]*Session),
		taskLocks: make(map[string]*fifoMutex),
		taskStore: taskStore,
		logger:    telemetry.NewNoopLogger(),
		metrics:   telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddSession registers session: it is indexed under every taskId its
// processor touches, observed on a background goroutine, and unregistered
// (with push notifications fired for any task that reached a terminal
// state) once the processor's stream terminates (§4.6).
func (m *SessionManager) AddSession(session *Session) {
	sub := session.Events()
	go m.watch(session, sub)
}

func (m *SessionManager) watch(session *Session, sub *Subscription) {
	defer sub.Close()

	lastState := make(map[string]a2a.TaskState)

	_ = sub.Range(context.Background(), func(e a2a.Event) bool {
		taskID, ok := a2a.EventTaskID(e)
		if !ok {
			return true
		}
		if _, ok := e.(*a2a.Task); ok {
			m.metrics.IncCounter("a2aserver.task.created", 1, "taskId", taskID)
		}
		state, hasState := eventState(e)
		if hasState {
			lastState[taskID] = state
		}

		m.mu.Lock()
		if existing, ok := m.sessions[taskID]; ok && existing != session {
			m.mu.Unlock()
			m.logger.Error(context.Background(), "task id observed from two concurrent sessions", "taskId", taskID)
			return true
		}
		m.sessions[taskID] = session
		m.mu.Unlock()
		return true
	})

	m.mu.Lock()
	for taskID, s := range m.sessions {
		if s == session {
			delete(m.sessions, taskID)
		}
	}
	m.mu.Unlock()

	for taskID, state := range lastState {
		if state.Terminal() {
			m.firePushNotifications(taskID)
		}
	}
}

// firePushNotifications delivers the terminal snapshot of taskID to every
// registered push config, concurrently and fire-and-forget (§4.6, §8 S6).
// Failures are logged, never surfaced: callers of the RPC that triggered
// completion must still see success (§7).
func (m *SessionManager) firePushNotifications(taskID string) {
	if m.pushConfigs == nil || m.pushSender == nil {
		return
	}
	ctx := context.Background()
	snapshot, err := m.taskStore.Get(ctx, taskID, nil, true)
	if err != nil {
		m.logger.Error(ctx, "push notification snapshot fetch failed", "taskId", taskID, "error", err)
		m.metrics.IncCounter("a2aserver.push.failed", 1, "taskId", taskID, "reason", "snapshot")
		return
	}
	configs, err := m.pushConfigs.GetAll(ctx, taskID)
	if err != nil {
		m.logger.Error(ctx, "push notification config lookup failed", "taskId", taskID, "error", err)
		m.metrics.IncCounter("a2aserver.push.failed", 1, "taskId", taskID, "reason", "config_lookup")
		return
	}
	for _, cfg := range configs {
		cfg := cfg
		go func() {
			if err := m.pushSender.Send(ctx, cfg, snapshot); err != nil {
				m.logger.Warn(ctx, "push notification delivery failed", "taskId", taskID, "configId", cfg.ID, "error", err)
				m.metrics.IncCounter("a2aserver.push.failed", 1, "taskId", taskID, "configId", cfg.ID, "reason", "delivery")
			}
		}()
	}
}

// SessionForTask returns the live session holding taskID, if any.
func (m *SessionManager) SessionForTask(taskID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[taskID]
	return s, ok
}

// ActiveSessions returns the number of distinct live sessions currently
// indexed (a session touching multiple tasks counts once).
func (m *SessionManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[*Session]struct{}, len(m.sessions))
	for _, s := range m.sessions {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// TaskLock acquires the named mutex for taskID, suspending while another
// holder is active (§4.6).
func (m *SessionManager) TaskLock(ctx context.Context, taskID string) error {
	return m.lockFor(taskID).lock(ctx)
}

// TaskUnlock releases the named mutex for taskID. Unlocking a never-locked
// or already-unlocked id fails (§4.6).
func (m *SessionManager) TaskUnlock(taskID string) error {
	m.mu.Lock()
	lock, ok := m.taskLocks[taskID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %q: %w", taskID, errNotLocked)
	}
	return lock.unlock()
}

// IsTaskLocked reports whether taskID currently has a held lock.
func (m *SessionManager) IsTaskLocked(taskID string) bool {
	m.mu.Lock()
	lock, ok := m.taskLocks[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return lock.isLocked()
}

func (m *SessionManager) lockFor(taskID string) *fifoMutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.taskLocks[taskID]
	if !ok {
		lock = newFIFOMutex()
		m.taskLocks[taskID] = lock
	}
	return lock
}
