// Package a2a defines the Agent-to-Agent protocol's wire data model and
// error taxonomy: the closed Event sum type, the TaskState machine, and the
// Message/Task/Artifact/AgentCard/PushNotificationConfig value types shared
// by the server runtime (package a2aserver) and any ServerTransport.
//
//nolint:tagliatelle // the A2A protocol specification requires camelCase JSON field names
package a2a

import "encoding/json"

type (
	// Role identifies the originator of a Message.
	Role string

	// PartKind identifies the kind of content carried by a Part.
	PartKind string

	// Message is an immutable turn exchanged between a user and an agent.
	Message struct {
		// MessageID uniquely identifies this message.
		MessageID string `json:"messageId"`
		// Role is the message originator: "user" or "agent".
		Role Role `json:"role"`
		// Parts are the ordered content parts making up the message.
		Parts []Part `json:"parts"`
		// TaskID optionally associates this message with a task. When set,
		// ContextID must equal that task's ContextID.
		TaskID string `json:"taskId,omitempty"`
		// ContextID optionally associates this message with a logical
		// conversation scope.
		ContextID string `json:"contextId,omitempty"`
		// ReferenceTaskIDs optionally lists related task ids this message
		// refers back to.
		ReferenceTaskIDs []string `json:"referenceTaskIds,omitempty"`
	}

	// Part is one piece of content within a Message or Artifact. Exactly
	// one of Text, Data, or File-related fields is meaningful, selected by
	// Kind.
	Part struct {
		Kind PartKind `json:"kind"`
		// Text holds the textual content when Kind == PartKindText.
		Text string `json:"text,omitempty"`
		// Data holds the structured payload when Kind == PartKindData.
		Data json.RawMessage `json:"data,omitempty"`
		// MIMEType is the MIME type when Kind == PartKindFile.
		MIMEType string `json:"mimeType,omitempty"`
		// URI is the file URI when Kind == PartKindFile.
		URI string `json:"uri,omitempty"`
	}

	// Artifact is a named, ordered bundle of Parts produced by an agent run.
	// Artifacts may be built incrementally across multiple
	// TaskArtifactUpdateEvent deliveries (§3 invariant 4).
	Artifact struct {
		// ArtifactID uniquely identifies this artifact within its task.
		ArtifactID string `json:"artifactId"`
		// Name is an optional display name.
		Name string `json:"name,omitempty"`
		// Description is an optional human-readable description.
		Description string `json:"description,omitempty"`
		// Parts are the content parts making up the artifact so far.
		Parts []Part `json:"parts"`
		// Metadata carries implementation-defined artifact metadata.
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	// TaskState is the task state machine's enumerated states.
	TaskState string

	// TaskStatus is a point-in-time snapshot of a task's state.
	TaskStatus struct {
		State TaskState `json:"state"`
		// Message optionally carries a human- or agent-authored status
		// message, appended to the task's history when set.
		Message *Message `json:"message,omitempty"`
		// Timestamp is the time this status was recorded.
		Timestamp string `json:"timestamp,omitempty"`
	}

	// Task is the mutable, server-owned snapshot of a unit of agent work.
	Task struct {
		// ID uniquely identifies this task.
		ID string `json:"id"`
		// ContextID groups this task with related messages and tasks under
		// one logical conversation. Unique per task for its lifetime.
		ContextID string `json:"contextId"`
		// Status is the most recent status snapshot.
		Status TaskStatus `json:"status"`
		// History is the append-only, time-ordered list of messages
		// observed for this task.
		History []Message `json:"history,omitempty"`
		// Artifacts are the output artifacts accumulated so far, in the
		// order first created.
		Artifacts []Artifact `json:"artifacts,omitempty"`
		// Metadata carries implementation-defined task metadata.
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	// TaskStatusUpdateEvent reports a task status transition. Final reports
	// whether this is the last event for the task: no further events may be
	// appended to storage for TaskID after an event with Final == true
	// (§3 invariant 2).
	TaskStatusUpdateEvent struct {
		TaskID    string     `json:"taskId"`
		ContextID string     `json:"contextId"`
		Status    TaskStatus `json:"status"`
		Final     bool       `json:"final"`
	}

	// TaskArtifactUpdateEvent delivers a new or incremental artifact chunk
	// for a task. When Append is true and an artifact with the same
	// ArtifactID already exists, its Parts are concatenated rather than
	// replaced. LastChunk closes an incrementally built artifact.
	TaskArtifactUpdateEvent struct {
		TaskID    string   `json:"taskId"`
		ContextID string   `json:"contextId"`
		Artifact  Artifact `json:"artifact"`
		Append    bool     `json:"append,omitempty"`
		LastChunk bool     `json:"lastChunk,omitempty"`
	}

	// Event is the closed sum type produced by an agent run: the stream
	// alphabet consumed by SessionEventProcessor and exposed by Session.
	// Concrete members are Message, *Task, *TaskStatusUpdateEvent, and
	// *TaskArtifactUpdateEvent.
	Event interface {
		// isEvent is unexported to keep Event a closed sum type: only the
		// types defined in this package may implement it.
		isEvent()
	}

	// AgentCapabilities advertises optional protocol features for
	// capability gating in the A2AServer (§4.7).
	AgentCapabilities struct {
		Streaming              bool `json:"streaming,omitempty"`
		PushNotifications      bool `json:"pushNotifications,omitempty"`
		StateTransitionHistory bool `json:"stateTransitionHistory,omitempty"`
	}

	// AgentProvider identifies the organization offering an agent.
	AgentProvider struct {
		Organization string `json:"organization,omitempty"`
		URL          string `json:"url,omitempty"`
	}

	// Skill describes one capability exposed by an agent.
	Skill struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		InputModes  []string `json:"inputModes,omitempty"`
		OutputModes []string `json:"outputModes,omitempty"`
	}

	// AgentCard is read-only discovery metadata consumed by the server for
	// capability checks (§3, §4.7). Served out-of-band; the server never
	// mutates it.
	AgentCard struct {
		Name                          string            `json:"name"`
		Description                  string            `json:"description,omitempty"`
		URL                           string            `json:"url"`
		Version                       string            `json:"version"`
		Provider                      *AgentProvider    `json:"provider,omitempty"`
		Capabilities                  AgentCapabilities `json:"capabilities"`
		Skills                        []Skill           `json:"skills,omitempty"`
		SupportsAuthenticatedExtended bool              `json:"supportsAuthenticatedExtendedCard,omitempty"`
	}

	// PushNotificationConfig describes a client-registered webhook to
	// receive out-of-band delivery of a final task snapshot.
	PushNotificationConfig struct {
		// ID is unique within its task (keyed by (taskId, configId)).
		ID string `json:"id"`
		// URL is the webhook endpoint.
		URL string `json:"url"`
		// Token is an optional bearer token or shared secret forwarded
		// with the delivery.
		Token string `json:"token,omitempty"`
		// Authentication optionally describes an authentication scheme
		// required by URL.
		Authentication json.RawMessage `json:"authentication,omitempty"`
	}
)

// Role values.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartKind values.
const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// TaskState values. Terminal and pause-state membership is determined by
// the Terminal and IsPauseState predicates below, never by comparing
// against this list directly, so that membership stays centralized.
const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateUnknown       TaskState = "unknown"
)

// Terminal reports whether s is one of the four terminal states: no further
// events may be stored for a task in a terminal state (§3 invariant 2).
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected:
		return true
	default:
		return false
	}
}

// IsPauseState reports whether s is a non-terminal state in which the agent
// has yielded control back to the caller (InputRequired, AuthRequired).
func (s TaskState) IsPauseState() bool {
	return s == TaskStateInputRequired || s == TaskStateAuthRequired
}

// isEvent marks Message as a member of the Event sum type.
func (Message) isEvent() {}

// isEvent marks *Task as a member of the Event sum type.
func (*Task) isEvent() {}

// isEvent marks *TaskStatusUpdateEvent as a member of the Event sum type.
func (*TaskStatusUpdateEvent) isEvent() {}

// isEvent marks *TaskArtifactUpdateEvent as a member of the Event sum type.
func (*TaskArtifactUpdateEvent) isEvent() {}

// IsCommunicationEvent reports whether e is a Message or *Task: the subset
// collectively named CommunicationEvent, returned by non-blocking
// message/send (§3).
func IsCommunicationEvent(e Event) bool {
	switch e.(type) {
	case Message, *Task:
		return true
	default:
		return false
	}
}

// EventTaskID returns the task id carried by a task-scoped event (*Task,
// *TaskStatusUpdateEvent, *TaskArtifactUpdateEvent), and false for a plain
// Message (which may carry no task at all).
func EventTaskID(e Event) (string, bool) {
	switch v := e.(type) {
	case *Task:
		return v.ID, true
	case *TaskStatusUpdateEvent:
		return v.TaskID, true
	case *TaskArtifactUpdateEvent:
		return v.TaskID, true
	default:
		return "", false
	}
}

// EventContextID returns the context id carried by e.
func EventContextID(e Event) (string, bool) {
	switch v := e.(type) {
	case Message:
		return v.ContextID, v.ContextID != ""
	case *Task:
		return v.ContextID, true
	case *TaskStatusUpdateEvent:
		return v.ContextID, true
	case *TaskArtifactUpdateEvent:
		return v.ContextID, true
	default:
		return "", false
	}
}
