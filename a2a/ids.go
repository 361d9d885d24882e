package a2a

import "github.com/google/uuid"

// NewTaskID generates a fresh, unique task id.
func NewTaskID() string { return uuid.NewString() }

// NewContextID generates a fresh, unique context id.
func NewContextID() string { return uuid.NewString() }

// NewMessageID generates a fresh, unique message id.
func NewMessageID() string { return uuid.NewString() }

// NewArtifactID generates a fresh, unique artifact id.
func NewArtifactID() string { return uuid.NewString() }
