package a2aserver

import (
	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2a/storage"
)

// CallContext carries transport-extracted request headers and arbitrary
// handler-attached state, opaque to the core (§4.8, §6). Transports
// populate Headers; the core never inspects their semantics.
type CallContext struct {
	Headers map[string][]string
	State   map[string]any
}

// RequestContext is handed to AgentExecutor.Execute/Cancel (§6): the
// contextId being operated on, the call's transport metadata, the original
// request params, and context-scoped storage views so the executor cannot
// observe other contexts' data.
type RequestContext struct {
	ContextID string
	Call      CallContext
	Params    a2a.MessageSendParams

	Tasks    storage.ContextTaskStorage
	Messages storage.ContextMessageStorage
}
