package a2ahttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2aserver"
)

// sseWriter frames a2a.Event values as Server-Sent Events: one `event:` /
// `id:` / `data:` frame per event, flushed immediately. Grounded on
// sammcj/go-a2a's SSEManager.sendEvent.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	nextID  int
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) writeEvent(e a2a.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.nextID++
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", eventName(e), s.nextID, body); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) writeError(err error) {
	rpcErr := toRPCError(err)
	body, merr := json.Marshal(rpcErr)
	if merr != nil {
		return
	}
	s.nextID++
	fmt.Fprintf(s.w, "event: error\nid: %d\ndata: %s\n\n", s.nextID, body)
	s.flusher.Flush()
}

func eventName(e a2a.Event) string {
	switch e.(type) {
	case a2a.Message:
		return "message"
	case *a2a.Task:
		return "task"
	case *a2a.TaskStatusUpdateEvent:
		return "taskStatusUpdate"
	case *a2a.TaskArtifactUpdateEvent:
		return "taskArtifactUpdate"
	default:
		return "event"
	}
}

// streamSubscription drains sub onto an SSE writer until the client
// disconnects or the subscription terminates, honoring r.Context() so a
// client disconnect stops streaming without affecting the underlying
// session (§5: "Transport-level client disconnect ... cancels the
// subscription but not the underlying session").
func streamSubscription(w http.ResponseWriter, r *http.Request, sub *a2aserver.Subscription) {
	writer, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	err := sub.Range(r.Context(), func(e a2a.Event) bool {
		return writer.writeEvent(e) == nil
	})
	if err != nil {
		writer.writeError(err)
	}
}
