package server

import (
	"chat-relay/domain/event"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Events streams every event of a new session as Server-Sent Events.
// The subscription lives as long as the request: when the client goes away
// the session is closed and the others see the presence change.
func (s *ChatServer) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	username := r.URL.Query().Get("username")
	subscription, err := s.chatService.Subscribe(r.Context(), username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer s.chatService.Unsubscribe(subscription)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(s.cfg.SSEKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("SSE client disconnected", "identity", username)
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, ok := <-subscription.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, evt); err != nil {
				s.log.Error("failed to push event to stream", "identity", username, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes the event on the default channel, so EventSource.onmessage receives it.
func writeSSE(w http.ResponseWriter, evt event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
