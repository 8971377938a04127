package mica

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeSSE streams an exchange's events as Server-Sent Events over HTTP.
// It consumes the channel returned by StartExchange until the terminal
// event closes it; the client sees one SSE event per StreamEvent, with
// the SSE event name set to the StreamEvent type.
//
//	events, err := eng.StartExchange(r.Context(), ideaID, msg)
//	if err != nil { ... }
//	mica.ServeSSE(w, events)
func ServeSSE(w http.ResponseWriter, events <-chan StreamEvent) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return fmt.Errorf("ResponseWriter does not implement http.Flusher")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}
	return nil
}

// WriteSSEEvent writes a single Server-Sent Event to w and flushes.
// Useful for surfaces that wrap the stream with their own framing.
func WriteSSEEvent(w http.ResponseWriter, eventType string, data any) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("ResponseWriter does not implement http.Flusher")
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse data: %w", err)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, encoded)
	flusher.Flush()
	return nil
}
