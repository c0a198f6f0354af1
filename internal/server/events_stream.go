package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/events"
)

// EventsStreamHandler streams engine events to moderation tooling over
// Server-Sent Events.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates the SSE handler.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream. An optional "types" query
// parameter filters to a comma-separated subset of event types.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var allowedTypes map[events.EventType]bool
	if filter := r.URL.Query().Get("types"); filter != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(filter, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	// Buffered so a slow client drops events instead of blocking
	// publishers.
	eventChan := make(chan *events.Event, 100)
	handler := func(event *events.Event) {
		if allowedTypes != nil && !allowedTypes[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}

	streamed := []events.EventType{
		events.SecurityEventFlagged,
		events.ManipulationDetected,
		events.PatternEvolved,
	}
	for _, t := range streamed {
		if allowedTypes == nil || allowedTypes[t] {
			h.bus.Subscribe(t, handler)
		}
	}

	h.log.Info().Msg("Client connected to event stream")
	fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]string{"type": "connected"}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()
	done := r.Context().Done()

	for {
		select {
		case <-done:
			h.log.Debug().Msg("Client disconnected from event stream")
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(event))
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) encode(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode stream event")
		return `{"type":"error"}`
	}
	return string(data)
}
