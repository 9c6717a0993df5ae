package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bybrooklyn/alchemist/internal/events"
)

// sseHeartbeatInterval keeps idle SSE connections alive through proxies.
const sseHeartbeatInterval = 30 * time.Second

// EventsHandler streams bus events over Server-Sent Events. It is a raw chi
// route; SSE does not fit huma's typed request/response model.
type EventsHandler struct {
	bus    *events.Bus
	logger *slog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(bus *events.Bus, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{bus: bus, logger: logger}
}

// Register mounts the SSE route on the router.
func (h *EventsHandler) Register(router *chi.Mux) {
	router.Get("/api/v1/events", h.Stream)
}

// Stream subscribes the client to the event bus until it disconnects.
// After buffer overflow clients receive a lagged marker and should
// reconcile with a fresh query.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case event, ok := <-sub.Events():
			if !ok {
				return
			}

			if dropped := sub.Dropped(); dropped > 0 {
				if _, err := fmt.Fprintf(w, "event: lagged\ndata: {\"dropped\": %d}\n\n", dropped); err != nil {
					return
				}
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("encoding sse event", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
