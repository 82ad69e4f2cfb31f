package handlers

import (
	"net/http"

	"cinemarathon/internal/events"
	"cinemarathon/internal/logging"
)

type eventStreamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

var _ eventStreamer = (*events.Hub)(nil)

type EventsHandler struct {
	Hub eventStreamer
}

func NewEventsHandler(hub eventStreamer) *EventsHandler {
	return &EventsHandler{Hub: hub}
}

// Stream upgrades to a websocket carrying the caller's saved-marathon list.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.Hub.ServeWS(w, r, userID); err != nil {
		lg := logging.WithComponent("events")
		lg.Debug().Err(err).Str("user_id", userID).Msg("event stream not opened")
	}
}
