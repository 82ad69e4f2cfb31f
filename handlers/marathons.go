package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"cinemarathon/internal/events"
	"cinemarathon/internal/logging"
	"cinemarathon/internal/metrics"
	"cinemarathon/models"
	"cinemarathon/services/marathons"
)

type marathonsService interface {
	List(ctx context.Context, userID string) ([]models.SavedMarathon, error)
	Get(ctx context.Context, userID, id string) (models.SavedMarathon, error)
	Create(ctx context.Context, userID string, req models.CreateMarathonRequest) (models.SavedMarathon, error)
	Update(ctx context.Context, userID, id string, req models.UpdateMarathonRequest) (models.SavedMarathon, error)
	Delete(ctx context.Context, userID, id string) error
}

// marathonNotifier is told after every change to a user's saved list.
type marathonNotifier interface {
	Notify(ctx context.Context, userID string)
}

var (
	_ marathonsService = (*marathons.Service)(nil)
	_ marathonNotifier = (*events.Hub)(nil)
)

type MarathonsHandler struct {
	Service marathonsService
	Events  marathonNotifier
}

func NewMarathonsHandler(s marathonsService, notifier marathonNotifier) *MarathonsHandler {
	return &MarathonsHandler{Service: s, Events: notifier}
}

func (h *MarathonsHandler) notify(r *http.Request, userID string) {
	if h.Events == nil {
		return
	}
	// the request context ends with the response; the push should not
	h.Events.Notify(context.WithoutCancel(r.Context()), userID)
}

func (h *MarathonsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	list, err := h.Service.List(r.Context(), userID)
	metrics.MarathonOpsTotal.WithLabelValues("list", metrics.Outcome(err)).Inc()
	if err != nil {
		writeMarathonError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *MarathonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	m, err := h.Service.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeMarathonError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

func (h *MarathonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body models.CreateMarathonRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := UserIDFromContext(r.Context())
	m, err := h.Service.Create(r.Context(), userID, body)
	metrics.MarathonOpsTotal.WithLabelValues("create", metrics.Outcome(err)).Inc()
	if err != nil {
		writeMarathonError(w, err)
		return
	}
	h.notify(r, userID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

func (h *MarathonsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body models.UpdateMarathonRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := UserIDFromContext(r.Context())
	m, err := h.Service.Update(r.Context(), userID, mux.Vars(r)["id"], body)
	metrics.MarathonOpsTotal.WithLabelValues("update", metrics.Outcome(err)).Inc()
	if err != nil {
		writeMarathonError(w, err)
		return
	}
	h.notify(r, userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

func (h *MarathonsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		http.Error(w, "marathon id is required", http.StatusBadRequest)
		return
	}

	userID := UserIDFromContext(r.Context())
	err := h.Service.Delete(r.Context(), userID, id)
	metrics.MarathonOpsTotal.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	if err != nil {
		writeMarathonError(w, err)
		return
	}
	h.notify(r, userID)

	w.WriteHeader(http.StatusNoContent)
}

func writeMarathonError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, marathons.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, marathons.ErrNameRequired), errors.Is(err, marathons.ErrNegativeTotal):
		status = http.StatusBadRequest
	case errors.Is(err, marathons.ErrUserIDRequired):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		lg := logging.WithComponent("marathons")
		lg.Error().Err(err).Msg("marathon request failed")
	}
	http.Error(w, err.Error(), status)
}
