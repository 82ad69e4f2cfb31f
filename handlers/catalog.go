package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"cinemarathon/internal/logging"
	"cinemarathon/models"
	"cinemarathon/services/catalog"
)

var _ catalog.Gateway = (*catalog.Service)(nil)

// CatalogHandler proxies catalog lookups so clients never hold the upstream API key.
type CatalogHandler struct {
	Service catalog.Gateway
}

func NewCatalogHandler(s catalog.Gateway) *CatalogHandler {
	return &CatalogHandler{Service: s}
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	page, err := h.Service.SearchMovies(r.Context(), query, pageParam(r))
	writeCatalog(w, page, err)
}

func (h *CatalogHandler) Discover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := models.DiscoverFilters{
		Page:   pageParam(r),
		Year:   strings.TrimSpace(q.Get("year")),
		SortBy: strings.TrimSpace(q.Get("sortBy")),
	}
	for _, raw := range strings.Split(q.Get("genreIds"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid genre id "+strconv.Quote(raw), http.StatusBadRequest)
			return
		}
		filters.GenreIDs = append(filters.GenreIDs, id)
	}

	page, err := h.Service.DiscoverMovies(r.Context(), filters)
	writeCatalog(w, page, err)
}

func (h *CatalogHandler) Popular(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.PopularMovies(r.Context(), pageParam(r))
	writeCatalog(w, page, err)
}

func (h *CatalogHandler) Genres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.Service.ListGenres(r.Context())
	writeCatalog(w, genres, err)
}

func (h *CatalogHandler) Movie(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid movie id", http.StatusBadRequest)
		return
	}
	movie, err := h.Service.GetMovieDetail(r.Context(), id)
	writeCatalog(w, movie, err)
}

func (h *CatalogHandler) SearchPeople(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	people, err := h.Service.SearchPerson(r.Context(), query)
	writeCatalog(w, people, err)
}

func (h *CatalogHandler) PersonCredits(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid person id", http.StatusBadRequest)
		return
	}
	credits, err := h.Service.GetPersonCredits(r.Context(), id)
	writeCatalog(w, credits, err)
}

func writeCatalog(w http.ResponseWriter, v any, err error) {
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, catalog.ErrNotConfigured):
			status = http.StatusServiceUnavailable
		default:
			lg := logging.WithComponent("catalog")
			lg.Warn().Err(err).Msg("catalog proxy request failed")
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
