package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cinemarathon/handlers"
	"cinemarathon/internal/logging"
	"cinemarathon/internal/metrics"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers groups the route handlers mounted by Register.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Marathons *handlers.MarathonsHandler
	Catalog   *handlers.CatalogHandler
	Events    *handlers.EventsHandler
}

// Options tunes the router.
type Options struct {
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.AuthRateLimit <= 0 {
		o.AuthRateLimit = 10
	}
	if o.AuthRateWindow <= 0 {
		o.AuthRateWindow = time.Minute
	}
	return o
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(r *mux.Router, h Handlers, verifier TokenVerifier, db Pinger, opts Options) {
	opts = opts.withDefaults()

	r.HandleFunc("/healthz", healthz(db)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)
	api.Use(logging.AccessLog)
	api.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(handleOptions)

	// The websocket route hijacks the connection, so it stays outside the
	// metrics middleware and authenticates from the query string as well.
	events := api.PathPrefix("/marathons/events").Subrouter()
	events.Use(RequireUser(verifier, true))
	events.HandleFunc("", h.Events.Stream).Methods(http.MethodGet)

	instrumented := api.NewRoute().Subrouter()
	instrumented.Use(metrics.Middleware)

	auth := instrumented.PathPrefix("/auth").Subrouter()
	auth.Use(authRateLimit(opts.AuthRateLimit, opts.AuthRateWindow))
	auth.HandleFunc("/register", h.Auth.Register).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.Auth.Login).Methods(http.MethodPost)

	protected := instrumented.NewRoute().Subrouter()
	protected.Use(RequireUser(verifier, false))

	protected.HandleFunc("/marathons", h.Marathons.List).Methods(http.MethodGet)
	protected.HandleFunc("/marathons", h.Marathons.Create).Methods(http.MethodPost)
	protected.HandleFunc("/marathons/{id}", h.Marathons.Get).Methods(http.MethodGet)
	protected.HandleFunc("/marathons/{id}", h.Marathons.Update).Methods(http.MethodPut)
	protected.HandleFunc("/marathons/{id}", h.Marathons.Delete).Methods(http.MethodDelete)

	protected.HandleFunc("/catalog/search", h.Catalog.Search).Methods(http.MethodGet)
	protected.HandleFunc("/catalog/discover", h.Catalog.Discover).Methods(http.MethodGet)
	protected.HandleFunc("/catalog/popular", h.Catalog.Popular).Methods(http.MethodGet)
	protected.HandleFunc("/catalog/genres", h.Catalog.Genres).Methods(http.MethodGet)
	protected.HandleFunc("/catalog/movies/{id}", h.Catalog.Movie).Methods(http.MethodGet)
	protected.HandleFunc("/catalog/people/search", h.Catalog.SearchPeople).Methods(http.MethodGet)
	protected.HandleFunc("/catalog/people/{id}/credits", h.Catalog.PersonCredits).Methods(http.MethodGet)
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	}
}
