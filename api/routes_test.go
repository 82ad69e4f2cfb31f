package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cinemarathon/api"
	"cinemarathon/handlers"
	"cinemarathon/internal/database"
	"cinemarathon/internal/events"
	"cinemarathon/models"
	"cinemarathon/services/catalog"
	"cinemarathon/services/marathons"
	"cinemarathon/services/tokens"
	"cinemarathon/services/users"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{DSN: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)

	issuer, err := tokens.NewService("routes-secret", time.Hour)
	require.NoError(t, err)

	saved := marathons.NewService(db)
	hub := events.NewHub(saved)
	// an unconfigured client answers every catalog call with ErrNotConfigured
	gw := catalog.NewService(catalog.NewClient(""), catalog.NewNoOpCache(), catalog.DefaultTTLs())

	r := mux.NewRouter()
	api.Register(r, api.Handlers{
		Auth:      handlers.NewAuthHandler(users.NewService(db).WithCost(bcrypt.MinCost), issuer),
		Marathons: handlers.NewMarathonsHandler(saved, hub),
		Catalog:   handlers.NewCatalogHandler(gw),
		Events:    handlers.NewEventsHandler(hub),
	}, issuer, db, api.Options{AuthRateLimit: 100})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		db.Close()
	})
	return srv
}

func call(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, base, email string) string {
	t.Helper()
	creds := models.Credentials{Email: email, Password: "secret1"}
	resp := call(t, http.MethodPost, base+"/api/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = call(t, http.MethodPost, base+"/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var token models.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&token))
	require.NotEmpty(t, token.Token)
	return token.Token
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	srv := newServer(t)

	resp := call(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutes_PreflightAnswersWithCORSHeaders(t *testing.T) {
	srv := newServer(t)

	resp := call(t, http.MethodOptions, srv.URL+"/api/marathons", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestRoutes_ProtectedRoutesRequireToken(t *testing.T) {
	srv := newServer(t)

	for _, path := range []string{"/api/marathons", "/api/catalog/genres"} {
		resp := call(t, http.MethodGet, srv.URL+path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)

		resp = call(t, http.MethodGet, srv.URL+path, "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	// query tokens are only honoured on the event stream
	token := login(t, srv.URL, "query@example.com")
	resp := call(t, http.MethodGet, srv.URL+"/api/marathons?token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_MarathonLifecycle(t *testing.T) {
	srv := newServer(t)
	alice := login(t, srv.URL, "alice@example.com")
	bob := login(t, srv.URL, "bob@example.com")

	resp := call(t, http.MethodPost, srv.URL+"/api/marathons", alice, models.CreateMarathonRequest{
		Name:         "Friday",
		Movies:       []models.Movie{{ID: 603, Title: "The Matrix"}},
		TotalMinutes: 136,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.SavedMarathon
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	resp = call(t, http.MethodGet, srv.URL+"/api/marathons/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, http.MethodGet, srv.URL+"/api/marathons", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.SavedMarathon
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	resp = call(t, http.MethodDelete, srv.URL+"/api/marathons/"+created.ID, alice, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, http.MethodGet, srv.URL+"/api/marathons/"+created.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_CatalogWithoutKeyIsUnavailable(t *testing.T) {
	srv := newServer(t)
	token := login(t, srv.URL, "carol@example.com")

	resp := call(t, http.MethodGet, srv.URL+"/api/catalog/genres", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRoutes_EventStreamPushesAfterCreate(t *testing.T) {
	srv := newServer(t)
	token := login(t, srv.URL, "dave@example.com")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/marathons/events?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() models.MarathonEvent {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev models.MarathonEvent
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	initial := readEvent()
	assert.Equal(t, events.TypeMarathons, initial.Type)
	assert.Empty(t, initial.Marathons)

	resp := call(t, http.MethodPost, srv.URL+"/api/marathons", token, models.CreateMarathonRequest{Name: "Sunday"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	update := readEvent()
	require.Len(t, update.Marathons, 1)
	assert.Equal(t, "Sunday", update.Marathons[0].Name)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/marathons/events", nil)
	assert.Error(t, err)
}
