package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"cinemarathon/handlers"
	"cinemarathon/internal/database"
	"cinemarathon/models"
	"cinemarathon/services/marathons"
	"cinemarathon/services/users"
)

type recordingNotifier struct {
	mu    sync.Mutex
	users []string
}

func (n *recordingNotifier) Notify(_ context.Context, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
}

func (n *recordingNotifier) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.users...)
}

type marathonFixture struct {
	handler  *handlers.MarathonsHandler
	notifier *recordingNotifier
	alice    string
	bob      string
}

func newMarathonFixture(t *testing.T) marathonFixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{DSN: filepath.Join(t.TempDir(), "api.db")})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	accounts := users.NewService(db).WithCost(bcrypt.MinCost)
	alice, err := accounts.Register(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, err := accounts.Register(ctx, "bob@example.com", "secret1")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	notifier := &recordingNotifier{}
	return marathonFixture{
		handler:  handlers.NewMarathonsHandler(marathons.NewService(db), notifier),
		notifier: notifier,
		alice:    alice.ID,
		bob:      bob.ID,
	}
}

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(handlers.WithUserID(req.Context(), userID))
}

func createMarathon(t *testing.T, f marathonFixture, userID string, body models.CreateMarathonRequest) models.SavedMarathon {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/marathons", bytes.NewReader(payload)), userID)
	rec := httptest.NewRecorder()
	f.handler.Create(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.SavedMarathon
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	return created
}

func TestMarathonsHandler_CreateAndList(t *testing.T) {
	f := newMarathonFixture(t)
	runtime := 136

	created := createMarathon(t, f, f.alice, models.CreateMarathonRequest{
		Name:         "Friday",
		Movies:       []models.Movie{{ID: 603, Title: "The Matrix", Runtime: &runtime}},
		TotalMinutes: 136,
	})
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected server assigned id and createdAt, got %+v", created)
	}
	if created.TotalMinutes != 136 || len(created.Movies) != 1 {
		t.Fatalf("unexpected record %+v", created)
	}
	createMarathon(t, f, f.alice, models.CreateMarathonRequest{Name: "Saturday"})

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/marathons", nil), f.alice)
	rec := httptest.NewRecorder()
	f.handler.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var list []models.SavedMarathon
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Saturday" || list[1].Name != "Friday" {
		t.Fatalf("expected newest first, got %+v", list)
	}

	// bob sees nothing
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/marathons", nil), f.bob)
	rec = httptest.NewRecorder()
	f.handler.List(rec, req)
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("expected empty list for bob, got %s", got)
	}

	if calls := f.notifier.calls(); len(calls) != 2 || calls[0] != f.alice {
		t.Fatalf("expected two notifications for alice, got %v", calls)
	}
}

func TestMarathonsHandler_CreateRejectsInvalidInput(t *testing.T) {
	f := newMarathonFixture(t)

	cases := map[string]string{
		"blank name":     `{"name":"   ","movies":[]}`,
		"negative total": `{"name":"x","totalMinutes":-5}`,
		"bad json":       `{"name":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := asUser(httptest.NewRequest(http.MethodPost, "/api/marathons", bytes.NewBufferString(body)), f.alice)
			rec := httptest.NewRecorder()
			f.handler.Create(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
	if calls := f.notifier.calls(); len(calls) != 0 {
		t.Fatalf("expected no notifications, got %v", calls)
	}
}

func TestMarathonsHandler_GetUpdateDeleteScopedToOwner(t *testing.T) {
	f := newMarathonFixture(t)
	created := createMarathon(t, f, f.alice, models.CreateMarathonRequest{Name: "Friday"})
	vars := map[string]string{"id": created.ID}

	req := mux.SetURLVars(asUser(httptest.NewRequest(http.MethodGet, "/api/marathons/"+created.ID, nil), f.bob), vars)
	rec := httptest.NewRecorder()
	f.handler.Get(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get as bob: expected 404, got %d", rec.Code)
	}

	req = mux.SetURLVars(asUser(httptest.NewRequest(http.MethodGet, "/api/marathons/"+created.ID, nil), f.alice), vars)
	rec = httptest.NewRecorder()
	f.handler.Get(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get as alice: expected 200, got %d", rec.Code)
	}

	req = mux.SetURLVars(asUser(httptest.NewRequest(http.MethodPut, "/api/marathons/"+created.ID, bytes.NewBufferString(`{"name":"Friday night"}`)), f.alice), vars)
	rec = httptest.NewRecorder()
	f.handler.Update(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated models.SavedMarathon
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.Name != "Friday night" || updated.ID != created.ID {
		t.Fatalf("unexpected update result %+v", updated)
	}

	req = mux.SetURLVars(asUser(httptest.NewRequest(http.MethodDelete, "/api/marathons/"+created.ID, nil), f.bob), vars)
	rec = httptest.NewRecorder()
	f.handler.Delete(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete as bob: expected 404, got %d", rec.Code)
	}

	req = mux.SetURLVars(asUser(httptest.NewRequest(http.MethodDelete, "/api/marathons/"+created.ID, nil), f.alice), vars)
	rec = httptest.NewRecorder()
	f.handler.Delete(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete as alice: expected 204, got %d", rec.Code)
	}

	req = mux.SetURLVars(asUser(httptest.NewRequest(http.MethodDelete, "/api/marathons/"+created.ID, nil), f.alice), vars)
	rec = httptest.NewRecorder()
	f.handler.Delete(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}
