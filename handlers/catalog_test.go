package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"

	"cinemarathon/handlers"
	"cinemarathon/models"
	"cinemarathon/services/catalog"
)

type fakeGateway struct {
	page     models.MoviePage
	movie    models.Movie
	genres   []models.Genre
	people   []models.Person
	credits  models.PersonCredits
	err      error
	query    string
	pageNo   int
	filters  models.DiscoverFilters
	detailID int64
}

func (f *fakeGateway) SearchMovies(_ context.Context, query string, page int) (models.MoviePage, error) {
	f.query, f.pageNo = query, page
	return f.page, f.err
}

func (f *fakeGateway) DiscoverMovies(_ context.Context, filters models.DiscoverFilters) (models.MoviePage, error) {
	f.filters = filters
	return f.page, f.err
}

func (f *fakeGateway) PopularMovies(_ context.Context, page int) (models.MoviePage, error) {
	f.pageNo = page
	return f.page, f.err
}

func (f *fakeGateway) ListGenres(context.Context) ([]models.Genre, error) {
	return f.genres, f.err
}

func (f *fakeGateway) GetMovieDetail(_ context.Context, id int64) (models.Movie, error) {
	f.detailID = id
	return f.movie, f.err
}

func (f *fakeGateway) SearchPerson(_ context.Context, name string) ([]models.Person, error) {
	f.query = name
	return f.people, f.err
}

func (f *fakeGateway) GetPersonCredits(_ context.Context, id int64) (models.PersonCredits, error) {
	f.detailID = id
	return f.credits, f.err
}

func TestCatalogHandler_SearchPassesQueryAndPage(t *testing.T) {
	gw := &fakeGateway{page: models.MoviePage{Page: 2, Results: []models.Movie{{ID: 603, Title: "The Matrix"}}, TotalPages: 3}}
	h := handlers.NewCatalogHandler(gw)

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/search?query=matrix&page=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gw.query != "matrix" || gw.pageNo != 2 {
		t.Fatalf("gateway called with %q page %d", gw.query, gw.pageNo)
	}
	var got models.MoviePage
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(gw.page, got); diff != "" {
		t.Fatalf("page mismatch (-want +got):\n%s", diff)
	}

	rec = httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/search?query=%20", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank query: expected 400, got %d", rec.Code)
	}
}

func TestCatalogHandler_DiscoverParsesFilters(t *testing.T) {
	gw := &fakeGateway{}
	h := handlers.NewCatalogHandler(gw)

	rec := httptest.NewRecorder()
	h.Discover(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/discover?genreIds=28,%2012&year=1999&sortBy=vote_average.desc&page=0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := models.DiscoverFilters{Page: 1, GenreIDs: []int64{28, 12}, Year: "1999", SortBy: catalog.SortVoteAverage}
	if diff := cmp.Diff(want, gw.filters); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}

	rec = httptest.NewRecorder()
	h.Discover(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/discover?genreIds=action", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad genre id: expected 400, got %d", rec.Code)
	}
}

func TestCatalogHandler_MovieAndCredits(t *testing.T) {
	runtime := 122
	gw := &fakeGateway{movie: models.Movie{ID: 194, Title: "Amélie", Runtime: &runtime}}
	h := handlers.NewCatalogHandler(gw)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/catalog/movies/194", nil), map[string]string{"id": "194"})
	rec := httptest.NewRecorder()
	h.Movie(rec, req)
	if rec.Code != http.StatusOK || gw.detailID != 194 {
		t.Fatalf("expected 200 for movie 194, got %d (id %d)", rec.Code, gw.detailID)
	}

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/catalog/movies/abc", nil), map[string]string{"id": "abc"})
	rec = httptest.NewRecorder()
	h.Movie(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non numeric id: expected 400, got %d", rec.Code)
	}

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/catalog/people/525/credits", nil), map[string]string{"id": "525"})
	rec = httptest.NewRecorder()
	h.PersonCredits(rec, req)
	if rec.Code != http.StatusOK || gw.detailID != 525 {
		t.Fatalf("expected 200 for credits of 525, got %d (id %d)", rec.Code, gw.detailID)
	}
}

func TestCatalogHandler_MapsGatewayErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not configured", catalog.ErrNotConfigured, http.StatusServiceUnavailable},
		{"not found", catalog.ErrNotFound, http.StatusNotFound},
		{"upstream failure", errors.New("connection reset"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := handlers.NewCatalogHandler(&fakeGateway{err: tc.err})
			rec := httptest.NewRecorder()
			h.Genres(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/genres", nil))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.err.Error()) {
				t.Fatalf("expected %q in body, got %q", tc.err.Error(), rec.Body.String())
			}
		})
	}
}
