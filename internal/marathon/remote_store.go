package marathon

import (
	"context"
	"net/http"

	"cinemarathon/internal/apiclient"
	"cinemarathon/models"
)

// marathonAPI is the part of apiclient.Client the remote store needs.
type marathonAPI interface {
	ListMarathons(ctx context.Context) ([]models.SavedMarathon, error)
	CreateMarathon(ctx context.Context, req models.CreateMarathonRequest) (models.SavedMarathon, error)
	UpdateMarathon(ctx context.Context, id string, req models.UpdateMarathonRequest) (models.SavedMarathon, error)
	DeleteMarathon(ctx context.Context, id string) error
}

var _ marathonAPI = (*apiclient.Client)(nil)

// RemoteStore keeps saved marathons on the backend. The server assigns ids and
// timestamps and scopes every call to the authenticated user.
type RemoteStore struct {
	api marathonAPI
}

// NewRemoteStore wraps an authenticated backend client.
func NewRemoteStore(api marathonAPI) *RemoteStore {
	return &RemoteStore{api: api}
}

func (s *RemoteStore) List(ctx context.Context) ([]models.SavedMarathon, error) {
	return s.api.ListMarathons(ctx)
}

func (s *RemoteStore) Create(ctx context.Context, name string, movies []models.Movie, totalMinutes int) (models.SavedMarathon, error) {
	if movies == nil {
		movies = []models.Movie{}
	}
	return s.api.CreateMarathon(ctx, models.CreateMarathonRequest{
		Name:         name,
		Movies:       movies,
		TotalMinutes: totalMinutes,
	})
}

func (s *RemoteStore) Delete(ctx context.Context, id string) error {
	return mapNotFound(s.api.DeleteMarathon(ctx, id))
}

func (s *RemoteStore) Update(ctx context.Context, id string, req models.UpdateMarathonRequest) (models.SavedMarathon, error) {
	m, err := s.api.UpdateMarathon(ctx, id, req)
	return m, mapNotFound(err)
}

func mapNotFound(err error) error {
	if apiclient.IsStatus(err, http.StatusNotFound) {
		return ErrNotFound
	}
	return err
}

var (
	_ Store   = (*RemoteStore)(nil)
	_ Updater = (*RemoteStore)(nil)
)
