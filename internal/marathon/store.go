package marathon

import (
	"context"
	"errors"

	"cinemarathon/models"
)

var (
	// ErrNotFound is returned by a Store when the marathon does not exist (or is not the caller's).
	ErrNotFound = errors.New("marathon not found")
	// ErrEmptyMarathon rejects saving a marathon without movies.
	ErrEmptyMarathon = errors.New("marathon has no movies")
	// ErrNameRequired rejects saving with a blank name.
	ErrNameRequired = errors.New("marathon name is required")
	// ErrNoPendingDelete is returned when confirming without a requested deletion.
	ErrNoPendingDelete = errors.New("no deletion pending confirmation")
	// ErrStaleConfirmation is returned when the confirmation token no longer matches the pending deletion.
	ErrStaleConfirmation = errors.New("deletion confirmation is stale")
	// ErrDeleteInProgress is returned when a deletion is requested for a marathon that is already being deleted.
	ErrDeleteInProgress = errors.New("a deletion is already in progress")
	// ErrUpdateUnsupported is returned when editing a saved marathon on a store without update support.
	ErrUpdateUnsupported = errors.New("store does not support updating saved marathons")
)

//go:generate mockgen -destination=mock_store_test.go -package=marathon_test cinemarathon/internal/marathon Store

// Store persists saved marathons. Implementations must make each call atomic on
// its own; the aggregator does not serialise concurrent saves and deletes.
type Store interface {
	List(ctx context.Context) ([]models.SavedMarathon, error)
	Create(ctx context.Context, name string, movies []models.Movie, totalMinutes int) (models.SavedMarathon, error)
	Delete(ctx context.Context, id string) error
}

// Updater is implemented by stores that can edit a saved marathon in place.
// The aggregator's save and delete flows never depend on it.
type Updater interface {
	Update(ctx context.Context, id string, req models.UpdateMarathonRequest) (models.SavedMarathon, error)
}
