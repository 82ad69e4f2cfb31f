package marathon_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"cinemarathon/internal/marathon"
	"cinemarathon/models"
)

func movie(id int64, runtime int, release string, genres ...int64) models.Movie {
	m := models.Movie{ID: id, Title: "Movie", ReleaseDate: release, VoteAverage: 7, GenreIDs: genres}
	if runtime >= 0 {
		m = m.WithRuntime(runtime)
	}
	return m
}

func TestAddMovieIsIdempotent(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))

	assert.True(t, agg.AddMovie(movie(1, 100, "1994-07-06")))
	assert.False(t, agg.AddMovie(movie(1, 120, "1994-07-06")))
	assert.True(t, agg.AddMovie(movie(2, 90, "2001-01-01")))

	movies := agg.Movies()
	require.Len(t, movies, 2)
	assert.Equal(t, []int64{1, 2}, []int64{movies[0].ID, movies[1].ID})
	assert.Equal(t, 190, agg.Stats().TotalDurationMinutes)
}

func TestRemoveMovieAbsentIsNoop(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))
	agg.AddMovie(movie(1, 100, ""))

	assert.False(t, agg.RemoveMovie(42))
	assert.True(t, agg.RemoveMovie(1))
	assert.Empty(t, agg.Movies())
	assert.Equal(t, 0, agg.Stats().TotalDurationMinutes)
}

func TestRandomMutationsKeepInvariants(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		id := int64(rng.Intn(15))
		switch rng.Intn(4) {
		case 0, 1:
			runtime := rng.Intn(200) - 1 // -1 leaves the runtime unknown
			agg.AddMovie(movie(id, runtime, "1999-01-01"))
		case 2:
			agg.RemoveMovie(id)
		case 3:
			agg.ApplyRuntime(id, rng.Intn(200))
		}

		snap := agg.Snapshot()
		seen := map[int64]bool{}
		sum := 0
		for _, m := range snap.Movies {
			require.False(t, seen[m.ID], "duplicate id %d after step %d", m.ID, i)
			seen[m.ID] = true
			sum += m.Minutes()
		}
		require.Equal(t, sum, snap.Stats.TotalDurationMinutes)
		require.Equal(t, len(snap.Movies), snap.Stats.TotalMovies)
	}
}

func TestApplyRuntimeDiscardedAfterRemoval(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))
	agg.AddMovie(movie(5, -1, "2010-05-05"))
	assert.Equal(t, 0, agg.Stats().TotalDurationMinutes)

	agg.RemoveMovie(5)
	assert.False(t, agg.ApplyRuntime(5, 130))
	assert.Empty(t, agg.Movies())

	agg.AddMovie(movie(6, -1, "2010-05-05"))
	assert.True(t, agg.ApplyRuntime(6, 130))
	assert.Equal(t, 130, agg.Stats().TotalDurationMinutes)
}

func TestSaveCurrentValidationSkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl) // no expectations: any call fails the test
	agg := marathon.New(store)
	ctx := context.Background()

	_, err := agg.SaveCurrent(ctx, "x")
	assert.ErrorIs(t, err, marathon.ErrEmptyMarathon)

	agg.AddMovie(movie(1, 100, ""))
	_, err = agg.SaveCurrent(ctx, "")
	assert.ErrorIs(t, err, marathon.ErrNameRequired)
	_, err = agg.SaveCurrent(ctx, "   ")
	assert.ErrorIs(t, err, marathon.ErrNameRequired)

	assert.Equal(t, marathon.ErrNameRequired.Error(), agg.Snapshot().LastError)
}

func TestSaveCurrentRefreshesFromStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	agg := marathon.New(store)
	ctx := context.Background()

	agg.AddMovie(movie(1, 100, ""))
	agg.AddMovie(movie(2, 50, ""))

	created := models.SavedMarathon{ID: "m1", Name: "Weekend", TotalMinutes: 150, CreatedAt: time.Now()}
	other := models.SavedMarathon{ID: "m0", Name: "Older"}
	gomock.InOrder(
		store.EXPECT().Create(gomock.Any(), "Weekend", gomock.Len(2), 150).Return(created, nil),
		store.EXPECT().List(gomock.Any()).Return([]models.SavedMarathon{created, other}, nil),
	)

	saved, err := agg.SaveCurrent(ctx, "  Weekend ")
	require.NoError(t, err)
	assert.Equal(t, "m1", saved.ID)
	assert.Equal(t, []models.SavedMarathon{created, other}, agg.Saved())
	assert.Len(t, agg.Movies(), 2, "saving does not clear the working set")
}

func TestSaveCurrentStoreFailureLeavesStateUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	agg := marathon.New(store)

	agg.AddMovie(movie(1, 100, ""))
	store.EXPECT().Create(gomock.Any(), "Mine", gomock.Any(), 100).Return(models.SavedMarathon{}, errors.New("offline"))

	_, err := agg.SaveCurrent(context.Background(), "Mine")
	require.Error(t, err)

	snap := agg.Snapshot()
	assert.Contains(t, snap.LastError, "offline")
	assert.Empty(t, snap.Saved)
	assert.Len(t, snap.Movies, 1)
}

func seedSaved(t *testing.T, store *MockStore, agg *marathon.Aggregator, saved ...models.SavedMarathon) {
	t.Helper()
	store.EXPECT().List(gomock.Any()).Return(saved, nil)
	require.NoError(t, agg.RefreshSaved(context.Background()))
}

func TestDeleteConfirmFlow(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	agg := marathon.New(store)
	ctx := context.Background()

	a := models.SavedMarathon{ID: "a", Name: "A"}
	b := models.SavedMarathon{ID: "b", Name: "B"}
	seedSaved(t, store, agg, a, b)

	pending, err := agg.RequestDelete("a")
	require.NoError(t, err)
	assert.Equal(t, "A", pending.TargetName)
	assert.Equal(t, marathon.PhasePendingConfirmation, agg.DeletePhase())

	store.EXPECT().Delete(gomock.Any(), "a").DoAndReturn(func(context.Context, string) error {
		assert.Equal(t, marathon.PhaseDeleting, agg.DeletePhase())
		return nil
	})
	store.EXPECT().List(gomock.Any()).Return([]models.SavedMarathon{b}, nil)

	require.NoError(t, agg.ConfirmDeleteToken(ctx, pending.Token))
	assert.Equal(t, marathon.PhaseIdle, agg.DeletePhase())
	assert.Equal(t, []models.SavedMarathon{b}, agg.Saved())
}

func TestDeleteCancelReturnsToIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	agg := marathon.New(store)
	seedSaved(t, store, agg, models.SavedMarathon{ID: "a", Name: "A"})

	_, err := agg.RequestDelete("a")
	require.NoError(t, err)
	agg.CancelDelete()

	assert.Equal(t, marathon.PhaseIdle, agg.DeletePhase())
	assert.ErrorIs(t, agg.ConfirmDelete(context.Background()), marathon.ErrNoPendingDelete)
}

func TestDeleteFailureStillEndsIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	agg := marathon.New(store)
	a := models.SavedMarathon{ID: "a", Name: "A"}
	seedSaved(t, store, agg, a)

	_, err := agg.RequestDelete("a")
	require.NoError(t, err)
	store.EXPECT().Delete(gomock.Any(), "a").Return(marathon.ErrNotFound)

	err = agg.ConfirmDelete(context.Background())
	assert.ErrorIs(t, err, marathon.ErrNotFound)

	snap := agg.Snapshot()
	assert.Equal(t, marathon.PhaseIdle, snap.DeletePhase)
	assert.Nil(t, snap.PendingDelete)
	assert.NotEmpty(t, snap.LastError)
	assert.Equal(t, []models.SavedMarathon{a}, snap.Saved)
}

func TestRequestDeleteReplacesPendingTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	agg := marathon.New(store)
	seedSaved(t, store, agg, models.SavedMarathon{ID: "a", Name: "A"}, models.SavedMarathon{ID: "b", Name: "B"})

	first, err := agg.RequestDelete("a")
	require.NoError(t, err)
	second, err := agg.RequestDelete("b")
	require.NoError(t, err)

	assert.ErrorIs(t, agg.ConfirmDeleteToken(context.Background(), first.Token), marathon.ErrStaleConfirmation)
	assert.Equal(t, marathon.PhasePendingConfirmation, agg.DeletePhase())

	store.EXPECT().Delete(gomock.Any(), "b").Return(nil)
	store.EXPECT().List(gomock.Any()).Return([]models.SavedMarathon{{ID: "a", Name: "A"}}, nil)
	require.NoError(t, agg.ConfirmDeleteToken(context.Background(), second.Token))
}

func TestRequestDeleteUnknownID(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))
	_, err := agg.RequestDelete("missing")
	assert.ErrorIs(t, err, marathon.ErrNotFound)
	assert.Equal(t, marathon.PhaseIdle, agg.DeletePhase())
}

func TestLoadIntoCurrentReproducesTotal(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))
	agg.AddMovie(movie(99, 10, ""))

	saved := models.SavedMarathon{
		ID:           "s",
		Name:         "Trilogy",
		Movies:       []models.Movie{movie(1, 178, "2001-12-19"), movie(2, 179, "2002-12-18"), movie(3, 201, "2003-12-17")},
		TotalMinutes: 558,
	}
	agg.LoadIntoCurrent(saved)

	movies := agg.Movies()
	require.Len(t, movies, 3)
	assert.False(t, agg.Contains(99))
	assert.Equal(t, saved.TotalMinutes, agg.Stats().TotalDurationMinutes)
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))
	ch, cancel := agg.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Empty(t, initial.Movies)

	for i := int64(1); i <= 5; i++ {
		agg.AddMovie(movie(i, 60, ""))
	}

	latest := <-ch
	assert.Len(t, latest.Movies, 5)
	assert.Equal(t, agg.Snapshot().Version, latest.Version)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered snapshot %d", extra.Version)
	default:
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestSnapshotIsIsolatedFromLaterMutations(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))
	agg.AddMovie(movie(1, 60, "1980-01-01"))
	snap := agg.Snapshot()

	agg.AddMovie(movie(2, 60, "1990-01-01"))
	assert.Len(t, snap.Movies, 1)
	assert.Equal(t, map[string]int{"1980s": 1}, snap.Stats.DecadeHistogram)
}

func TestSetGenresNamesHistogram(t *testing.T) {
	agg := marathon.New(NewMockStore(gomock.NewController(t)))
	agg.AddMovie(movie(1, 90, "", 28, 12))
	assert.Empty(t, agg.Stats().GenreHistogram)

	agg.SetGenres([]models.Genre{{ID: 28, Name: "Action"}, {ID: 12, Name: "Adventure"}})
	stats := agg.Stats()
	assert.Equal(t, map[string]int{"Action": 1, "Adventure": 1}, stats.GenreHistogram)
	assert.Equal(t, "Action", stats.TopGenre)
}
