// Package marathon owns the current marathon (the working set of movies), the
// list of saved marathons, and the statistics derived from them.
package marathon

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cinemarathon/internal/logging"
	"cinemarathon/models"
)

// DeletePhase is the state of the two-step deletion of a saved marathon.
type DeletePhase int

const (
	PhaseIdle DeletePhase = iota
	PhasePendingConfirmation
	PhaseDeleting
)

func (p DeletePhase) String() string {
	switch p {
	case PhasePendingConfirmation:
		return "pending_confirmation"
	case PhaseDeleting:
		return "deleting"
	default:
		return "idle"
	}
}

// PendingDelete is the intent returned by RequestDelete.
type PendingDelete struct {
	Token      string
	TargetID   string
	TargetName string
}

// State is an immutable snapshot published after every mutation.
type State struct {
	Version       uint64
	Movies        []models.Movie
	Saved         []models.SavedMarathon
	Stats         models.MarathonStats
	DeletePhase   DeletePhase
	PendingDelete *PendingDelete
	Deleting      []string // ids whose deletion is still running
	LastError     string
}

// Contains reports whether the working set holds the movie id.
func (s State) Contains(id int64) bool {
	return slices.ContainsFunc(s.Movies, func(m models.Movie) bool { return m.ID == id })
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithGenres seeds the genre reference table.
func WithGenres(genres []models.Genre) Option {
	return func(a *Aggregator) { a.genres = genreNames(genres) }
}

// Aggregator is constructed once per application and shared by handle.
// Mutations run synchronously under a mutex; store calls run outside it so
// concurrent saves and deletes proceed independently.
type Aggregator struct {
	store  Store
	logger zerolog.Logger

	mu      sync.Mutex
	movies  []models.Movie
	genres  map[int64]string
	saved   []models.SavedMarathon
	stats   models.MarathonStats
	pending *PendingDelete
	lastErr string
	version uint64

	// refreshSeq numbers saved-list reads; appliedSeq is the newest one stored in saved.
	refreshSeq uint64
	appliedSeq uint64
	deleting   map[string]struct{}

	subs    map[int]chan State
	nextSub int
}

// New creates an aggregator writing saved marathons through store.
func New(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    store,
		logger:   logging.WithComponent("marathon"),
		genres:   map[int64]string{},
		subs:     map[int]chan State{},
		deleting: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.stats = computeStats(nil, a.genres)
	return a
}

// AddMovie appends the movie unless one with the same id is present.
func (a *Aggregator) AddMovie(movie models.Movie) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.indexLocked(movie.ID) >= 0 {
		return false
	}
	a.movies = append(a.movies, movie)
	a.changedLocked()
	return true
}

// RemoveMovie drops the movie if present.
func (a *Aggregator) RemoveMovie(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.indexLocked(id)
	if idx < 0 {
		return false
	}
	a.movies = slices.Delete(a.movies, idx, idx+1)
	a.changedLocked()
	return true
}

// ApplyRuntime records an enriched runtime. The update is discarded when the
// movie has been removed since the lookup started.
func (a *Aggregator) ApplyRuntime(id int64, minutes int) bool {
	if minutes < 0 {
		minutes = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.indexLocked(id)
	if idx < 0 {
		a.logger.Debug().Int64("movie", id).Msg("discarding runtime for movie no longer in marathon")
		return false
	}
	a.movies[idx] = a.movies[idx].WithRuntime(minutes)
	a.changedLocked()
	return true
}

// Contains reports whether the movie is in the current marathon.
func (a *Aggregator) Contains(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.indexLocked(id) >= 0
}

// SetGenres replaces the genre table and recomputes the histograms.
func (a *Aggregator) SetGenres(genres []models.Genre) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.genres = genreNames(genres)
	a.changedLocked()
}

// Stats returns the statistics of the current marathon.
func (a *Aggregator) Stats() models.MarathonStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneStats(a.stats)
}

// Movies returns a copy of the current marathon.
func (a *Aggregator) Movies() []models.Movie {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.movies)
}

// LoadIntoCurrent replaces the current marathon with a saved one.
func (a *Aggregator) LoadIntoCurrent(saved models.SavedMarathon) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.movies = dedupe(saved.Movies)
	a.changedLocked()
	if a.stats.TotalDurationMinutes != saved.TotalMinutes {
		a.logger.Warn().
			Str("marathon", saved.ID).
			Int("stored", saved.TotalMinutes).
			Int("computed", a.stats.TotalDurationMinutes).
			Msg("saved total does not match movie runtimes")
	}
}

// Restore replaces the current marathon with movies persisted by the caller.
func (a *Aggregator) Restore(movies []models.Movie) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.movies = dedupe(movies)
	a.changedLocked()
}

// Clear empties the current marathon.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.movies = nil
	a.changedLocked()
}

// SaveCurrent stores the current marathon under name and refreshes the saved
// list from the store. Validation failures are returned before any store call.
func (a *Aggregator) SaveCurrent(ctx context.Context, name string) (models.SavedMarathon, error) {
	a.mu.Lock()
	name = strings.TrimSpace(name)
	var verr error
	switch {
	case len(a.movies) == 0:
		verr = ErrEmptyMarathon
	case name == "":
		verr = ErrNameRequired
	}
	if verr != nil {
		a.failLocked(verr)
		a.mu.Unlock()
		return models.SavedMarathon{}, verr
	}
	movies := slices.Clone(a.movies)
	total := a.stats.TotalDurationMinutes
	a.mu.Unlock()

	saved, err := a.store.Create(ctx, name, movies, total)
	if err != nil {
		err = fmt.Errorf("save marathon: %w", err)
		a.fail(err)
		return models.SavedMarathon{}, err
	}
	a.logger.Info().Str("marathon", saved.ID).Str("name", saved.Name).Int("movies", len(movies)).Msg("marathon saved")

	if err := a.RefreshSaved(ctx); err != nil {
		return saved, err
	}
	return saved, nil
}

// RefreshSaved re-reads the saved list from the store. A response that
// arrives after the response of a later refresh is dropped.
func (a *Aggregator) RefreshSaved(ctx context.Context) error {
	seq := a.beginRefresh()
	saved, err := a.store.List(ctx)
	if err != nil {
		err = fmt.Errorf("list marathons: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyRefreshLocked(seq, saved, err)
	return err
}

func (a *Aggregator) beginRefresh() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshSeq++
	return a.refreshSeq
}

// applyRefreshLocked stores the result of refresh seq unless a later refresh
// has already been applied. It reports whether it published.
func (a *Aggregator) applyRefreshLocked(seq uint64, saved []models.SavedMarathon, err error) bool {
	if seq < a.appliedSeq {
		a.logger.Debug().Uint64("seq", seq).Uint64("applied", a.appliedSeq).Msg("dropping stale saved list")
		return false
	}
	a.appliedSeq = seq
	if err != nil {
		a.failLocked(err)
		return true
	}
	a.saved = saved
	a.lastErr = ""
	a.publishLocked()
	return true
}

// Saved returns the last saved list read from the store.
func (a *Aggregator) Saved() []models.SavedMarathon {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.saved)
}

// FindSaved looks a saved marathon up by id in the last read list.
func (a *Aggregator) FindSaved(id string) (models.SavedMarathon, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := slices.IndexFunc(a.saved, func(m models.SavedMarathon) bool { return m.ID == id })
	if idx < 0 {
		return models.SavedMarathon{}, false
	}
	return a.saved[idx], true
}

// EditSaved renames or replaces the movies of a saved marathon when the store
// supports it. The total is recomputed from the new movie list.
func (a *Aggregator) EditSaved(ctx context.Context, id string, name *string, movies []models.Movie) (models.SavedMarathon, error) {
	updater, ok := a.store.(Updater)
	if !ok {
		return models.SavedMarathon{}, ErrUpdateUnsupported
	}

	req := models.UpdateMarathonRequest{}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			a.fail(ErrNameRequired)
			return models.SavedMarathon{}, ErrNameRequired
		}
		req.Name = &trimmed
	}
	if movies != nil {
		list := dedupe(movies)
		total := TotalMinutes(list)
		req.Movies = &list
		req.TotalMinutes = &total
	}

	updated, err := updater.Update(ctx, id, req)
	if err != nil {
		err = fmt.Errorf("update marathon: %w", err)
		a.fail(err)
		return models.SavedMarathon{}, err
	}
	if err := a.RefreshSaved(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// RequestDelete starts the two-step deletion of a saved marathon. A request made
// while another deletion awaits confirmation replaces its target. Deletions
// already confirmed keep running; only the same id cannot be requested again
// until its deletion finishes.
func (a *Aggregator) RequestDelete(id string) (PendingDelete, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, busy := a.deleting[id]; busy {
		return PendingDelete{}, ErrDeleteInProgress
	}
	idx := slices.IndexFunc(a.saved, func(m models.SavedMarathon) bool { return m.ID == id })
	if idx < 0 {
		return PendingDelete{}, ErrNotFound
	}

	pending := PendingDelete{
		Token:      uuid.NewString(),
		TargetID:   id,
		TargetName: a.saved[idx].Name,
	}
	a.pending = &pending
	a.publishLocked()
	return pending, nil
}

// CancelDelete abandons a pending deletion.
func (a *Aggregator) CancelDelete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return
	}
	a.pending = nil
	a.publishLocked()
}

// ConfirmDelete executes the pending deletion, whatever its token.
func (a *Aggregator) ConfirmDelete(ctx context.Context) error {
	return a.confirm(ctx, "")
}

// ConfirmDeleteToken executes the pending deletion only if token still identifies it.
func (a *Aggregator) ConfirmDeleteToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrStaleConfirmation
	}
	return a.confirm(ctx, token)
}

func (a *Aggregator) confirm(ctx context.Context, token string) error {
	a.mu.Lock()
	if a.pending == nil {
		a.mu.Unlock()
		return ErrNoPendingDelete
	}
	if token != "" && a.pending.Token != token {
		a.mu.Unlock()
		return ErrStaleConfirmation
	}
	target := *a.pending
	a.pending = nil
	a.deleting[target.TargetID] = struct{}{}
	a.publishLocked()
	a.mu.Unlock()

	if err := a.store.Delete(ctx, target.TargetID); err != nil {
		err = fmt.Errorf("delete marathon %s: %w", target.TargetID, err)
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.deleting, target.TargetID)
		a.lastErr = err.Error()
		a.publishLocked()
		return err
	}
	a.logger.Info().Str("marathon", target.TargetID).Msg("marathon deleted")

	seq := a.beginRefresh()
	saved, listErr := a.store.List(ctx)
	if listErr != nil {
		listErr = fmt.Errorf("list marathons: %w", listErr)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.deleting, target.TargetID)
	if !a.applyRefreshLocked(seq, saved, listErr) {
		// the in-flight set still changed
		a.publishLocked()
	}
	return listErr
}

// DeletePhase reports where the deletion state machine is. A pending
// confirmation takes precedence over deletions still running.
func (a *Aggregator) DeletePhase() DeletePhase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phaseLocked()
}

func (a *Aggregator) phaseLocked() DeletePhase {
	switch {
	case a.pending != nil:
		return PhasePendingConfirmation
	case len(a.deleting) > 0:
		return PhaseDeleting
	default:
		return PhaseIdle
	}
}

// Snapshot returns the latest published state.
func (a *Aggregator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Subscribe returns a channel that always yields the most recent snapshot,
// starting with the current one. A slow reader skips intermediate snapshots.
// The returned function unsubscribes and closes the channel.
func (a *Aggregator) Subscribe() (<-chan State, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan State, 1)
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	ch <- a.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.subs, id)
			close(ch)
		})
	}
}

func (a *Aggregator) indexLocked(id int64) int {
	return slices.IndexFunc(a.movies, func(m models.Movie) bool { return m.ID == id })
}

func (a *Aggregator) changedLocked() {
	a.stats = computeStats(a.movies, a.genres)
	a.publishLocked()
}

func (a *Aggregator) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failLocked(err)
}

func (a *Aggregator) failLocked(err error) {
	event := a.logger.Error()
	if errors.Is(err, ErrEmptyMarathon) || errors.Is(err, ErrNameRequired) {
		event = a.logger.Debug()
	}
	event.Err(err).Msg("marathon operation failed")
	a.lastErr = err.Error()
	a.publishLocked()
}

func (a *Aggregator) snapshotLocked() State {
	s := State{
		Version:     a.version,
		Movies:      slices.Clone(a.movies),
		Saved:       slices.Clone(a.saved),
		Stats:       cloneStats(a.stats),
		DeletePhase: a.phaseLocked(),
		LastError:   a.lastErr,
	}
	if a.pending != nil {
		p := *a.pending
		s.PendingDelete = &p
	}
	if len(a.deleting) > 0 {
		s.Deleting = slices.Sorted(maps.Keys(a.deleting))
	}
	return s
}

func (a *Aggregator) publishLocked() {
	a.version++
	if len(a.subs) == 0 {
		return
	}
	snap := a.snapshotLocked()
	for _, ch := range a.subs {
		// drop the unread snapshot so the buffer always holds the newest one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func cloneStats(s models.MarathonStats) models.MarathonStats {
	out := s
	out.GenreHistogram = maps.Clone(s.GenreHistogram)
	out.DecadeHistogram = maps.Clone(s.DecadeHistogram)
	return out
}

func dedupe(movies []models.Movie) []models.Movie {
	out := make([]models.Movie, 0, len(movies))
	seen := make(map[int64]struct{}, len(movies))
	for _, m := range movies {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
