// Package coordinator turns catalog responses and the marathon working set
// into display state for a browsing front end.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"cinemarathon/internal/logging"
	"cinemarathon/internal/marathon"
	"cinemarathon/models"
	"cinemarathon/services/catalog"
	"cinemarathon/utils/similarity"
)

//go:generate mockgen -destination=mock_gateway_test.go -package=coordinator_test cinemarathon/services/catalog Gateway

var (
	ErrPersonNotFound = errors.New("person not found")
	ErrInvalidRole    = errors.New("role must be actor, director or any")
	ErrInvalidSort    = errors.New("unknown sort key")
	// ErrSuperseded is returned by a load whose response arrived after a newer request.
	ErrSuperseded = errors.New("catalog response superseded by a newer request")
)

// DefaultDebounce is the settle window applied to search terms.
const DefaultDebounce = 300 * time.Millisecond

// Filters narrows the visible items. Name is matched locally; genres and year
// are also sent with discover queries.
type Filters struct {
	Name     string
	GenreIDs []int64
	Year     string
}

// DisplayItem is one browse card.
type DisplayItem struct {
	ID            int64
	Title         string
	ImageURL      string
	Link          string
	RatingPercent int
	Vote          float64
	Year          int
	Runtime       int
	InMarathon    bool
}

// State is an immutable snapshot of the browse view.
type State struct {
	Version    uint64
	Items      []DisplayItem
	Loading    bool
	Error      string
	Page       int
	TotalPages int
	Genres     []models.Genre
	Filters    Filters
	SortBy     SortKey
	Query      string
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithDebounce overrides the search settle window.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) { c.debounce = d }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithNameThreshold sets how close each word of the name filter must be to a
// title word, from 0 (anything) to 1 (exact words or prefixes only).
func WithNameThreshold(threshold float64) Option {
	return func(c *Coordinator) { c.nameThreshold = min(max(threshold, 0), 1) }
}

// WithLanguage selects the collation used for title sorting.
func WithLanguage(tag language.Tag) Option {
	return func(c *Coordinator) { c.collator = collate.New(tag, collate.IgnoreCase, collate.Loose) }
}

// Coordinator owns the browse state. It runs two background loops, one
// debouncing search terms and one following the aggregator, until Close.
type Coordinator struct {
	catalog  catalog.Gateway
	agg      *marathon.Aggregator
	logger   zerolog.Logger
	debounce time.Duration

	nameThreshold float64

	ctx    context.Context
	cancel context.CancelFunc
	terms  chan string
	loops  conc.WaitGroup
	work   conc.WaitGroup

	mu         sync.Mutex
	collator   *collate.Collator
	results    []models.Movie
	inMarathon map[int64]struct{}
	seq        uint64
	loading    bool
	errMsg     string
	page       int
	totalPages int
	genres     []models.Genre
	filters    Filters
	sortBy     SortKey
	query      string
	items      []DisplayItem
	version    uint64
	closed     bool

	subs    map[int]chan State
	nextSub int
}

// New creates a coordinator reading from gw and adding movies to agg.
func New(gw catalog.Gateway, agg *marathon.Aggregator, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		catalog:       gw,
		agg:           agg,
		logger:        logging.WithComponent("coordinator"),
		debounce:      DefaultDebounce,
		nameThreshold: similarity.DefaultThreshold,
		ctx:           ctx,
		cancel:        cancel,
		terms:         make(chan string),
		collator:      collate.New(language.English, collate.IgnoreCase, collate.Loose),
		inMarathon:    map[int64]struct{}{},
		sortBy:        SortPopularity,
		subs:          map[int]chan State{},
	}
	for _, opt := range opts {
		opt(c)
	}

	marathonStates, unsubscribe := agg.Subscribe()
	c.loops.Go(func() {
		<-ctx.Done()
		unsubscribe()
	})
	c.loops.Go(func() { c.followMarathon(marathonStates) })
	c.loops.Go(c.debounceLoop)
	return c
}

// Close stops the background loops and waits for in-flight work.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.loops.Wait()
	c.work.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// Wait blocks until in-flight enrichments and debounced searches settle.
func (c *Coordinator) Wait() {
	c.work.Wait()
}

// SetSearchTerm feeds the debounced search. Once the term has been stable for
// the settle window it is searched, unless it equals the last searched term.
// An empty term returns to the unfiltered discover listing.
func (c *Coordinator) SetSearchTerm(term string) {
	select {
	case c.terms <- strings.TrimSpace(term):
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) debounceLoop() {
	timer := time.NewTimer(c.debounce)
	timer.Stop()
	defer timer.Stop()

	var (
		pending string
		last    string
		fired   bool
	)
	for {
		select {
		case <-c.ctx.Done():
			return
		case term := <-c.terms:
			pending = term
			timer.Reset(c.debounce)
		case <-timer.C:
			if fired && pending == last {
				continue
			}
			fired, last = true, pending
			term := pending
			c.work.Go(func() {
				var err error
				if term == "" {
					err = c.Discover(c.ctx, 1)
				} else {
					err = c.Search(c.ctx, term, 1)
				}
				if err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, context.Canceled) {
					c.logger.Warn().Err(err).Str("term", term).Msg("debounced search failed")
				}
			})
		}
	}
}

func (c *Coordinator) followMarathon(states <-chan marathon.State) {
	for st := range states {
		ids := make(map[int64]struct{}, len(st.Movies))
		for _, m := range st.Movies {
			ids[m.ID] = struct{}{}
		}
		c.mu.Lock()
		c.inMarathon = ids
		c.rebuildLocked()
		c.mu.Unlock()
	}
}

// Search runs a free-text catalog search.
func (c *Coordinator) Search(ctx context.Context, query string, page int) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.Discover(ctx, page)
	}
	return c.load(ctx, query, func(ctx context.Context) (models.MoviePage, error) {
		return c.catalog.SearchMovies(ctx, query, page)
	})
}

// Discover lists movies matching the genre and year filters in the current sort order.
func (c *Coordinator) Discover(ctx context.Context, page int) error {
	c.mu.Lock()
	filters := models.DiscoverFilters{
		Page:     page,
		GenreIDs: slices.Clone(c.filters.GenreIDs),
		Year:     c.filters.Year,
		SortBy:   c.sortBy.catalogKey(),
	}
	c.mu.Unlock()
	return c.load(ctx, "", func(ctx context.Context) (models.MoviePage, error) {
		return c.catalog.DiscoverMovies(ctx, filters)
	})
}

// LoadPopular loads the landing listing.
func (c *Coordinator) LoadPopular(ctx context.Context, page int) error {
	return c.load(ctx, "", func(ctx context.Context) (models.MoviePage, error) {
		return c.catalog.PopularMovies(ctx, page)
	})
}

// LoadGenres fetches the genre table and shares it with the aggregator.
func (c *Coordinator) LoadGenres(ctx context.Context) error {
	genres, err := c.catalog.ListGenres(ctx)
	if err != nil {
		c.mu.Lock()
		c.errMsg = err.Error()
		c.publishLocked()
		c.mu.Unlock()
		return fmt.Errorf("load genres: %w", err)
	}
	c.agg.SetGenres(genres)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.genres = slices.Clone(genres)
	c.publishLocked()
	return nil
}

// SetFilters replaces the filters. The name filter applies to loaded items
// immediately; a genre or year change reloads the discover listing when no
// search is active.
func (c *Coordinator) SetFilters(ctx context.Context, f Filters) error {
	f.Name = strings.TrimSpace(f.Name)
	f.Year = strings.TrimSpace(f.Year)

	c.mu.Lock()
	refetch := c.query == "" && (f.Year != c.filters.Year || !slices.Equal(f.GenreIDs, c.filters.GenreIDs))
	c.filters = Filters{Name: f.Name, GenreIDs: slices.Clone(f.GenreIDs), Year: f.Year}
	c.rebuildLocked()
	c.mu.Unlock()

	if refetch {
		return c.Discover(ctx, 1)
	}
	return nil
}

// SetSortBy changes the item order. Discover queries use the matching
// catalog sort from the next load on.
func (c *Coordinator) SetSortBy(key SortKey) error {
	key, err := ParseSortKey(string(key))
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sortBy = key
	c.rebuildLocked()
	return nil
}

// AddToMarathon inserts the movie into the working set. A movie without a
// runtime is enriched in the background; if the lookup fails the runtime is
// recorded as zero.
func (c *Coordinator) AddToMarathon(ctx context.Context, movie models.Movie) bool {
	if !c.agg.AddMovie(movie) {
		return false
	}
	if movie.HasRuntime() {
		return true
	}

	id := movie.ID
	c.work.Go(func() {
		detail, err := c.catalog.GetMovieDetail(ctx, id)
		minutes := detail.Minutes()
		if err != nil {
			c.logger.Warn().Err(err).Int64("movie_id", id).Msg("runtime enrichment failed")
			minutes = 0
		}
		if !c.agg.ApplyRuntime(id, minutes) {
			c.logger.Debug().Int64("movie_id", id).Msg("discarded runtime for removed movie")
		}
	})
	return true
}

// AddAllToMarathon adds every movie and returns how many were new.
func (c *Coordinator) AddAllToMarathon(ctx context.Context, movies []models.Movie) int {
	added := 0
	for _, m := range movies {
		if c.AddToMarathon(ctx, m) {
			added++
		}
	}
	return added
}

// RemoveFromMarathon drops the movie from the working set.
func (c *Coordinator) RemoveFromMarathon(id int64) bool {
	return c.agg.RemoveMovie(id)
}

// Results returns the raw movies behind the current items, in display order.
func (c *Coordinator) Results() []models.Movie {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Movie, 0, len(c.items))
	for _, item := range c.items {
		if i := slices.IndexFunc(c.results, func(m models.Movie) bool { return m.ID == item.ID }); i >= 0 {
			out = append(out, c.results[i])
		}
	}
	return out
}

// load runs fetch as the newest request. Responses from older requests are
// dropped with ErrSuperseded.
func (c *Coordinator) load(ctx context.Context, query string, fetch func(context.Context) (models.MoviePage, error)) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.loading = true
	c.errMsg = ""
	c.query = query
	c.publishLocked()
	c.mu.Unlock()

	page, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		c.logger.Debug().Uint64("seq", seq).Uint64("latest", c.seq).Msg("dropping stale catalog response")
		return ErrSuperseded
	}
	c.loading = false
	if err != nil {
		c.results = nil
		c.page, c.totalPages = 0, 0
		c.errMsg = err.Error()
		c.rebuildLocked()
		return err
	}
	c.results = slices.Clone(page.Results)
	c.page, c.totalPages = page.Page, page.TotalPages
	c.rebuildLocked()
	return nil
}

// showMovies publishes movies that did not come from a paginated query.
func (c *Coordinator) showMovies(query string, movies []models.Movie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.loading = false
	c.errMsg = ""
	c.query = query
	c.results = slices.Clone(movies)
	c.page, c.totalPages = 1, 1
	c.rebuildLocked()
}

func (c *Coordinator) rebuildLocked() {
	visible := make([]models.Movie, 0, len(c.results))
	for _, m := range c.results {
		if c.filters.matches(m, c.nameThreshold) {
			visible = append(visible, m)
		}
	}
	c.sortLocked(visible)

	items := make([]DisplayItem, 0, len(visible))
	for _, m := range visible {
		_, in := c.inMarathon[m.ID]
		items = append(items, newDisplayItem(m, in))
	}
	c.items = items
	c.publishLocked()
}

func newDisplayItem(m models.Movie, inMarathon bool) DisplayItem {
	year, _ := m.Year()
	return DisplayItem{
		ID:            m.ID,
		Title:         m.Title,
		ImageURL:      catalog.PosterURL(m.PosterPath, catalog.PosterSize),
		Link:          "/movie/" + strconv.FormatInt(m.ID, 10),
		RatingPercent: int(math.Round(m.VoteAverage * 10)),
		Vote:          m.VoteAverage,
		Year:          year,
		Runtime:       m.Minutes(),
		InMarathon:    inMarathon,
	}
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that always yields the most recent snapshot,
// starting with the current one. The returned function unsubscribes.
func (c *Coordinator) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	if c.closed {
		ch <- c.snapshotLocked()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

func (c *Coordinator) snapshotLocked() State {
	return State{
		Version:    c.version,
		Items:      slices.Clone(c.items),
		Loading:    c.loading,
		Error:      c.errMsg,
		Page:       c.page,
		TotalPages: c.totalPages,
		Genres:     slices.Clone(c.genres),
		Filters: Filters{
			Name:     c.filters.Name,
			GenreIDs: slices.Clone(c.filters.GenreIDs),
			Year:     c.filters.Year,
		},
		SortBy: c.sortBy,
		Query:  c.query,
	}
}

func (c *Coordinator) publishLocked() {
	c.version++
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
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
