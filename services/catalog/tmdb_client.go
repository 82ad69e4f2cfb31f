package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"cinemarathon/internal/logging"
	"cinemarathon/internal/metrics"
	"cinemarathon/models"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpc = hc
		}
	}
}

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithRateLimit throttles outgoing requests.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithLanguage sets the response language, e.g. "en" or "pt-BR".
func WithLanguage(lang string) ClientOption {
	return func(c *Client) { c.language = normalizeLanguage(lang) }
}

// WithRetryDelay sets the first backoff step; it doubles per attempt.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// Client calls the TMDB v3 REST API.
type Client struct {
	baseURL    string
	language   string
	httpc      *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	attempts   uint
	logger     zerolog.Logger

	mu     sync.RWMutex
	apiKey string
}

// NewClient builds a client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  tmdbBaseURL,
		language: "en-US",
		httpc: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		// TMDB allows roughly 50 requests per second
		limiter:    rate.NewLimiter(rate.Every(20*time.Millisecond), 10),
		retryDelay: 300 * time.Millisecond,
		attempts:   3,
		logger:     logging.WithComponent("tmdb"),
		apiKey:     strings.TrimSpace(apiKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAPIKey swaps the key, e.g. after a settings reload.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.key() != ""
}

type tmdbStatusError struct {
	status int
	text   string
}

func (e *tmdbStatusError) Error() string {
	return fmt.Sprintf("tmdb request failed: %s", e.text)
}

// get performs a throttled GET, retrying transport errors, 429 and 5xx with backoff.
func (c *Client) get(ctx context.Context, op string, query url.Values, v any, segments ...string) (err error) {
	defer func() {
		metrics.CatalogRequestsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
	}()

	apiKey := c.key()
	if apiKey == "" {
		return ErrNotConfigured
	}

	endpoint, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", apiKey)
	query.Set("language", c.language)

	attempt := 0
	return retry.Do(
		func() error {
			attempt++
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.URL.RawQuery = query.Encode()
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpc.Do(req)
			if err != nil {
				c.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("tmdb http error")
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				c.logger.Warn().Str("op", op).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("tmdb rate limited or server error")
				return &tmdbStatusError{status: resp.StatusCode, text: resp.Status}
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(fmt.Errorf("%s: %w", op, ErrNotFound))
			case resp.StatusCode >= 400:
				return retry.Unrecoverable(&tmdbStatusError{status: resp.StatusCode, text: resp.Status})
			}

			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode %s response: %w", op, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func withResults(p models.MoviePage) models.MoviePage {
	if p.Results == nil {
		p.Results = []models.Movie{}
	}
	return p
}

// SearchMovies runs a free-text title search.
func (c *Client) SearchMovies(ctx context.Context, query string, page int) (models.MoviePage, error) {
	q := url.Values{}
	q.Set("query", strings.TrimSpace(query))
	q.Set("page", strconv.Itoa(normalizePage(page)))
	q.Set("include_adult", "false")

	var resp models.MoviePage
	if err := c.get(ctx, "search_movies", q, &resp, "search", "movie"); err != nil {
		return models.MoviePage{}, err
	}
	return withResults(resp), nil
}

// DiscoverMovies lists movies matching genre and year filters.
func (c *Client) DiscoverMovies(ctx context.Context, filters models.DiscoverFilters) (models.MoviePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(normalizePage(filters.Page)))
	q.Set("include_adult", "false")
	q.Set("include_video", "false")
	sortBy := filters.SortBy
	if sortBy == "" {
		sortBy = SortPopularity
	}
	q.Set("sort_by", sortBy)
	if len(filters.GenreIDs) > 0 {
		ids := make([]string, 0, len(filters.GenreIDs))
		for _, id := range filters.GenreIDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		q.Set("with_genres", strings.Join(ids, ","))
	}
	if year := strings.TrimSpace(filters.Year); year != "" {
		q.Set("primary_release_year", year)
	}

	var resp models.MoviePage
	if err := c.get(ctx, "discover_movies", q, &resp, "discover", "movie"); err != nil {
		return models.MoviePage{}, err
	}
	return withResults(resp), nil
}

// PopularMovies is the landing list.
func (c *Client) PopularMovies(ctx context.Context, page int) (models.MoviePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(normalizePage(page)))

	var resp models.MoviePage
	if err := c.get(ctx, "popular_movies", q, &resp, "movie", "popular"); err != nil {
		return models.MoviePage{}, err
	}
	return withResults(resp), nil
}

// ListGenres returns the movie genre table.
func (c *Client) ListGenres(ctx context.Context) ([]models.Genre, error) {
	var resp struct {
		Genres []models.Genre `json:"genres"`
	}
	if err := c.get(ctx, "list_genres", nil, &resp, "genre", "movie", "list"); err != nil {
		return nil, err
	}
	if resp.Genres == nil {
		resp.Genres = []models.Genre{}
	}
	return resp.Genres, nil
}

// GetMovieDetail fetches one movie including its runtime.
func (c *Client) GetMovieDetail(ctx context.Context, id int64) (models.Movie, error) {
	var resp struct {
		models.Movie
		Genres []models.Genre `json:"genres"`
	}
	if err := c.get(ctx, "movie_detail", nil, &resp, "movie", strconv.FormatInt(id, 10)); err != nil {
		return models.Movie{}, err
	}
	movie := resp.Movie
	if len(movie.GenreIDs) == 0 && len(resp.Genres) > 0 {
		movie.GenreIDs = make([]int64, 0, len(resp.Genres))
		for _, g := range resp.Genres {
			movie.GenreIDs = append(movie.GenreIDs, g.ID)
		}
	}
	return movie, nil
}

// SearchPerson finds people by name, best match first.
func (c *Client) SearchPerson(ctx context.Context, name string) ([]models.Person, error) {
	q := url.Values{}
	q.Set("query", strings.TrimSpace(name))
	q.Set("include_adult", "false")

	var resp struct {
		Results []models.Person `json:"results"`
	}
	if err := c.get(ctx, "search_person", q, &resp, "search", "person"); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []models.Person{}
	}
	return resp.Results, nil
}

// GetPersonCredits returns cast and crew movie credits.
func (c *Client) GetPersonCredits(ctx context.Context, personID int64) (models.PersonCredits, error) {
	var resp models.PersonCredits
	if err := c.get(ctx, "person_credits", nil, &resp, "person", strconv.FormatInt(personID, 10), "movie_credits"); err != nil {
		return models.PersonCredits{}, err
	}
	if resp.ID == 0 {
		resp.ID = personID
	}
	if resp.Cast == nil {
		resp.Cast = []models.MovieCredit{}
	}
	if resp.Crew == nil {
		resp.Crew = []models.MovieCredit{}
	}
	return resp, nil
}

var _ Gateway = (*Client)(nil)
