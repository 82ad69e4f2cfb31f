package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"cinemarathon/internal/logging"
	"cinemarathon/internal/metrics"
	"cinemarathon/models"
)

// TTLs controls how long each kind of response is cached.
type TTLs struct {
	Genres  time.Duration
	Details time.Duration
	Queries time.Duration
}

// DefaultTTLs keeps genres for the session, details for a day and query pages briefly.
func DefaultTTLs() TTLs {
	return TTLs{
		Genres:  12 * time.Hour,
		Details: 24 * time.Hour,
		Queries: 10 * time.Minute,
	}
}

// sharedFetchTimeout bounds an upstream lookup once no caller's context governs it.
const sharedFetchTimeout = 30 * time.Second

// Service decorates a Gateway with a response cache. Concurrent identical
// lookups share one upstream call.
type Service struct {
	gateway Gateway
	cache   Cache
	ttl     TTLs
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewService wraps gw. A nil cache disables caching.
func NewService(gw Gateway, cache Cache, ttl TTLs) *Service {
	if cache == nil {
		cache = NewNoOpCache()
	}
	return &Service{
		gateway: gw,
		cache:   cache,
		ttl:     ttl,
		logger:  logging.WithComponent("catalog"),
	}
}

// Purge drops every cached response.
func (s *Service) Purge(ctx context.Context) {
	s.cache.Clear(ctx)
}

// CacheStats exposes the cache counters.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

func cached[T any](ctx context.Context, s *Service, op, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if data, ok := s.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			metrics.CatalogRequestsTotal.WithLabelValues(op, "hit").Inc()
			return v, nil
		}
		s.logger.Warn().Str("key", key).Msg("dropping undecodable cache entry")
		s.cache.Delete(ctx, key)
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// the shared lookup must not die with whichever caller started it
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(v); err == nil {
			s.cache.Set(fctx, key, data, ttl)
		}
		return v, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	if res.Err != nil {
		var zero T
		return zero, res.Err
	}
	if res.Shared {
		s.logger.Debug().Str("key", key).Msg("shared in-flight catalog lookup")
	}
	return res.Val.(T), nil
}

func (s *Service) SearchMovies(ctx context.Context, query string, page int) (models.MoviePage, error) {
	query = strings.TrimSpace(query)
	key := fmt.Sprintf("search:%s:%d", strings.ToLower(query), normalizePage(page))
	return cached(ctx, s, "search_movies", key, s.ttl.Queries, func(ctx context.Context) (models.MoviePage, error) {
		return s.gateway.SearchMovies(ctx, query, page)
	})
}

func (s *Service) DiscoverMovies(ctx context.Context, filters models.DiscoverFilters) (models.MoviePage, error) {
	ids := make([]string, 0, len(filters.GenreIDs))
	for _, id := range filters.GenreIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	key := fmt.Sprintf("discover:%d:%s:%s:%s", normalizePage(filters.Page), strings.Join(ids, ","), filters.Year, filters.SortBy)
	return cached(ctx, s, "discover_movies", key, s.ttl.Queries, func(ctx context.Context) (models.MoviePage, error) {
		return s.gateway.DiscoverMovies(ctx, filters)
	})
}

func (s *Service) PopularMovies(ctx context.Context, page int) (models.MoviePage, error) {
	key := fmt.Sprintf("popular:%d", normalizePage(page))
	return cached(ctx, s, "popular_movies", key, s.ttl.Queries, func(ctx context.Context) (models.MoviePage, error) {
		return s.gateway.PopularMovies(ctx, page)
	})
}

func (s *Service) ListGenres(ctx context.Context) ([]models.Genre, error) {
	return cached(ctx, s, "list_genres", "genres", s.ttl.Genres, s.gateway.ListGenres)
}

func (s *Service) GetMovieDetail(ctx context.Context, id int64) (models.Movie, error) {
	key := "movie:" + strconv.FormatInt(id, 10)
	return cached(ctx, s, "movie_detail", key, s.ttl.Details, func(ctx context.Context) (models.Movie, error) {
		return s.gateway.GetMovieDetail(ctx, id)
	})
}

func (s *Service) SearchPerson(ctx context.Context, name string) ([]models.Person, error) {
	name = strings.TrimSpace(name)
	key := "person-search:" + strings.ToLower(name)
	return cached(ctx, s, "search_person", key, s.ttl.Queries, func(ctx context.Context) ([]models.Person, error) {
		return s.gateway.SearchPerson(ctx, name)
	})
}

func (s *Service) GetPersonCredits(ctx context.Context, personID int64) (models.PersonCredits, error) {
	key := "person-credits:" + strconv.FormatInt(personID, 10)
	return cached(ctx, s, "person_credits", key, s.ttl.Details, func(ctx context.Context) (models.PersonCredits, error) {
		return s.gateway.GetPersonCredits(ctx, personID)
	})
}

var _ Gateway = (*Service)(nil)
