// Package catalog wraps the third-party movie database: search, discover,
// genres, movie detail (for runtime enrichment) and person credits.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cinemarathon/models"
)

var (
	ErrNotConfigured = errors.New("tmdb api key not configured")
	ErrNotFound      = errors.New("catalog entry not found")
)

// Sort keys accepted by DiscoverMovies.
const (
	SortPopularity  = "popularity.desc"
	SortReleaseDate = "primary_release_date.desc"
	SortVoteAverage = "vote_average.desc"
	SortTitle       = "original_title.asc"
)

// Gateway is the read-only catalog contract.
type Gateway interface {
	SearchMovies(ctx context.Context, query string, page int) (models.MoviePage, error)
	DiscoverMovies(ctx context.Context, filters models.DiscoverFilters) (models.MoviePage, error)
	PopularMovies(ctx context.Context, page int) (models.MoviePage, error)
	ListGenres(ctx context.Context) ([]models.Genre, error)
	GetMovieDetail(ctx context.Context, id int64) (models.Movie, error)
	SearchPerson(ctx context.Context, name string) ([]models.Person, error)
	GetPersonCredits(ctx context.Context, personID int64) (models.PersonCredits, error)
}

const (
	imageBaseURL = "https://image.tmdb.org/t/p"
	// w500 is plenty for cards and list rows
	PosterSize = "w500"
)

// PosterURL builds an absolute poster URL, or "" when the movie has no poster.
func PosterURL(posterPath, size string) string {
	trimmed := strings.TrimSpace(posterPath)
	if trimmed == "" {
		return ""
	}
	if size == "" {
		size = PosterSize
	}
	return fmt.Sprintf("%s/%s", imageBaseURL, path.Join(size, strings.TrimPrefix(trimmed, "/")))
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func normalizeLanguage(lang string) string {
	lang = strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if len(lang) == 2 {
		return strings.ToLower(lang) + "-US"
	}
	if len(lang) >= 5 {
		return strings.ToLower(lang[:2]) + "-" + strings.ToUpper(lang[3:])
	}
	return "en-US"
}
