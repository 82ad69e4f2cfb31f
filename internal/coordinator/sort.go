package coordinator

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"cinemarathon/models"
	"cinemarathon/services/catalog"
	"cinemarathon/utils/similarity"
)

// SortKey orders the browse items.
type SortKey string

const (
	SortPopularity  SortKey = "popularity"
	SortReleaseDate SortKey = "release_date"
	SortVoteAverage SortKey = "vote_average"
	SortTitle       SortKey = "title"
	SortRuntime     SortKey = "runtime"
)

// ParseSortKey accepts the sort names case-insensitively; "" means popularity.
func ParseSortKey(s string) (SortKey, error) {
	switch key := SortKey(strings.ToLower(strings.TrimSpace(s))); key {
	case "":
		return SortPopularity, nil
	case SortPopularity, SortReleaseDate, SortVoteAverage, SortTitle, SortRuntime:
		return key, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSort, s)
}

// catalogKey maps to the discover sort. The catalog cannot sort by runtime,
// so runtime ordering is applied to each loaded page instead.
func (k SortKey) catalogKey() string {
	switch k {
	case SortReleaseDate:
		return catalog.SortReleaseDate
	case SortVoteAverage:
		return catalog.SortVoteAverage
	case SortTitle:
		return catalog.SortTitle
	default:
		return catalog.SortPopularity
	}
}

// sortLocked orders movies in place. Every key is descending except title;
// ties keep catalog order.
func (c *Coordinator) sortLocked(movies []models.Movie) {
	var compare func(a, b models.Movie) int
	switch c.sortBy {
	case SortReleaseDate:
		compare = func(a, b models.Movie) int { return strings.Compare(b.ReleaseDate, a.ReleaseDate) }
	case SortVoteAverage:
		compare = func(a, b models.Movie) int { return cmp.Compare(b.VoteAverage, a.VoteAverage) }
	case SortTitle:
		compare = func(a, b models.Movie) int { return c.collator.CompareString(a.Title, b.Title) }
	case SortRuntime:
		compare = func(a, b models.Movie) int { return cmp.Compare(b.Minutes(), a.Minutes()) }
	default:
		compare = func(a, b models.Movie) int { return cmp.Compare(b.Popularity, a.Popularity) }
	}
	slices.SortStableFunc(movies, compare)
}

func (f Filters) matches(m models.Movie, nameThreshold float64) bool {
	if f.Name != "" && !similarity.Matches(m.Title, f.Name, nameThreshold) {
		return false
	}
	if f.Year != "" && !strings.HasPrefix(m.ReleaseDate, f.Year) {
		return false
	}
	for _, id := range f.GenreIDs {
		if !slices.Contains(m.GenreIDs, id) {
			return false
		}
	}
	return true
}
