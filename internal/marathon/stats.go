package marathon

import (
	"strconv"

	"cinemarathon/models"
)

// ComputeStats derives the statistics for a movie sequence. Genre ids missing
// from the genre table are left out of the genre histogram; movies without a
// parseable release year are left out of the decade histogram. Both still count
// toward the totals.
func ComputeStats(movies []models.Movie, genres []models.Genre) models.MarathonStats {
	return computeStats(movies, genreNames(genres))
}

func genreNames(genres []models.Genre) map[int64]string {
	names := make(map[int64]string, len(genres))
	for _, g := range genres {
		names[g.ID] = g.Name
	}
	return names
}

func computeStats(movies []models.Movie, genres map[int64]string) models.MarathonStats {
	stats := models.MarathonStats{
		GenreHistogram:  map[string]int{},
		DecadeHistogram: map[string]int{},
	}
	if len(movies) == 0 {
		return stats
	}

	var ratingSum float64
	// first-seen order of genre names, for the top genre tie-break
	var order []string
	for _, m := range movies {
		stats.TotalMovies++
		stats.TotalDurationMinutes += m.Minutes()
		ratingSum += m.VoteAverage

		for _, id := range m.GenreIDs {
			name, ok := genres[id]
			if !ok {
				continue
			}
			if _, seen := stats.GenreHistogram[name]; !seen {
				order = append(order, name)
			}
			stats.GenreHistogram[name]++
		}

		if label, ok := decadeLabel(m); ok {
			stats.DecadeHistogram[label]++
		}
	}

	stats.AverageRating = ratingSum / float64(stats.TotalMovies)
	stats.AverageRuntime = float64(stats.TotalDurationMinutes) / float64(stats.TotalMovies)

	best := 0
	for _, name := range order {
		if count := stats.GenreHistogram[name]; count > best {
			best = count
			stats.TopGenre = name
		}
	}
	return stats
}

// decadeLabel buckets a release year, e.g. 1994 -> "1990s".
func decadeLabel(m models.Movie) (string, bool) {
	year, ok := m.Year()
	if !ok {
		return "", false
	}
	return strconv.Itoa(year/10*10) + "s", true
}

// TotalMinutes sums runtimes, counting unknown runtimes as zero.
func TotalMinutes(movies []models.Movie) int {
	total := 0
	for _, m := range movies {
		total += m.Minutes()
	}
	return total
}
