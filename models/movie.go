package models

import "strconv"

// Movie is a catalog entry as returned by the movie database. Field names follow
// the catalog wire format so records round-trip between the catalog, the backend
// and the local slot without translation.
type Movie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path,omitempty"`
	Overview    string  `json:"overview,omitempty"`
	ReleaseDate string  `json:"release_date,omitempty"`
	VoteAverage float64 `json:"vote_average"`
	GenreIDs    []int64 `json:"genre_ids,omitempty"`
	Popularity  float64 `json:"popularity,omitempty"`
	Runtime     *int    `json:"runtime,omitempty"` // minutes; nil until enriched
}

// Minutes returns the runtime, treating an unknown runtime as zero.
func (m Movie) Minutes() int {
	if m.Runtime == nil {
		return 0
	}
	return *m.Runtime
}

// HasRuntime reports whether the runtime is known.
func (m Movie) HasRuntime() bool {
	return m.Runtime != nil
}

// WithRuntime returns a copy of the movie with the runtime set.
func (m Movie) WithRuntime(minutes int) Movie {
	m.Runtime = &minutes
	return m
}

// Year extracts the release year from the first four characters of ReleaseDate.
// ok is false when the date is missing or does not start with a year.
func (m Movie) Year() (year int, ok bool) {
	if len(m.ReleaseDate) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(m.ReleaseDate[:4])
	if err != nil {
		return 0, false
	}
	return y, true
}

// Genre is catalog reference data.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MoviePage is the catalog's paginated response envelope.
type MoviePage struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

// DiscoverFilters narrows a discover query.
type DiscoverFilters struct {
	Page     int     `json:"page,omitempty"`
	GenreIDs []int64 `json:"genreIds,omitempty"`
	Year     string  `json:"year,omitempty"`
	SortBy   string  `json:"sortBy,omitempty"` // catalog sort key, e.g. popularity.desc
}

// Person is a search hit for cast or crew.
type Person struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	KnownForDepartment string `json:"known_for_department,omitempty"`
}

// MovieCredit is a movie a person appeared in or worked on.
type MovieCredit struct {
	Movie
	Character string `json:"character,omitempty"`
	Job       string `json:"job,omitempty"` // crew only, e.g. "Director"
}

// PersonCredits groups a person's cast and crew credits.
type PersonCredits struct {
	ID   int64         `json:"id"`
	Cast []MovieCredit `json:"cast"`
	Crew []MovieCredit `json:"crew"`
}
