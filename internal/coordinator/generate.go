package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cinemarathon/models"
	"cinemarathon/services/catalog"
)

// Role selects which credits GenerateByPerson uses.
type Role string

const (
	RoleActor    Role = "actor"
	RoleDirector Role = "director"
	RoleAny      Role = "any"
)

const directorJob = "Director"

// ParseRole accepts the role names case-insensitively.
func ParseRole(s string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(s))); role {
	case RoleActor, RoleDirector, RoleAny:
		return role, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// GenerateByPerson builds a candidate marathon from the first person matching
// name. Actors contribute their cast credits, directors the crew credits whose
// job is exactly "Director", and any takes cast followed by crew. Duplicates
// keep their first occurrence. The result is also shown as the browse items.
func (c *Coordinator) GenerateByPerson(ctx context.Context, name string, role Role) ([]models.Movie, error) {
	role, err := ParseRole(string(role))
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrPersonNotFound
	}

	people, err := c.catalog.SearchPerson(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("search person %q: %w", name, err)
	}
	if len(people) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrPersonNotFound, name)
	}
	person := people[0]

	credits, err := c.catalog.GetPersonCredits(ctx, person.ID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrPersonNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("credits for %s: %w", person.Name, err)
	}

	movies := selectCredits(credits, role)
	c.logger.Info().
		Str("person", person.Name).
		Str("role", string(role)).
		Int("movies", len(movies)).
		Msg("generated marathon candidates")
	c.showMovies("person:"+person.Name, movies)
	return movies, nil
}

func selectCredits(credits models.PersonCredits, role Role) []models.Movie {
	var out []models.Movie
	seen := map[int64]struct{}{}
	add := func(m models.Movie) {
		if _, ok := seen[m.ID]; ok {
			return
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	if role == RoleActor || role == RoleAny {
		for _, credit := range credits.Cast {
			add(credit.Movie)
		}
	}
	switch role {
	case RoleDirector:
		for _, credit := range credits.Crew {
			if credit.Job == directorJob {
				add(credit.Movie)
			}
		}
	case RoleAny:
		for _, credit := range credits.Crew {
			add(credit.Movie)
		}
	}
	if out == nil {
		out = []models.Movie{}
	}
	return out
}
