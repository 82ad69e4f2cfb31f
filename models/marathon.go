package models

import "time"

// SavedMarathon is a named checkpoint of a marathon. Records are never mutated
// in place by the client; a save always creates a new record.
type SavedMarathon struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Movies       []Movie   `json:"movies"`
	TotalMinutes int       `json:"totalMinutes"`
	CreatedAt    time.Time `json:"createdAt"`
	UserID       string    `json:"userId,omitempty"`
}

// CreateMarathonRequest is the body of POST /api/marathons.
type CreateMarathonRequest struct {
	Name         string  `json:"name"`
	Movies       []Movie `json:"movies"`
	TotalMinutes int     `json:"totalMinutes"`
}

// UpdateMarathonRequest is the body of PUT /api/marathons/{id}. Nil fields are left untouched.
type UpdateMarathonRequest struct {
	Name         *string  `json:"name,omitempty"`
	Movies       *[]Movie `json:"movies,omitempty"`
	TotalMinutes *int     `json:"totalMinutes,omitempty"`
}

// MarathonStats is derived from the current marathon and never stored.
type MarathonStats struct {
	TotalMovies          int            `json:"totalMovies"`
	TotalDurationMinutes int            `json:"totalDurationMinutes"`
	AverageRating        float64        `json:"averageRating"`
	AverageRuntime       float64        `json:"averageRuntime"`
	GenreHistogram       map[string]int `json:"genreHistogram"`
	DecadeHistogram      map[string]int `json:"decadeHistogram"`
	TopGenre             string         `json:"topGenre"`
}

// MarathonEvent is pushed to websocket subscribers when a user's saved list changes.
type MarathonEvent struct {
	Type      string          `json:"type"`
	Marathons []SavedMarathon `json:"marathons"`
}
