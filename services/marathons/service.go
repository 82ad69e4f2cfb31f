package marathons

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cinemarathon/internal/database"
	"cinemarathon/models"
)

var (
	ErrUserIDRequired = errors.New("user id is required")
	ErrNameRequired   = errors.New("name is required")
	ErrNegativeTotal  = errors.New("totalMinutes must not be negative")
	ErrNotFound       = errors.New("marathon not found")
)

const columns = "id, user_id, name, movies, total_minutes, created_at"

// Service persists saved marathons per user. A marathon owned by another user
// is reported as ErrNotFound.
type Service struct {
	db  *database.DB
	now func() time.Time
}

// NewService creates a marathons service over a migrated database.
func NewService(db *database.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// List returns the user's marathons, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.SavedMarathon, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT `+columns+` FROM marathons WHERE user_id = ? ORDER BY created_at DESC, id DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list marathons: %w", err)
	}
	defer rows.Close()

	out := make([]models.SavedMarathon, 0)
	for rows.Next() {
		m, err := scanMarathon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marathons: %w", err)
	}
	return out, nil
}

// Get returns one of the user's marathons.
func (s *Service) Get(ctx context.Context, userID, id string) (models.SavedMarathon, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.SavedMarathon{}, ErrUserIDRequired
	}
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+columns+` FROM marathons WHERE id = ? AND user_id = ?`),
		strings.TrimSpace(id), userID,
	)
	m, err := scanMarathon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SavedMarathon{}, ErrNotFound
	}
	return m, err
}

// Create stores a new marathon. totalMinutes is kept as sent.
func (s *Service) Create(ctx context.Context, userID string, req models.CreateMarathonRequest) (models.SavedMarathon, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.SavedMarathon{}, ErrUserIDRequired
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.SavedMarathon{}, ErrNameRequired
	}
	if req.TotalMinutes < 0 {
		return models.SavedMarathon{}, ErrNegativeTotal
	}

	m := models.SavedMarathon{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		Movies:       req.Movies,
		TotalMinutes: req.TotalMinutes,
		CreatedAt:    s.now().UTC(),
	}
	if m.Movies == nil {
		m.Movies = []models.Movie{}
	}

	movies, err := json.Marshal(m.Movies)
	if err != nil {
		return models.SavedMarathon{}, fmt.Errorf("encode movies: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO marathons (`+columns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		m.ID, m.UserID, m.Name, string(movies), m.TotalMinutes, database.FormatTime(m.CreatedAt),
	)
	if err != nil {
		return models.SavedMarathon{}, fmt.Errorf("insert marathon: %w", err)
	}
	return m, nil
}

// Update changes the provided fields of one of the user's marathons.
func (s *Service) Update(ctx context.Context, userID, id string, req models.UpdateMarathonRequest) (models.SavedMarathon, error) {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return models.SavedMarathon{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return models.SavedMarathon{}, ErrNameRequired
		}
		current.Name = name
	}
	if req.Movies != nil {
		current.Movies = *req.Movies
		if current.Movies == nil {
			current.Movies = []models.Movie{}
		}
	}
	if req.TotalMinutes != nil {
		if *req.TotalMinutes < 0 {
			return models.SavedMarathon{}, ErrNegativeTotal
		}
		current.TotalMinutes = *req.TotalMinutes
	}

	movies, err := json.Marshal(current.Movies)
	if err != nil {
		return models.SavedMarathon{}, fmt.Errorf("encode movies: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE marathons SET name = ?, movies = ?, total_minutes = ? WHERE id = ? AND user_id = ?`),
		current.Name, string(movies), current.TotalMinutes, current.ID, current.UserID,
	)
	if err != nil {
		return models.SavedMarathon{}, fmt.Errorf("update marathon: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.SavedMarathon{}, ErrNotFound
	}
	return current, nil
}

// Delete removes one of the user's marathons.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM marathons WHERE id = ? AND user_id = ?`),
		strings.TrimSpace(id), userID,
	)
	if err != nil {
		return fmt.Errorf("delete marathon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete marathon: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMarathon(scanner interface{ Scan(dest ...any) error }) (models.SavedMarathon, error) {
	var (
		m       models.SavedMarathon
		movies  string
		created string
	)
	if err := scanner.Scan(&m.ID, &m.UserID, &m.Name, &movies, &m.TotalMinutes, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SavedMarathon{}, err
		}
		return models.SavedMarathon{}, fmt.Errorf("scan marathon: %w", err)
	}
	if err := json.Unmarshal([]byte(movies), &m.Movies); err != nil {
		return models.SavedMarathon{}, fmt.Errorf("decode movies of %s: %w", m.ID, err)
	}
	if m.Movies == nil {
		m.Movies = []models.Movie{}
	}
	t, err := database.ParseTime(created)
	if err != nil {
		return models.SavedMarathon{}, err
	}
	m.CreatedAt = t
	return m, nil
}
