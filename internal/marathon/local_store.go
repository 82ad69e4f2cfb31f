package marathon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cinemarathon/internal/logging"
	"cinemarathon/internal/slot"
	"cinemarathon/models"
)

// SlotName is the slot holding the JSON array of saved marathons.
const SlotName = "saved_marathons"

// LocalStore keeps saved marathons as one JSON array in a slot. Every write
// rewrites the whole array inside slot.Update.
type LocalStore struct {
	slot   slot.Slot
	logger zerolog.Logger
	now    func() time.Time
}

// NewLocalStore wraps s.
func NewLocalStore(s slot.Slot) *LocalStore {
	return &LocalStore{
		slot:   s,
		logger: logging.WithComponent("local-store"),
		now:    time.Now,
	}
}

// List returns the saved marathons. Absent or unreadable data yields an empty list.
func (s *LocalStore) List(ctx context.Context) ([]models.SavedMarathon, error) {
	data, err := s.slot.Load(ctx)
	if err != nil {
		if !errors.Is(err, slot.ErrEmpty) {
			s.logger.Warn().Err(err).Str("slot", s.slot.Name()).Msg("failed to read saved marathons")
		}
		return []models.SavedMarathon{}, nil
	}
	return s.decode(data), nil
}

// Create appends a new record with a fresh id and timestamp.
func (s *LocalStore) Create(ctx context.Context, name string, movies []models.Movie, totalMinutes int) (models.SavedMarathon, error) {
	record := models.SavedMarathon{
		ID:           uuid.NewString(),
		Name:         name,
		Movies:       slices.Clone(movies),
		TotalMinutes: totalMinutes,
		CreatedAt:    s.now().UTC(),
	}
	if record.Movies == nil {
		record.Movies = []models.Movie{}
	}

	err := s.slot.Update(ctx, func(current []byte) ([]byte, error) {
		list := s.decode(current)
		list = append(list, record)
		return encode(list)
	})
	if err != nil {
		return models.SavedMarathon{}, fmt.Errorf("write saved marathons: %w", err)
	}
	return record, nil
}

// Delete removes the record with id, or returns ErrNotFound.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	err := s.slot.Update(ctx, func(current []byte) ([]byte, error) {
		list := s.decode(current)
		if !containsID(list, id) {
			return nil, ErrNotFound
		}
		return encode(slices.DeleteFunc(list, func(m models.SavedMarathon) bool { return m.ID == id }))
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("write saved marathons: %w", err)
	}
	return nil
}

// Update edits a record in place.
func (s *LocalStore) Update(ctx context.Context, id string, req models.UpdateMarathonRequest) (models.SavedMarathon, error) {
	var updated models.SavedMarathon
	err := s.slot.Update(ctx, func(current []byte) ([]byte, error) {
		list := s.decode(current)
		idx := slices.IndexFunc(list, func(m models.SavedMarathon) bool { return m.ID == id })
		if idx < 0 {
			return nil, ErrNotFound
		}
		applyUpdate(&list[idx], req)
		updated = list[idx]
		return encode(list)
	})
	if errors.Is(err, ErrNotFound) {
		return models.SavedMarathon{}, ErrNotFound
	}
	if err != nil {
		return models.SavedMarathon{}, fmt.Errorf("write saved marathons: %w", err)
	}
	return updated, nil
}

func (s *LocalStore) decode(data []byte) []models.SavedMarathon {
	if len(data) == 0 {
		return []models.SavedMarathon{}
	}
	var list []models.SavedMarathon
	if err := json.Unmarshal(data, &list); err != nil {
		s.logger.Warn().Err(err).Str("slot", s.slot.Name()).Msg("saved marathons are corrupt, treating as empty")
		return []models.SavedMarathon{}
	}
	if list == nil {
		list = []models.SavedMarathon{}
	}
	return list
}

func encode(list []models.SavedMarathon) ([]byte, error) {
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode saved marathons: %w", err)
	}
	return data, nil
}

func containsID(list []models.SavedMarathon, id string) bool {
	return slices.ContainsFunc(list, func(m models.SavedMarathon) bool { return m.ID == id })
}

func applyUpdate(m *models.SavedMarathon, req models.UpdateMarathonRequest) {
	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Movies != nil {
		m.Movies = slices.Clone(*req.Movies)
	}
	if req.TotalMinutes != nil {
		m.TotalMinutes = *req.TotalMinutes
	}
}

var (
	_ Store   = (*LocalStore)(nil)
	_ Updater = (*LocalStore)(nil)
)
