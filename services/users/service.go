package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"cinemarathon/internal/database"
	"cinemarathon/models"
)

var (
	ErrEmailRequired      = errors.New("a valid email is required")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const minPasswordLength = 6

// Service manages backend accounts.
type Service struct {
	db   *database.DB
	cost int
}

// NewService creates a users service over a migrated database.
func NewService(db *database.DB) *Service {
	return &Service{db: db, cost: bcrypt.DefaultCost}
}

// WithCost returns a copy hashing with the given bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	cp := *s
	cp.cost = cost
	return &cp
}

// Register creates an account. Emails are compared case-insensitively.
func (s *Service) Register(ctx context.Context, email, password string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, err
	}
	if len(password) < minPasswordLength {
		return models.User{}, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		user.ID, user.Email, user.PasswordHash, database.FormatTime(user.CreatedAt),
	)
	if isUniqueViolation(err) {
		return models.User{}, ErrEmailTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// Authenticate returns the account matching the credentials. Unknown emails
// and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	user, err := s.scanOne(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
	if errors.Is(err, ErrUserNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns the user with the given ID.
func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.User{}, ErrUserNotFound
	}
	return s.scanOne(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

// Exists reports whether a user with the provided ID is registered.
func (s *Service) Exists(ctx context.Context, id string) bool {
	_, err := s.Get(ctx, id)
	return err == nil
}

func (s *Service) scanOne(ctx context.Context, query string, arg any) (models.User, error) {
	var (
		user    models.User
		created string
	)
	err := s.db.QueryRowContext(ctx, s.db.Rebind(query), arg).Scan(&user.ID, &user.Email, &user.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("query user: %w", err)
	}
	if user.CreatedAt, err = database.ParseTime(created); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrEmailRequired
	}
	return email, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
