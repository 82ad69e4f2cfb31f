package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"cinemarathon/internal/logging"
	"cinemarathon/models"
	"cinemarathon/services/tokens"
	"cinemarathon/services/users"
)

type accountsService interface {
	Register(ctx context.Context, email, password string) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.User, error)
}

type tokenIssuer interface {
	Issue(userID string) (models.TokenResponse, error)
}

var (
	_ accountsService = (*users.Service)(nil)
	_ tokenIssuer     = (*tokens.Service)(nil)
)

type AuthHandler struct {
	Users  accountsService
	Tokens tokenIssuer
}

func NewAuthHandler(accounts accountsService, issuer tokenIssuer) *AuthHandler {
	return &AuthHandler{Users: accounts, Tokens: issuer}
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (models.Credentials, error) {
	var creds models.Credentials
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	err := dec.Decode(&creds)
	return creds, err
}

// Register creates an account and answers 201 with the public user record.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Users.Register(r.Context(), creds.Email, creds.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, users.ErrEmailRequired), errors.Is(err, users.ErrPasswordTooShort):
			status = http.StatusBadRequest
		case errors.Is(err, users.ErrEmailTaken):
			status = http.StatusConflict
		}
		if status == http.StatusInternalServerError {
			lg := logging.WithComponent("auth")
			lg.Error().Err(err).Msg("register failed")
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

// Login exchanges credentials for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds, err := decodeCredentials(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Users.Authenticate(r.Context(), creds.Email, creds.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if err != nil {
		lg := logging.WithComponent("auth")
		lg.Error().Err(err).Msg("login failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := h.Tokens.Issue(user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(token)
}
