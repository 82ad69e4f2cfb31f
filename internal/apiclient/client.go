// Package apiclient talks to the cinemarathon backend: account endpoints and
// the per-user marathon collection.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"cinemarathon/models"
)

// ErrNotAuthenticated is returned by calls that need a token before Login or SetToken.
var ErrNotAuthenticated = errors.New("not logged in")

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithToken seeds the bearer token, e.g. one persisted by an earlier login.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRetryDelay sets the initial backoff between attempts of idempotent requests.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// Client is safe for concurrent use.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	retryDelay time.Duration

	mu    sync.RWMutex
	token string
}

// New builds a client for the backend rooted at baseURL (e.g. http://localhost:7777/api).
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retryDelay: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, creds models.Credentials) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodPost, "auth/register", creds, &user, false)
	return user, err
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (models.TokenResponse, error) {
	var resp models.TokenResponse
	if err := c.do(ctx, http.MethodPost, "auth/login", creds, &resp, false); err != nil {
		return models.TokenResponse{}, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// ListMarathons returns the caller's saved marathons, newest first.
func (c *Client) ListMarathons(ctx context.Context) ([]models.SavedMarathon, error) {
	var list []models.SavedMarathon
	if err := c.do(ctx, http.MethodGet, "marathons", nil, &list, true); err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.SavedMarathon{}
	}
	return list, nil
}

// GetMarathon fetches one saved marathon.
func (c *Client) GetMarathon(ctx context.Context, id string) (models.SavedMarathon, error) {
	var m models.SavedMarathon
	err := c.do(ctx, http.MethodGet, "marathons/"+url.PathEscape(id), nil, &m, true)
	return m, err
}

// CreateMarathon stores a new saved marathon.
func (c *Client) CreateMarathon(ctx context.Context, req models.CreateMarathonRequest) (models.SavedMarathon, error) {
	var m models.SavedMarathon
	err := c.do(ctx, http.MethodPost, "marathons", req, &m, true)
	return m, err
}

// UpdateMarathon edits a saved marathon.
func (c *Client) UpdateMarathon(ctx context.Context, id string, req models.UpdateMarathonRequest) (models.SavedMarathon, error) {
	var m models.SavedMarathon
	err := c.do(ctx, http.MethodPut, "marathons/"+url.PathEscape(id), req, &m, true)
	return m, err
}

// DeleteMarathon removes a saved marathon.
func (c *Client) DeleteMarathon(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "marathons/"+url.PathEscape(id), nil, nil, true)
}

// EventsURL is the websocket endpoint pushing saved-list updates.
func (c *Client) EventsURL() string {
	u := c.resolve("marathons/events")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

func (c *Client) resolve(path string) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	u.RawPath = ""
	return &u
}

// sameOrigin guards the bearer token: it is only ever sent to the configured backend.
func (c *Client) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	token := c.Token()
	if auth && token == "" {
		return ErrNotAuthenticated
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	target := c.resolve(path)

	attempts := uint(1)
	if method == http.MethodGet {
		attempts = 3
	}

	return retry.Do(
		func() error {
			var body io.Reader
			if payload != nil {
				body = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("build request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if auth && c.sameOrigin(req.URL) {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("%s %s: %w", method, target.Path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				serr := &StatusError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
				if resp.StatusCode >= 500 {
					return serr
				}
				return retry.Unrecoverable(serr)
			}
			if out == nil || resp.StatusCode == http.StatusNoContent {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// readMessage extracts {"message": "..."} bodies and falls back to the trimmed text.
func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}
