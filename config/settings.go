package config

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"cinemarathon/internal/database"
	"cinemarathon/internal/logging"
)

// Env overrides.
const (
	EnvConfigPath = "CINEMARATHON_CONFIG"
	EnvTMDBAPIKey = "TMDB_API_KEY"
)

var ErrPathNotSet = errors.New("config path not set")

// Settings captures persisted backend configuration.
type Settings struct {
	Server   ServerSettings    `json:"server" yaml:"server"`
	Database database.Config   `json:"database" yaml:"database"`
	Catalog  CatalogSettings   `json:"catalog" yaml:"catalog"`
	Cache    CacheSettings     `json:"cache" yaml:"cache"`
	Auth     AuthSettings      `json:"auth" yaml:"auth"`
	Log      LogConfig         `json:"log" yaml:"log"`
	Limits   RateLimitSettings `json:"rateLimit" yaml:"rateLimit"`
}

type ServerSettings struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Addr returns the listen address.
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CatalogSettings struct {
	APIKey   string `json:"apiKey" yaml:"apiKey"`
	Language string `json:"language" yaml:"language"`
	// RequestsPerSecond throttles calls to the movie database.
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond"`
}

// CacheSettings selects where catalog responses are cached: "memory", "redis" or "none".
type CacheSettings struct {
	Backend         string `json:"backend" yaml:"backend"`
	RedisAddr       string `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	RedisPassword   string `json:"redisPassword,omitempty" yaml:"redisPassword,omitempty"`
	RedisDB         int    `json:"redisDb,omitempty" yaml:"redisDb,omitempty"`
	GenresTTLHours  int    `json:"genresTtlHours" yaml:"genresTtlHours"`
	DetailsTTLHours int    `json:"detailsTtlHours" yaml:"detailsTtlHours"`
	QueryTTLMinutes int    `json:"queryTtlMinutes" yaml:"queryTtlMinutes"`
}

type AuthSettings struct {
	// JWTSecret is generated on first start when empty.
	JWTSecret     string `json:"jwtSecret" yaml:"jwtSecret"`
	TokenTTLHours int    `json:"tokenTtlHours" yaml:"tokenTtlHours"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file" yaml:"file"`
	MaxSize    int    `json:"maxSize" yaml:"maxSize"` // megabytes
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAge     int    `json:"maxAge" yaml:"maxAge"` // days
	Compress   bool   `json:"compress" yaml:"compress"`
	Console    bool   `json:"console" yaml:"console"`
}

type RateLimitSettings struct {
	AuthPerMinute int `json:"authPerMinute" yaml:"authPerMinute"`
}

func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 3000},
		Database: database.Config{
			Driver: database.DriverSQLite,
			DSN:    "cache/cinemarathon.db",
		},
		Catalog: CatalogSettings{Language: "en-US", RequestsPerSecond: 20},
		Cache: CacheSettings{
			Backend:         "memory",
			GenresTTLHours:  12,
			DetailsTTLHours: 24,
			QueryTTLMinutes: 10,
		},
		Auth:   AuthSettings{TokenTTLHours: 24 * 7},
		Log:    LogConfig{Level: "info", File: "cache/logs/backend.log", MaxSize: 50, MaxBackups: 3, MaxAge: 7},
		Limits: RateLimitSettings{AuthPerMinute: 10},
	}
}

// backfill fills settings introduced after the file was written.
func (s *Settings) backfill() {
	d := DefaultSettings()
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = d.Server.Host
	}
	if s.Server.Port == 0 {
		s.Server.Port = d.Server.Port
	}
	if strings.TrimSpace(s.Database.Driver) == "" {
		s.Database.Driver = d.Database.Driver
	}
	if strings.TrimSpace(s.Database.DSN) == "" && s.Database.Driver == database.DriverSQLite {
		s.Database.DSN = d.Database.DSN
	}
	if strings.TrimSpace(s.Catalog.Language) == "" {
		s.Catalog.Language = d.Catalog.Language
	}
	if s.Catalog.RequestsPerSecond <= 0 {
		s.Catalog.RequestsPerSecond = d.Catalog.RequestsPerSecond
	}
	if strings.TrimSpace(s.Cache.Backend) == "" {
		s.Cache.Backend = d.Cache.Backend
	}
	if s.Cache.GenresTTLHours == 0 {
		s.Cache.GenresTTLHours = d.Cache.GenresTTLHours
	}
	if s.Cache.DetailsTTLHours == 0 {
		s.Cache.DetailsTTLHours = d.Cache.DetailsTTLHours
	}
	if s.Cache.QueryTTLMinutes == 0 {
		s.Cache.QueryTTLMinutes = d.Cache.QueryTTLMinutes
	}
	if s.Auth.TokenTTLHours == 0 {
		s.Auth.TokenTTLHours = d.Auth.TokenTTLHours
	}
	if strings.TrimSpace(s.Log.Level) == "" {
		s.Log.Level = d.Log.Level
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = d.Log.MaxSize
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = d.Log.MaxBackups
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = d.Log.MaxAge
	}
	if s.Limits.AuthPerMinute == 0 {
		s.Limits.AuthPerMinute = d.Limits.AuthPerMinute
	}
}

// applyEnv lets the environment override secrets kept out of the file.
func (s *Settings) applyEnv() {
	if key := strings.TrimSpace(os.Getenv(EnvTMDBAPIKey)); key != "" {
		s.Catalog.APIKey = key
	}
}

// CacheTTLs returns the configured catalog cache lifetimes.
func (s Settings) CacheTTLs() (genres, details, queries time.Duration) {
	return time.Duration(s.Cache.GenresTTLHours) * time.Hour,
		time.Duration(s.Cache.DetailsTTLHours) * time.Hour,
		time.Duration(s.Cache.QueryTTLMinutes) * time.Minute
}

// TokenTTL returns the bearer token lifetime.
func (s Settings) TokenTTL() time.Duration {
	return time.Duration(s.Auth.TokenTTLHours) * time.Hour
}

// GenerateSecret returns a random hex signing secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DefaultPath returns the config path from CINEMARATHON_CONFIG or cache/settings.json.
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return filepath.Join("cache", "settings.json")
}

// Manager loads and saves Settings. Files ending in .yaml or .yml are YAML,
// anything else is JSON.
type Manager struct {
	path string
	mu   sync.Mutex
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Path returns the managed file path.
func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) isYAML() bool {
	switch strings.ToLower(filepath.Ext(m.path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file, creating it with defaults when it does not
// exist. A missing JWT secret is generated and written back.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, ErrPathNotSet
	}

	var s Settings
	dirty := false
	data, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s = DefaultSettings()
		dirty = true
	case err != nil:
		return Settings{}, err
	default:
		if err := m.decode(data, &s); err != nil {
			return Settings{}, fmt.Errorf("decode %s: %w", m.path, err)
		}
	}
	s.backfill()

	if strings.TrimSpace(s.Auth.JWTSecret) == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return Settings{}, err
		}
		s.Auth.JWTSecret = secret
		dirty = true
		lg := logging.WithComponent("config")
		lg.Info().Str("path", m.path).Msg("generated token signing secret")
	}
	if dirty {
		if err := m.Save(s); err != nil {
			return Settings{}, err
		}
	}

	s.applyEnv()
	return s, nil
}

func (m *Manager) decode(data []byte, s *Settings) error {
	if m.isYAML() {
		return yaml.Unmarshal(data, s)
	}
	return json.Unmarshal(data, s)
}

func (m *Manager) encode(s Settings) ([]byte, error) {
	if m.isYAML() {
		return yaml.Marshal(s)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the settings atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return ErrPathNotSet
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.EnsureDir(); err != nil {
		return err
	}
	data, err := m.encode(s)
	if err != nil {
		return err
	}
	// the file carries the signing secret
	return renameio.WriteFile(m.path, data, 0o600)
}

// Watch calls fn with freshly loaded settings whenever the file changes,
// until ctx is done. Bursts of events within 500ms collapse into one reload;
// a file that fails to decode is logged and skipped.
func (m *Manager) Watch(ctx context.Context, fn func(Settings)) error {
	if m.path == "" {
		return ErrPathNotSet
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// atomic saves replace the file, so the directory is watched
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	logger := logging.WithComponent("config")
	target := filepath.Clean(m.path)
	reload := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case <-reload:
				s, err := m.Load()
				if err != nil {
					logger.Error().Err(err).Str("path", m.path).Msg("config reload failed")
					continue
				}
				logger.Info().Str("path", m.path).Msg("config reloaded")
				fn(s)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}
