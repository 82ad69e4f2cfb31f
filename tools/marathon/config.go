package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"cinemarathon/internal/coordinator"
	"cinemarathon/utils/similarity"
)

const (
	storageLocal  = "local"
	storageRemote = "remote"

	driverFile   = "file"
	driverBadger = "badger"
)

// cliConfig is read from ~/.config/cinemarathon/config.toml.
type cliConfig struct {
	APIURL      string `toml:"api_url"`
	TMDBAPIKey  string `toml:"tmdb_api_key"`
	TMDBBaseURL string `toml:"tmdb_base_url,omitempty"`
	Language    string `toml:"language"`
	Storage     string `toml:"storage"`
	LocalDriver string `toml:"local_driver"`
	DataDir     string `toml:"data_dir"`
	DebounceMS  int    `toml:"debounce_ms"`

	NameThreshold float64 `toml:"name_threshold"`
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		APIURL:      "http://localhost:3000/api",
		Language:    "en-US",
		Storage:     storageLocal,
		LocalDriver: driverFile,
		DataDir:     "~/.local/share/cinemarathon",
		DebounceMS:  int(coordinator.DefaultDebounce / time.Millisecond),

		NameThreshold: similarity.DefaultThreshold,
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cinemarathon", "config.toml")
	}
	return filepath.Join(".", "cinemarathon.toml")
}

func (c cliConfig) debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c *cliConfig) normalize() error {
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	c.LocalDriver = strings.ToLower(strings.TrimSpace(c.LocalDriver))
	switch c.Storage {
	case storageLocal, storageRemote:
	default:
		return fmt.Errorf("storage must be %q or %q, got %q", storageLocal, storageRemote, c.Storage)
	}
	switch c.LocalDriver {
	case driverFile, driverBadger:
	default:
		return fmt.Errorf("local_driver must be %q or %q, got %q", driverFile, driverBadger, c.LocalDriver)
	}
	if c.DebounceMS < 0 {
		return errors.New("debounce_ms must not be negative")
	}
	if c.NameThreshold < 0 || c.NameThreshold > 1 {
		return fmt.Errorf("name_threshold must be between 0 and 1, got %g", c.NameThreshold)
	}
	dir, err := expandPath(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = dir
	if key := strings.TrimSpace(os.Getenv("TMDB_API_KEY")); key != "" {
		c.TMDBAPIKey = key
	}
	return nil
}

// loadCLIConfig reads the TOML file at path. A missing file yields the defaults.
func loadCLIConfig(fsys afero.Fs, path string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	if strings.TrimSpace(path) == "" {
		path = defaultConfigPath()
	}
	path, err := expandPath(path)
	if err != nil {
		return cliConfig{}, err
	}

	f, err := fsys.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cliConfig{}, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close()
		dec := toml.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cliConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return cliConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func expandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return p, nil
}
