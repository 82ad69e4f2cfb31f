package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/spf13/afero"

	"cinemarathon/models"
)

const (
	workspaceFile = "current.json"
	tokenFile     = "token"
)

// workspace keeps what a browser tab would hold between page loads: the
// current marathon and the login token.
type workspace struct {
	fs  afero.Fs
	dir string
}

type workspaceState struct {
	Movies []models.Movie `json:"movies"`
}

func newWorkspace(fsys afero.Fs, dir string) (*workspace, error) {
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &workspace{fs: fsys, dir: dir}, nil
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// Movies returns the persisted current marathon, or nil when none was saved.
func (w *workspace) Movies() ([]models.Movie, error) {
	data, err := afero.ReadFile(w.fs, w.path(workspaceFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current marathon: %w", err)
	}
	var state workspaceState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode current marathon: %w", err)
	}
	return state.Movies, nil
}

func (w *workspace) SaveMovies(movies []models.Movie) error {
	if movies == nil {
		movies = []models.Movie{}
	}
	data, err := json.MarshalIndent(workspaceState{Movies: movies}, "", "  ")
	if err != nil {
		return err
	}
	return w.writeAtomic(workspaceFile, data, 0o600)
}

func (w *workspace) Token() (string, error) {
	data, err := afero.ReadFile(w.fs, w.path(tokenFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (w *workspace) SaveToken(token string) error {
	return w.writeAtomic(tokenFile, []byte(token+"\n"), 0o600)
}

func (w *workspace) ClearToken() error {
	err := w.fs.Remove(w.path(tokenFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (w *workspace) writeAtomic(name string, data []byte, perm fs.FileMode) error {
	if _, ok := w.fs.(*afero.OsFs); ok {
		if err := renameio.WriteFile(w.path(name), data, perm); err != nil {
			return fmt.Errorf("replace %s: %w", name, err)
		}
		return nil
	}
	tmp := w.path(name + ".tmp")
	if err := afero.WriteFile(w.fs, tmp, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.fs.Rename(tmp, w.path(name)); err != nil {
		_ = w.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
