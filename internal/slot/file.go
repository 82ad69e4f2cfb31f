package slot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/spf13/afero"
)

const lockRetryDelay = 25 * time.Millisecond

// FileSlot keeps the slot in <dir>/<name>.json on an afero filesystem.
// Writes go to a temp file that is synced and renamed over the target; on the
// host filesystem renameio does this and also syncs the directory.
type FileSlot struct {
	fs   afero.Fs
	dir  string
	name string

	mu   sync.Mutex
	lock *flock.Flock
}

// FileOption customises a FileSlot.
type FileOption func(*FileSlot)

// WithProcessLock guards every Update with an advisory lock file on the host
// filesystem so separate processes sharing the data dir serialise their writes.
func WithProcessLock(lockPath string) FileOption {
	return func(s *FileSlot) {
		s.lock = flock.New(lockPath)
	}
}

// NewFileSlot prepares the directory and returns the slot.
func NewFileSlot(fsys afero.Fs, dir, name string, opts ...FileOption) (*FileSlot, error) {
	if name == "" {
		return nil, errors.New("slot name is required")
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot dir: %w", err)
	}
	s := &FileSlot{fs: fsys, dir: dir, name: name}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileSlot) Name() string { return s.name }

func (s *FileSlot) path() string {
	return filepath.Join(s.dir, s.name+".json")
}

// Load returns the slot contents or ErrEmpty.
func (s *FileSlot) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *FileSlot) readLocked() ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("read slot %s: %w", s.name, err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

// Update reads the slot, applies fn and rewrites the slot while holding both the
// in-process mutex and, when configured, the process lock.
func (s *FileSlot) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("lock slot %s: %w", s.name, err)
		}
		if !ok {
			return fmt.Errorf("lock slot %s: not acquired", s.name)
		}
		defer s.lock.Unlock()
	}

	current, err := s.readLocked()
	if err != nil && !errors.Is(err, ErrEmpty) {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.writeLocked(next)
}

const slotFilePerm = 0o644

func (s *FileSlot) writeLocked(data []byte) error {
	if _, ok := s.fs.(*afero.OsFs); ok {
		if err := renameio.WriteFile(s.path(), data, slotFilePerm); err != nil {
			return fmt.Errorf("replace slot %s: %w", s.name, err)
		}
		return nil
	}

	tmp := s.path() + ".tmp"
	file, err := s.fs.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, slotFilePerm)
	if err != nil {
		return fmt.Errorf("create temp slot file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write slot %s: %w", s.name, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync slot %s: %w", s.name, err)
	}
	if err := file.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close slot %s: %w", s.name, err)
	}
	if err := s.fs.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("replace slot %s: %w", s.name, err)
	}
	return nil
}

func (s *FileSlot) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Close()
}

var _ Slot = (*FileSlot)(nil)
