package slot_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemarathon/internal/slot"
)

func openSlots(t *testing.T) map[string]slot.Slot {
	t.Helper()

	mem, err := slot.NewFileSlot(afero.NewMemMapFs(), "/data", "saved_marathons")
	require.NoError(t, err)

	dir := t.TempDir()
	disk, err := slot.NewFileSlot(afero.NewOsFs(), dir, "saved_marathons",
		slot.WithProcessLock(filepath.Join(dir, "saved_marathons.lock")))
	require.NoError(t, err)

	kv, err := slot.OpenBadgerSlot(filepath.Join(t.TempDir(), "badger"), "saved_marathons")
	require.NoError(t, err)

	slots := map[string]slot.Slot{"memfs": mem, "osfs+flock": disk, "badger": kv}
	t.Cleanup(func() {
		for _, s := range slots {
			_ = s.Close()
		}
	})
	return slots
}

func TestSlotLoadEmpty(t *testing.T) {
	for name, s := range openSlots(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background())
			assert.ErrorIs(t, err, slot.ErrEmpty)
		})
	}
}

func TestSlotUpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openSlots(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Update(ctx, func(current []byte) ([]byte, error) {
				assert.Nil(t, current)
				return []byte(`[1]`), nil
			}))
			require.NoError(t, s.Update(ctx, func(current []byte) ([]byte, error) {
				assert.Equal(t, `[1]`, string(current))
				return []byte(`[1,2]`), nil
			}))

			data, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(data))
		})
	}
}

func TestSlotUpdateErrorLeavesContents(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, s := range openSlots(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Update(ctx, func([]byte) ([]byte, error) { return []byte("keep"), nil }))

			err := s.Update(ctx, func([]byte) ([]byte, error) { return nil, boom })
			assert.ErrorIs(t, err, boom)

			data, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, "keep", string(data))
		})
	}
}

func TestSlotConcurrentUpdatesDoNotInterleave(t *testing.T) {
	ctx := context.Background()
	for name, s := range openSlots(t) {
		t.Run(name, func(t *testing.T) {
			const writers = 20
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, func(current []byte) ([]byte, error) {
						n := 0
						if current != nil {
							n, _ = strconv.Atoi(string(current))
						}
						return []byte(strconv.Itoa(n + 1)), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			data, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(writers), string(data))
		})
	}
}

func TestDiskSlotReplacesFileWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	s, err := slot.NewFileSlot(afero.NewOsFs(), dir, "current")
	require.NoError(t, err)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, s.Update(ctx, func([]byte) ([]byte, error) {
			return []byte(strconv.Itoa(i)), nil
		}))
	}
	data, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "current.json", entries[0].Name())
	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
