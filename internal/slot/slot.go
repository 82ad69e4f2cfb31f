// Package slot stores one named blob of client data durably. A slot is read
// whole and rewritten whole; Update runs a read-modify-write under a lock so
// concurrent writers, in this process or another, never interleave.
package slot

import (
	"context"
	"errors"
)

// ErrEmpty is returned by Load when nothing has been written to the slot yet.
var ErrEmpty = errors.New("slot is empty")

// UpdateFunc receives the current contents (nil when empty) and returns the replacement.
type UpdateFunc func(current []byte) ([]byte, error)

// Slot is a single named durable value.
type Slot interface {
	Name() string
	Load(ctx context.Context) ([]byte, error)
	Update(ctx context.Context, fn UpdateFunc) error
	Close() error
}
