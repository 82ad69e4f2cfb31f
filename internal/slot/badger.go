package slot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerSlot keeps the slot under key "slot:<name>" in a badger database.
// Badger holds an exclusive directory lock, so only one process writes; within
// it Update is serialised, and a commit that still conflicts with another
// writer of the same database is retried.
type BadgerSlot struct {
	mu     sync.Mutex
	db     *badger.DB
	name   string
	ownsDB bool
}

const maxConflictRetries = 5

// OpenBadgerSlot opens (or creates) a badger database at dir and binds the slot to it.
func OpenBadgerSlot(dir, name string) (*BadgerSlot, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerSlot{db: db, name: name, ownsDB: true}, nil
}

// NewBadgerSlot binds a slot to an already open database. Close leaves the database open.
func NewBadgerSlot(db *badger.DB, name string) *BadgerSlot {
	return &BadgerSlot{db: db, name: name}
}

func (s *BadgerSlot) Name() string { return s.name }

func (s *BadgerSlot) key() []byte {
	return []byte("slot:" + s.name)
}

func (s *BadgerSlot) Load(ctx context.Context) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key())
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", s.name, err)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func (s *BadgerSlot) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			var current []byte
			item, getErr := txn.Get(s.key())
			switch {
			case errors.Is(getErr, badger.ErrKeyNotFound):
			case getErr != nil:
				return getErr
			default:
				if current, getErr = item.ValueCopy(nil); getErr != nil {
					return getErr
				}
			}
			next, fnErr := fn(current)
			if fnErr != nil {
				return fnErr
			}
			return txn.Set(s.key(), next)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("update slot %s: %w", s.name, err)
	}
	return err
}

func (s *BadgerSlot) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

var _ Slot = (*BadgerSlot)(nil)
