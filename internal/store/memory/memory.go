// Package memory provides a process-local snapshot store.
package memory

import (
	"context"
	"sync"

	"github.com/steveyegge/userdir/internal/store"
	"github.com/steveyegge/userdir/internal/user"
)

// Store keeps the last saved snapshot in memory.
type Store struct {
	mu   sync.Mutex
	snap *user.Snapshot
}

// New creates an empty memory store.
func New() *Store {
	return &Store{}
}

// Load returns a copy of the last saved snapshot.
func (s *Store) Load(ctx context.Context) (*user.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return nil, store.ErrNoSnapshot
	}
	return copySnapshot(s.snap), nil
}

// Save stores a copy of snap.
func (s *Store) Save(ctx context.Context, snap *user.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = copySnapshot(snap)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func copySnapshot(snap *user.Snapshot) *user.Snapshot {
	out := *snap
	out.Users = append([]user.Record(nil), snap.Users...)
	return &out
}
