// Package store persists directory snapshots between process runs.
package store

import (
	"context"
	"errors"

	"github.com/steveyegge/userdir/internal/user"
)

// ErrNoSnapshot indicates nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Store loads and saves directory snapshots.
type Store interface {
	// Load returns the last saved snapshot, or ErrNoSnapshot.
	Load(ctx context.Context) (*user.Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *user.Snapshot) error

	// Close releases any resources held by the store.
	Close() error
}

// Locker is implemented by stores shared between processes. Lock holds an
// exclusive lock until unlock is called, so a Load, the changes built on it
// and the following Save happen as one step.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// LoadOrNew restores the saved directory, or builds a fresh one with
// newDir when nothing was saved yet. The boolean reports whether a saved
// snapshot was used.
func LoadOrNew(ctx context.Context, s Store, newDir func() *user.Directory, opts ...user.Option) (*user.Directory, bool, error) {
	snap, err := s.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return newDir(), false, nil
	}
	if err != nil {
		return nil, false, err
	}

	d, err := user.Restore(snap, opts...)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}
