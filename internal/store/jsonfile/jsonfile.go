// Package jsonfile stores directory snapshots as a JSON file guarded by an
// advisory file lock.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/steveyegge/userdir/internal/store"
	"github.com/steveyegge/userdir/internal/user"
)

// lockRetryDelay is how often a blocked lock attempt is retried.
const lockRetryDelay = 50 * time.Millisecond

// ErrLocked indicates the lock could not be acquired before ctx ended.
var ErrLocked = errors.New("snapshot file is locked")

// Store reads and writes a snapshot file. The in-process mutex serializes
// callers sharing a Store; the file lock serializes processes. Without Lock,
// each Load and Save locks on its own.
type Store struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
	held bool
}

// New creates a Store for the snapshot at path. Nothing is touched on disk
// until the first Load or Save.
func New(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Lock takes the exclusive file lock and keeps it until unlock is called.
// Load and Save made in between reuse it. It waits for other holders until
// ctx ends, then returns ErrLocked.
func (s *Store) Lock(ctx context.Context) (unlock func() error, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		return nil, errors.New("snapshot lock already held by this store")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	if _, err := s.acquire(ctx, s.lock.TryLockContext); err != nil {
		return nil, err
	}
	s.held = true

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.held = false
			err = s.lock.Unlock()
		})
		return err
	}, nil
}

// acquire takes the file lock with try unless Lock already holds it
// (caller must hold s.mu). The returned release undoes only what acquire
// took.
func (s *Store) acquire(ctx context.Context, try func(context.Context, time.Duration) (bool, error)) (release func(), err error) {
	if s.held {
		return func() {}, nil
	}
	locked, err := try(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrLocked, err)
		}
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() { _ = s.lock.Unlock() }, nil
}

// Load reads the snapshot file under a shared lock.
func (s *Store) Load(ctx context.Context) (*user.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrNoSnapshot, s.path)
		}
		return nil, fmt.Errorf("checking snapshot: %w", err)
	}

	release, err := s.acquire(ctx, s.lock.TryRLockContext)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := os.ReadFile(s.path) //nolint:gosec // G304: path from settings root
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap user.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot under an exclusive lock. The file is replaced
// atomically via a temp file in the same directory.
func (s *Store) Save(ctx context.Context, snap *user.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	release, err := s.acquire(ctx, s.lock.TryLockContext)
	if err != nil {
		return err
	}
	defer release()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Close releases the lock file handle, and with it any lock still held.
func (s *Store) Close() error {
	return s.lock.Close()
}
