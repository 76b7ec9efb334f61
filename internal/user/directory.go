package user

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates no record matches the requested id.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateKey indicates a record with that id already exists.
	ErrDuplicateKey = errors.New("user id already exists")

	// ErrInvalidUpdatePolicy indicates an unknown update policy name.
	ErrInvalidUpdatePolicy = errors.New("invalid update policy")

	// ErrInvalidSnapshot indicates a snapshot that cannot be restored.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Directory is an in-memory registry of user records keyed by id.
//
// The zero value is not usable; construct one with New or Restore.
// A Directory is safe for concurrent use. Change notifications are delivered
// synchronously on the goroutine that called SetCurrent, after the internal
// lock has been released.
type Directory struct {
	mu            sync.Mutex
	users         map[int]string
	nextID        int
	currentUserID int
	policy        UpdatePolicy
	subscribers   []subscriber
}

type subscriber struct {
	id uuid.UUID
	fn func()
}

// Option configures a Directory.
type Option func(*Directory)

// WithUpdatePolicy sets how Update treats missing ids.
func WithUpdatePolicy(p UpdatePolicy) Option {
	return func(d *Directory) {
		d.policy = p
	}
}

// WithSeed replaces the default seed records. Later records win on
// duplicate ids.
func WithSeed(records []Record) Option {
	return func(d *Directory) {
		d.users = make(map[int]string, len(records))
		for _, r := range records {
			d.users[r.ID] = r.Name
		}
	}
}

// New creates a directory seeded with DefaultSeed unless WithSeed is given.
func New(opts ...Option) *Directory {
	d := &Directory{policy: UpdatePolicyStrict}
	WithSeed(DefaultSeed())(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Restore rebuilds a directory from a snapshot, including its counters.
// Options are applied after the snapshot, so WithSeed would discard it.
func Restore(snap *Snapshot, opts ...Option) (*Directory, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if snap.Version != CurrentSnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}

	d := &Directory{
		users:         make(map[int]string, len(snap.Users)),
		nextID:        snap.NextID,
		currentUserID: snap.CurrentUserID,
		policy:        UpdatePolicyStrict,
	}
	for _, r := range snap.Users {
		if _, ok := d.users[r.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidSnapshot, r.ID)
		}
		d.users[r.ID] = r.Name
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Get returns the name stored under id.
func (d *Directory) Get(id int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, ok := d.users[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return name, nil
}

// Current returns the name the current-user pointer refers to.
func (d *Directory) Current() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, ok := d.users[d.currentUserID]
	if !ok {
		return "", fmt.Errorf("%w: current user %d", ErrNotFound, d.currentUserID)
	}
	return name, nil
}

// CurrentID returns the id the current-user pointer refers to. The id may
// have no matching record.
func (d *Directory) CurrentID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentUserID
}

// SetCurrent appends a new record for name and makes it the current user.
//
// It never selects an existing record. The new id is the record count before
// insertion plus one, and a record already stored under that id is
// overwritten. Subscribers are notified once before SetCurrent returns.
// The new id is returned.
func (d *Directory) SetCurrent(name string) int {
	d.mu.Lock()
	d.nextID = len(d.users)
	d.nextID++
	d.users[d.nextID] = name
	d.currentUserID = d.nextID
	id := d.nextID
	subs := append([]subscriber(nil), d.subscribers...)
	d.mu.Unlock()

	for _, s := range subs {
		s.fn()
	}
	return id
}

// Names returns the names of all records. Each range over the sequence
// takes a fresh snapshot, in map iteration order.
func (d *Directory) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		d.mu.Lock()
		names := make([]string, 0, len(d.users))
		for _, name := range d.users {
			names = append(names, name)
		}
		d.mu.Unlock()

		for _, name := range names {
			if !yield(name) {
				return
			}
		}
	}
}

// Records returns a copy of all records ordered by id.
func (d *Directory) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recordsLocked()
}

// recordsLocked copies the records (caller must hold the lock).
func (d *Directory) recordsLocked() []Record {
	out := make([]Record, 0, len(d.users))
	for id, name := range d.users {
		out = append(out, Record{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Add inserts a new record. Returns ErrDuplicateKey if id is taken; the
// stored name is left unchanged.
func (d *Directory) Add(id int, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateKey, id)
	}
	d.users[id] = name
	return nil
}

// Remove deletes the record with the given id. Removing a missing id is a
// no-op.
func (d *Directory) Remove(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
}

// Update replaces the name stored under id. Under UpdatePolicyStrict a
// missing id yields ErrNotFound; under UpdatePolicyUpsert it is inserted.
func (d *Directory) Update(id int, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[id]; !ok && d.policy != UpdatePolicyUpsert {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	d.users[id] = name
	return nil
}

// Exists reports whether a record with the given id exists.
func (d *Directory) Exists(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.users[id]
	return ok
}

// NameExists reports whether any record has exactly the given name.
func (d *Directory) NameExists(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, n := range d.users {
		if n == name {
			return true
		}
	}
	return false
}

// Count returns the number of records.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// Clear removes all records. The counters are left as they are.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.users)
}

// Subscribe registers fn to be called after every SetCurrent. The returned
// id can be passed to Unsubscribe. A nil fn is not registered and yields
// uuid.Nil.
func (d *Directory) Subscribe(fn func()) uuid.UUID {
	if fn == nil {
		return uuid.Nil
	}
	id := uuid.New()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, subscriber{id: id, fn: fn})
	return id
}

// Unsubscribe removes a subscription. It reports whether one was removed.
func (d *Directory) Unsubscribe(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, s := range d.subscribers {
		if s.id == id {
			d.subscribers = append(d.subscribers[:i], d.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the directory state.
func (d *Directory) Snapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	return &Snapshot{
		Version:       CurrentSnapshotVersion,
		NextID:        d.nextID,
		CurrentUserID: d.currentUserID,
		Users:         d.recordsLocked(),
	}
}
