// Package user provides the in-memory user directory: a registry of
// integer-keyed display names with a current-user pointer and change
// notification.
package user

import "fmt"

// CurrentSnapshotVersion is the current schema version for directory snapshots.
const CurrentSnapshotVersion = 1

// Record is a single (id, name) pair held by the directory.
type Record struct {
	// ID is the unique key for this record.
	ID int `json:"id"`

	// Name is the display name. Names are not required to be unique.
	Name string `json:"name"`
}

// Snapshot is a point-in-time copy of a directory's state, including the
// bookkeeping counters, suitable for persisting between process runs.
type Snapshot struct {
	// Version is the schema version.
	Version int `json:"version"`

	// NextID is the last id handed out by SetCurrent.
	NextID int `json:"next_id"`

	// CurrentUserID is the id the current-user pointer refers to.
	CurrentUserID int `json:"current_user_id"`

	// Users is the list of records, ordered by id.
	Users []Record `json:"users"`
}

// DefaultSeed returns the records a new directory starts with.
func DefaultSeed() []Record {
	return []Record{
		{ID: 0, Name: "Mahammad Ahmadov"},
		{ID: 1, Name: "Lagertha"},
		{ID: 2, Name: "Bjorn Ironside"},
	}
}

// UpdatePolicy selects how Update treats an id that is not present.
type UpdatePolicy string

const (
	// UpdatePolicyStrict makes Update fail with ErrNotFound for missing ids.
	UpdatePolicyStrict UpdatePolicy = "strict"

	// UpdatePolicyUpsert makes Update insert missing ids, mirroring plain
	// map assignment.
	UpdatePolicyUpsert UpdatePolicy = "upsert"
)

// ParseUpdatePolicy converts a config string into an UpdatePolicy.
// An empty string selects UpdatePolicyStrict.
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch UpdatePolicy(s) {
	case "", UpdatePolicyStrict:
		return UpdatePolicyStrict, nil
	case UpdatePolicyUpsert:
		return UpdatePolicyUpsert, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUpdatePolicy, s)
	}
}
