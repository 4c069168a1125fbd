package models

import (
	"errors"
	"time"
)

var (
	// ErrRegistryLoad marks unreadable or corrupt persisted state. Recovered
	// locally by treating the run as a first-run initialization.
	ErrRegistryLoad = errors.New("registry load failed")

	// ErrRegistryWrite marks a failure to persist updated state. Must surface
	// to the caller: swallowing it would make the next run re-baseline every
	// queue as first-seen.
	ErrRegistryWrite = errors.New("registry write failed")
)

// QueueState is the persisted trend state for one queue. LastDecreaseAt is
// the most recent time the queue's depth was seen to drop (or the queue was
// first seen, or it dipped under the accepted-max floor).
type QueueState struct {
	LastDecreaseAt time.Time `json:"last_decrease_at" db:"last_decrease_at"`
	LastValue      int64     `json:"last_value" db:"last_value"`
	LastSeenAt     time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// Registry maps queue name to its persisted trend state.
type Registry map[string]QueueState

// Clone returns a shallow copy. QueueState has no reference fields, so the
// copy is independent.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for name, st := range r {
		out[name] = st
	}
	return out
}

// RegistryStore persists the registry between runs. A missing registry is not
// an error: Load returns an empty Registry. Implementations are used by
// successive, never concurrent, runs.
type RegistryStore interface {
	Load() (Registry, error)
	Save(Registry) error
}
