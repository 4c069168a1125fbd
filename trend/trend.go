// Package trend detects queues whose backlog has stopped shrinking. It merges
// the current broker snapshot into the persisted per-queue registry and
// classifies queues into warning/critical buckets by how long each has gone
// without a decrease.
package trend

import (
	"time"

	"github.com/queuewatch/queuewatch/models"
)

// Options control alert classification. Zero values mean: no floor, alert
// immediately, no exclusions, no pruning.
type Options struct {
	// MaxCriticalMinutes is the whole minutes a queue may go without a
	// decrease before it is critical.
	MaxCriticalMinutes int

	// MaxWarningMinutes is the whole minutes a queue may go without a
	// decrease before it is a warning.
	MaxWarningMinutes int

	// AcceptedMax is the noise floor. Queues at or below this depth are
	// always healthy, whatever their trend.
	AcceptedMax int64

	// QueueLevel enables per-queue exclusions.
	QueueLevel bool

	// Excluded queues are bookkept but never alerted. Only honored when
	// QueueLevel is set.
	Excluded map[string]struct{}

	// PruneAfter drops registry entries for queues not observed within this
	// duration. Zero disables pruning and carries vanished queues forward
	// indefinitely.
	PruneAfter time.Duration
}

func (o Options) excluded(name string) bool {
	if !o.QueueLevel {
		return false
	}
	_, ok := o.Excluded[name]
	return ok
}

// Evaluate merges snapshot into prior and returns the updated registry plus
// the critical and warning sets (queue name to current depth). prior may be
// nil. Evaluate never mutates prior; now is injected so tests can simulate
// elapsed time.
func Evaluate(snapshot []models.QueueObservation, prior models.Registry, now time.Time, opts Options) (models.Registry, map[string]int64, map[string]int64) {
	updated := prior.Clone()
	critical := make(map[string]int64)
	warning := make(map[string]int64)

	seen := make(map[string]struct{}, len(snapshot))
	for _, obs := range snapshot {
		seen[obs.Name] = struct{}{}

		state, known := updated[obs.Name]
		if !known {
			// First observation establishes the baseline only.
			updated[obs.Name] = models.QueueState{
				LastDecreaseAt: now,
				LastValue:      obs.Messages,
				LastSeenAt:     now,
			}
			continue
		}

		switch {
		case obs.Messages <= opts.AcceptedMax:
			// Below the floor the trend does not matter.
			state.LastDecreaseAt = now
			state.LastValue = obs.Messages
		case obs.Messages >= state.LastValue:
			// Stuck since LastDecreaseAt. The marker persists; only the
			// observed value moves.
			stuck := wholeMinutes(now.Sub(state.LastDecreaseAt))
			if !opts.excluded(obs.Name) {
				if stuck >= opts.MaxCriticalMinutes {
					critical[obs.Name] = obs.Messages
				}
				if stuck >= opts.MaxWarningMinutes {
					warning[obs.Name] = obs.Messages
				}
			}
			state.LastValue = obs.Messages
		default:
			// Genuine decrease.
			state.LastDecreaseAt = now
			state.LastValue = obs.Messages
		}
		state.LastSeenAt = now
		updated[obs.Name] = state
	}

	if opts.PruneAfter > 0 {
		for name, state := range updated {
			if _, ok := seen[name]; ok {
				continue
			}
			if !state.LastSeenAt.IsZero() && now.Sub(state.LastSeenAt) > opts.PruneAfter {
				delete(updated, name)
			}
		}
	}

	return updated, critical, warning
}

func wholeMinutes(d time.Duration) int {
	return int(d / time.Minute)
}
