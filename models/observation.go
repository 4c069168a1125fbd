package models

import (
	"context"
	"errors"
)

// ErrConnection marks a collector failure: broker unreachable, timed out, or
// credentials rejected. Callers degrade to a WARNING result instead of failing.
var ErrConnection = errors.New("broker connection failed")

// QueueObservation is one queue's depth at fetch time. Produced fresh each
// run and discarded after the trend merge.
type QueueObservation struct {
	Name     string
	Messages int64
}

// Collector fetches the current set of queues from a broker. Message counts
// are the instantaneous depth at fetch time; order is unspecified.
type Collector interface {
	FetchQueues(ctx context.Context) ([]QueueObservation, error)
}
