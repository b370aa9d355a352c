// Package queue provides the per-session FIFO playback queue.
package queue

import (
	"github.com/cockroachdb/errors"

	"github.com/gema-bot/gema/internal/domain/track"
)

// ErrEmptyQueue is returned by Dequeue when nothing is queued.
var ErrEmptyQueue = errors.New("queue is empty")

// Queue is an ordered sequence of track references with strict FIFO
// semantics: no reordering, no random access. It expects a single
// mutator at a time (the owning session serializes access) and is not
// safe for concurrent use on its own; Verify exposes a consistency
// check so caller bugs fail loudly in tests instead of corrupting
// state silently.
type Queue struct {
	items []track.Track
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{items: make([]track.Track, 0)}
}

// Enqueue appends a track to the back and returns the new length.
func (q *Queue) Enqueue(t track.Track) int {
	q.items = append(q.items, t)
	return len(q.items)
}

// Dequeue removes and returns the front track, or ErrEmptyQueue.
func (q *Queue) Dequeue() (track.Track, error) {
	if len(q.items) == 0 {
		return track.Track{}, ErrEmptyQueue
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, nil
}

// Clear empties the queue and returns the number of tracks removed.
func (q *Queue) Clear() int {
	removed := len(q.items)
	q.items = make([]track.Track, 0)
	return removed
}

// Snapshot returns a copy of the queued tracks in order. Mutating the
// returned slice does not affect the queue.
func (q *Queue) Snapshot() []track.Track {
	out := make([]track.Track, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.items)
}

// IsEmpty returns true if nothing is queued.
func (q *Queue) IsEmpty() bool {
	return len(q.items) == 0
}

// Verify checks internal consistency: every queued reference must
// still satisfy the track invariants. A failure here means a caller
// mutated queue state outside the single-writer discipline.
func (q *Queue) Verify() error {
	for i, t := range q.items {
		if err := t.Validate(); err != nil {
			return errors.Wrapf(err, "queue entry %d is invalid", i)
		}
	}
	return nil
}
