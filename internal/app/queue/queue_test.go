package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gema-bot/gema/internal/domain/track"
)

func testTrack(id string) track.Track {
	return track.Track{
		SourceID: id,
		Title:    "Track " + id,
		Duration: 3 * time.Minute,
		Origin:   track.OriginYouTube,
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New()

	var ids []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("t%d", i)
		ids = append(ids, id)
		length := q.Enqueue(testTrack(id))
		assert.Equal(t, i+1, length)
	}

	// Snapshot preserves insertion order.
	snapshot := q.Snapshot()
	require.Len(t, snapshot, len(ids))
	for i, tr := range snapshot {
		assert.Equal(t, ids[i], tr.SourceID)
	}

	// Dequeue always returns the earliest still-queued item.
	for _, id := range ids {
		tr, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, id, tr.SourceID)
	}
	assert.True(t, q.IsEmpty())
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q := New()

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrEmptyQueue)

	// Still empty after draining.
	q.Enqueue(testTrack("only"))
	_, err = q.Dequeue()
	require.NoError(t, err)
	_, err = q.Dequeue()
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestQueue_Clear(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.Clear())

	q.Enqueue(testTrack("a"))
	q.Enqueue(testTrack("b"))
	q.Enqueue(testTrack("c"))

	assert.Equal(t, 3, q.Clear())
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DuplicatesAllowed(t *testing.T) {
	q := New()
	q.Enqueue(testTrack("dup"))
	q.Enqueue(testTrack("dup"))
	assert.Equal(t, 2, q.Len())
}

func TestQueue_SnapshotIsACopy(t *testing.T) {
	q := New()
	q.Enqueue(testTrack("a"))
	q.Enqueue(testTrack("b"))

	snapshot := q.Snapshot()
	snapshot[0] = testTrack("mutated")
	snapshot = append(snapshot, testTrack("extra"))
	_ = snapshot

	fresh := q.Snapshot()
	require.Len(t, fresh, 2)
	assert.Equal(t, "a", fresh[0].SourceID)
	assert.Equal(t, "b", fresh[1].SourceID)
}

func TestQueue_Verify(t *testing.T) {
	q := New()
	q.Enqueue(testTrack("a"))
	assert.NoError(t, q.Verify())

	// Simulate a caller bug that corrupted an entry.
	q.items[0].SourceID = ""
	assert.Error(t, q.Verify())
}
