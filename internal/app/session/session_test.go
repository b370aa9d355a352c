package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gema-bot/gema/internal/domain/track"
)

func testTrack(id string) track.Track {
	return track.Track{SourceID: id, Title: "Track " + id, Duration: 3 * time.Minute}
}

func TestSession_ConnectTransitions(t *testing.T) {
	s := New("guild-1")
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.BeginConnect())
	assert.Equal(t, StateConnecting, s.State())

	// Connecting again is illegal.
	assert.ErrorIs(t, s.BeginConnect(), ErrInvalidState)

	// Transport rejection reverts to Idle.
	s.ConnectFailed()
	assert.Equal(t, StateIdle, s.State())

	// Ready with nothing queued lands in connected Idle.
	require.NoError(t, s.BeginConnect())
	s.Ready()
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_PauseResume(t *testing.T) {
	s := New("guild-1")

	// Pause from Idle is rejected and the session stays Idle.
	assert.ErrorIs(t, s.Pause(), ErrInvalidState)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.SetPlaying(testTrack("a")))
	require.NoError(t, s.Pause())
	assert.Equal(t, StatePaused, s.State())

	// Pausing twice is rejected.
	assert.ErrorIs(t, s.Pause(), ErrInvalidState)

	require.NoError(t, s.Resume())
	assert.Equal(t, StatePlaying, s.State())

	// Resume while already playing is rejected.
	assert.ErrorIs(t, s.Resume(), ErrInvalidState)

	// Current track survives pause/resume.
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "a", cur.SourceID)
}

func TestSession_StopLeavesQueue(t *testing.T) {
	s := New("guild-1")
	require.NoError(t, s.SetPlaying(testTrack("a")))
	s.EnqueueTrack(testTrack("b"))
	s.EnqueueTrack(testTrack("c"))

	s.SetIdle()

	assert.Equal(t, StateIdle, s.State())
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Equal(t, 2, s.QueueLen())
}

func TestSession_Disconnecting(t *testing.T) {
	s := New("guild-1")
	require.NoError(t, s.SetPlaying(testTrack("a")))

	before := s.Epoch()
	require.NoError(t, s.BeginDisconnect())
	assert.Equal(t, StateDisconnecting, s.State())
	assert.Greater(t, s.Epoch(), before)

	// All mutations are rejected or ignored once disconnecting.
	assert.ErrorIs(t, s.BeginDisconnect(), ErrInvalidState)
	assert.ErrorIs(t, s.SetPlaying(testTrack("b")), ErrInvalidState)
	assert.ErrorIs(t, s.SetAutoplay(true), ErrInvalidState)
	_, err := s.SetVolume(50)
	assert.ErrorIs(t, err, ErrInvalidState)

	s.SetIdle()
	assert.Equal(t, StateDisconnecting, s.State())
}

func TestSession_VolumeClamp(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{input: 250, expected: 200},
		{input: -10, expected: 0},
		{input: 0, expected: 0},
		{input: 200, expected: 200},
		{input: 85, expected: 85},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("set %d", tt.input), func(t *testing.T) {
			s := New("guild-1")
			got, err := s.SetVolume(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.expected, s.Volume())
		})
	}
}

func TestSession_DefaultVolume(t *testing.T) {
	s := New("guild-1")
	assert.Equal(t, DefaultVolume, s.Volume())
}

func TestSession_HistoryCap(t *testing.T) {
	s := New("guild-1")
	s.SetHistoryCap(3)

	for i := 0; i < 5; i++ {
		s.PushHistory(testTrack(fmt.Sprintf("t%d", i)))
	}

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, "t2", history[0].SourceID)
	assert.Equal(t, "t4", history[2].SourceID)
}

func TestSession_IsInactive(t *testing.T) {
	timeout := 15 * time.Minute
	later := time.Now().Add(20 * time.Minute)

	t.Run("idle and stale", func(t *testing.T) {
		s := New("guild-1")
		assert.True(t, s.IsInactive(later, timeout))
	})

	t.Run("recent activity", func(t *testing.T) {
		s := New("guild-1")
		assert.False(t, s.IsInactive(time.Now(), timeout))
	})

	t.Run("queued tracks keep it alive", func(t *testing.T) {
		s := New("guild-1")
		s.EnqueueTrack(testTrack("a"))
		assert.False(t, s.IsInactive(later, timeout))
	})

	t.Run("never removed mid-playback", func(t *testing.T) {
		s := New("guild-1")
		require.NoError(t, s.SetPlaying(testTrack("a")))
		assert.False(t, s.IsInactive(later, timeout))
	})

	t.Run("never removed mid-transition", func(t *testing.T) {
		s := New("guild-1")
		require.NoError(t, s.BeginConnect())
		assert.False(t, s.IsInactive(later, timeout))
	})
}

func TestSession_EpochDiscardsStaleResolutions(t *testing.T) {
	s := New("guild-1")

	observed := s.Epoch()
	s.BumpEpoch() // a stop arrived while the resolution was in flight

	assert.NotEqual(t, observed, s.Epoch())
}
