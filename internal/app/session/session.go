// Package session provides the per-guild voice session state machine.
package session

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gema-bot/gema/internal/app/queue"
	"github.com/gema-bot/gema/internal/domain/track"
)

// Errors
var (
	ErrInvalidState = errors.New("operation not valid in current state")
)

const (
	// DefaultVolume is the initial volume percentage.
	DefaultVolume = 100
	// MaxVolume is the upper clamp for the volume percentage.
	MaxVolume = 200
	// DefaultHistoryCap bounds the recently-played history used for
	// autoplay deduplication.
	DefaultHistoryCap = 50
)

// Session is one guild's voice playback context: state machine,
// current track, queue, volume, autoplay flag and bounded history.
// All accessors serialize on an internal mutex; multi-step command
// flows are additionally ordered by the playback controller.
type Session struct {
	mu sync.Mutex

	guildID    string
	instanceID string // for log correlation across reconnects

	state   State
	current *track.Track
	queue   *queue.Queue

	volume   int
	autoplay bool

	history    []track.Track
	historyCap int

	lastActivity time.Time

	// epoch increments on stop and disconnect; in-flight resolutions
	// compare epochs and discard their result when stale.
	epoch uint64
}

// New creates a session for the given guild in the Idle state.
func New(guildID string) *Session {
	return &Session{
		guildID:      guildID,
		instanceID:   uuid.New().String(),
		state:        StateIdle,
		queue:        queue.New(),
		volume:       DefaultVolume,
		historyCap:   DefaultHistoryCap,
		lastActivity: time.Now(),
	}
}

// GuildID returns the guild identity this session belongs to.
func (s *Session) GuildID() string {
	return s.guildID
}

// InstanceID returns the unique instance ID of this session.
func (s *Session) InstanceID() string {
	return s.instanceID
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginConnect moves Idle -> Connecting. Any other state is rejected.
func (s *Session) BeginConnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return errors.Wrapf(ErrInvalidState, "connect from %s", s.state)
	}
	s.state = StateConnecting
	s.touchLocked()
	return nil
}

// ConnectFailed reverts Connecting -> Idle after a transport rejection.
func (s *Session) ConnectFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnecting {
		s.state = StateIdle
		s.touchLocked()
	}
}

// Ready moves Connecting -> Idle once the transport is established and
// nothing is queued to start immediately.
func (s *Session) Ready() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnecting {
		s.state = StateIdle
		s.touchLocked()
	}
}

// SetPlaying records t as the current track and moves to Playing.
// Valid from Connecting, Idle and Playing (track advance); rejected
// while disconnecting.
func (s *Session) SetPlaying(t track.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnecting {
		return errors.Wrapf(ErrInvalidState, "start playback from %s", s.state)
	}
	tc := t
	s.current = &tc
	s.state = StatePlaying
	s.touchLocked()
	return nil
}

// SetIdle clears the current track and moves to Idle. The queue is
// left untouched.
func (s *Session) SetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnecting {
		return
	}
	s.current = nil
	s.state = StateIdle
	s.touchLocked()
}

// Pause moves Playing -> Paused; any other state is rejected.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return errors.Wrapf(ErrInvalidState, "pause from %s", s.state)
	}
	s.state = StatePaused
	s.touchLocked()
	return nil
}

// Resume moves Paused -> Playing; any other state is rejected.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return errors.Wrapf(ErrInvalidState, "resume from %s", s.state)
	}
	s.state = StatePlaying
	s.touchLocked()
	return nil
}

// BeginDisconnect moves any state -> Disconnecting. Once entered the
// session only leaves via registry removal.
func (s *Session) BeginDisconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnecting {
		return errors.Wrap(ErrInvalidState, "already disconnecting")
	}
	s.state = StateDisconnecting
	s.current = nil
	s.epoch++
	s.touchLocked()
	return nil
}

// Current returns the presently streaming track, if any.
func (s *Session) Current() (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return track.Track{}, false
	}
	return *s.current, true
}

// EnqueueTrack appends to the queue and returns the new queue length.
func (s *Session) EnqueueTrack(t track.Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	return s.queue.Enqueue(t)
}

// DequeueTrack pops the queue front.
func (s *Session) DequeueTrack() (track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	return s.queue.Dequeue()
}

// ClearQueue empties the queue and returns the removed count.
func (s *Session) ClearQueue() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	return s.queue.Clear()
}

// QueueSnapshot returns a read-only copy of the queue for display.
func (s *Session) QueueSnapshot() []track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Snapshot()
}

// QueueLen returns the number of queued tracks.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Volume returns the current volume percentage.
func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetVolume clamps v to [0, MaxVolume] and stores it. Rejected while
// disconnecting. Returns the clamped value.
func (s *Session) SetVolume(v int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnecting {
		return s.volume, errors.Wrapf(ErrInvalidState, "set volume from %s", s.state)
	}
	if v < 0 {
		v = 0
	}
	if v > MaxVolume {
		v = MaxVolume
	}
	s.volume = v
	s.touchLocked()
	return v, nil
}

// AutoplayEnabled returns the autoplay flag.
func (s *Session) AutoplayEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoplay
}

// SetAutoplay toggles the autoplay flag. Rejected while disconnecting.
func (s *Session) SetAutoplay(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnecting {
		return errors.Wrapf(ErrInvalidState, "toggle autoplay from %s", s.state)
	}
	s.autoplay = on
	s.touchLocked()
	return nil
}

// PushHistory records a finished track for autoplay deduplication,
// evicting the oldest entry when the cap is reached.
func (s *Session) PushHistory(t track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, t)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
}

// History returns a copy of the recently played tracks, oldest first.
func (s *Session) History() []track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]track.Track, len(s.history))
	copy(out, s.history)
	return out
}

// SetHistoryCap overrides the history retention size.
func (s *Session) SetHistoryCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 1 {
		n = 1
	}
	s.historyCap = n
	if len(s.history) > n {
		s.history = s.history[len(s.history)-n:]
	}
}

// Epoch returns the current cancellation epoch.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// BumpEpoch invalidates in-flight resolutions and returns the new
// epoch.
func (s *Session) BumpEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	return s.epoch
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

// LastActivity returns the time of the last state transition or
// command.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IsInactive reports whether the session can be swept: Idle, empty
// queue, no current track, and idle longer than timeout. A session
// mid-transition (Connecting, Playing, Paused, Disconnecting) is
// never inactive.
func (s *Session) IsInactive(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle || s.current != nil || !s.queue.IsEmpty() {
		return false
	}
	return now.Sub(s.lastActivity) > timeout
}

func (s *Session) touchLocked() {
	s.lastActivity = time.Now()
}
