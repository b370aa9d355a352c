package playback

import (
	"context"
	"time"

	"github.com/gema-bot/gema/internal/domain/track"
)

// Resolver turns a user query or URL into a playable track reference.
// Implementations must be idempotent and safe to retry.
type Resolver interface {
	Resolve(ctx context.Context, queryOrURL string) (track.Track, error)
}

// Transport opens voice connections. One connection per guild.
type Transport interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Connection is a live voice channel connection. Start begins
// streaming a track; the Events channel reports when a stream stops on
// its own (natural end or error). Stop halts the current stream
// without emitting an event.
type Connection interface {
	Start(ctx context.Context, t track.Track, volume int) error
	Stop()
	Pause()
	Resume()
	SetVolume(percent int)
	Reconnect(ctx context.Context) error
	Disconnect() error
	Events() <-chan TrackEvent
}

// Recommender supplies one autoplay candidate, already filtered
// against history and the duration cap. A nil track with a nil error
// means no suitable candidate was found.
type Recommender interface {
	NextCandidate(ctx context.Context, history []track.Track, maxDuration time.Duration) (*track.Track, error)
}
