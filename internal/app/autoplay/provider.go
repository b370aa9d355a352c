// Package autoplay provides track recommendation strategies for
// continuing playback when the queue runs dry.
package autoplay

import (
	"context"

	"github.com/gema-bot/gema/internal/domain/track"
)

// Provider is the interface for autoplay candidate providers.
// Different implementations source candidates through different
// strategies (recommendation APIs, related-content search).
type Provider interface {
	// NextCandidates retrieves up to limit candidate tracks.
	// seeds: recently played tracks, oldest first, used as
	// recommendation hints.
	NextCandidates(ctx context.Context, seeds []track.Track, limit int) ([]track.Track, error)

	// Name returns the provider name (used in config).
	Name() string
}

// SpotifyClient defines the Spotify operations needed by autoplay
// providers.
type SpotifyClient interface {
	SearchTrack(ctx context.Context, query string) (track.Track, error)
	Recommendations(ctx context.Context, seedIDs []string, limit int) ([]track.Track, error)
}

// YouTubeClient defines the YouTube operations needed by autoplay
// providers.
type YouTubeClient interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}
