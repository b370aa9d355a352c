// Package resolver turns user input (URLs or free text) into playable
// track references by combining the metadata and audio sources.
package resolver

import (
	"context"
	"fmt"
	"regexp"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/gema-bot/gema/internal/domain/track"
)

// ErrNoResults is returned when no source produced a match.
var ErrNoResults = errors.New("no matching tracks found")

var (
	spotifyTrackRe = regexp.MustCompile(`(?:open\.)?spotify\.com/(?:intl-[a-z]+/)?track/([0-9A-Za-z]+)`)
	youtubeRe      = regexp.MustCompile(`(?:youtube\.com/watch\?|youtu\.be/|youtube\.com/shorts/|music\.youtube\.com/watch\?)`)
)

// IsSpotifyTrackURL reports whether s points at a Spotify track.
func IsSpotifyTrackURL(s string) bool {
	return spotifyTrackRe.MatchString(s)
}

// IsYouTubeURL reports whether s points at a YouTube video.
func IsYouTubeURL(s string) bool {
	return youtubeRe.MatchString(s)
}

// MetadataSource provides rich track metadata, typically Spotify.
type MetadataSource interface {
	GetTrack(ctx context.Context, url string) (track.Track, error)
	SearchTrack(ctx context.Context, query string) (track.Track, error)
}

// AudioSource provides playable videos, typically YouTube.
type AudioSource interface {
	GetVideo(ctx context.Context, urlOrID string) (track.Track, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// Resolver resolves queries against a metadata source and an audio
// source. The metadata source is optional; without one everything
// resolves through the audio source directly.
type Resolver struct {
	metadata MetadataSource
	audio    AudioSource
}

// New creates a resolver. metadata may be nil.
func New(metadata MetadataSource, audio AudioSource) *Resolver {
	return &Resolver{metadata: metadata, audio: audio}
}

// Resolve classifies queryOrURL and produces a playable track:
//
//   - Spotify track URL: metadata lookup, then an audio search to find
//     the playable counterpart.
//   - YouTube URL: direct video lookup.
//   - Free text: metadata search first when available, falling back to
//     an audio search.
func (r *Resolver) Resolve(ctx context.Context, queryOrURL string) (track.Track, error) {
	switch {
	case IsSpotifyTrackURL(queryOrURL):
		if r.metadata == nil {
			return track.Track{}, errors.Wrap(ErrNoResults, "spotify links need spotify credentials")
		}
		meta, err := r.metadata.GetTrack(ctx, queryOrURL)
		if err != nil {
			return track.Track{}, errors.Wrapf(err, "spotify lookup %q", queryOrURL)
		}
		return r.audioForMetadata(ctx, meta)

	case IsYouTubeURL(queryOrURL):
		t, err := r.audio.GetVideo(ctx, queryOrURL)
		if err != nil {
			return track.Track{}, errors.Wrapf(err, "youtube lookup %q", queryOrURL)
		}
		return t, nil

	default:
		return r.resolveText(ctx, queryOrURL)
	}
}

// audioForMetadata searches the audio source for the playable
// counterpart of meta and merges the two: metadata identity, audio
// playback fields.
func (r *Resolver) audioForMetadata(ctx context.Context, meta track.Track) (track.Track, error) {
	query := meta.Title
	if meta.Artist != "" {
		query = fmt.Sprintf("%s %s", meta.Artist, meta.Title)
	}

	hits, err := r.audio.Search(ctx, query, 1)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "audio search for %q", query)
	}
	if len(hits) == 0 {
		return track.Track{}, errors.Wrapf(ErrNoResults, "no audio match for %q", query)
	}

	merged := hits[0]
	merged.Title = meta.Title
	merged.Artist = meta.Artist
	merged.Origin = track.OriginSpotify
	if meta.ThumbnailURL != "" {
		merged.ThumbnailURL = meta.ThumbnailURL
	}
	return merged, nil
}

func (r *Resolver) resolveText(ctx context.Context, query string) (track.Track, error) {
	if r.metadata != nil {
		meta, err := r.metadata.SearchTrack(ctx, query)
		if err == nil {
			if t, aerr := r.audioForMetadata(ctx, meta); aerr == nil {
				return t, nil
			}
		} else {
			zlog.Debug().Str("query", query).Err(err).Msg("metadata search missed, trying audio source")
		}
	}

	hits, err := r.audio.Search(ctx, query, 1)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "audio search %q", query)
	}
	if len(hits) == 0 {
		return track.Track{}, errors.Wrapf(ErrNoResults, "%q", query)
	}
	return hits[0], nil
}
