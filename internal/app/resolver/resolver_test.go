package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gema-bot/gema/internal/domain/track"
)

type fakeMetadata struct {
	getTrack    func(url string) (track.Track, error)
	searchTrack func(query string) (track.Track, error)
}

func (f *fakeMetadata) GetTrack(_ context.Context, url string) (track.Track, error) {
	return f.getTrack(url)
}

func (f *fakeMetadata) SearchTrack(_ context.Context, query string) (track.Track, error) {
	return f.searchTrack(query)
}

type fakeAudio struct {
	getVideo func(urlOrID string) (track.Track, error)
	search   func(query string, limit int) ([]track.Track, error)

	lastQuery string
}

func (f *fakeAudio) GetVideo(_ context.Context, urlOrID string) (track.Track, error) {
	return f.getVideo(urlOrID)
}

func (f *fakeAudio) Search(_ context.Context, query string, limit int) ([]track.Track, error) {
	f.lastQuery = query
	return f.search(query, limit)
}

func TestIsSpotifyTrackURL(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://open.spotify.com/intl-ja/track/4uLU6hMCjMI75M1A2tKUQC?si=abc", true},
		{"https://open.spotify.com/album/xyz", false},
		{"https://youtube.com/watch?v=abc", false},
		{"never gonna give you up", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSpotifyTrackURL(tt.input), tt.input)
	}
}

func TestIsYouTubeURL(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", true},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/abc123", true},
		{"https://open.spotify.com/track/abc", false},
		{"rick astley", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsYouTubeURL(tt.input), tt.input)
	}
}

func TestResolver_SpotifyURLMergesAudioMatch(t *testing.T) {
	meta := &fakeMetadata{
		getTrack: func(url string) (track.Track, error) {
			return track.Track{
				SourceID:     "sp1",
				Title:        "Never Gonna Give You Up",
				Artist:       "Rick Astley",
				Duration:     213 * time.Second,
				ThumbnailURL: "https://i.scdn.co/image/abc",
				Origin:       track.OriginSpotify,
			}, nil
		},
	}
	audio := &fakeAudio{
		search: func(query string, limit int) ([]track.Track, error) {
			return []track.Track{{
				SourceID: "dQw4w9WgXcQ",
				Title:    "Rick Astley - Never Gonna Give You Up (Official Video)",
				Duration: 212 * time.Second,
				URL:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
				Origin:   track.OriginYouTube,
			}}, nil
		},
	}

	r := New(meta, audio)
	got, err := r.Resolve(context.Background(), "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC")
	require.NoError(t, err)

	// Identity comes from the metadata source, playback fields from
	// the audio match.
	assert.Equal(t, "dQw4w9WgXcQ", got.SourceID)
	assert.Equal(t, "Never Gonna Give You Up", got.Title)
	assert.Equal(t, "Rick Astley", got.Artist)
	assert.Equal(t, track.OriginSpotify, got.Origin)
	assert.Equal(t, "https://i.scdn.co/image/abc", got.ThumbnailURL)
	assert.Equal(t, "Rick Astley Never Gonna Give You Up", audio.lastQuery)
}

func TestResolver_SpotifyURLWithoutCredentials(t *testing.T) {
	r := New(nil, &fakeAudio{})
	_, err := r.Resolve(context.Background(), "https://open.spotify.com/track/abc123")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestResolver_YouTubeURLDirect(t *testing.T) {
	audio := &fakeAudio{
		getVideo: func(urlOrID string) (track.Track, error) {
			return track.Track{SourceID: "vid1", Title: "some video", Duration: time.Minute, Origin: track.OriginYouTube}, nil
		},
	}

	r := New(nil, audio)
	got, err := r.Resolve(context.Background(), "https://youtu.be/vid1")
	require.NoError(t, err)
	assert.Equal(t, "vid1", got.SourceID)
}

func TestResolver_FreeTextPrefersMetadata(t *testing.T) {
	meta := &fakeMetadata{
		searchTrack: func(query string) (track.Track, error) {
			return track.Track{SourceID: "sp2", Title: "Song", Artist: "Artist", Origin: track.OriginSpotify}, nil
		},
	}
	audio := &fakeAudio{
		search: func(query string, limit int) ([]track.Track, error) {
			return []track.Track{{SourceID: "yt2", Title: "Artist - Song", Duration: 3 * time.Minute, Origin: track.OriginYouTube}}, nil
		},
	}

	r := New(meta, audio)
	got, err := r.Resolve(context.Background(), "artist song")
	require.NoError(t, err)
	assert.Equal(t, "yt2", got.SourceID)
	assert.Equal(t, track.OriginSpotify, got.Origin)
	assert.Equal(t, "Artist", got.Artist)
}

func TestResolver_FreeTextFallsBackToAudio(t *testing.T) {
	meta := &fakeMetadata{
		searchTrack: func(query string) (track.Track, error) {
			return track.Track{}, errors.New("spotify down")
		},
	}
	audio := &fakeAudio{
		search: func(query string, limit int) ([]track.Track, error) {
			return []track.Track{{SourceID: "yt3", Title: "fallback hit", Duration: time.Minute, Origin: track.OriginYouTube}}, nil
		},
	}

	r := New(meta, audio)
	got, err := r.Resolve(context.Background(), "obscure demo tape")
	require.NoError(t, err)
	assert.Equal(t, "yt3", got.SourceID)
	assert.Equal(t, track.OriginYouTube, got.Origin)
}

func TestResolver_NoResults(t *testing.T) {
	audio := &fakeAudio{
		search: func(query string, limit int) ([]track.Track, error) {
			return nil, nil
		},
	}

	r := New(nil, audio)
	_, err := r.Resolve(context.Background(), "qqqqqqq")
	assert.ErrorIs(t, err, ErrNoResults)
}
