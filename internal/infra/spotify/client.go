// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/gema-bot/gema/internal/domain/track"
)

// Client is a Spotify API client using the client-credentials flow.
// Only public catalog data is needed, so no user authorization is
// involved.
type Client struct {
	client     *spotify.Client
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	ccfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	// Token refresh happens transparently inside the HTTP client.
	httpClient := ccfg.Client(ctx)

	return &Client{
		client:     spotify.New(httpClient),
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track metadata by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (track.Track, error) {
	id := extractTrackID(trackID)

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to get track")
	}

	return convertFullTrack(result), nil
}

// SearchTrack searches the catalog and returns the best match.
func (c *Client) SearchTrack(ctx context.Context, query string) (track.Track, error) {
	if query == "" {
		return track.Track{}, errors.New("search query is required")
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to search")
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return track.Track{}, errors.Newf("no match for %q", query)
	}

	return convertFullTrack(&result.Tracks.Tracks[0]), nil
}

// Recommendations returns tracks similar to the given seed track IDs.
// Spotify accepts at most five seeds per request.
func (c *Client) Recommendations(ctx context.Context, seedIDs []string, limit int) ([]track.Track, error) {
	if len(seedIDs) == 0 {
		return nil, errors.New("seed track IDs are required")
	}
	if len(seedIDs) > 5 {
		seedIDs = seedIDs[len(seedIDs)-5:]
	}
	if limit <= 0 {
		limit = 10
	}

	ids := make([]spotify.ID, len(seedIDs))
	for i, id := range seedIDs {
		ids[i] = spotify.ID(extractTrackID(id))
	}

	var result *spotify.Recommendations
	err := c.retry(func() error {
		r, err := c.client.GetRecommendations(ctx, spotify.Seeds{Tracks: ids}, nil, spotify.Limit(limit))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recommendations")
	}

	tracks := make([]track.Track, 0, len(result.Tracks))
	for i := range result.Tracks {
		tracks = append(tracks, convertSimpleTrack(&result.Tracks[i]))
	}
	return tracks, nil
}

// convertFullTrack converts a Spotify FullTrack to a domain track.
func convertFullTrack(t *spotify.FullTrack) track.Track {
	var thumbnail string
	if len(t.Album.Images) > 0 {
		thumbnail = t.Album.Images[0].URL
	}

	return track.Track{
		SourceID:     string(t.ID),
		Title:        t.Name,
		Artist:       joinArtists(t.Artists),
		Duration:     t.TimeDuration(),
		ThumbnailURL: thumbnail,
		URL:          trackURL(string(t.ID)),
		Origin:       track.OriginSpotify,
	}
}

// convertSimpleTrack converts a recommendation result entry.
func convertSimpleTrack(t *spotify.SimpleTrack) track.Track {
	return track.Track{
		SourceID: string(t.ID),
		Title:    t.Name,
		Artist:   joinArtists(t.Artists),
		Duration: time.Duration(t.Duration) * time.Millisecond,
		URL:      trackURL(string(t.ID)),
		Origin:   track.OriginSpotify,
	}
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func trackURL(id string) string {
	return "https://open.spotify.com/track/" + id
}

// retry runs fn up to maxRetries times with linear backoff for
// retryable API errors.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable reports whether the error is worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractTrackID pulls the bare track ID out of a Spotify URL or URI.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:track:TRACK_ID
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or
	// https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already a track ID
	return input
}
