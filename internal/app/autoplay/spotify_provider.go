package autoplay

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/gema-bot/gema/internal/domain/track"
)

type SpotifyProviderConfig struct {
	SeedCount int `yaml:"seed_count" mapstructure:"seed_count" default:"5" validate:"min=1,max=5"`
	Limit     int `yaml:"limit" mapstructure:"limit" default:"10" validate:"min=1,max=50"`
}

// SpotifyProvider sources candidates from the Spotify recommendations
// API, seeded with the most recently played tracks. History entries
// carry YouTube source IDs after resolution, so each seed is mapped
// back to its Spotify track through a search first.
type SpotifyProvider struct {
	spotify SpotifyClient
	config  *SpotifyProviderConfig
}

// NewSpotifyProvider creates a SpotifyProvider from raw settings.
func NewSpotifyProvider(spotify SpotifyClient, settings map[string]any) (*SpotifyProvider, error) {
	var config SpotifyProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("spotify provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("spotify provider validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}
	return &SpotifyProvider{spotify: spotify, config: &config}, nil
}

// NextCandidates maps the newest seeds to Spotify track IDs and asks
// the recommendations API for similar tracks.
func (p *SpotifyProvider) NextCandidates(ctx context.Context, seeds []track.Track, limit int) ([]track.Track, error) {
	if len(seeds) == 0 {
		return nil, errors.New("no seed tracks available")
	}

	start := len(seeds) - p.config.SeedCount
	if start < 0 {
		start = 0
	}

	var seedIDs []string
	for _, s := range seeds[start:] {
		query := s.Title
		if s.Artist != "" {
			query = fmt.Sprintf("%s %s", s.Artist, s.Title)
		}
		match, err := p.spotify.SearchTrack(ctx, query)
		if err != nil {
			zlog.Debug().Msgf("seed lookup missed: query=%s error=%v", query, err)
			continue
		}
		seedIDs = append(seedIDs, match.SourceID)
	}
	if len(seedIDs) == 0 {
		return nil, errors.New("no seeds resolved to spotify tracks")
	}

	if limit <= 0 || limit > p.config.Limit {
		limit = p.config.Limit
	}
	candidates, err := p.spotify.Recommendations(ctx, seedIDs, limit)
	if err != nil {
		return nil, errors.Wrap(err, "recommendations request failed")
	}
	return candidates, nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}
