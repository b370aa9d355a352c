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

type YouTubeProviderConfig struct {
	SearchLimit int `yaml:"search_limit" mapstructure:"search_limit" default:"5" validate:"min=1,max=20"`
}

// YouTubeProvider sources candidates through a related-content search
// built from the most recent seed. It needs no credentials, which
// makes it the usual fallback behind the recommendation providers.
type YouTubeProvider struct {
	youtube YouTubeClient
	config  *YouTubeProviderConfig
}

// NewYouTubeProvider creates a YouTubeProvider from raw settings.
func NewYouTubeProvider(youtube YouTubeClient, settings map[string]any) (*YouTubeProvider, error) {
	var config YouTubeProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("youtube provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("youtube provider validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}
	return &YouTubeProvider{youtube: youtube, config: &config}, nil
}

// NextCandidates searches for tracks similar to the newest seed.
func (p *YouTubeProvider) NextCandidates(ctx context.Context, seeds []track.Track, limit int) ([]track.Track, error) {
	if len(seeds) == 0 {
		return nil, errors.New("no seed tracks available")
	}
	seed := seeds[len(seeds)-1]

	var query string
	if seed.Artist != "" {
		query = fmt.Sprintf("%s %s similar songs", seed.Artist, seed.Title)
	} else {
		query = fmt.Sprintf("%s similar songs", seed.Title)
	}

	searchLimit := p.config.SearchLimit
	if limit > 0 && limit < searchLimit {
		searchLimit = limit
	}

	zlog.Debug().Msgf("youtube autoplay search: query=%s limit=%d", query, searchLimit)
	candidates, err := p.youtube.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "related search failed")
	}
	return candidates, nil
}

// Name returns the provider name.
func (p *YouTubeProvider) Name() string {
	return "youtube"
}
