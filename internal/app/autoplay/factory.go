package autoplay

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/gema-bot/gema/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
// spotify may be nil when no credentials are configured; a spotify
// provider entry then fails fast.
func NewChainFromConfig(cfg *config.Config, spotify SpotifyClient, youtube YouTubeClient, audio AudioMatcher) (*Chain, error) {
	if len(cfg.Autoplay.Providers) == 0 {
		return nil, errors.New("no autoplay providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Autoplay.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating autoplay provider: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)
		switch pcfg.Type {
		case "spotify":
			if spotify == nil {
				return nil, errors.Newf("provider %q needs spotify credentials (provider index %d)", pcfg.DisplayName, i)
			}
			provider, err = NewSpotifyProvider(spotify, pcfg.Settings)

		case "youtube":
			provider, err = NewYouTubeProvider(youtube, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("registered autoplay provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(providers, audio), nil
}
