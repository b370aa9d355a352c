package autoplay

import (
	"context"
	"fmt"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/gema-bot/gema/internal/domain/track"
)

const defaultCandidateLimit = 10

// AudioMatcher finds the playable counterpart for a metadata-only
// candidate.
type AudioMatcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// ProviderWithMetadata wraps a provider with its display metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain tries providers in order and returns the first candidate that
// survives filtering: not recently played and within the duration cap.
type Chain struct {
	providers []ProviderWithMetadata
	audio     AudioMatcher
	limit     int
}

// NewChain creates a chain over the given providers. audio converts
// metadata-only candidates into playable tracks and may be nil when
// every provider already yields playable results.
func NewChain(providers []ProviderWithMetadata, audio AudioMatcher) *Chain {
	return &Chain{providers: providers, audio: audio, limit: defaultCandidateLimit}
}

// NextCandidate returns one playable candidate or (nil, nil) when no
// provider produced a suitable one. history is oldest first; the most
// recent entries act as recommendation seeds.
func (c *Chain) NextCandidate(ctx context.Context, history []track.Track, maxDuration time.Duration) (*track.Track, error) {
	for i, pm := range c.providers {
		zlog.Debug().Msgf("trying autoplay provider: index=%d total=%d name=%s type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		candidates, err := pm.Provider.NextCandidates(ctx, history, c.limit)
		if err != nil {
			zlog.Warn().Msgf("autoplay provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		for _, cand := range candidates {
			if maxDuration > 0 && cand.Duration > maxDuration {
				zlog.Debug().Msgf("candidate over duration cap: title=%s duration=%s", cand.Title, cand.Duration)
				continue
			}
			if recentlyPlayed(cand, history) {
				zlog.Debug().Msgf("candidate recently played: title=%s", cand.Title)
				continue
			}

			playable, err := c.ensurePlayable(ctx, cand)
			if err != nil {
				zlog.Debug().Msgf("candidate not playable: title=%s error=%v", cand.Title, err)
				continue
			}
			if maxDuration > 0 && playable.Duration > maxDuration {
				continue
			}

			zlog.Info().Msgf("autoplay candidate selected: provider=%s title=%s artist=%s",
				pm.DisplayName, playable.Title, playable.Artist)
			return &playable, nil
		}

		zlog.Debug().Msgf("autoplay provider had no surviving candidates: provider=%s", pm.DisplayName)
	}

	return nil, nil
}

// ensurePlayable resolves a metadata-only candidate (no URL) into a
// playable track via the audio matcher, keeping the candidate's
// identity fields.
func (c *Chain) ensurePlayable(ctx context.Context, cand track.Track) (track.Track, error) {
	if cand.URL != "" {
		return cand, nil
	}
	if c.audio == nil {
		return track.Track{}, fmt.Errorf("no audio matcher for metadata-only candidate %q", cand.Title)
	}

	query := cand.Title
	if cand.Artist != "" {
		query = fmt.Sprintf("%s %s", cand.Artist, cand.Title)
	}
	hits, err := c.audio.Search(ctx, query, 1)
	if err != nil {
		return track.Track{}, err
	}
	if len(hits) == 0 {
		return track.Track{}, fmt.Errorf("no audio match for %q", query)
	}

	merged := hits[0]
	merged.Title = cand.Title
	merged.Artist = cand.Artist
	merged.Origin = cand.Origin
	if cand.ThumbnailURL != "" {
		merged.ThumbnailURL = cand.ThumbnailURL
	}
	return merged, nil
}

// recentlyPlayed reports whether cand matches a history entry, by
// source identity or by fuzzy title match against the same artist.
func recentlyPlayed(cand track.Track, history []track.Track) bool {
	for _, h := range history {
		if cand.SameItem(h) {
			return true
		}
		if fuzzyTitleMatch(cand, h) {
			return true
		}
	}
	return false
}

// fuzzyTitleMatch catches re-releases and alternate uploads of the
// same song: same artist and one normalized title containing the
// other.
func fuzzyTitleMatch(a, b track.Track) bool {
	if a.Artist == "" || !strings.EqualFold(a.Artist, b.Artist) {
		return false
	}
	ta := normalizeTitle(a.Title)
	tb := normalizeTitle(b.Title)
	if ta == "" || tb == "" {
		return false
	}
	return strings.Contains(ta, tb) || strings.Contains(tb, ta)
}

func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	// Strip bracketed qualifiers like (remastered) or [official video].
	for _, open := range []string{"(", "["} {
		if i := strings.Index(s, open); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "provider_chain"
}
