// Package track provides the track reference domain entity.
package track

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Origin identifies which service produced a track reference.
type Origin int

const (
	OriginYouTube Origin = iota // Directly playable YouTube reference
	OriginSpotify               // Spotify metadata paired with a YouTube audio source
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginYouTube:
		return "youtube"
	case OriginSpotify:
		return "spotify"
	default:
		return "unknown"
	}
}

// Track represents one playable item. Values are immutable once built;
// callers copy rather than mutate.
type Track struct {
	SourceID     string        // YouTube video ID (or Spotify track ID for metadata-only refs)
	Title        string        // Track name
	Artist       string        // Artist or uploader name
	Duration     time.Duration // Track duration (0 when the source does not report one)
	ThumbnailURL string        // Cover art or video thumbnail URL
	URL          string        // Canonical watch/track page URL
	Origin       Origin        // Where the metadata came from
}

// Validate checks the track reference invariants.
func (t Track) Validate() error {
	if t.SourceID == "" {
		return errors.New("track source id is empty")
	}
	if t.Duration < 0 {
		return errors.Newf("track duration is negative: %v", t.Duration)
	}
	return nil
}

// SameItem reports whether two references point at the same underlying
// item, by source ID or by URL.
func (t Track) SameItem(other Track) bool {
	if t.SourceID != "" && t.SourceID == other.SourceID {
		return true
	}
	return t.URL != "" && t.URL == other.URL
}

// FormatDuration renders a duration as h:mm:ss or m:ss for display.
// Non-positive durations render as "Unknown".
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	if total <= 0 {
		return "Unknown"
	}

	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
