// Package youtube provides search, metadata and stream URL access for
// YouTube videos.
package youtube

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	ytdl "github.com/kkdai/youtube/v2"
	"github.com/ppalone/ytsearch"
	zlog "github.com/rs/zerolog/log"

	"github.com/gema-bot/gema/internal/domain/track"
)

// Opus 160kbps WebM, passthrough friendly.
const preferredItag = 251

// Client wraps the search API and the video metadata/stream client.
type Client struct {
	search *ytsearch.Client
	video  *ytdl.Client
}

// New creates a YouTube client.
func New() *Client {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &Client{
		search: ytsearch.NewClient(httpClient),
		video:  &ytdl.Client{HTTPClient: httpClient},
	}
}

// Search runs a video search and returns up to limit tracks. Results
// carry full metadata, which costs one detail lookup per hit.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 5
	}

	res, err := c.search.Search(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "search %q", query)
	}

	tracks := make([]track.Track, 0, limit)
	for _, hit := range res.Results {
		if len(tracks) >= limit {
			break
		}
		t, err := c.GetVideo(ctx, hit.VideoID)
		if err != nil {
			zlog.Debug().Str("video_id", hit.VideoID).Str("title", hit.Title).Err(err).Msg("skipping unfetchable search hit")
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// GetVideo fetches metadata for a video URL or ID.
func (c *Client) GetVideo(ctx context.Context, urlOrID string) (track.Track, error) {
	video, err := c.video.GetVideoContext(ctx, urlOrID)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "get video %q", urlOrID)
	}
	return convertVideo(video), nil
}

// StreamURL resolves the direct audio stream URL for a video. URLs
// expire after a few hours, so this is called right before playback.
func (c *Client) StreamURL(ctx context.Context, videoID string) (string, error) {
	video, err := c.video.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", errors.Wrapf(err, "get video %q", videoID)
	}

	format, err := pickAudioFormat(video)
	if err != nil {
		return "", err
	}

	streamURL, err := c.video.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return "", errors.Wrapf(err, "get stream url %q", videoID)
	}
	return streamURL, nil
}

// pickAudioFormat prefers the Opus WebM format, falling back to the
// first format with audio channels.
func pickAudioFormat(video *ytdl.Video) (*ytdl.Format, error) {
	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, errors.Newf("no audio formats for %q", video.ID)
	}

	for i := range formats {
		if formats[i].ItagNo == preferredItag {
			return &formats[i], nil
		}
	}

	audioOnly := formats.Type("audio")
	if len(audioOnly) > 0 {
		return &audioOnly[0], nil
	}
	return &formats[0], nil
}

func convertVideo(v *ytdl.Video) track.Track {
	var thumbnail string
	if len(v.Thumbnails) > 0 {
		thumbnail = v.Thumbnails[len(v.Thumbnails)-1].URL
	}

	return track.Track{
		SourceID:     v.ID,
		Title:        v.Title,
		Artist:       v.Author,
		Duration:     v.Duration,
		ThumbnailURL: thumbnail,
		URL:          WatchURL(v.ID),
		Origin:       track.OriginYouTube,
	}
}

// WatchURL builds the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ExtractVideoID pulls the video ID out of the common URL shapes, or
// returns the input unchanged when it already looks like an ID.
func ExtractVideoID(input string) string {
	input = strings.TrimSpace(input)

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return input
	}

	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		return strings.Trim(u.Path, "/")
	case strings.Contains(u.Path, "/shorts/"):
		parts := strings.Split(u.Path, "/shorts/")
		return strings.Trim(parts[len(parts)-1], "/")
	default:
		if v := u.Query().Get("v"); v != "" {
			return v
		}
	}
	return input
}
