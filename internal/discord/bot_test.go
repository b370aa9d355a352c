package discord

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gema-bot/gema/internal/app/playback"
	"github.com/gema-bot/gema/internal/app/session"
	"github.com/gema-bot/gema/internal/domain/track"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		prefix   string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{
			name:     "bare command",
			content:  "!skip",
			prefix:   "!",
			wantName: "skip",
			wantOK:   true,
		},
		{
			name:     "command with args",
			content:  "!play never gonna give you up",
			prefix:   "!",
			wantName: "play",
			wantArgs: "never gonna give you up",
			wantOK:   true,
		},
		{
			name:     "uppercase command normalized",
			content:  "!PLAY test",
			prefix:   "!",
			wantName: "play",
			wantArgs: "test",
			wantOK:   true,
		},
		{
			name:     "extra whitespace trimmed",
			content:  "!play   spaced out   ",
			prefix:   "!",
			wantName: "play",
			wantArgs: "spaced out",
			wantOK:   true,
		},
		{
			name:    "no prefix",
			content: "play something",
			prefix:  "!",
			wantOK:  false,
		},
		{
			name:    "prefix only",
			content: "!",
			prefix:  "!",
			wantOK:  false,
		},
		{
			name:     "multi-char prefix",
			content:  "gema!queue",
			prefix:   "gema!",
			wantName: "queue",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, ok := parseCommand(tt.content, tt.prefix)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCanonicalCommand(t *testing.T) {
	tests := []struct {
		alias string
		want  string
	}{
		{alias: "p", want: "play"},
		{alias: "s", want: "skip"},
		{alias: "q", want: "queue"},
		{alias: "np", want: "nowplaying"},
		{alias: "ap", want: "autoplay"},
		{alias: "vol", want: "volume"},
		{alias: "dc", want: "disconnect"},
		{alias: "leave", want: "disconnect"},
		{alias: "play", want: "play"},
		{alias: "unknown", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			assert.Equal(t, tt.want, canonicalCommand(tt.alias))
		})
	}
}

func TestVolumeLabel(t *testing.T) {
	tests := []struct {
		volume int
		want   string
	}{
		{volume: 0, want: "Muted"},
		{volume: 1, want: "Low"},
		{volume: 50, want: "Low"},
		{volume: 51, want: "Normal"},
		{volume: 100, want: "Normal"},
		{volume: 101, want: "High"},
		{volume: 200, want: "High"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, volumeLabel(tt.volume))
		})
	}
}

func TestQueueEmbed_LongQueue(t *testing.T) {
	sess := session.New("g1")
	for i := 0; i < 17; i++ {
		sess.EnqueueTrack(track.Track{
			SourceID: fmt.Sprintf("id%d", i),
			Title:    fmt.Sprintf("Track %d", i+1),
			Duration: time.Minute,
		})
	}

	e := queueEmbed(sess)

	assert.Contains(t, e.Description, "15. Track 15")
	assert.NotContains(t, e.Description, "16. Track 16")
	assert.Contains(t, e.Description, "... and 2 more")
	assert.Contains(t, e.Description, "Total: 17 tracks (17:00)")
}

func TestQueueEmbed_Empty(t *testing.T) {
	e := queueEmbed(session.New("g1"))
	assert.Contains(t, e.Description, "The queue is empty.")
	assert.NotContains(t, e.Description, "Total:")
}

func TestTrackLabel(t *testing.T) {
	withArtist := track.Track{Title: "Song", Artist: "Artist"}
	assert.Equal(t, "Artist - Song", trackLabel(withArtist))

	noArtist := track.Track{Title: "Song"}
	assert.Equal(t, "Song", trackLabel(noArtist))
}

func TestNowPlayingEmbed(t *testing.T) {
	e := nowPlayingEmbed(track.Track{
		Title:        "Song",
		Artist:       "Artist",
		Duration:     3*time.Minute + 25*time.Second,
		URL:          "https://www.youtube.com/watch?v=abc",
		ThumbnailURL: "https://img.example/abc.jpg",
	})

	assert.Equal(t, "Now playing", e.Title)
	assert.Contains(t, e.Description, "Artist - Song")
	assert.Contains(t, e.Description, "3:25")
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", e.URL)
	assert.Equal(t, "https://img.example/abc.jpg", e.Thumbnail.URL)
}

func TestThumbnail_EmptyURL(t *testing.T) {
	assert.Nil(t, thumbnail(track.Track{}))
}

func TestVoiceConnEmit(t *testing.T) {
	t.Run("delivers when consumer reads", func(t *testing.T) {
		c := &voiceConn{guildID: "g1", events: make(chan playback.TrackEvent, 1)}
		stop := make(chan struct{})

		c.emit(playback.TrackEvent{Type: playback.TrackEnded}, stop)

		ev := <-c.events
		assert.Equal(t, playback.TrackEnded, ev.Type)
	})

	t.Run("waits for a slow consumer instead of dropping", func(t *testing.T) {
		c := &voiceConn{guildID: "g1", events: make(chan playback.TrackEvent, 1)}
		stop := make(chan struct{})
		c.events <- playback.TrackEvent{Type: playback.TrackFailed}

		done := make(chan struct{})
		go func() {
			c.emit(playback.TrackEvent{Type: playback.TrackEnded}, stop)
			close(done)
		}()

		select {
		case <-done:
			t.Fatal("emit returned before the consumer drained the channel")
		case <-time.After(20 * time.Millisecond):
		}

		<-c.events
		<-done
		ev := <-c.events
		assert.Equal(t, playback.TrackEnded, ev.Type)
	})

	t.Run("stop releases a blocked emit", func(t *testing.T) {
		c := &voiceConn{guildID: "g1", events: make(chan playback.TrackEvent, 1)}
		stop := make(chan struct{})
		c.events <- playback.TrackEvent{Type: playback.TrackFailed}
		close(stop)

		done := make(chan struct{})
		go func() {
			c.emit(playback.TrackEvent{Type: playback.TrackEnded}, stop)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("emit did not return after stop closed")
		}
	})
}

func TestScaleSample(t *testing.T) {
	tests := []struct {
		name   string
		sample int16
		volume int
		want   int16
	}{
		{name: "unity passthrough", sample: 1234, volume: 100, want: 1234},
		{name: "muted", sample: 1234, volume: 0, want: 0},
		{name: "half", sample: 1000, volume: 50, want: 500},
		{name: "boost", sample: 1000, volume: 200, want: 2000},
		{name: "positive clip", sample: 30000, volume: 200, want: 32767},
		{name: "negative clip", sample: -30000, volume: 200, want: -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scaleSample(tt.sample, tt.volume))
		})
	}
}
