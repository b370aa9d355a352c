package discord

import (
	"context"
	"encoding/binary"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"layeh.com/gopus"

	"github.com/gema-bot/gema/internal/app/playback"
	"github.com/gema-bot/gema/internal/domain/track"
)

const (
	sampleRate = 48000
	channels   = 2
	frameSize  = 960 // 20ms at 48kHz
)

// StreamSource resolves a track source ID into a direct audio URL.
type StreamSource interface {
	StreamURL(ctx context.Context, videoID string) (string, error)
}

// VoiceTransport opens Discord voice connections.
type VoiceTransport struct {
	session *discordgo.Session
	streams StreamSource
}

// NewVoiceTransport creates a transport over an opened Discord session.
func NewVoiceTransport(session *discordgo.Session, streams StreamSource) *VoiceTransport {
	return &VoiceTransport{session: session, streams: streams}
}

// Connect joins the voice channel and returns a live connection.
func (t *VoiceTransport) Connect(ctx context.Context, guildID, channelID string) (playback.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, errors.Wrapf(err, "join voice channel %s", channelID)
	}

	return &voiceConn{
		session:   t.session,
		streams:   t.streams,
		vc:        vc,
		guildID:   guildID,
		channelID: channelID,
		volume:    100,
		events:    make(chan playback.TrackEvent, 4),
	}, nil
}

// voiceConn streams PCM audio from ffmpeg into a Discord voice
// connection, one track at a time.
type voiceConn struct {
	session   *discordgo.Session
	streams   StreamSource
	guildID   string
	channelID string
	events    chan playback.TrackEvent

	mu     sync.Mutex
	vc     *discordgo.VoiceConnection
	stopCh chan struct{} // open while a stream goroutine runs
	paused bool
	volume int
}

// Start resolves the stream URL and begins playback, replacing any
// stream already running.
func (c *voiceConn) Start(ctx context.Context, t track.Track, volume int) error {
	streamURL, err := c.streams.StreamURL(ctx, t.SourceID)
	if err != nil {
		return errors.Wrapf(err, "resolve stream for %q", t.Title)
	}

	cmd := exec.Command("ffmpeg",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1",
	)
	pcm, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "ffmpeg stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "ffmpeg start")
	}

	c.mu.Lock()
	if c.stopCh != nil {
		close(c.stopCh)
	}
	stop := make(chan struct{})
	c.stopCh = stop
	c.paused = false
	c.volume = volume
	vc := c.vc
	c.mu.Unlock()

	go func() {
		defer func() {
			pcm.Close()
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			_ = cmd.Wait()
		}()
		c.streamLoop(vc, pcm, stop, t.Title)
	}()

	return nil
}

// streamLoop reads 20ms PCM frames, applies the volume, encodes them
// to Opus and ships them out until the stream ends or stop closes.
func (c *voiceConn) streamLoop(vc *discordgo.VoiceConnection, pcm io.Reader, stop <-chan struct{}, title string) {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		c.emit(playback.TrackEvent{Type: playback.TrackFailed, Err: errors.Wrap(err, "opus encoder")}, stop)
		return
	}

	if err := vc.Speaking(true); err != nil {
		zlog.Debug().Str("guild", c.guildID).Err(err).Msg("speaking flag failed")
	}
	defer func() {
		_ = vc.Speaking(false)
	}()

	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		select {
		case <-stop:
			// Commanded stop: no event.
			return
		default:
		}

		c.mu.Lock()
		paused := c.paused
		volume := c.volume
		c.mu.Unlock()

		if paused {
			// Hold position without consuming the pipe.
			select {
			case <-stop:
				return
			case <-pauseTick():
			}
			continue
		}

		if _, err := io.ReadFull(pcm, pcmBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				zlog.Debug().Str("guild", c.guildID).Str("track", title).Msg("stream drained")
				c.emit(playback.TrackEvent{Type: playback.TrackEnded}, stop)
			} else {
				c.emit(playback.TrackEvent{Type: playback.TrackFailed, Err: errors.Wrap(err, "pcm read")}, stop)
			}
			return
		}

		for i := range intBuf {
			sample := int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
			intBuf[i] = scaleSample(sample, volume)
		}

		opus, err := encoder.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			c.emit(playback.TrackEvent{Type: playback.TrackFailed, Err: errors.Wrap(err, "opus encode")}, stop)
			return
		}

		select {
		case vc.OpusSend <- opus:
		case <-stop:
			return
		}
	}
}

// emit delivers ev to the consumer, blocking until it is taken. A
// commanded stop releases the wait; the event is then obsolete anyway.
func (c *voiceConn) emit(ev playback.TrackEvent, stop <-chan struct{}) {
	select {
	case c.events <- ev:
	case <-stop:
		zlog.Debug().Str("guild", c.guildID).Str("event", ev.Type.String()).Msg("voice event superseded by stop")
	}
}

// Stop halts the current stream without emitting an event.
func (c *voiceConn) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.paused = false
}

// Pause suspends frame delivery, keeping the stream position.
func (c *voiceConn) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume continues a paused stream.
func (c *voiceConn) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// SetVolume changes the volume applied to subsequent frames.
func (c *voiceConn) SetVolume(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = percent
}

// Reconnect rejoins the voice channel after a transport failure.
func (c *voiceConn) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	vc, err := c.session.ChannelVoiceJoin(c.guildID, c.channelID, false, true)
	if err != nil {
		return errors.Wrapf(err, "rejoin voice channel %s", c.channelID)
	}

	c.mu.Lock()
	c.vc = vc
	c.mu.Unlock()
	return nil
}

// Disconnect leaves the voice channel.
func (c *voiceConn) Disconnect() error {
	c.Stop()

	c.mu.Lock()
	vc := c.vc
	c.mu.Unlock()

	if vc == nil {
		return nil
	}
	return vc.Disconnect()
}

// Events returns the stream-end notification channel.
func (c *voiceConn) Events() <-chan playback.TrackEvent {
	return c.events
}

func pauseTick() <-chan time.Time {
	return time.After(20 * time.Millisecond)
}

// scaleSample applies a percentage volume with clipping.
func scaleSample(s int16, volume int) int16 {
	if volume == 100 {
		return s
	}
	scaled := int32(s) * int32(volume) / 100
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
