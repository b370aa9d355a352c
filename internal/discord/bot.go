// Package discord wires the playback controller to the Discord
// gateway: command handling, voice transport and presence tracking.
package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/gema-bot/gema/internal/app/playback"
	"github.com/gema-bot/gema/internal/app/session"
	"github.com/gema-bot/gema/internal/app/session/registry"
	"github.com/gema-bot/gema/internal/domain/track"
)

const embedColor = 0x1db954

// NewSession opens a Discord gateway session with the intents the bot
// needs.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "create discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
	return s, nil
}

// Bot routes prefixed text commands to the playback controller.
type Bot struct {
	session    *discordgo.Session
	ctrl       *playback.Controller
	sessions   *registry.Registry
	prefix     string
	aloneGrace time.Duration

	mu          sync.Mutex
	aloneTimers map[string]*time.Timer
}

// NewBot creates the bot and registers its gateway handlers.
func NewBot(s *discordgo.Session, ctrl *playback.Controller, sessions *registry.Registry, prefix string, aloneGrace time.Duration) *Bot {
	b := &Bot{
		session:     s,
		ctrl:        ctrl,
		sessions:    sessions,
		prefix:      prefix,
		aloneGrace:  aloneGrace,
		aloneTimers: make(map[string]*time.Timer),
	}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onMessageCreate)
	s.AddHandler(b.onVoiceStateUpdate)
	return b
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	zlog.Info().Str("username", r.User.Username).Int("guilds", len(r.Guilds)).Msg("gateway ready")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	name, args, ok := parseCommand(m.Content, b.prefix)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.dispatch(ctx, m, name, args); err != nil {
		zlog.Warn().Str("guild", m.GuildID).Str("command", name).Err(err).Msg("command failed")
		b.replyError(m.ChannelID, err)
	}
}

func (b *Bot) dispatch(ctx context.Context, m *discordgo.MessageCreate, name, args string) error {
	switch canonicalCommand(name) {
	case "play":
		return b.cmdPlay(ctx, m, args)
	case "skip":
		return b.cmdSkip(ctx, m)
	case "stop":
		return b.cmdStop(m)
	case "pause":
		return b.cmdPause(m)
	case "resume":
		return b.cmdResume(m)
	case "queue":
		return b.cmdQueue(m)
	case "nowplaying":
		return b.cmdNowPlaying(m)
	case "clear":
		return b.cmdClear(m)
	case "autoplay":
		return b.cmdAutoplay(m, args)
	case "volume":
		return b.cmdVolume(m, args)
	case "disconnect":
		return b.cmdDisconnect(m)
	case "help":
		return b.cmdHelp(m)
	default:
		// Unknown commands are ignored silently.
		return nil
	}
}

// canonicalCommand folds command aliases onto their full names.
func canonicalCommand(name string) string {
	switch name {
	case "p":
		return "play"
	case "s":
		return "skip"
	case "q":
		return "queue"
	case "np":
		return "nowplaying"
	case "ap":
		return "autoplay"
	case "vol":
		return "volume"
	case "dc", "leave":
		return "disconnect"
	default:
		return name
	}
}

func (b *Bot) cmdPlay(ctx context.Context, m *discordgo.MessageCreate, args string) error {
	if args == "" {
		b.replyText(m.ChannelID, "Usage: "+b.prefix+"play <song name or link>")
		return nil
	}

	channelID, err := b.userVoiceChannel(m.GuildID, m.Author.ID)
	if err != nil {
		b.replyText(m.ChannelID, "Join a voice channel first.")
		return nil
	}

	res, err := b.ctrl.Play(ctx, m.GuildID, channelID, args)
	if err != nil {
		switch {
		case errors.Is(err, playback.ErrCancelled):
			return nil
		case errors.Is(err, playback.ErrResolutionFailed):
			b.replyText(m.ChannelID, "Couldn't find anything for that, try a different search.")
			return nil
		case errors.Is(err, playback.ErrConnectionFailed):
			b.replyText(m.ChannelID, "Couldn't join the voice channel.")
			return nil
		}
		return err
	}

	if res.Queued {
		b.replyEmbed(m.ChannelID, &discordgo.MessageEmbed{
			Title:       "Added to queue",
			Description: fmt.Sprintf("**%s**\nPosition: %d", trackLabel(res.Track), res.Position),
			Thumbnail:   thumbnail(res.Track),
			Color:       embedColor,
		})
		return nil
	}

	b.replyEmbed(m.ChannelID, nowPlayingEmbed(res.Track))
	return nil
}

func (b *Bot) cmdSkip(ctx context.Context, m *discordgo.MessageCreate) error {
	skipped, err := b.ctrl.Skip(ctx, m.GuildID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidState) || errors.Is(err, playback.ErrNoSession) {
			b.replyText(m.ChannelID, "Nothing is playing.")
			return nil
		}
		return err
	}
	b.replyText(m.ChannelID, "Skipped **"+trackLabel(skipped)+"**")
	return nil
}

func (b *Bot) cmdStop(m *discordgo.MessageCreate) error {
	cleared, err := b.ctrl.Stop(m.GuildID, true)
	if err != nil {
		if errors.Is(err, playback.ErrNoSession) {
			b.replyText(m.ChannelID, "Nothing is playing.")
			return nil
		}
		return err
	}
	b.replyText(m.ChannelID, fmt.Sprintf("Stopped playback and cleared %d queued tracks.", cleared))
	return nil
}

func (b *Bot) cmdPause(m *discordgo.MessageCreate) error {
	if err := b.ctrl.Pause(m.GuildID); err != nil {
		if errors.Is(err, session.ErrInvalidState) || errors.Is(err, playback.ErrNoSession) {
			b.replyText(m.ChannelID, "Nothing to pause.")
			return nil
		}
		return err
	}
	b.replyText(m.ChannelID, "Paused.")
	return nil
}

func (b *Bot) cmdResume(m *discordgo.MessageCreate) error {
	if err := b.ctrl.Resume(m.GuildID); err != nil {
		if errors.Is(err, session.ErrInvalidState) || errors.Is(err, playback.ErrNoSession) {
			b.replyText(m.ChannelID, "Nothing is paused.")
			return nil
		}
		return err
	}
	b.replyText(m.ChannelID, "Resumed.")
	return nil
}

func (b *Bot) cmdQueue(m *discordgo.MessageCreate) error {
	sess, ok := b.sessions.Get(m.GuildID)
	if !ok {
		b.replyText(m.ChannelID, "The queue is empty.")
		return nil
	}

	b.replyEmbed(m.ChannelID, queueEmbed(sess))
	return nil
}

func (b *Bot) cmdNowPlaying(m *discordgo.MessageCreate) error {
	sess, ok := b.sessions.Get(m.GuildID)
	if !ok {
		b.replyText(m.ChannelID, "Nothing is playing.")
		return nil
	}
	cur, playing := sess.Current()
	if !playing {
		b.replyText(m.ChannelID, "Nothing is playing.")
		return nil
	}
	b.replyEmbed(m.ChannelID, nowPlayingEmbed(cur))
	return nil
}

func (b *Bot) cmdClear(m *discordgo.MessageCreate) error {
	sess, ok := b.sessions.Get(m.GuildID)
	if !ok {
		b.replyText(m.ChannelID, "The queue is already empty.")
		return nil
	}
	cleared := sess.ClearQueue()
	b.replyText(m.ChannelID, fmt.Sprintf("Removed %d tracks from the queue.", cleared))
	return nil
}

func (b *Bot) cmdAutoplay(m *discordgo.MessageCreate, args string) error {
	var on bool
	switch strings.ToLower(args) {
	case "on", "enable", "true":
		on = true
	case "off", "disable", "false":
		on = false
	case "":
		// Toggle relative to current setting.
		if sess, ok := b.sessions.Get(m.GuildID); ok {
			on = !sess.AutoplayEnabled()
		} else {
			on = true
		}
	default:
		b.replyText(m.ChannelID, "Usage: "+b.prefix+"autoplay [on|off]")
		return nil
	}

	if err := b.ctrl.SetAutoplay(m.GuildID, on); err != nil {
		return err
	}
	if on {
		b.replyText(m.ChannelID, "Autoplay is on. Playback continues when the queue runs out.")
	} else {
		b.replyText(m.ChannelID, "Autoplay is off.")
	}
	return nil
}

func (b *Bot) cmdVolume(m *discordgo.MessageCreate, args string) error {
	if args == "" {
		if sess, ok := b.sessions.Get(m.GuildID); ok {
			b.replyText(m.ChannelID, fmt.Sprintf("Volume: %d%%", sess.Volume()))
		} else {
			b.replyText(m.ChannelID, fmt.Sprintf("Volume: %d%%", session.DefaultVolume))
		}
		return nil
	}

	v, err := strconv.Atoi(args)
	if err != nil {
		b.replyText(m.ChannelID, fmt.Sprintf("Usage: %svolume <0-%d>", b.prefix, session.MaxVolume))
		return nil
	}

	applied, err := b.ctrl.SetVolume(m.GuildID, v)
	if err != nil {
		return err
	}
	b.replyText(m.ChannelID, fmt.Sprintf("Volume set to %d%% (%s)", applied, volumeLabel(applied)))
	return nil
}

// volumeLabel buckets a volume percentage into its status wording.
func volumeLabel(v int) string {
	switch {
	case v == 0:
		return "Muted"
	case v <= 50:
		return "Low"
	case v <= 100:
		return "Normal"
	default:
		return "High"
	}
}

func (b *Bot) cmdDisconnect(m *discordgo.MessageCreate) error {
	if err := b.ctrl.Disconnect(m.GuildID); err != nil {
		if errors.Is(err, playback.ErrNoSession) {
			b.replyText(m.ChannelID, "Not connected.")
			return nil
		}
		return err
	}
	b.replyText(m.ChannelID, "Disconnected. See you!")
	return nil
}

func (b *Bot) cmdHelp(m *discordgo.MessageCreate) error {
	p := b.prefix
	b.replyEmbed(m.ChannelID, &discordgo.MessageEmbed{
		Title: "Commands",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: p + "play <query or link>", Value: "Play a song or add it to the queue (`" + p + "p`)"},
			{Name: p + "skip", Value: "Skip the current track (`" + p + "s`)"},
			{Name: p + "pause / " + p + "resume", Value: "Pause or resume playback"},
			{Name: p + "stop", Value: "Stop playback and clear the queue"},
			{Name: p + "queue", Value: "Show the queue (`" + p + "q`)"},
			{Name: p + "nowplaying", Value: "Show the current track (`" + p + "np`)"},
			{Name: p + "clear", Value: "Clear the queue"},
			{Name: p + "autoplay [on|off]", Value: "Keep playing similar tracks when the queue is empty"},
			{Name: p + "volume <0-200>", Value: "Set the playback volume"},
			{Name: p + "disconnect", Value: "Leave the voice channel (`" + p + "dc`)"},
		},
	})
	return nil
}

// userVoiceChannel finds the voice channel the user currently sits in.
func (b *Bot) userVoiceChannel(guildID, userID string) (string, error) {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", errors.Wrap(playback.ErrNoSession, "user not in a voice channel")
	}
	return vs.ChannelID, nil
}

func (b *Bot) replyText(channelID, text string) {
	if _, err := b.session.ChannelMessageSend(channelID, text); err != nil {
		zlog.Warn().Str("channel", channelID).Err(err).Msg("reply failed")
	}
}

func (b *Bot) replyEmbed(channelID string, embed *discordgo.MessageEmbed) {
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		zlog.Warn().Str("channel", channelID).Err(err).Msg("embed reply failed")
	}
}

func (b *Bot) replyError(channelID string, err error) {
	b.replyText(channelID, "Something went wrong: "+rootMessage(err))
}

// parseCommand splits a prefixed message into a lowercased command
// name and its raw argument string.
func parseCommand(content, prefix string) (name, args string, ok bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if rest == "" {
		return "", "", false
	}

	parts := strings.SplitN(rest, " ", 2)
	name = strings.ToLower(parts[0])
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args, true
}

// rootMessage digs out the innermost error message for user display.
func rootMessage(err error) string {
	cause := errors.UnwrapAll(err)
	if cause != nil {
		return cause.Error()
	}
	return err.Error()
}

func trackLabel(t track.Track) string {
	if t.Artist != "" {
		return t.Artist + " - " + t.Title
	}
	return t.Title
}

func thumbnail(t track.Track) *discordgo.MessageEmbedThumbnail {
	if t.ThumbnailURL == "" {
		return nil
	}
	return &discordgo.MessageEmbedThumbnail{URL: t.ThumbnailURL}
}

func nowPlayingEmbed(t track.Track) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Now playing",
		Description: fmt.Sprintf("**%s**\nDuration: %s", trackLabel(t), track.FormatDuration(t.Duration)),
		URL:         t.URL,
		Thumbnail:   thumbnail(t),
		Color:       embedColor,
	}
}

func queueEmbed(sess *session.Session) *discordgo.MessageEmbed {
	var sb strings.Builder

	if cur, ok := sess.Current(); ok {
		fmt.Fprintf(&sb, "**Now:** %s (%s)\n\n", trackLabel(cur), track.FormatDuration(cur.Duration))
	}

	items := sess.QueueSnapshot()
	if len(items) == 0 {
		sb.WriteString("The queue is empty.")
	} else {
		shown := items
		const maxShown = 15
		if len(shown) > maxShown {
			shown = shown[:maxShown]
		}
		for i, t := range shown {
			fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, trackLabel(t), track.FormatDuration(t.Duration))
		}
		if len(items) > maxShown {
			fmt.Fprintf(&sb, "... and %d more\n", len(items)-maxShown)
		}

		var total time.Duration
		for _, t := range items {
			total += t.Duration
		}
		fmt.Fprintf(&sb, "\nTotal: %d tracks (%s)", len(items), track.FormatDuration(total))
	}

	return &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: sb.String(),
		Color:       embedColor,
	}
}
