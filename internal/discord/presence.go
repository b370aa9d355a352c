package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"
)

// onVoiceStateUpdate watches the bot's voice channel and schedules a
// disconnect once it has been alone for the grace period. Someone
// rejoining within the grace period cancels the timer.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if b.aloneGrace <= 0 || vs.GuildID == "" {
		return
	}

	channelID := b.botVoiceChannel(vs.GuildID)
	if channelID == "" {
		b.cancelAloneTimer(vs.GuildID)
		return
	}

	if b.listenersInChannel(vs.GuildID, channelID) > 0 {
		b.cancelAloneTimer(vs.GuildID)
		return
	}

	b.startAloneTimer(vs.GuildID)
}

func (b *Bot) botVoiceChannel(guildID string) string {
	self := b.session.State.User
	if self == nil {
		return ""
	}
	vs, err := b.session.State.VoiceState(guildID, self.ID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

// listenersInChannel counts users other than the bot itself in the
// given voice channel.
func (b *Bot) listenersInChannel(guildID, channelID string) int {
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return 0
	}
	selfID := ""
	if b.session.State.User != nil {
		selfID = b.session.State.User.ID
	}

	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID && vs.UserID != selfID {
			count++
		}
	}
	return count
}

func (b *Bot) startAloneTimer(guildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, running := b.aloneTimers[guildID]; running {
		return
	}

	zlog.Debug().Str("guild", guildID).Dur("grace", b.aloneGrace).Msg("alone in voice channel, disconnect scheduled")
	b.aloneTimers[guildID] = time.AfterFunc(b.aloneGrace, func() {
		b.mu.Lock()
		delete(b.aloneTimers, guildID)
		b.mu.Unlock()

		// Re-check before acting; listeners may have come back
		// without a state update reaching us in order.
		current := b.botVoiceChannel(guildID)
		if current == "" || b.listenersInChannel(guildID, current) > 0 {
			return
		}

		zlog.Info().Str("guild", guildID).Msg("alone past grace period, disconnecting")
		if err := b.ctrl.Disconnect(guildID); err != nil {
			zlog.Warn().Str("guild", guildID).Err(err).Msg("alone disconnect failed")
		}
	})
}

func (b *Bot) cancelAloneTimer(guildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if timer, ok := b.aloneTimers[guildID]; ok {
		timer.Stop()
		delete(b.aloneTimers, guildID)
	}
}
