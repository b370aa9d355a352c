// Command gema runs the Discord music bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/gema-bot/gema/internal/app/autoplay"
	"github.com/gema-bot/gema/internal/app/playback"
	"github.com/gema-bot/gema/internal/app/resolver"
	"github.com/gema-bot/gema/internal/app/session/registry"
	"github.com/gema-bot/gema/internal/discord"
	"github.com/gema-bot/gema/internal/infra/config"
	"github.com/gema-bot/gema/internal/infra/logger"
	"github.com/gema-bot/gema/internal/infra/spotify"
	"github.com/gema-bot/gema/internal/infra/youtube"
	"github.com/gema-bot/gema/internal/web"
)

var (
	app        = kingpin.New("gema", "Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/gema.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-providers command
	listProvidersCmd = app.Command("list-providers", "List available autoplay providers and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listProvidersCmd.FullCommand() {
		printProviders()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// run executes the bot. A separate function ensures defer statements
// run even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Source clients. Spotify is optional.
	youtubeClient := youtube.New()

	var spotifyClient *spotify.Client
	if cfg.Spotify.Enabled() {
		var err error
		spotifyClient, err = spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		zlog.Info().Msg("Spotify metadata enabled")
	} else {
		zlog.Info().Msg("No Spotify credentials, resolving through YouTube only")
	}

	// Resolution and autoplay.
	var metadata resolver.MetadataSource
	if spotifyClient != nil {
		metadata = spotifyClient
	}
	trackResolver := resolver.New(metadata, youtubeClient)

	var recommender playback.Recommender
	if len(cfg.Autoplay.Providers) > 0 {
		var spotifyProvider autoplay.SpotifyClient
		if spotifyClient != nil {
			spotifyProvider = spotifyClient
		}
		chain, err := autoplay.NewChainFromConfig(cfg, spotifyProvider, youtubeClient, youtubeClient)
		if err != nil {
			return fmt.Errorf("failed to build autoplay chain: %w", err)
		}
		recommender = chain
	} else {
		zlog.Info().Msg("No autoplay providers configured")
	}

	// Discord gateway.
	dg, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}

	sessions := registry.New()
	transport := discord.NewVoiceTransport(dg, youtubeClient)

	ctrl := playback.NewController(transport, trackResolver, recommender, sessions, playback.Config{
		Policy: playback.Policy{
			MaxAttempts: cfg.Playback.ResolveMaxAttempts,
			BaseDelay:   time.Duration(cfg.Playback.ResolveBaseDelayMs) * time.Millisecond,
			Multiplier:  cfg.Playback.ResolveBackoff,
			Jitter:      0.25,
		},
		MaxAutoplayDuration: time.Duration(cfg.Autoplay.MaxTrackDurationSec) * time.Second,
		AutoplayCooldown:    time.Duration(cfg.Autoplay.CooldownSec) * time.Second,
		AutoplayMaxFailures: cfg.Autoplay.MaxFailures,
		HistorySize:         cfg.Autoplay.HistorySize,
		DefaultVolume:       cfg.Playback.DefaultVolume,
	})

	discord.NewBot(dg, ctrl, sessions, cfg.Discord.Prefix, cfg.Session.AloneGrace())

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord gateway: %w", err)
	}
	defer func() {
		if err := dg.Close(); err != nil {
			zlog.Error().Msgf("Failed to close Discord session: %v", err)
		}
	}()

	// Inactivity sweeper.
	go ctrl.RunSweeper(ctx, cfg.Session.SweepInterval(), cfg.Session.InactivityTimeout())

	// Optional status server.
	serverErrCh := make(chan error, 1)
	if cfg.Web.Enabled {
		statusServer := web.New(cfg.Web.Addr, sessions)
		go func() {
			if err := statusServer.ListenAndServe(); err != nil {
				serverErrCh <- err
			}
		}()
		defer func() {
			if err := statusServer.Shutdown(10 * time.Second); err != nil {
				zlog.Error().Msgf("Failed to shutdown status server: %v", err)
			}
		}()
	}

	zlog.Info().Str("prefix", cfg.Discord.Prefix).Msg("Bot is running, press Ctrl+C to exit")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("status server error: %w", err)
	}

	// Tear down every guild session so voice connections close cleanly.
	for _, sess := range sessions.All() {
		if err := ctrl.Disconnect(sess.GuildID()); err != nil {
			zlog.Warn().Msgf("Failed to disconnect guild %s: %v", sess.GuildID(), err)
		}
	}

	zlog.Info().Msg("Bot stopped")
	return nil
}

// printProviders prints available autoplay providers.
func printProviders() {
	fmt.Println("Available autoplay providers:")
	fmt.Printf("  %-10s - %s\n", "spotify", "Spotify recommendations seeded from recently played tracks (needs credentials)")
	fmt.Printf("  %-10s - %s\n", "youtube", "YouTube related-content search, no credentials required")
}
