// Package playback orchestrates voice sessions against the transport,
// the source resolver and the autoplay recommender.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gema-bot/gema/internal/app/queue"
	"github.com/gema-bot/gema/internal/app/session"
	"github.com/gema-bot/gema/internal/app/session/registry"
	"github.com/gema-bot/gema/internal/domain/track"
)

// Errors
var (
	ErrConnectionFailed = errors.New("voice connection failed")
	ErrResolutionFailed = errors.New("track resolution failed")
	ErrStreamFailed     = errors.New("stream playback failed")
	ErrCancelled        = errors.New("operation cancelled")
	ErrNoSession        = errors.New("no active session for guild")
)

// Config holds controller configuration.
type Config struct {
	Policy              Policy        // Retry policy for resolution and reconnects
	MaxAutoplayDuration time.Duration // Autoplay candidates longer than this are rejected
	AutoplayCooldown    time.Duration // Minimum gap between autoplay lookups per guild
	AutoplayMaxFailures int           // Consecutive failed lookups before autoplay stands down
	HistorySize         int           // Recently-played retention per session
	DefaultVolume       int           // Initial volume for new sessions, 0 keeps the session default
}

// PlayResult describes the outcome of a play request.
type PlayResult struct {
	Track    track.Track
	Queued   bool // True when appended behind a current track
	Position int  // Queue position when Queued
}

// guildState is the controller's per-guild transport bookkeeping. All
// session state lives in the session itself; this only tracks the live
// connection, the event loop, and autoplay pacing.
type guildState struct {
	opMu sync.Mutex // serializes command application for the guild

	conn       Connection
	loopCancel context.CancelFunc

	autoplayLimiter  *rate.Limiter
	autoplayFailures int
}

// Controller applies user commands to sessions. It owns no persistent
// state of its own; every side effect is observable through session
// state transitions and queue mutations.
type Controller struct {
	transport   Transport
	resolver    Resolver
	recommender Recommender
	sessions    *registry.Registry
	cfg         Config

	mu     sync.Mutex
	guilds map[string]*guildState
}

// NewController creates a controller over the given collaborators.
// recommender may be nil when autoplay has no configured providers.
func NewController(transport Transport, resolver Resolver, recommender Recommender, sessions *registry.Registry, cfg Config) *Controller {
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.AutoplayMaxFailures <= 0 {
		cfg.AutoplayMaxFailures = 3
	}
	return &Controller{
		transport:   transport,
		resolver:    resolver,
		recommender: recommender,
		sessions:    sessions,
		cfg:         cfg,
		guilds:      make(map[string]*guildState),
	}
}

func (c *Controller) guild(guildID string) *guildState {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.guilds[guildID]
	if !ok {
		g = &guildState{}
		if c.cfg.AutoplayCooldown > 0 {
			g.autoplayLimiter = rate.NewLimiter(rate.Every(c.cfg.AutoplayCooldown), 1)
		}
		c.guilds[guildID] = g
	}
	return g
}

func (c *Controller) newSession(guildID string) *session.Session {
	s := session.New(guildID)
	if c.cfg.HistorySize > 0 {
		s.SetHistoryCap(c.cfg.HistorySize)
	}
	if c.cfg.DefaultVolume > 0 {
		if _, err := s.SetVolume(c.cfg.DefaultVolume); err != nil {
			zlog.Warn().Str("guild", guildID).Int("volume", c.cfg.DefaultVolume).Err(err).Msg("default volume not applied")
		}
	}
	return s
}

// Play resolves queryOrURL and either starts it immediately (no
// current track, empty queue) or appends it to the queue. The voice
// connection is established first when absent. Resolution runs outside
// the per-guild critical section so a concurrent Stop or Disconnect
// takes effect; a stale resolution result is discarded.
func (c *Controller) Play(ctx context.Context, guildID, channelID, queryOrURL string) (PlayResult, error) {
	sess, _ := c.sessions.GetOrCreate(guildID, func() *session.Session { return c.newSession(guildID) })
	g := c.guild(guildID)

	if err := c.ensureConnected(ctx, g, sess, guildID, channelID); err != nil {
		return PlayResult{}, err
	}

	epoch := sess.Epoch()

	var t track.Track
	err := c.cfg.Policy.Do(ctx, func() error {
		var rerr error
		t, rerr = c.resolver.Resolve(ctx, queryOrURL)
		return rerr
	})
	if err != nil {
		zlog.Warn().Str("guild", guildID).Str("query", queryOrURL).Err(err).Msg("resolution exhausted retries")
		return PlayResult{}, errors.Wrapf(ErrResolutionFailed, "%q: %v", queryOrURL, err)
	}

	g.opMu.Lock()
	defer g.opMu.Unlock()

	if sess.Epoch() != epoch {
		// A stop or disconnect won the race; the resolved track must
		// not start.
		zlog.Debug().Str("guild", guildID).Str("track", t.Title).Msg("discarding stale resolution")
		return PlayResult{}, errors.Wrapf(ErrCancelled, "session stopped while resolving %q", queryOrURL)
	}

	if _, busy := sess.Current(); busy || sess.QueueLen() > 0 {
		pos := sess.EnqueueTrack(t)
		zlog.Info().Str("guild", guildID).Str("track", t.Title).Int("position", pos).Msg("queued")
		return PlayResult{Track: t, Queued: true, Position: pos}, nil
	}

	if err := c.startTrackLocked(ctx, g, sess, t); err != nil {
		return PlayResult{}, err
	}
	return PlayResult{Track: t}, nil
}

// ensureConnected establishes the voice connection and event loop for
// the guild if they do not exist yet.
func (c *Controller) ensureConnected(ctx context.Context, g *guildState, sess *session.Session, guildID, channelID string) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	if g.conn != nil {
		return nil
	}

	if err := sess.BeginConnect(); err != nil {
		return err
	}

	var conn Connection
	err := c.cfg.Policy.Do(ctx, func() error {
		var cerr error
		conn, cerr = c.transport.Connect(ctx, guildID, channelID)
		return cerr
	})
	if err != nil {
		sess.ConnectFailed()
		zlog.Warn().Str("guild", guildID).Str("channel", channelID).Err(err).Msg("voice connect failed")
		return errors.Wrapf(ErrConnectionFailed, "channel %s: %v", channelID, err)
	}

	g.conn = conn
	sess.Ready()

	loopCtx, cancel := context.WithCancel(context.Background())
	g.loopCancel = cancel
	go c.consumeEvents(loopCtx, guildID, sess, conn)

	zlog.Info().Str("guild", guildID).Str("channel", channelID).Str("session", sess.InstanceID()).Msg("voice connected")
	return nil
}

// startTrackLocked starts t on the guild's connection. A start failure
// gets one reconnect attempt before surfacing ErrStreamFailed.
// Must be called with g.opMu held.
func (c *Controller) startTrackLocked(ctx context.Context, g *guildState, sess *session.Session, t track.Track) error {
	if g.conn == nil {
		return errors.Wrap(ErrNoSession, "no voice connection")
	}

	err := g.conn.Start(ctx, t, sess.Volume())
	if err != nil {
		zlog.Warn().Str("guild", sess.GuildID()).Str("track", t.Title).Err(err).Msg("stream start failed, reconnecting once")
		if rerr := g.conn.Reconnect(ctx); rerr == nil {
			err = g.conn.Start(ctx, t, sess.Volume())
		}
	}
	if err != nil {
		return errors.Wrapf(ErrStreamFailed, "%q: %v", t.Title, err)
	}

	if err := sess.SetPlaying(t); err != nil {
		g.conn.Stop()
		return err
	}
	zlog.Info().Str("guild", sess.GuildID()).Str("track", t.Title).Dur("duration", t.Duration).Msg("playing")
	return nil
}

// consumeEvents drives queue advancement from the connection's
// stream-end notifications, preserving per-session ordering.
func (c *Controller) consumeEvents(ctx context.Context, guildID string, sess *session.Session, conn Connection) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case TrackEnded:
				if err := c.Advance(context.Background(), guildID); err != nil {
					zlog.Warn().Str("guild", guildID).Err(err).Msg("advance after track end failed")
				}
			case TrackFailed:
				zlog.Warn().Str("guild", guildID).Err(ev.Err).Msg("mid-stream failure")
				c.recoverStream(context.Background(), guildID, sess)
			}
		}
	}
}

// recoverStream handles a mid-stream transport failure: one reconnect
// and restart attempt for the current track, then advance past it.
func (c *Controller) recoverStream(ctx context.Context, guildID string, sess *session.Session) {
	g := c.guild(guildID)

	g.opMu.Lock()
	cur, playing := sess.Current()
	restarted := false
	if playing && g.conn != nil {
		if err := g.conn.Reconnect(ctx); err == nil {
			if err := g.conn.Start(ctx, cur, sess.Volume()); err == nil {
				restarted = true
			}
		}
	}
	g.opMu.Unlock()

	if restarted {
		zlog.Info().Str("guild", guildID).Str("track", cur.Title).Msg("stream recovered after reconnect")
		return
	}
	if err := c.Advance(ctx, guildID); err != nil {
		zlog.Warn().Str("guild", guildID).Err(err).Msg("advance after stream failure failed")
	}
}

// Advance moves the session to its next track: queue front first, then
// an autoplay candidate when the queue is empty and autoplay is on,
// otherwise Idle. Invoked on natural end-of-track, after a fatal
// stream error, and by Skip.
func (c *Controller) Advance(ctx context.Context, guildID string) error {
	sess, ok := c.sessions.Get(guildID)
	if !ok {
		return errors.Wrapf(ErrNoSession, "guild %s", guildID)
	}
	g := c.guild(guildID)

	g.opMu.Lock()
	defer g.opMu.Unlock()
	return c.advanceLocked(ctx, g, sess)
}

func (c *Controller) advanceLocked(ctx context.Context, g *guildState, sess *session.Session) error {
	if cur, ok := sess.Current(); ok {
		sess.PushHistory(cur)
	}

	for {
		next, err := sess.DequeueTrack()
		if errors.Is(err, queue.ErrEmptyQueue) {
			break
		}
		if err != nil {
			return err
		}
		if startErr := c.startTrackLocked(ctx, g, sess, next); startErr != nil {
			// Non-fatal: skip the unplayable track and keep draining.
			zlog.Warn().Str("guild", sess.GuildID()).Str("track", next.Title).Err(startErr).Msg("skipping unplayable track")
			continue
		}
		return nil
	}

	if sess.AutoplayEnabled() && c.recommender != nil && c.autoplayAllowed(g) {
		if c.tryAutoplayLocked(ctx, g, sess) {
			return nil
		}
	}

	sess.SetIdle()
	return nil
}

func (c *Controller) autoplayAllowed(g *guildState) bool {
	if g.autoplayFailures >= c.cfg.AutoplayMaxFailures {
		return false
	}
	return g.autoplayLimiter == nil || g.autoplayLimiter.Allow()
}

// tryAutoplayLocked asks the recommender for one candidate and starts
// it. Returns true when playback continued.
func (c *Controller) tryAutoplayLocked(ctx context.Context, g *guildState, sess *session.Session) bool {
	cand, err := c.recommender.NextCandidate(ctx, sess.History(), c.cfg.MaxAutoplayDuration)
	if err != nil {
		g.autoplayFailures++
		zlog.Warn().Str("guild", sess.GuildID()).Int("failures", g.autoplayFailures).Err(err).Msg("autoplay lookup failed")
		return false
	}
	if cand == nil {
		g.autoplayFailures++
		zlog.Debug().Str("guild", sess.GuildID()).Msg("autoplay found no candidate")
		return false
	}

	if err := c.startTrackLocked(ctx, g, sess, *cand); err != nil {
		g.autoplayFailures++
		zlog.Warn().Str("guild", sess.GuildID()).Str("track", cand.Title).Err(err).Msg("autoplay candidate unplayable")
		return false
	}

	g.autoplayFailures = 0
	zlog.Info().Str("guild", sess.GuildID()).Str("track", cand.Title).Msg("autoplay continuing")
	return true
}

// Skip forces an immediate advance regardless of natural completion.
func (c *Controller) Skip(ctx context.Context, guildID string) (track.Track, error) {
	sess, ok := c.sessions.Get(guildID)
	if !ok {
		return track.Track{}, errors.Wrapf(ErrNoSession, "guild %s", guildID)
	}
	g := c.guild(guildID)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	skipped, playing := sess.Current()
	if !playing {
		return track.Track{}, errors.Wrap(session.ErrInvalidState, "nothing playing")
	}

	if g.conn != nil {
		g.conn.Stop()
	}
	if err := c.advanceLocked(ctx, g, sess); err != nil {
		return skipped, err
	}
	return skipped, nil
}

// Pause pauses the current stream.
func (c *Controller) Pause(guildID string) error {
	sess, ok := c.sessions.Get(guildID)
	if !ok {
		return errors.Wrapf(ErrNoSession, "guild %s", guildID)
	}
	g := c.guild(guildID)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	if err := sess.Pause(); err != nil {
		return err
	}
	if g.conn != nil {
		g.conn.Pause()
	}
	return nil
}

// Resume resumes a paused stream.
func (c *Controller) Resume(guildID string) error {
	sess, ok := c.sessions.Get(guildID)
	if !ok {
		return errors.Wrapf(ErrNoSession, "guild %s", guildID)
	}
	g := c.guild(guildID)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	if err := sess.Resume(); err != nil {
		return err
	}
	if g.conn != nil {
		g.conn.Resume()
	}
	return nil
}

// Stop halts playback and clears the current track; the session stays
// connected and Idle. The queue is cleared only when clearQueue is
// set. Any in-flight resolution for this session is invalidated.
func (c *Controller) Stop(guildID string, clearQueue bool) (int, error) {
	sess, ok := c.sessions.Get(guildID)
	if !ok {
		return 0, errors.Wrapf(ErrNoSession, "guild %s", guildID)
	}
	g := c.guild(guildID)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	sess.BumpEpoch()
	if g.conn != nil {
		g.conn.Stop()
	}

	cleared := 0
	if clearQueue {
		cleared = sess.ClearQueue()
	}
	sess.SetIdle()
	zlog.Info().Str("guild", guildID).Int("cleared", cleared).Msg("playback stopped")
	return cleared, nil
}

// Disconnect tears the session down: cancels in-flight work, releases
// the transport, and removes the session from the registry. The queue
// is discarded with it.
func (c *Controller) Disconnect(guildID string) error {
	sess, ok := c.sessions.Get(guildID)
	if !ok {
		return errors.Wrapf(ErrNoSession, "guild %s", guildID)
	}
	g := c.guild(guildID)

	g.opMu.Lock()
	if err := sess.BeginDisconnect(); err != nil {
		g.opMu.Unlock()
		return err
	}
	if g.loopCancel != nil {
		g.loopCancel()
		g.loopCancel = nil
	}
	if g.conn != nil {
		g.conn.Stop()
		if err := g.conn.Disconnect(); err != nil {
			zlog.Warn().Str("guild", guildID).Err(err).Msg("transport disconnect error")
		}
		g.conn = nil
	}
	g.opMu.Unlock()

	c.sessions.Remove(guildID)
	c.mu.Lock()
	delete(c.guilds, guildID)
	c.mu.Unlock()

	zlog.Info().Str("guild", guildID).Str("session", sess.InstanceID()).Msg("session disconnected")
	return nil
}

// SetVolume clamps and applies the volume for the guild, creating the
// session if needed so the value survives until connection.
func (c *Controller) SetVolume(guildID string, percent int) (int, error) {
	sess, _ := c.sessions.GetOrCreate(guildID, func() *session.Session { return c.newSession(guildID) })
	g := c.guild(guildID)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	clamped, err := sess.SetVolume(percent)
	if err != nil {
		return clamped, err
	}
	if g.conn != nil {
		g.conn.SetVolume(clamped)
	}
	return clamped, nil
}

// SetAutoplay toggles autoplay for the guild. Toggling resets the
// failure fuse so a re-enable gets a fresh start.
func (c *Controller) SetAutoplay(guildID string, on bool) error {
	sess, _ := c.sessions.GetOrCreate(guildID, func() *session.Session { return c.newSession(guildID) })
	g := c.guild(guildID)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	if err := sess.SetAutoplay(on); err != nil {
		return err
	}
	g.autoplayFailures = 0
	return nil
}

// SweepInactive removes idle sessions past the timeout and releases
// their transport resources.
func (c *Controller) SweepInactive(now time.Time, timeout time.Duration) int {
	removed := c.sessions.SweepInactive(now, timeout)
	for _, sess := range removed {
		guildID := sess.GuildID()
		g := c.guild(guildID)

		g.opMu.Lock()
		if g.loopCancel != nil {
			g.loopCancel()
			g.loopCancel = nil
		}
		if g.conn != nil {
			g.conn.Stop()
			if err := g.conn.Disconnect(); err != nil {
				zlog.Warn().Str("guild", guildID).Err(err).Msg("transport disconnect error during sweep")
			}
			g.conn = nil
		}
		g.opMu.Unlock()

		c.mu.Lock()
		delete(c.guilds, guildID)
		c.mu.Unlock()

		zlog.Info().Str("guild", guildID).Str("session", sess.InstanceID()).Msg("inactive session removed")
	}
	return len(removed)
}

// RunSweeper periodically sweeps inactive sessions until ctx is done.
func (c *Controller) RunSweeper(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.SweepInactive(now, timeout)
		}
	}
}
