// Package web serves a small read-only status API over HTTP.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/gema-bot/gema/internal/app/session/registry"
	"github.com/gema-bot/gema/internal/domain/track"
)

// Server exposes session status for monitoring.
type Server struct {
	sessions *registry.Registry
	started  time.Time
	http     *http.Server
}

// New creates the status server bound to addr.
func New(addr string, sessions *registry.Registry) *Server {
	s := &Server{
		sessions: sessions,
		started:  time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleSessions).Methods(http.MethodGet)

	// h2c so HTTP/2 works without TLS behind a proxy.
	s.http = &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(r, &http2.Server{}),
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	zlog.Info().Str("addr", s.http.Addr).Msg("status server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: humanize.Time(s.started),
	})
}

type trackView struct {
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Duration string `json:"duration"`
	URL      string `json:"url,omitempty"`
}

type sessionView struct {
	GuildID      string     `json:"guild_id"`
	State        string     `json:"state"`
	Current      *trackView `json:"current,omitempty"`
	QueueLength  int        `json:"queue_length"`
	Volume       int        `json:"volume"`
	Autoplay     bool       `json:"autoplay"`
	LastActivity string     `json:"last_activity"`
}

type sessionsResponse struct {
	Count    int           `json:"count"`
	Sessions []sessionView `json:"sessions"`
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	all := s.sessions.All()

	views := make([]sessionView, 0, len(all))
	for _, sess := range all {
		v := sessionView{
			GuildID:      sess.GuildID(),
			State:        sess.State().String(),
			QueueLength:  sess.QueueLen(),
			Volume:       sess.Volume(),
			Autoplay:     sess.AutoplayEnabled(),
			LastActivity: humanize.Time(sess.LastActivity()),
		}
		if cur, ok := sess.Current(); ok {
			v.Current = newTrackView(cur)
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, sessionsResponse{
		Count:    len(views),
		Sessions: views,
	})
}

func newTrackView(t track.Track) *trackView {
	return &trackView{
		Title:    t.Title,
		Artist:   t.Artist,
		Duration: track.FormatDuration(t.Duration),
		URL:      t.URL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Err(err).Msg("status response encode failed")
	}
}
