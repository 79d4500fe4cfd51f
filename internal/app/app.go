// Package app wires the core components into one visitor or administrator session.
//
// Data flows store → mirror → player → now-playing bridge. The mirror's song list is the player's
// default library, and the hero track from settings is cued while nothing is loaded.
package app

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/pulse/internal/community"
	"github.com/desertthunder/pulse/internal/connectivity"
	"github.com/desertthunder/pulse/internal/counter"
	"github.com/desertthunder/pulse/internal/mirror"
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/nowplaying"
	"github.com/desertthunder/pulse/internal/platform"
	"github.com/desertthunder/pulse/internal/player"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

// Options holds what a [Session] is built from.
type Options struct {
	Config *shared.Config
	Store  store.Store
	Device player.Device
	// Marker remembers whether this session was counted. Nil starts a fresh session.
	Marker mirror.SessionMarker
	// IsAdmin reports whether actions run as the administrator.
	IsAdmin func(ctx context.Context) bool
	// Hosts are probed for optional platform capabilities.
	Hosts []any
}

// Session is one running site session.
type Session struct {
	Store        store.Store
	Mirror       *mirror.Mirror
	Counter      *counter.Service
	Player       *player.Controller
	Bridge       *nowplaying.Bridge
	Connectivity *connectivity.Monitor
	Community    *community.Service
	Capabilities platform.Capabilities

	volume float64
	logger *log.Logger

	mu      sync.Mutex
	stopCue func()
}

// observable is implemented by stores that report connection changes.
type observable interface {
	Observe(obs store.ConnectionObserver)
}

// NewSession builds the components of a session without starting them.
func NewSession(opts Options, logger *log.Logger) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = shared.DefaultConfig()
	}

	s := &Session{
		Store:        opts.Store,
		Capabilities: platform.Detect(opts.Hosts...),
		volume:       cfg.Player.Volume,
		logger:       shared.WithLogger(logger, "component", "session"),
	}

	s.Counter = counter.New(opts.Store, logger)
	s.Mirror = mirror.New(opts.Store, s.Counter, opts.Marker, cfg.Site.DefaultFolder, logger)
	s.Player = player.NewController(opts.Device, s.Mirror.Songs, logger)
	s.Bridge = nowplaying.New(s.Player, s.Capabilities.NowPlaying, cfg.Site.Artist, logger)
	s.Connectivity = connectivity.NewMonitor(cfg.Connectivity, logger)
	s.Community = community.New(opts.Store, s.Counter, community.Options{
		SiteName: cfg.Site.Artist,
		IsAdmin:  opts.IsAdmin,
	}, logger)

	if o, ok := opts.Store.(observable); ok {
		o.Observe(s.Connectivity)
	}
	return s
}

// Start activates the mirror and the now-playing bridge.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Player.SetVolume(ctx, s.volume); err != nil {
		s.logger.Warn("failed to apply initial volume", "error", err)
	}

	s.mu.Lock()
	if s.stopCue == nil {
		s.stopCue = s.Mirror.OnChange(func(collection string) {
			if collection == models.SettingsCollection || collection == models.SongsCollection {
				s.cueHeroTrack(ctx)
			}
		})
	}
	s.mu.Unlock()

	s.Bridge.Start()
	s.Mirror.Activate(ctx)
	s.logger.Info("session started")
	return nil
}

// Stop tears the session down. The player keeps its device.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopCue != nil {
		s.stopCue()
		s.stopCue = nil
	}
	s.mu.Unlock()

	s.Mirror.Deactivate()
	s.Bridge.Stop()
	s.Connectivity.Stop()
	s.logger.Info("session stopped")
}

// cueHeroTrack loads the hero track while the player is empty.
func (s *Session) cueHeroTrack(ctx context.Context) {
	hero, ok := s.Mirror.HeroTrack()
	if !ok {
		return
	}

	loaded, err := s.Player.Cue(ctx, hero)
	if err != nil {
		s.logger.Warn("failed to cue hero track", "track", hero.Name, "error", err)
		return
	}
	if loaded {
		s.logger.Debug("hero track cued", "track", hero.Name)
	}
}
