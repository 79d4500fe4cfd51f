// Package nowplaying projects playback state onto a now-playing surface and routes the surface's
// transport commands back to the player.
package nowplaying

import (
	"context"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/platform"
	"github.com/desertthunder/pulse/internal/player"
	"github.com/desertthunder/pulse/internal/shared"
)

// DefaultAlbum labels tracks without a folder.
const DefaultAlbum = "Library"

var artworkSizes = []string{"96x96", "128x128", "192x192", "256x256", "384x384", "512x512"}

// MetadataFor builds the surface metadata of track.
func MetadataFor(track models.Track, artist string) platform.Metadata {
	artwork := make([]platform.Artwork, 0, len(artworkSizes))
	if track.ImageURL != "" {
		for _, size := range artworkSizes {
			artwork = append(artwork, platform.Artwork{Src: track.ImageURL, Sizes: size, Type: "image/jpeg"})
		}
	}
	return platform.Metadata{
		Title:   track.Name,
		Artist:  artist,
		Album:   models.FolderOf(track, DefaultAlbum),
		Artwork: artwork,
	}
}

func sameMetadata(a, b platform.Metadata) bool {
	return a.Title == b.Title && a.Artist == b.Artist && a.Album == b.Album && slices.Equal(a.Artwork, b.Artwork)
}

// Bridge republishes controller changes to a surface.
//
// Metadata and playback state are only sent when they differ from what was last published, and
// transport handlers are replaced rather than stacked.
type Bridge struct {
	ctrl    *player.Controller
	surface platform.NowPlayingSurface
	artist  string
	logger  *log.Logger

	mu        sync.Mutex
	lastSeq   uint64
	metadata  *platform.Metadata
	playing   *bool
	handlerID string
	remove    func()
}

// New creates a Bridge. A nil surface makes every method a no-op.
func New(ctrl *player.Controller, surface platform.NowPlayingSurface, artist string, logger *log.Logger) *Bridge {
	return &Bridge{
		ctrl:    ctrl,
		surface: surface,
		artist:  artist,
		logger:  shared.WithLogger(logger, "component", "nowplaying"),
	}
}

// Start publishes the current state and follows later changes.
func (b *Bridge) Start() {
	if b.surface == nil {
		return
	}

	b.mu.Lock()
	if b.remove != nil {
		b.mu.Unlock()
		return
	}
	b.remove = b.ctrl.OnChange(b.update)
	b.mu.Unlock()

	b.update(b.ctrl.State())
}

// Stop stops following the controller and removes the transport handlers.
func (b *Bridge) Stop() {
	if b.surface == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remove == nil {
		return
	}
	b.remove()
	b.remove = nil

	for _, action := range platform.Actions {
		b.surface.SetActionHandler(action, nil)
	}
	b.handlerID = ""
}

func (b *Bridge) update(s player.State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remove == nil || s.Seq < b.lastSeq {
		return
	}
	b.lastSeq = s.Seq

	if s.Current == nil {
		return
	}

	meta := MetadataFor(*s.Current, b.artist)
	if b.metadata == nil || !sameMetadata(*b.metadata, meta) {
		if err := b.surface.SetMetadata(meta); err != nil {
			b.logger.Warn("failed to publish metadata", "track", meta.Title, "error", err)
		} else {
			b.metadata = &meta
		}
	}

	if b.handlerID != s.Current.ID {
		b.registerHandlers()
		b.handlerID = s.Current.ID
	}

	if b.playing == nil || *b.playing != s.Playing {
		if err := b.surface.SetPlaybackState(s.Playing); err != nil {
			b.logger.Warn("failed to publish playback state", "error", err)
		} else {
			playing := s.Playing
			b.playing = &playing
		}
	}
}

func (b *Bridge) registerHandlers() {
	commands := map[platform.Action]func(context.Context) error{
		platform.ActionPlay:     b.ctrl.Resume,
		platform.ActionPause:    b.ctrl.Pause,
		platform.ActionPrevious: b.ctrl.Previous,
		platform.ActionNext:     b.ctrl.Next,
	}

	for _, action := range platform.Actions {
		run := commands[action]
		b.surface.SetActionHandler(action, func() {
			if err := run(context.Background()); err != nil {
				b.logger.Warn("remote command failed", "action", action, "error", err)
			}
		})
	}
}
