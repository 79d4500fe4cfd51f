package player

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// Status is the controller's transport state.
type Status int

const (
	StatusEmpty Status = iota
	StatusPaused
	StatusPlaying
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusPaused:
		return "paused"
	case StatusPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// State is a copy of the playback state. Seq increases with every change.
type State struct {
	Seq      uint64
	Current  *models.Track
	Playlist []models.Track
	Playing  bool
	Volume   float64
	Progress float64
	Position float64
	Duration float64
}

// Status derives the transport state.
func (s State) Status() Status {
	switch {
	case s.Current == nil:
		return StatusEmpty
	case s.Playing:
		return StatusPlaying
	default:
		return StatusPaused
	}
}

// Library supplies the default collection Toggle plays from when nothing is loaded.
type Library func() []models.Track

// Controller is the playback state machine.
type Controller struct {
	device  Device
	library Library
	logger  *log.Logger

	mu       sync.Mutex
	seq      uint64
	current  *models.Track
	playlist []models.Track
	playing  bool
	volume   float64
	progress float64
	position float64
	duration float64

	listenerMu sync.Mutex
	nextLID    int
	listeners  map[int]func(State)
}

// NewController takes ownership of device. library may be nil.
func NewController(device Device, library Library, logger *log.Logger) *Controller {
	c := &Controller{
		device:    device,
		library:   library,
		logger:    shared.WithLogger(logger, "component", "player"),
		volume:    1,
		listeners: make(map[int]func(State)),
	}
	device.Listen(c.handleEvent)
	return c
}

// State returns a copy of the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// OnChange registers fn to receive the state after every change and returns a function removing it.
//
// fn runs on the goroutine that made the change and may see states out of order; compare Seq.
func (c *Controller) OnChange(fn func(State)) func() {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	id := c.nextLID
	c.nextLID++
	c.listeners[id] = fn

	return func() {
		c.listenerMu.Lock()
		defer c.listenerMu.Unlock()
		delete(c.listeners, id)
	}
}

// Play makes track current, replaces the playlist and starts playback.
//
// An empty playlist, or one not containing track, becomes the singleton [track]. When the device
// refuses to start the controller stays paused and the error matches [shared.ErrPlaybackRejected].
func (c *Controller) Play(ctx context.Context, track models.Track, playlist []models.Track) error {
	if !slices.ContainsFunc(playlist, func(t models.Track) bool { return t.ID == track.ID }) {
		playlist = []models.Track{track}
	}

	c.mu.Lock()
	c.playlist = slices.Clone(playlist)
	err := c.load(ctx, track, true)
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
	return err
}

// Cue loads track as a singleton playlist without starting it. It does nothing unless the
// controller is empty and reports whether the track was loaded.
func (c *Controller) Cue(ctx context.Context, track models.Track) (bool, error) {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return false, nil
	}
	c.playlist = []models.Track{track}
	err := c.load(ctx, track, false)
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
	return err == nil, err
}

// Toggle pauses while playing and resumes while paused. From empty it plays the first track of
// the library with the whole library as playlist, or does nothing when the library is empty.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()

		var songs []models.Track
		if c.library != nil {
			songs = c.library()
		}
		if len(songs) == 0 {
			return nil
		}
		return c.Play(ctx, songs[0], songs)
	}

	var err error
	if c.playing {
		err = c.pause(ctx)
	} else {
		err = c.start(ctx)
	}
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
	return err
}

// Pause pauses playback. It is a no-op unless playing.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return nil
	}
	err := c.pause(ctx)
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
	return err
}

// Resume starts playback of the current track. It is a no-op when empty or already playing.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil || c.playing {
		c.mu.Unlock()
		return nil
	}
	err := c.start(ctx)
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
	return err
}

// Next plays the following playlist entry, wrapping to the first.
func (c *Controller) Next(ctx context.Context) error {
	return c.step(ctx, 1)
}

// Previous plays the preceding playlist entry, wrapping to the last.
func (c *Controller) Previous(ctx context.Context) error {
	return c.step(ctx, -1)
}

func (c *Controller) step(ctx context.Context, delta int) error {
	c.mu.Lock()
	if c.current == nil || len(c.playlist) == 0 {
		c.mu.Unlock()
		return nil
	}

	id := c.current.ID
	_, i, found := lo.FindIndexOf(c.playlist, func(t models.Track) bool { return t.ID == id })
	if !found {
		i = 0
	}
	n := len(c.playlist)
	next := c.playlist[(i+delta+n)%n]

	err := c.load(ctx, next, true)
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
	return err
}

// Seek moves the playhead to fraction of the duration, clamped to [0,1]. It is ignored while the
// duration is unknown.
func (c *Controller) Seek(ctx context.Context, fraction float64) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return nil
	}

	_, duration := c.device.Times()
	if !knownDuration(duration) {
		c.mu.Unlock()
		c.logger.Debug("seek ignored", "error", shared.ErrMediaUnavailable)
		return nil
	}

	fraction = lo.Clamp(fraction, 0, 1)
	position := fraction * duration
	if err := c.device.SetPosition(ctx, position); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to seek: %w", err)
	}
	c.progress = fraction
	c.position = position
	c.duration = duration
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
	return nil
}

// SetVolume clamps level to [0,1] and applies it in any state.
func (c *Controller) SetVolume(ctx context.Context, level float64) error {
	level = lo.Clamp(level, 0, 1)

	c.mu.Lock()
	if err := c.device.SetVolume(ctx, level); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to set volume: %w", err)
	}
	c.volume = level
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
	return nil
}

// HandleTimeUpdate recomputes progress from a device time report. Without a positive finite
// duration progress holds its last value.
func (c *Controller) HandleTimeUpdate(current, duration float64) {
	c.mu.Lock()
	if c.current == nil || !knownDuration(duration) {
		c.mu.Unlock()
		return
	}
	c.position = current
	c.duration = duration
	c.progress = lo.Clamp(current/duration, 0, 1)
	state := c.changed()
	c.mu.Unlock()

	c.notify(state)
}

// HandleEnded advances exactly as [Controller.Next].
func (c *Controller) HandleEnded(ctx context.Context) error {
	return c.Next(ctx)
}

func (c *Controller) handleEvent(e Event) {
	switch e.Kind {
	case EventTimeUpdate:
		c.HandleTimeUpdate(e.Current, e.Duration)
	case EventEnded:
		if err := c.HandleEnded(context.Background()); err != nil {
			c.logger.Warn("failed to advance after track ended", "error", err)
		}
	}
}

// load binds track to the device and optionally starts it. Callers hold c.mu.
func (c *Controller) load(ctx context.Context, track models.Track, autoplay bool) error {
	t := track
	c.current = &t
	c.playing = false
	c.progress = 0
	c.position = 0
	c.duration = 0

	if err := c.device.SetSource(ctx, track.MediaURL); err != nil {
		c.logger.Warn("failed to load track", "track", track.Name, "error", err)
		return fmt.Errorf("%w: failed to load %s: %v", shared.ErrMediaUnavailable, track.Name, err)
	}
	if !autoplay {
		return nil
	}
	return c.start(ctx)
}

// start resumes the device. Callers hold c.mu.
func (c *Controller) start(ctx context.Context) error {
	if err := c.device.Play(ctx); err != nil {
		c.playing = false
		c.logger.Warn("playback rejected", "track", c.current.Name, "error", err)
		if errors.Is(err, shared.ErrPlaybackRejected) {
			return err
		}
		return fmt.Errorf("%w: %v", shared.ErrPlaybackRejected, err)
	}
	c.playing = true
	return nil
}

// pause stops the device in place. Callers hold c.mu.
func (c *Controller) pause(ctx context.Context) error {
	if err := c.device.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}
	c.playing = false
	return nil
}

// changed bumps the sequence and returns the new state. Callers hold c.mu.
func (c *Controller) changed() State {
	c.seq++
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := State{
		Seq:      c.seq,
		Playlist: slices.Clone(c.playlist),
		Playing:  c.playing,
		Volume:   c.volume,
		Progress: c.progress,
		Position: c.position,
		Duration: c.duration,
	}
	if c.current != nil {
		t := *c.current
		s.Current = &t
	}
	return s
}

func (c *Controller) notify(s State) {
	c.listenerMu.Lock()
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenerMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
