package player

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fhs/gompd/v2/mpd"

	"github.com/desertthunder/pulse/internal/shared"
)

// MPDDevice is a [Device] backed by a Music Player Daemon queue holding the current track.
//
// [MPDDevice.Run] polls the daemon for time updates and watches the player subsystem to detect the
// end of a track.
type MPDDevice struct {
	network  string
	address  string
	password string
	tick     time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	client   *mpd.Client
	started  bool
	current  float64
	duration float64
	listener func(Event)
}

// NewMPDDevice connects to the daemon described by cfg.
func NewMPDDevice(cfg shared.PlayerConfig, logger *log.Logger) (*MPDDevice, error) {
	d := &MPDDevice{
		network:  cfg.MPDNetwork,
		address:  cfg.MPDAddress,
		password: cfg.MPDPassword,
		tick:     time.Duration(cfg.TickMS) * time.Millisecond,
		logger:   shared.WithLogger(logger, "component", "mpd"),
	}
	if d.network == "" {
		d.network = "tcp"
	}
	if d.tick <= 0 {
		d.tick = 250 * time.Millisecond
	}

	client, err := mpd.DialAuthenticated(d.network, d.address, d.password)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to mpd at %s: %v", shared.ErrServiceUnavailable, d.address, err)
	}
	d.client = client
	return d, nil
}

// Run reports time updates and track ends until ctx is done.
func (d *MPDDevice) Run(ctx context.Context) error {
	w, err := mpd.NewWatcher(d.network, d.address, d.password, "player")
	if err != nil {
		return fmt.Errorf("failed to watch mpd: %w", err)
	}
	defer w.Close()

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.poll(false); err != nil {
				d.logger.Debug("status poll failed", "error", err)
			}
		case subsystem, ok := <-w.Event:
			if !ok {
				return nil
			}
			if subsystem == "player" {
				if err := d.poll(true); err != nil {
					d.logger.Debug("status poll failed", "error", err)
				}
			}
		case err, ok := <-w.Error:
			if !ok {
				return nil
			}
			d.logger.Warn("mpd watcher error", "error", err)
		}
	}
}

// Close disconnects from the daemon.
func (d *MPDDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client.Close()
}

// poll reads the daemon status and emits the resulting event outside the lock.
func (d *MPDDevice) poll(playerChanged bool) error {
	d.mu.Lock()
	attrs, err := d.client.Status()
	if err != nil {
		d.mu.Unlock()
		return err
	}

	state := attrs["state"]
	current, duration := parseTimes(attrs)
	if state != "stop" {
		d.current, d.duration = current, duration
	}

	var (
		event Event
		emit  bool
	)
	switch {
	case playerChanged && state == "stop" && d.started:
		d.started = false
		event, emit = Event{Kind: EventEnded, Current: d.duration, Duration: d.duration}, true
	case state == "play":
		event, emit = Event{Kind: EventTimeUpdate, Current: current, Duration: duration}, true
	}
	listener := d.listener
	d.mu.Unlock()

	if emit && listener != nil {
		listener(event)
	}
	return nil
}

func parseTimes(attrs mpd.Attrs) (current, duration float64) {
	current, _ = strconv.ParseFloat(attrs["elapsed"], 64)
	if v, err := strconv.ParseFloat(attrs["duration"], 64); err == nil {
		return current, v
	}
	// older daemons only report "elapsed:total" in whole seconds
	if elapsed, total, ok := strings.Cut(attrs["time"], ":"); ok {
		if current == 0 {
			current, _ = strconv.ParseFloat(elapsed, 64)
		}
		duration, _ = strconv.ParseFloat(total, 64)
	}
	return current, duration
}

// SetSource replaces the daemon queue with url.
func (d *MPDDevice) SetSource(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.started = false
	d.current, d.duration = 0, math.NaN()
	if err := d.client.Clear(); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	if err := d.client.Add(url); err != nil {
		return fmt.Errorf("failed to queue %s: %w", url, err)
	}
	return nil
}

// Play starts the queued track or resumes a paused one.
func (d *MPDDevice) Play(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	attrs, err := d.client.Status()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPlaybackRejected, err)
	}
	if attrs["state"] == "pause" {
		err = d.client.Pause(false)
	} else {
		err = d.client.Play(-1)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPlaybackRejected, err)
	}
	d.started = true
	return nil
}

func (d *MPDDevice) Pause(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client.Pause(true)
}

func (d *MPDDevice) SetVolume(ctx context.Context, level float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client.SetVolume(int(math.Round(level * 100)))
}

func (d *MPDDevice) SetPosition(ctx context.Context, seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.client.SeekCur(time.Duration(seconds*float64(time.Second)), false); err != nil {
		return err
	}
	d.current = seconds
	return nil
}

// Times returns the position and duration from the latest poll.
func (d *MPDDevice) Times() (current, duration float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.duration
}

func (d *MPDDevice) Listen(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = fn
}
