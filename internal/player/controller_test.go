package player

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// fakeDevice records calls and reports a fixed duration.
type fakeDevice struct {
	mu        sync.Mutex
	source    string
	sources   []string
	playing   bool
	volume    float64
	position  float64
	duration  float64
	rejectErr error
	listener  func(Event)
}

func (f *fakeDevice) SetSource(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = url
	f.sources = append(f.sources, url)
	f.position = 0
	f.playing = false
	return nil
}

func (f *fakeDevice) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectErr != nil {
		return f.rejectErr
	}
	f.playing = true
	return nil
}

func (f *fakeDevice) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *fakeDevice) SetVolume(ctx context.Context, level float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = level
	return nil
}

func (f *fakeDevice) SetPosition(ctx context.Context, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = seconds
	return nil
}

func (f *fakeDevice) Times() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, f.duration
}

func (f *fakeDevice) Listen(fn func(Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
}

func (f *fakeDevice) emit(e Event) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	fn(e)
}

func track(id string) models.Track {
	return models.Track{ID: id, Name: "Track " + id, MediaURL: "https://cdn.example.com/" + id + ".mp3"}
}

func newController(t *testing.T, library ...models.Track) (*Controller, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{duration: 200}
	c := NewController(dev, func() []models.Track { return library }, shared.NewLogger(io.Discard))
	return c, dev
}

func currentID(c *Controller) string {
	s := c.State()
	if s.Current == nil {
		return ""
	}
	return s.Current.ID
}

func TestPlay(t *testing.T) {
	ctx := context.Background()

	t.Run("play sets context and starts device", func(t *testing.T) {
		c, dev := newController(t)
		a, b := track("a"), track("b")

		if err := c.Play(ctx, b, []models.Track{a, b}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		s := c.State()
		if s.Status() != StatusPlaying {
			t.Errorf("expected playing, got %s", s.Status())
		}
		if s.Current.ID != "b" || len(s.Playlist) != 2 {
			t.Errorf("unexpected state %+v", s)
		}
		if dev.source != b.MediaURL || !dev.playing {
			t.Errorf("device not bound to %s", b.MediaURL)
		}
	})

	t.Run("track outside playlist becomes singleton", func(t *testing.T) {
		c, _ := newController(t)

		if err := c.Play(ctx, track("x"), []models.Track{track("a")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := c.State()
		if len(s.Playlist) != 1 || s.Playlist[0].ID != "x" {
			t.Errorf("expected singleton playlist, got %+v", s.Playlist)
		}
	})

	t.Run("rejection leaves controller paused", func(t *testing.T) {
		c, dev := newController(t)
		dev.rejectErr = errors.New("autoplay blocked")

		err := c.Play(ctx, track("a"), nil)
		if !errors.Is(err, shared.ErrPlaybackRejected) {
			t.Fatalf("expected ErrPlaybackRejected, got %v", err)
		}
		if s := c.State(); s.Status() != StatusPaused || s.Current.ID != "a" {
			t.Errorf("expected paused on a, got %s", s.Status())
		}

		dev.rejectErr = nil
		if err := c.Toggle(ctx); err != nil {
			t.Fatalf("a later toggle should recover: %v", err)
		}
		if c.State().Status() != StatusPlaying {
			t.Error("expected playing after recovery")
		}
	})

	t.Run("new play supersedes the old one", func(t *testing.T) {
		c, dev := newController(t)

		_ = c.Play(ctx, track("a"), nil)
		_ = c.Play(ctx, track("b"), nil)

		if dev.source != track("b").MediaURL || currentID(c) != "b" {
			t.Errorf("expected b bound, got %s", dev.source)
		}
	})
}

func TestTransport(t *testing.T) {
	ctx := context.Background()

	t.Run("next and previous round trip", func(t *testing.T) {
		for n := 1; n <= 4; n++ {
			playlist := make([]models.Track, n)
			for i := range playlist {
				playlist[i] = track(string(rune('a' + i)))
			}

			for start := range playlist {
				c, _ := newController(t)
				_ = c.Play(ctx, playlist[start], playlist)

				_ = c.Next(ctx)
				_ = c.Previous(ctx)
				if got := currentID(c); got != playlist[start].ID {
					t.Errorf("len %d start %d: expected %s, got %s", n, start, playlist[start].ID, got)
				}

				_ = c.Previous(ctx)
				_ = c.Next(ctx)
				if got := currentID(c); got != playlist[start].ID {
					t.Errorf("len %d start %d (reverse): expected %s, got %s", n, start, playlist[start].ID, got)
				}
			}
		}
	})

	t.Run("folder scenario wraps around", func(t *testing.T) {
		c, _ := newController(t)
		a, b := track("a"), track("b")

		_ = c.Play(ctx, b, []models.Track{a, b})
		_ = c.Next(ctx)
		if got := currentID(c); got != "a" {
			t.Fatalf("expected a, got %s", got)
		}
		_ = c.Next(ctx)
		if got := currentID(c); got != "b" {
			t.Fatalf("expected b, got %s", got)
		}
	})

	t.Run("singleton restarts from zero", func(t *testing.T) {
		c, dev := newController(t)
		a := track("a")

		_ = c.Play(ctx, a, []models.Track{a})
		c.HandleTimeUpdate(120, 200)
		dev.position = 120

		_ = c.Next(ctx)
		s := c.State()
		if s.Current.ID != "a" {
			t.Errorf("expected a to remain current, got %s", s.Current.ID)
		}
		if s.Progress != 0 || dev.position != 0 {
			t.Errorf("expected restart from 0, progress %v position %v", s.Progress, dev.position)
		}
		if len(dev.sources) != 2 || !dev.playing {
			t.Errorf("expected source rebound and playing, sources %v", dev.sources)
		}
	})

	t.Run("no-ops from empty", func(t *testing.T) {
		c, dev := newController(t)

		_ = c.Next(ctx)
		_ = c.Previous(ctx)
		_ = c.Seek(ctx, 0.5)
		_ = c.Pause(ctx)
		_ = c.Resume(ctx)
		c.HandleTimeUpdate(10, 100)

		if s := c.State(); s.Status() != StatusEmpty || s.Progress != 0 {
			t.Errorf("expected untouched empty state, got %+v", s)
		}
		if len(dev.sources) != 0 {
			t.Errorf("device should not be touched, got %v", dev.sources)
		}
	})

	t.Run("ended behaves as next", func(t *testing.T) {
		c, dev := newController(t)
		a, b := track("a"), track("b")

		_ = c.Play(ctx, a, []models.Track{a, b})
		dev.emit(Event{Kind: EventEnded})
		if got := currentID(c); got != "b" {
			t.Errorf("expected b after ended, got %s", got)
		}
		if !c.State().Playing {
			t.Error("expected continuous playback")
		}
	})

	t.Run("toggle pauses and resumes", func(t *testing.T) {
		c, dev := newController(t)
		_ = c.Play(ctx, track("a"), nil)

		_ = c.Toggle(ctx)
		if c.State().Status() != StatusPaused || dev.playing {
			t.Error("expected paused")
		}
		_ = c.Toggle(ctx)
		if c.State().Status() != StatusPlaying || !dev.playing {
			t.Error("expected playing")
		}
	})

	t.Run("toggle from empty plays the library", func(t *testing.T) {
		a, b, cc := track("a"), track("b"), track("c")
		c, _ := newController(t, a, b, cc)

		if err := c.Toggle(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := c.State()
		if s.Current.ID != "a" || len(s.Playlist) != 3 || !s.Playing {
			t.Errorf("expected a playing from whole library, got %+v", s)
		}
	})

	t.Run("toggle from empty with no library", func(t *testing.T) {
		c, _ := newController(t)
		if err := c.Toggle(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.State().Status() != StatusEmpty {
			t.Error("expected empty")
		}
	})
}

func TestSeekAndProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("seek half way", func(t *testing.T) {
		c, dev := newController(t)
		_ = c.Play(ctx, track("a"), nil)

		if err := c.Seek(ctx, 0.5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(dev.position-100) > 1e-9 {
			t.Errorf("expected position 100, got %v", dev.position)
		}
		if c.State().Progress != 0.5 {
			t.Errorf("expected progress 0.5, got %v", c.State().Progress)
		}
	})

	t.Run("seek clamps", func(t *testing.T) {
		c, dev := newController(t)
		_ = c.Play(ctx, track("a"), nil)

		_ = c.Seek(ctx, 1.7)
		if dev.position != 200 {
			t.Errorf("expected clamp to end, got %v", dev.position)
		}
		_ = c.Seek(ctx, -3)
		if dev.position != 0 {
			t.Errorf("expected clamp to start, got %v", dev.position)
		}
	})

	t.Run("seek ignored without duration", func(t *testing.T) {
		for _, d := range []float64{0, math.NaN(), math.Inf(1)} {
			c, dev := newController(t)
			_ = c.Play(ctx, track("a"), nil)
			dev.duration = d
			dev.position = 7
			before := c.State()

			if err := c.Seek(ctx, 0.5); err != nil {
				t.Fatalf("seek should not error: %v", err)
			}
			if dev.position != 7 {
				t.Errorf("duration %v: position moved to %v", d, dev.position)
			}
			if after := c.State(); after.Seq != before.Seq {
				t.Errorf("duration %v: state changed", d)
			}
		}
	})

	t.Run("progress holds without duration", func(t *testing.T) {
		c, _ := newController(t)
		_ = c.Play(ctx, track("a"), nil)

		c.HandleTimeUpdate(50, 200)
		if got := c.State().Progress; got != 0.25 {
			t.Fatalf("expected 0.25, got %v", got)
		}

		c.HandleTimeUpdate(80, math.NaN())
		c.HandleTimeUpdate(90, 0)
		if got := c.State().Progress; got != 0.25 {
			t.Errorf("expected progress held at 0.25, got %v", got)
		}
	})

	t.Run("volume clamps in any state", func(t *testing.T) {
		c, dev := newController(t)

		tc := []struct{ in, want float64 }{{0.3, 0.3}, {-1, 0}, {4, 1}}
		for _, tt := range tc {
			if err := c.SetVolume(ctx, tt.in); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dev.volume != tt.want || c.State().Volume != tt.want {
				t.Errorf("SetVolume(%v): expected %v, got device %v state %v", tt.in, tt.want, dev.volume, c.State().Volume)
			}
		}
	})
}

func TestCueAndListeners(t *testing.T) {
	ctx := context.Background()

	t.Run("cue loads without playing", func(t *testing.T) {
		c, dev := newController(t)

		loaded, err := c.Cue(ctx, track("hero"))
		if err != nil || !loaded {
			t.Fatalf("expected cue to load, got %v %v", loaded, err)
		}
		s := c.State()
		if s.Status() != StatusPaused || len(s.Playlist) != 1 || dev.playing {
			t.Errorf("expected paused singleton, got %+v", s)
		}
	})

	t.Run("cue never replaces a loaded track", func(t *testing.T) {
		c, _ := newController(t)
		_ = c.Play(ctx, track("a"), nil)

		loaded, _ := c.Cue(ctx, track("hero"))
		if loaded || currentID(c) != "a" {
			t.Errorf("cue replaced current track")
		}
	})

	t.Run("listeners see increasing sequence", func(t *testing.T) {
		c, _ := newController(t)

		var seqs []uint64
		remove := c.OnChange(func(s State) { seqs = append(seqs, s.Seq) })
		_ = c.Play(ctx, track("a"), nil)
		_ = c.Toggle(ctx)
		remove()
		_ = c.Toggle(ctx)

		if len(seqs) != 2 || seqs[0] >= seqs[1] {
			t.Errorf("unexpected notifications %v", seqs)
		}
	})
}

func TestParseTimes(t *testing.T) {
	tc := []struct {
		name     string
		attrs    mpd.Attrs
		current  float64
		duration float64
	}{
		{"modern", mpd.Attrs{"elapsed": "12.5", "duration": "200.1"}, 12.5, 200.1},
		{"legacy", mpd.Attrs{"time": "12:200"}, 12, 200},
		{"stopped", mpd.Attrs{}, 0, 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			current, duration := parseTimes(tt.attrs)
			if current != tt.current || duration != tt.duration {
				t.Errorf("expected %v/%v, got %v/%v", tt.current, tt.duration, current, duration)
			}
		})
	}
}
