package ui

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/pulse/internal/app"
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/player"
	"github.com/desertthunder/pulse/internal/shared"
	tu "github.com/desertthunder/pulse/internal/testing"
)

type device struct {
	mu      sync.Mutex
	source  string
	playing bool
	volume  float64
	at      float64
}

func (d *device) SetSource(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source, d.playing = url, false
	return nil
}

func (d *device) Play(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
	return nil
}

func (d *device) Pause(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	return nil
}

func (d *device) SetVolume(_ context.Context, level float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = level
	return nil
}

func (d *device) SetPosition(_ context.Context, seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.at = seconds
	return nil
}

func (d *device) Times() (float64, float64) { return 0, 0 }
func (d *device) Listen(func(player.Event)) {}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// press sends a key and runs the resulting command, feeding its message back.
func press(t *testing.T, m *Model, s string) {
	t.Helper()

	_, cmd := m.Update(keyPress(s))
	if cmd == nil {
		return
	}
	if msg, ok := cmd().(Msg); ok {
		m.Update(msg)
	}
}

func newConsole(t *testing.T, cfg *shared.Config) (*Model, *app.Session, *device) {
	t.Helper()

	if cfg == nil {
		cfg = shared.DefaultConfig()
	}
	dev := &device{}
	session := app.NewSession(app.Options{
		Config:  cfg,
		Store:   tu.NewLocalStore(t),
		Device:  dev,
		IsAdmin: func(ctx context.Context) bool { return shared.IdentityFrom(ctx) == tu.AdminEmail },
	}, shared.NewLogger(io.Discard))
	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Stop)

	ctx, cancel := context.WithCancel(tu.AdminContext())
	t.Cleanup(cancel)

	m := NewModel(ctx, session)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, session, dev
}

func seed(t *testing.T, session *app.Session, tracks ...models.Track) {
	t.Helper()

	for _, track := range tracks {
		_, err := session.Community.AddTrack(tu.AdminContext(), track)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(session.Mirror.Songs()) == len(tracks) }, 2*time.Second, 5*time.Millisecond)
}

func TestModel(t *testing.T) {
	library := []models.Track{
		{Name: "First", MediaURL: "https://cdn.example.com/1.mp3", FolderLabel: "Pop"},
		{Name: "Second", MediaURL: "https://cdn.example.com/2.mp3", FolderLabel: "Pop"},
		{Name: "Heavy", MediaURL: "https://cdn.example.com/3.mp3", FolderLabel: "Rock"},
	}

	t.Run("lists folders on refresh", func(t *testing.T) {
		m, session, _ := newConsole(t, nil)
		seed(t, session, library...)

		m.Update(refreshMsg())

		view := m.View()
		assert.Contains(t, view, "Pop")
		assert.Contains(t, view, "Rock")
		assert.Contains(t, view, "Nothing playing")
	})

	t.Run("enter opens a folder and plays a track", func(t *testing.T) {
		m, session, dev := newConsole(t, nil)
		seed(t, session, library...)
		m.Update(refreshMsg())

		press(t, m, "enter")
		require.Equal(t, TrackView, m.view)
		assert.Equal(t, "Pop", m.folder)
		assert.Len(t, m.tracks.Items(), 2)

		press(t, m, "enter")
		s := session.Player.State()
		require.NotNil(t, s.Current)
		assert.Equal(t, "First", s.Current.Name)
		assert.Len(t, s.Playlist, 2)
		assert.True(t, s.Playing)

		dev.mu.Lock()
		assert.Equal(t, "https://cdn.example.com/1.mp3", dev.source)
		dev.mu.Unlock()

		assert.Contains(t, m.View(), "▶ First")
		assert.True(t, strings.Contains(m.tracks.Items()[0].(trackItem).Title(), "♪"))
	})

	t.Run("transport keys drive the player", func(t *testing.T) {
		m, session, _ := newConsole(t, nil)
		seed(t, session, library...)
		m.Update(refreshMsg())

		press(t, m, "enter")
		press(t, m, "enter")
		press(t, m, "n")
		assert.Equal(t, "Second", session.Player.State().Current.Name)

		press(t, m, "p")
		assert.Equal(t, "First", session.Player.State().Current.Name)

		press(t, m, " ")
		assert.False(t, session.Player.State().Playing)
		assert.Contains(t, m.View(), "❚❚ First")
	})

	t.Run("volume keys step the level", func(t *testing.T) {
		m, session, dev := newConsole(t, nil)
		before := session.Player.State().Volume

		press(t, m, "-")
		dev.mu.Lock()
		assert.InDelta(t, before-volumeStep, dev.volume, 1e-9)
		dev.mu.Unlock()
	})

	t.Run("seek without duration does nothing", func(t *testing.T) {
		m, _, _ := newConsole(t, nil)

		_, cmd := m.Update(keyPress("l"))
		assert.Nil(t, cmd)
	})

	t.Run("esc returns to folders", func(t *testing.T) {
		m, session, _ := newConsole(t, nil)
		seed(t, session, library...)
		m.Update(refreshMsg())

		press(t, m, "enter")
		require.Equal(t, TrackView, m.view)
		press(t, m, "esc")
		assert.Equal(t, FolderView, m.view)
	})

	t.Run("diary likes a post", func(t *testing.T) {
		m, session, _ := newConsole(t, nil)
		_, err := session.Community.PostEntry(context.Background(), "Sam", "hello", false)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return len(session.Mirror.Posts()) == 1 }, 2*time.Second, 5*time.Millisecond)
		m.Update(refreshMsg())

		press(t, m, "tab")
		require.Equal(t, DiaryView, m.view)
		assert.Contains(t, m.View(), "hello")

		press(t, m, "L")
		assert.Equal(t, "♥ 1", m.notice)
		assert.False(t, m.failed)
		require.Eventually(t, func() bool { return session.Mirror.Posts()[0].LikeCount == 1 }, 2*time.Second, 5*time.Millisecond)

		press(t, m, "tab")
		assert.Equal(t, FolderView, m.view)
	})

	t.Run("like outside the diary does nothing", func(t *testing.T) {
		m, _, _ := newConsole(t, nil)

		_, cmd := m.Update(keyPress("L"))
		assert.Nil(t, cmd)
	})

	t.Run("notices clear unless replaced", func(t *testing.T) {
		m, _, _ := newConsole(t, nil)

		m.setNotice("first", nil)
		stale := m.noticeSeq
		m.setNotice("second", nil)

		m.Update(clearNoticeMsg(stale))
		assert.Equal(t, "second", m.notice)

		m.Update(clearNoticeMsg(m.noticeSeq))
		assert.Empty(t, m.notice)
	})

	t.Run("failed actions show the error", func(t *testing.T) {
		m, _, _ := newConsole(t, nil)

		m.Update(actionDoneMsg("", shared.ErrPlaybackRejected))
		assert.True(t, m.failed)
		assert.Contains(t, m.View(), shared.ErrPlaybackRejected.Error())
	})

	t.Run("shows connectivity banners", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		cfg.Connectivity.OfflineDebounceMS = 1
		cfg.Connectivity.ReconnectedNoticeMS = 60_000
		m, session, _ := newConsole(t, cfg)

		session.Connectivity.WentOffline()
		require.Eventually(t, func() bool { return session.Connectivity.Status().Offline }, 2*time.Second, 5*time.Millisecond)
		m.Update(refreshMsg())
		assert.Contains(t, m.View(), "Offline")

		session.Connectivity.WentOnline()
		m.Update(refreshMsg())
		assert.Contains(t, m.View(), "Back online")
	})

	t.Run("change signals wake the model", func(t *testing.T) {
		m, session, _ := newConsole(t, nil)
		cmd := m.Init()
		t.Cleanup(m.Close)

		done := make(chan tea.Msg, 1)
		go func() { done <- cmd() }()

		require.NoError(t, session.Player.Play(context.Background(), models.Track{ID: "x", Name: "Live", MediaURL: "u"}, nil))

		select {
		case msg := <-done:
			assert.Equal(t, refreshMsg(), msg)
		case <-time.After(2 * time.Second):
			t.Fatal("no refresh after a player change")
		}
	})

	t.Run("quit", func(t *testing.T) {
		m, _, _ := newConsole(t, nil)

		_, cmd := m.Update(keyPress("q"))
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
	})
}

func TestClock(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{-3, "0:00"},
		{9.7, "0:09"},
		{75, "1:15"},
		{3600, "60:00"},
	}

	for _, tt := range tests {
		if got := clock(tt.seconds); got != tt.want {
			t.Errorf("clock(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
