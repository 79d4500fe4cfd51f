package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/pulse/internal/app"
	"github.com/desertthunder/pulse/internal/connectivity"
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/player"
)

const (
	seekStep    = 10.0
	volumeStep  = 0.05
	noticeAfter = 4 * time.Second
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	FolderView ViewState = iota
	TrackView
	DiaryView
)

// Model is the player console state.
type Model struct {
	ctx     context.Context
	session *app.Session

	view   ViewState
	folder string
	width  int
	height int

	folders list.Model
	tracks  list.Model
	posts   list.Model
	bar     progress.Model

	state     player.State
	conn      connectivity.Status
	notice    string
	noticeSeq int
	failed    bool

	signals chan struct{}
	unsubs  []func()
	help    help.Model
	keys    keyMap
}

// NewModel creates a console for a started session.
func NewModel(ctx context.Context, session *app.Session) *Model {
	m := &Model{
		ctx:     ctx,
		session: session,
		view:    FolderView,
		folders: newList("Library"),
		tracks:  newList(""),
		posts:   newList("Diary"),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		signals: make(chan struct{}, 1),
		help:    help.New(),
		keys:    newKeyMap(),
	}
	m.refresh()
	return m
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	return l
}

// Init subscribes to session changes.
func (m *Model) Init() tea.Cmd {
	m.unsubs = append(m.unsubs,
		m.session.Mirror.OnChange(func(string) { m.signal() }),
		m.session.Player.OnChange(func(player.State) { m.signal() }),
	)
	m.session.Connectivity.OnChange(func(connectivity.Status) { m.signal() })
	return m.waitForSignal()
}

// Close removes the model's listeners.
func (m *Model) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

// signal coalesces change notifications; the model re-reads everything on each one.
func (m *Model) signal() {
	select {
	case m.signals <- struct{}{}:
	default:
	}
}

func (m *Model) waitForSignal() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.signals:
			return refreshMsg()
		case <-m.ctx.Done():
			return tea.Quit()
		}
	}
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		for _, l := range []*list.Model{&m.folders, &m.tracks, &m.posts} {
			l.SetSize(msg.Width-4, msg.Height-10)
		}
		m.bar.Width = max(msg.Width-24, 10)
		return m, nil

	case Msg:
		switch msg.kind {
		case MsgRefresh:
			m.refresh()
			return m, m.waitForSignal()
		case MsgActionDone:
			res := msg.data.(actionResult)
			m.refresh()
			return m, m.setNotice(res.notice, res.err)
		case MsgClearNotice:
			if msg.data.(int) == m.noticeSeq {
				m.notice, m.failed = "", false
			}
			return m, nil
		}

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.session.Player

	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.showHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.diary):
		if m.view == DiaryView {
			m.view = FolderView
		} else {
			m.view = DiaryView
		}
		return m, nil
	case key.Matches(msg, m.keys.back):
		if m.view != FolderView {
			m.view = FolderView
		}
		return m, nil
	case key.Matches(msg, m.keys.enter):
		return m, m.selectItem()
	case key.Matches(msg, m.keys.toggle):
		return m, m.run(p.Toggle)
	case key.Matches(msg, m.keys.next):
		return m, m.run(p.Next)
	case key.Matches(msg, m.keys.prev):
		return m, m.run(p.Previous)
	case key.Matches(msg, m.keys.forward):
		return m, m.seekBy(seekStep)
	case key.Matches(msg, m.keys.rewind):
		return m, m.seekBy(-seekStep)
	case key.Matches(msg, m.keys.louder):
		return m, m.volumeBy(volumeStep)
	case key.Matches(msg, m.keys.quieter):
		return m, m.volumeBy(-volumeStep)
	case key.Matches(msg, m.keys.like):
		return m, m.likeSelected()
	}

	return m.updateList(msg)
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case FolderView:
		m.folders, cmd = m.folders.Update(msg)
	case TrackView:
		m.tracks, cmd = m.tracks.Update(msg)
	case DiaryView:
		m.posts, cmd = m.posts.Update(msg)
	}
	return m, cmd
}

// refresh rebuilds the lists from the mirror and copies player and connectivity state.
func (m *Model) refresh() {
	s := m.session
	m.state = s.Player.State()
	m.conn = s.Connectivity.Status()

	folders := s.Mirror.Folders()
	items := make([]list.Item, len(folders))
	for i, f := range folders {
		items[i] = folderItem{folder: f}
	}
	m.folders.SetItems(items)

	if m.folder != "" {
		tracks := s.Mirror.Folder(m.folder)
		items := make([]list.Item, len(tracks))
		for i, t := range tracks {
			items[i] = trackItem{track: t, current: m.state.Current != nil && m.state.Current.ID == t.ID}
		}
		m.tracks.SetItems(items)
		m.tracks.Title = m.folder
	}

	posts := s.Mirror.Posts()
	items = make([]list.Item, len(posts))
	for i, p := range posts {
		items[i] = postItem{post: p}
	}
	m.posts.SetItems(items)
}

func (m *Model) selectItem() tea.Cmd {
	switch m.view {
	case FolderView:
		if it, ok := m.folders.SelectedItem().(folderItem); ok {
			m.folder = it.folder.Label
			m.tracks.ResetSelected()
			m.view = TrackView
			m.refresh()
		}
	case TrackView:
		if it, ok := m.tracks.SelectedItem().(trackItem); ok {
			playlist := m.session.Mirror.Folder(m.folder)
			return m.run(func(ctx context.Context) error {
				return m.session.Player.Play(ctx, it.track, playlist)
			})
		}
	}
	return nil
}

func (m *Model) seekBy(seconds float64) tea.Cmd {
	if m.state.Duration <= 0 {
		return nil
	}
	fraction := (m.state.Position + seconds) / m.state.Duration
	return m.run(func(ctx context.Context) error {
		return m.session.Player.Seek(ctx, fraction)
	})
}

func (m *Model) volumeBy(delta float64) tea.Cmd {
	level := m.state.Volume + delta
	return m.run(func(ctx context.Context) error {
		return m.session.Player.SetVolume(ctx, level)
	})
}

func (m *Model) likeSelected() tea.Cmd {
	if m.view != DiaryView {
		return nil
	}
	it, ok := m.posts.SelectedItem().(postItem)
	if !ok {
		return nil
	}
	return func() tea.Msg {
		n, err := m.session.Community.Like(m.ctx, it.post.ID)
		if err != nil {
			return actionDoneMsg("", fmt.Errorf("failed to like post: %w", err))
		}
		return actionDoneMsg(fmt.Sprintf("♥ %d", n), nil)
	}
}

// run performs fn off the UI goroutine and reports its outcome.
func (m *Model) run(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg("", fn(m.ctx))
	}
}

// setNotice shows notice, or err when set, and schedules it to clear.
func (m *Model) setNotice(notice string, err error) tea.Cmd {
	m.failed = err != nil
	m.notice = notice
	if err != nil {
		m.notice = err.Error()
	}
	if m.notice == "" {
		return nil
	}

	m.noticeSeq++
	seq := m.noticeSeq
	return tea.Tick(noticeAfter, func(time.Time) tea.Msg { return clearNoticeMsg(seq) })
}

// View renders the console.
func (m *Model) View() string {
	var b strings.Builder

	if banner := m.renderConnectivity(); banner != "" {
		b.WriteString(banner + "\n\n")
	}

	switch m.view {
	case FolderView:
		b.WriteString(m.folders.View())
	case TrackView:
		b.WriteString(m.tracks.View())
	case DiaryView:
		b.WriteString(m.posts.View())
	}

	b.WriteString("\n\n" + m.renderNowPlaying())
	if m.notice != "" {
		style := styles.ok
		if m.failed {
			style = styles.err
		}
		b.WriteString("\n" + style.Render(m.notice))
	}
	b.WriteString("\n\n" + m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderConnectivity() string {
	switch {
	case m.conn.Offline:
		return styles.offline.Render("Offline: changes will sync when the connection returns")
	case m.conn.Reconnected:
		return styles.online.Render("Back online")
	default:
		return ""
	}
}

func (m *Model) renderNowPlaying() string {
	s := m.state
	if s.Current == nil {
		return styles.help.Render("Nothing playing")
	}

	icon := "❚❚"
	if s.Playing {
		icon = "▶"
	}
	title := styles.playing.Render(fmt.Sprintf("%s %s", icon, s.Current.Name))
	folder := styles.help.Render(models.FolderOf(*s.Current, m.session.Mirror.FallbackFolder()))

	timing := fmt.Sprintf("%s / %s", clock(s.Position), clock(s.Duration))
	volume := fmt.Sprintf("vol %d%%", int(s.Volume*100+0.5))
	line := lipgloss.JoinHorizontal(lipgloss.Top, m.bar.ViewAs(s.Progress), "  ", timing, "  ", volume)

	return fmt.Sprintf("%s  %s\n%s", title, folder, line)
}

func clock(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
