package mirror

import (
	"context"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/desertthunder/pulse/internal/counter"
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

const (
	FeaturedCount = 5
	LatestCount   = 6
)

// Incrementer is the counter operation the mirror needs for visitor counting.
type Incrementer interface {
	Increment(ctx context.Context, path string) (int64, error)
}

// Folder is a named group of tracks.
type Folder struct {
	Label  string         `json:"label"`
	Tracks []models.Track `json:"tracks"`
}

// Mirror holds the latest snapshot of every collection.
//
// Accessors return copies; callers never share the mirror's slices.
type Mirror struct {
	store          store.Store
	counter        Incrementer
	marker         SessionMarker
	fallbackFolder string
	logger         *log.Logger

	mu         sync.RWMutex
	active     bool
	generation uint64
	unsubs     []store.Unsubscribe

	songs    []models.Track
	posts    []models.CommunityPost
	pages    []models.CustomPage
	inbox    []models.InboxMessage
	settings models.SiteSettings
	loaded   map[string]bool
	lastErr  map[string]error

	listenerMu sync.Mutex
	nextLID    int
	listeners  map[int]func(collection string)
}

// New creates an inactive Mirror reading from s.
//
// fallbackFolder labels tracks without a folder. A nil marker counts every activation's session as new.
func New(s store.Store, c Incrementer, marker SessionMarker, fallbackFolder string, logger *log.Logger) *Mirror {
	if marker == nil {
		marker = NewMemoryMarker()
	}
	return &Mirror{
		store:          s,
		counter:        c,
		marker:         marker,
		fallbackFolder: fallbackFolder,
		logger:         shared.WithLogger(logger, "component", "mirror"),
		settings:       models.DefaultSettings(),
		loaded:         make(map[string]bool),
		lastErr:        make(map[string]error),
		listeners:      make(map[int]func(string)),
	}
}

// Activate opens the five collection subscriptions. Calling it while active does nothing.
//
// The first activation in a session also increments the visitor count once.
func (m *Mirror) Activate(ctx context.Context) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.generation++
	gen := m.generation

	countVisit := !m.marker.Counted()
	if countVisit {
		m.marker.MarkCounted()
	}
	m.mu.Unlock()

	unsubs := []store.Unsubscribe{
		m.subscribe(ctx, gen, models.SettingsCollection, m.applySettings),
		m.subscribe(ctx, gen, models.SongsCollection, m.applySongs),
		m.subscribe(ctx, gen, models.PostsCollection, m.applyPosts),
		m.subscribe(ctx, gen, models.PagesCollection, m.applyPages),
		m.subscribe(ctx, gen, models.InboxCollection, m.applyInbox),
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		for _, unsubscribe := range unsubs {
			unsubscribe()
		}
		return
	}
	m.unsubs = unsubs
	m.mu.Unlock()

	if countVisit && m.counter != nil {
		go m.countVisit(context.WithoutCancel(ctx))
	}
}

// Deactivate cancels every subscription exactly once. Snapshots still in flight are discarded.
func (m *Mirror) Deactivate() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.generation++
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}

// Active reports whether the mirror is subscribed.
func (m *Mirror) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// OnChange registers fn to run after a collection's local copy changes. It returns a function
// removing the listener. Listeners run on the delivering goroutine and must not block.
func (m *Mirror) OnChange(fn func(collection string)) func() {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	id := m.nextLID
	m.nextLID++
	m.listeners[id] = fn

	return func() {
		m.listenerMu.Lock()
		defer m.listenerMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Mirror) countVisit(ctx context.Context) {
	if _, err := m.counter.Increment(ctx, counter.VisitorCountPath); err != nil {
		m.logger.Warn("visitor count update failed", "error", err)
	}
}

// subscribe opens one subscription whose deliveries are applied only while gen is current.
func (m *Mirror) subscribe(ctx context.Context, gen uint64, collection string, apply func(store.Snapshot) error) store.Unsubscribe {
	onUpdate := func(snap store.Snapshot) {
		m.mu.Lock()
		if !m.active || m.generation != gen {
			m.mu.Unlock()
			m.logger.Debug("dropping stale snapshot", "collection", collection)
			return
		}
		err := apply(snap)
		m.loaded[collection] = true
		delete(m.lastErr, collection)
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn("skipped malformed records", "collection", collection, "error", err)
		}
		m.notify(collection)
	}

	onError := func(err error) {
		m.mu.Lock()
		current := m.active && m.generation == gen
		if current {
			m.lastErr[collection] = err
		}
		m.mu.Unlock()

		if current {
			m.logger.Warn("subscription failed, keeping last snapshot", "collection", collection, "error", err)
		}
	}

	return m.store.Subscribe(ctx, collection, onUpdate, onError)
}

func (m *Mirror) notify(collection string) {
	m.listenerMu.Lock()
	fns := make([]func(string), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenerMu.Unlock()

	for _, fn := range fns {
		fn(collection)
	}
}

// applySongs and the other apply functions run with m.mu held.
func (m *Mirror) applySongs(snap store.Snapshot) error {
	songs, err := store.Decode(snap, func(t *models.Track, id string) { t.ID = id })
	m.songs = songs
	return err
}

func (m *Mirror) applyPosts(snap store.Snapshot) error {
	posts, err := store.Decode(snap, func(p *models.CommunityPost, id string) { p.ID = id })
	slices.Reverse(posts)
	m.posts = posts
	return err
}

func (m *Mirror) applyPages(snap store.Snapshot) error {
	pages, err := store.Decode(snap, func(p *models.CustomPage, id string) { p.ID = id })
	m.pages = pages
	return err
}

func (m *Mirror) applyInbox(snap store.Snapshot) error {
	inbox, err := store.Decode(snap, func(msg *models.InboxMessage, id string) { msg.ID = id })
	m.inbox = inbox
	return err
}

func (m *Mirror) applySettings(snap store.Snapshot) error {
	rec, ok := lo.Find(snap.Records, func(r store.Record) bool { return r.ID == models.SettingsID })
	if !ok {
		return nil
	}

	var patch models.SettingsPatch
	if err := json.Unmarshal(rec.Value, &patch); err != nil {
		return err
	}
	m.settings = models.MergeSettings(m.settings, patch)
	return nil
}

// Songs returns the tracks in arrival order.
func (m *Mirror) Songs() []models.Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.songs)
}

// Posts returns community posts, newest first.
func (m *Mirror) Posts() []models.CommunityPost {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.posts)
}

// Pages returns custom pages in arrival order.
func (m *Mirror) Pages() []models.CustomPage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.pages)
}

// Inbox returns inbox messages in arrival order. It is empty for non-administrators.
func (m *Mirror) Inbox() []models.InboxMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.inbox)
}

// Settings returns the merged site settings.
func (m *Mirror) Settings() models.SiteSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Loaded reports whether at least one snapshot of collection has been applied.
func (m *Mirror) Loaded(collection string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded[collection]
}

// Err returns the last subscription error of collection, cleared by the next good snapshot.
func (m *Mirror) Err(collection string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr[collection]
}

// Track looks up a song by id.
func (m *Mirror) Track(id string) (models.Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Find(m.songs, func(t models.Track) bool { return t.ID == id })
}

// Folders groups songs by folder label, in order of each folder's first song.
func (m *Mirror) Folders() []Folder {
	songs := m.Songs()

	folderOf := func(t models.Track) string { return models.FolderOf(t, m.fallbackFolder) }
	groups := lo.GroupBy(songs, folderOf)
	labels := lo.Uniq(lo.Map(songs, func(t models.Track, _ int) string { return folderOf(t) }))

	return lo.Map(labels, func(label string, _ int) Folder {
		return Folder{Label: label, Tracks: groups[label]}
	})
}

// FallbackFolder returns the label given to tracks without a folder.
func (m *Mirror) FallbackFolder() string {
	return m.fallbackFolder
}

// Folder returns the tracks of one folder.
func (m *Mirror) Folder(label string) []models.Track {
	folder, _ := lo.Find(m.Folders(), func(f Folder) bool { return f.Label == label })
	return folder.Tracks
}

// HeroTrack returns the song named by settings.defaultTrackId, if it is mirrored.
func (m *Mirror) HeroTrack() (models.Track, bool) {
	id := m.Settings().DefaultTrackID
	if id == "" {
		return models.Track{}, false
	}
	return m.Track(id)
}

// Featured returns the first n songs.
func (m *Mirror) Featured(n int) []models.Track {
	songs := m.Songs()
	return songs[:min(n, len(songs))]
}

// LatestPosts returns the n newest posts.
func (m *Mirror) LatestPosts(n int) []models.CommunityPost {
	posts := m.Posts()
	return posts[:min(n, len(posts))]
}
