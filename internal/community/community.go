// Package community implements the site's write actions: visitor posts, likes and messages, and
// the administrator's library, page and settings management.
//
// Every action writes through the store and returns. Nothing is applied locally; the result
// arrives through the mirror's next snapshot. Failed writes are returned for the caller to show
// as a notice and are never retried here.
package community

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/pulse/internal/counter"
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

const (
	// AnonymousName signs posts and messages left without a name.
	AnonymousName = "Anonymous"
	// DefaultPageIcon is the icon of published pages.
	DefaultPageIcon = "MoreHorizontal"
	// DateLayout formats a post's display date.
	DateLayout = "2/1/2006"
)

// Incrementer is the counter operation used for likes.
type Incrementer interface {
	Increment(ctx context.Context, path string) (int64, error)
}

// Options configures a [Service].
type Options struct {
	// SiteName signs administrator posts published as the site.
	SiteName string
	// IsAdmin reports whether the caller in ctx is the administrator. Nil means never.
	IsAdmin func(ctx context.Context) bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service performs community and administration writes.
type Service struct {
	store   store.Store
	counter Incrementer
	opts    Options
	logger  *log.Logger
}

// New creates a Service writing through s.
func New(s store.Store, c Incrementer, opts Options, logger *log.Logger) *Service {
	if opts.IsAdmin == nil {
		opts.IsAdmin = func(context.Context) bool { return false }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: s, counter: c, opts: opts, logger: shared.WithLogger(logger, "component", "community")}
}

// PostEntry adds a community post and returns its id.
//
// Blank text is rejected. A blank name becomes [AnonymousName]; an administrator posting asSite
// signs with the site name. Posts by the administrator are verified.
func (s *Service) PostEntry(ctx context.Context, name, text string, asSite bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: post text", shared.ErrMissingArgument)
	}

	admin := s.opts.IsAdmin(ctx)
	author := authorName(name)
	if admin && asSite && s.opts.SiteName != "" {
		author = s.opts.SiteName
	}

	post := models.CommunityPost{
		AuthorName:       author,
		Text:             text,
		Verified:         admin,
		CreatedAtDisplay: s.opts.Now().Format(DateLayout),
		LikeCount:        0,
	}

	id, err := s.store.Append(ctx, models.PostsCollection, post)
	if err != nil {
		s.logger.Warn("failed to publish post", "author", author, "error", err)
		return "", fmt.Errorf("failed to publish post: %w", err)
	}
	return id, nil
}

// Like adds one like to a post and returns the committed count.
func (s *Service) Like(ctx context.Context, postID string) (int64, error) {
	if strings.TrimSpace(postID) == "" {
		return 0, fmt.Errorf("%w: post id", shared.ErrMissingArgument)
	}
	return s.counter.Increment(ctx, counter.LikePath(postID))
}

// SendMessage delivers a private message to the administrator's inbox.
func (s *Service) SendMessage(ctx context.Context, name, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message text", shared.ErrMissingArgument)
	}

	msg := models.InboxMessage{AuthorName: authorName(name), Text: text}
	id, err := s.store.Append(ctx, models.InboxCollection, msg)
	if err != nil {
		s.logger.Warn("failed to send message", "error", err)
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return id, nil
}

// DeletePost removes a community post.
func (s *Service) DeletePost(ctx context.Context, id string) error {
	return s.delete(ctx, models.PostsCollection, id)
}

// DeleteMessage removes an inbox message.
func (s *Service) DeleteMessage(ctx context.Context, id string) error {
	return s.delete(ctx, models.InboxCollection, id)
}

// AddTrack adds a song to the library. Folder, name and media URL are required; a missing image
// becomes [models.DefaultArtwork].
func (s *Service) AddTrack(ctx context.Context, t models.Track) (string, error) {
	t.ID = ""
	t.Name = strings.TrimSpace(t.Name)
	t.MediaURL = strings.TrimSpace(t.MediaURL)
	t.FolderLabel = strings.TrimSpace(t.FolderLabel)
	t.ImageURL = strings.TrimSpace(t.ImageURL)

	if t.FolderLabel == "" {
		return "", fmt.Errorf("%w: folder", shared.ErrMissingArgument)
	}
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrMissingArgument, err)
	}
	if t.ImageURL == "" {
		t.ImageURL = models.DefaultArtwork
	}

	id, err := s.store.Append(ctx, models.SongsCollection, t)
	if err != nil {
		s.logger.Warn("failed to add track", "track", t.Name, "error", err)
		return "", fmt.Errorf("failed to add track: %w", err)
	}
	s.logger.Info("track added", "id", id, "track", t.Name, "folder", t.FolderLabel)
	return id, nil
}

// DeleteTrack removes a song from the library.
func (s *Service) DeleteTrack(ctx context.Context, id string) error {
	return s.delete(ctx, models.SongsCollection, id)
}

// SetDefaultTrack makes id the hero track.
func (s *Service) SetDefaultTrack(ctx context.Context, id string) error {
	return s.SaveSettings(ctx, models.SettingsPatch{DefaultTrackID: &id})
}

// SaveSettings merges patch into the stored settings. An empty patch writes nothing.
func (s *Service) SaveSettings(ctx context.Context, patch models.SettingsPatch) error {
	if patch.Empty() {
		return nil
	}
	if err := s.store.Merge(ctx, models.SettingsCollection, patch); err != nil {
		s.logger.Warn("failed to save settings", "error", err)
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// PublishPage creates or replaces the page at id. Id and title are required.
func (s *Service) PublishPage(ctx context.Context, id, title, html string) error {
	id, title = strings.TrimSpace(id), strings.TrimSpace(title)
	if id == "" || title == "" {
		return fmt.Errorf("%w: page id and title", shared.ErrMissingArgument)
	}
	if strings.Contains(id, "/") {
		return fmt.Errorf("%w: page id %q", shared.ErrInvalidArgument, id)
	}

	page := models.CustomPage{Title: title, HTMLContent: html, Icon: DefaultPageIcon}
	if err := s.store.Replace(ctx, models.PagesCollection+"/"+id, page); err != nil {
		s.logger.Warn("failed to publish page", "id", id, "error", err)
		return fmt.Errorf("failed to publish page: %w", err)
	}
	return nil
}

// DeletePage removes a custom page.
func (s *Service) DeletePage(ctx context.Context, id string) error {
	return s.delete(ctx, models.PagesCollection, id)
}

func (s *Service) delete(ctx context.Context, collection, id string) error {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: %s id %q", shared.ErrInvalidArgument, collection, id)
	}
	if err := s.store.Delete(ctx, collection+"/"+id); err != nil {
		s.logger.Warn("delete failed", "collection", collection, "id", id, "error", err)
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func authorName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return AnonymousName
}
