package community

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/pulse/internal/counter"
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
	tu "github.com/desertthunder/pulse/internal/testing"
)

func newService(t *testing.T) (*Service, *store.Local) {
	t.Helper()

	s := tu.NewLocalStore(t)
	logger := shared.NewLogger(io.Discard)
	svc := New(s, counter.New(s, logger), Options{
		SiteName: "AHMED PULSE",
		IsAdmin:  func(ctx context.Context) bool { return s.Rules().IsAdmin(shared.IdentityFrom(ctx)) },
		Now:      func() time.Time { return time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) },
	}, logger)
	return svc, s
}

func decode[T any](t *testing.T, s *store.Local, path string) T {
	t.Helper()
	raw, _, err := s.Get(tu.AdminContext(), path)
	require.NoError(t, err)

	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestPosts(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous post", func(t *testing.T) {
		svc, s := newService(t)

		id, err := svc.PostEntry(ctx, "  ", "  hello world ", true)
		require.NoError(t, err)

		post := decode[models.CommunityPost](t, s, "diaryPosts/"+id)
		assert.Equal(t, AnonymousName, post.AuthorName)
		assert.Equal(t, "hello world", post.Text)
		assert.False(t, post.Verified)
		assert.Equal(t, "7/3/2026", post.CreatedAtDisplay)
		assert.Zero(t, post.LikeCount)
	})

	t.Run("administrator posts as the site", func(t *testing.T) {
		svc, s := newService(t)

		id, err := svc.PostEntry(tu.AdminContext(), "ignored", "news", true)
		require.NoError(t, err)
		post := decode[models.CommunityPost](t, s, "diaryPosts/"+id)
		assert.Equal(t, "AHMED PULSE", post.AuthorName)
		assert.True(t, post.Verified)

		id, err = svc.PostEntry(tu.AdminContext(), "Ahmed", "personal", false)
		require.NoError(t, err)
		post = decode[models.CommunityPost](t, s, "diaryPosts/"+id)
		assert.Equal(t, "Ahmed", post.AuthorName)
		assert.True(t, post.Verified)
	})

	t.Run("blank text rejected", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.PostEntry(ctx, "me", " \n\t", false)
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("likes count up", func(t *testing.T) {
		svc, s := newService(t)
		id, err := svc.PostEntry(ctx, "me", "like me", false)
		require.NoError(t, err)

		for want := int64(1); want <= 3; want++ {
			n, err := svc.Like(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
		assert.Equal(t, uint64(3), decode[models.CommunityPost](t, s, "diaryPosts/"+id).LikeCount)
	})

	t.Run("visitors cannot delete posts", func(t *testing.T) {
		svc, _ := newService(t)
		id, err := svc.PostEntry(ctx, "me", "mine", false)
		require.NoError(t, err)

		err = svc.DeletePost(ctx, id)
		assert.ErrorIs(t, err, shared.ErrPermissionDenied)
		assert.ErrorIs(t, err, shared.ErrRemoteWrite)

		require.NoError(t, svc.DeletePost(tu.AdminContext(), id))
	})
}

func TestMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("send and delete", func(t *testing.T) {
		svc, s := newService(t)

		id, err := svc.SendMessage(ctx, "", "hi there")
		require.NoError(t, err)

		msg := decode[models.InboxMessage](t, s, "inboxMessages/"+id)
		assert.Equal(t, AnonymousName, msg.AuthorName)
		assert.Equal(t, "hi there", msg.Text)

		assert.ErrorIs(t, svc.DeleteMessage(ctx, id), shared.ErrPermissionDenied)
		require.NoError(t, svc.DeleteMessage(tu.AdminContext(), id))
	})

	t.Run("blank message rejected", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.SendMessage(ctx, "me", "   ")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})
}

func TestLibrary(t *testing.T) {
	admin := tu.AdminContext()

	t.Run("add track with default artwork", func(t *testing.T) {
		svc, s := newService(t)

		id, err := svc.AddTrack(admin, models.Track{Name: "Song", MediaURL: "https://cdn.example.com/s.mp3", FolderLabel: "Pop"})
		require.NoError(t, err)

		track := decode[models.Track](t, s, "songs/"+id)
		assert.Equal(t, models.DefaultArtwork, track.ImageURL)
		assert.Equal(t, "Pop", track.FolderLabel)
		assert.Empty(t, track.ID, "id lives in the record key")
	})

	t.Run("required fields", func(t *testing.T) {
		svc, _ := newService(t)

		tc := []models.Track{
			{Name: "Song", MediaURL: "u"},
			{FolderLabel: "Pop", MediaURL: "u"},
			{FolderLabel: "Pop", Name: "Song"},
		}
		for _, tt := range tc {
			_, err := svc.AddTrack(admin, tt)
			assert.ErrorIs(t, err, shared.ErrMissingArgument, "%+v", tt)
		}
	})

	t.Run("visitors cannot add tracks", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.AddTrack(context.Background(), models.Track{Name: "Song", MediaURL: "u", FolderLabel: "Pop"})
		assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	})

	t.Run("default track and settings merge", func(t *testing.T) {
		svc, s := newService(t)

		welcome := "hello"
		require.NoError(t, svc.SaveSettings(admin, models.SettingsPatch{WelcomeText: &welcome}))
		require.NoError(t, svc.SetDefaultTrack(admin, "s1"))
		require.NoError(t, svc.SaveSettings(admin, models.SettingsPatch{}))

		settings := decode[models.SettingsPatch](t, s, "settings")
		require.NotNil(t, settings.WelcomeText)
		require.NotNil(t, settings.DefaultTrackID)
		assert.Equal(t, "hello", *settings.WelcomeText)
		assert.Equal(t, "s1", *settings.DefaultTrackID)
		assert.Nil(t, settings.HeroMode)
	})

	t.Run("delete track", func(t *testing.T) {
		svc, _ := newService(t)
		id, err := svc.AddTrack(admin, models.Track{Name: "Song", MediaURL: "u", FolderLabel: "Pop"})
		require.NoError(t, err)

		require.NoError(t, svc.DeleteTrack(admin, id))
		assert.ErrorIs(t, svc.DeleteTrack(admin, id), shared.ErrNotFound)
		assert.ErrorIs(t, svc.DeleteTrack(admin, ""), shared.ErrInvalidArgument)
	})
}

func TestPages(t *testing.T) {
	admin := tu.AdminContext()

	t.Run("publish replaces the page", func(t *testing.T) {
		svc, s := newService(t)

		require.NoError(t, svc.PublishPage(admin, "about", "About", "<p>one</p>"))
		require.NoError(t, svc.PublishPage(admin, "about", "About us", "<p>two</p>"))

		page := decode[models.CustomPage](t, s, "customPages/about")
		assert.Equal(t, "About us", page.Title)
		assert.Equal(t, "<p>two</p>", page.HTMLContent)
		assert.Equal(t, DefaultPageIcon, page.Icon)

		require.NoError(t, svc.DeletePage(admin, "about"))
	})

	t.Run("validation", func(t *testing.T) {
		svc, _ := newService(t)

		assert.ErrorIs(t, svc.PublishPage(admin, "", "About", ""), shared.ErrMissingArgument)
		assert.ErrorIs(t, svc.PublishPage(admin, "about", " ", ""), shared.ErrMissingArgument)
		assert.ErrorIs(t, svc.PublishPage(admin, "a/b", "About", ""), shared.ErrInvalidArgument)
	})

	t.Run("visitors cannot publish", func(t *testing.T) {
		svc, _ := newService(t)
		err := svc.PublishPage(context.Background(), "about", "About", "")
		assert.True(t, errors.Is(err, shared.ErrPermissionDenied))
	})
}
