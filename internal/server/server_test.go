package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/nowplaying"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
	tu "github.com/desertthunder/pulse/internal/testing"
)

const adminToken = "s3cret"

func testConfig() *shared.Config {
	cfg := shared.DefaultConfig()
	cfg.Admin = shared.AdminConfig{Email: tu.AdminEmail, Token: adminToken}
	return cfg
}

func newTestServer(t *testing.T) (*httptest.Server, *nowplaying.WSSurface) {
	t.Helper()

	logger := shared.NewLogger(io.Discard)
	surface := nowplaying.NewWSSurface(logger)
	srv := httptest.NewServer(New(testConfig(), tu.NewLocalStore(t), surface, logger))
	t.Cleanup(srv.Close)
	return srv, surface
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func connect(t *testing.T, url, token string) *store.Remote {
	t.Helper()

	r := store.NewRemote(shared.ClientConfig{URL: url, Token: token, RequestTimeout: 2000}, shared.NewLogger(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-r.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	return r
}

func TestIdentity(t *testing.T) {
	admin := shared.AdminConfig{Email: tu.AdminEmail, Token: adminToken}

	tests := []struct {
		name     string
		header   string
		status   int
		identity string
	}{
		{name: "anonymous", header: "", status: http.StatusOK, identity: ""},
		{name: "admin token", header: "Bearer " + adminToken, status: http.StatusOK, identity: tu.AdminEmail},
		{name: "scheme is case insensitive", header: "bearer " + adminToken, status: http.StatusOK, identity: tu.AdminEmail},
		{name: "wrong token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + adminToken, status: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Identity(admin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = shared.IdentityFrom(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/sync", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if got != tt.identity {
				t.Errorf("expected identity %q, got %q", tt.identity, got)
			}
		})
	}

	t.Run("no admin token configured", func(t *testing.T) {
		h := Identity(shared.AdminConfig{Email: tu.AdminEmail})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("handler should not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/sync", nil)
		req.Header.Set("Authorization", "Bearer anything")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRouter(t *testing.T) {
	t.Run("middleware runs in the order added", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("first"), mark("second"))
		r.HandleFunc(http.MethodGet, "/x", func(http.ResponseWriter, *http.Request) { order = append(order, "handler") })

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, []string{"first", "second", "handler"}, order)
	})

	t.Run("method mismatch", func(t *testing.T) {
		r := NewBasicRouter()
		r.HandleFunc(http.MethodGet, "/x", func(http.ResponseWriter, *http.Request) {})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("recover", func(t *testing.T) {
		r := NewBasicRouter()
		r.Use(Recover(shared.NewLogger(io.Discard)))
		r.HandleFunc(http.MethodGet, "/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestServer(t *testing.T) {
	ctx := context.Background()

	t.Run("health", func(t *testing.T) {
		srv, _ := newTestServer(t)

		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body healthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body.Status)
		assert.Zero(t, body.Clients)
	})

	t.Run("administrator writes over sync", func(t *testing.T) {
		srv, _ := newTestServer(t)
		r := connect(t, wsURL(srv, "/sync"), adminToken)

		id, err := r.Append(ctx, models.SongsCollection, models.Track{Name: "One", MediaURL: "u", FolderLabel: "Pop"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		require.NoError(t, r.Merge(ctx, models.SettingsCollection, models.SettingsPatch{DefaultTrackID: &id}))
	})

	t.Run("visitors are held to the rules", func(t *testing.T) {
		srv, _ := newTestServer(t)
		r := connect(t, wsURL(srv, "/sync"), "")

		_, err := r.Append(ctx, models.SongsCollection, models.Track{Name: "One", MediaURL: "u"})
		assert.ErrorIs(t, err, shared.ErrPermissionDenied)

		_, err = r.Append(ctx, models.PostsCollection, models.CommunityPost{AuthorName: "me", Text: "hi"})
		assert.NoError(t, err)
	})

	t.Run("wrong token is refused before upgrade", func(t *testing.T) {
		srv, _ := newTestServer(t)

		dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_, resp, err := websocket.Dial(dialCtx, wsURL(srv, "/sync"), &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer wrong"}},
		})
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("now playing clients", func(t *testing.T) {
		srv, surface := newTestServer(t)
		require.NoError(t, surface.SetMetadata(nowplaying.MetadataFor(models.Track{ID: "1", Name: "Live"}, "Artist")))

		dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		conn, _, err := websocket.Dial(dialCtx, wsURL(srv, "/nowplaying"), nil)
		require.NoError(t, err)
		defer conn.CloseNow()

		_, data, err := conn.Read(dialCtx)
		require.NoError(t, err)
		var f nowplaying.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		require.NotNil(t, f.Metadata)
		assert.Equal(t, "Live", f.Metadata.Title)

		require.Eventually(t, func() bool { return surface.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	})
}
