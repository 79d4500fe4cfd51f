package connectivity

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/pulse/internal/shared"
)

func newMonitor(t *testing.T, debounce, notice int) *Monitor {
	t.Helper()
	m := NewMonitor(shared.ConnectivityConfig{OfflineDebounceMS: debounce, ReconnectedNoticeMS: notice}, shared.NewLogger(io.Discard))
	t.Cleanup(m.Stop)
	return m
}

func TestMonitor(t *testing.T) {
	t.Run("starts online", func(t *testing.T) {
		m := newMonitor(t, 20, 50)
		assert.Equal(t, Status{}, m.Status())
	})

	t.Run("offline after debounce", func(t *testing.T) {
		m := newMonitor(t, 30, 50)

		m.WentOffline()
		assert.False(t, m.Status().Offline, "offline must wait for the debounce")

		require.Eventually(t, func() bool { return m.Status().Offline }, time.Second, 5*time.Millisecond)
	})

	t.Run("blip shorter than debounce is ignored", func(t *testing.T) {
		m := newMonitor(t, 50, 20)

		m.WentOffline()
		m.WentOnline()

		time.Sleep(100 * time.Millisecond)
		assert.False(t, m.Status().Offline)
	})

	t.Run("online clears immediately and notice self clears", func(t *testing.T) {
		m := newMonitor(t, 5, 40)

		m.WentOffline()
		require.Eventually(t, func() bool { return m.Status().Offline }, time.Second, time.Millisecond)

		m.WentOnline()
		assert.Equal(t, Status{Offline: false, Reconnected: true}, m.Status())

		require.Eventually(t, func() bool { return !m.Status().Reconnected }, time.Second, 5*time.Millisecond)
	})

	t.Run("new online signal restarts the notice", func(t *testing.T) {
		m := newMonitor(t, 5, 80)

		m.WentOnline()
		time.Sleep(50 * time.Millisecond)
		m.WentOnline()
		time.Sleep(50 * time.Millisecond)

		assert.True(t, m.Status().Reconnected, "second signal should extend the notice")
		require.Eventually(t, func() bool { return !m.Status().Reconnected }, time.Second, 5*time.Millisecond)
	})

	t.Run("listeners see each change", func(t *testing.T) {
		m := newMonitor(t, 5, 20)

		var (
			mu   sync.Mutex
			seen []Status
		)
		m.OnChange(func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
		})

		m.WentOffline()
		require.Eventually(t, func() bool { return m.Status().Offline }, time.Second, time.Millisecond)
		m.WentOnline()
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(seen) == 3
		}, time.Second, 5*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []Status{{Offline: true}, {Reconnected: true}, {}}, seen)
	})
}
