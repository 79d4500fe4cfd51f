// Package connectivity turns raw online/offline signals into presentation state.
//
// An offline signal only takes effect after a debounce, and an online signal arriving first
// cancels it. Going online always raises a reconnected notice that clears itself. Nothing in the
// core reads this state; writes made while offline simply fail and are reported.
package connectivity

import (
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/pulse/internal/shared"
)

// Status is what presentation shows.
type Status struct {
	Offline     bool
	Reconnected bool
}

// Monitor implements the connection observer of [store.Remote].
type Monitor struct {
	debounce time.Duration
	notice   time.Duration
	logger   *log.Logger

	mu           sync.Mutex
	status       Status
	offlineTimer *time.Timer
	noticeTimer  *time.Timer
	listeners    []func(Status)
}

// NewMonitor creates a Monitor that starts online.
func NewMonitor(cfg shared.ConnectivityConfig, logger *log.Logger) *Monitor {
	return &Monitor{
		debounce: cfg.OfflineDebounce(),
		notice:   cfg.ReconnectedNotice(),
		logger:   shared.WithLogger(logger, "component", "connectivity"),
	}
}

// Status returns the current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnChange registers fn to run after every status change. fn runs on a timer goroutine or the
// signalling goroutine and must not block.
func (m *Monitor) OnChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// WentOffline schedules the offline state after the debounce. Repeated signals do not extend it.
func (m *Monitor) WentOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.Offline || m.offlineTimer != nil {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		if m.offlineTimer != timer {
			m.mu.Unlock()
			return
		}
		m.offlineTimer = nil
		m.status.Offline = true
		m.logger.Warn("offline")
		m.changed()
	})
	m.offlineTimer = timer
}

// WentOnline clears the offline state immediately and raises the reconnected notice.
func (m *Monitor) WentOnline() {
	m.mu.Lock()

	if m.offlineTimer != nil {
		m.offlineTimer.Stop()
		m.offlineTimer = nil
	}
	if m.noticeTimer != nil {
		m.noticeTimer.Stop()
	}

	m.status = Status{Offline: false, Reconnected: true}
	m.logger.Info("back online")

	var timer *time.Timer
	timer = time.AfterFunc(m.notice, func() {
		m.mu.Lock()
		if m.noticeTimer != timer {
			m.mu.Unlock()
			return
		}
		m.noticeTimer = nil
		m.status.Reconnected = false
		m.changed()
	})
	m.noticeTimer = timer

	m.changed()
}

// Stop cancels pending timers.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offlineTimer != nil {
		m.offlineTimer.Stop()
		m.offlineTimer = nil
	}
	if m.noticeTimer != nil {
		m.noticeTimer.Stop()
		m.noticeTimer = nil
	}
}

// changed releases m.mu and notifies listeners with the new status.
func (m *Monitor) changed() {
	status := m.status
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}
