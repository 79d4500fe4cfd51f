// Package platform describes the optional capabilities a host may offer the core.
//
// Capabilities are probed once with [Detect] and then treated as present or absent. Code
// holding a nil capability skips the feature instead of failing.
package platform

import (
	"context"
	"sync"
)

// Action is a remote transport command sent by a now-playing surface.
type Action string

const (
	ActionPlay     Action = "play"
	ActionPause    Action = "pause"
	ActionPrevious Action = "previoustrack"
	ActionNext     Action = "nexttrack"
)

// Actions lists every transport command in registration order.
var Actions = []Action{ActionPlay, ActionPause, ActionPrevious, ActionNext}

// Artwork is one image variant for a now-playing display.
type Artwork struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

// Metadata describes the playing track to a now-playing display.
type Metadata struct {
	Title   string    `json:"title"`
	Artist  string    `json:"artist"`
	Album   string    `json:"album"`
	Artwork []Artwork `json:"artwork"`
}

// NowPlayingSurface is a lock-screen style display with transport controls.
//
// SetActionHandler replaces the handler for action; a nil handler removes it.
type NowPlayingSurface interface {
	SetMetadata(m Metadata) error
	SetPlaybackState(playing bool) error
	SetActionHandler(action Action, handler func())
}

// InstallPrompt is a deferred offer to install the site as an application.
//
// Prompt shows the offer and reports whether the user accepted.
type InstallPrompt interface {
	Prompt(ctx context.Context) (accepted bool, err error)
}

// Capabilities holds the capabilities a host provides. Absent ones are nil.
type Capabilities struct {
	NowPlaying NowPlayingSurface
	Install    *Installer
}

// HasNowPlaying reports whether a now-playing surface is available.
func (c Capabilities) HasNowPlaying() bool {
	return c.NowPlaying != nil
}

// Detect probes hosts for capabilities. The first host implementing a capability provides it; nil
// hosts are skipped. An [Installer] is always present since prompts arrive later through
// [Installer.Offer].
func Detect(hosts ...any) Capabilities {
	caps := Capabilities{Install: &Installer{}}
	for _, host := range hosts {
		if host == nil {
			continue
		}
		if s, ok := host.(NowPlayingSurface); ok && caps.NowPlaying == nil {
			caps.NowPlaying = s
		}
		if p, ok := host.(InstallPrompt); ok {
			caps.Install.Offer(p)
		}
	}
	return caps
}

// Installer keeps the most recent install offer until it is triggered.
type Installer struct {
	mu       sync.Mutex
	deferred InstallPrompt
}

// Offer stores p for a later [Installer.Trigger], replacing any earlier offer.
func (i *Installer) Offer(p InstallPrompt) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deferred = p
}

// Available reports whether an offer is waiting.
func (i *Installer) Available() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.deferred != nil
}

// Trigger shows the waiting offer. An accepted offer is consumed; a dismissed one stays available.
// Without an offer Trigger returns false.
func (i *Installer) Trigger(ctx context.Context) (bool, error) {
	i.mu.Lock()
	p := i.deferred
	i.mu.Unlock()

	if p == nil {
		return false, nil
	}

	accepted, err := p.Prompt(ctx)
	if err != nil {
		return false, err
	}
	if accepted {
		i.mu.Lock()
		if i.deferred == p {
			i.deferred = nil
		}
		i.mu.Unlock()
	}
	return accepted, nil
}
