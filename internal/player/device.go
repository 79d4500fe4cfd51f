package player

import (
	"context"
	"math"
)

// EventKind identifies a device event.
type EventKind int

const (
	EventTimeUpdate EventKind = iota
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventTimeUpdate:
		return "time-update"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is emitted by a [Device]. Times are in seconds; Duration is 0 or NaN while unknown.
type Event struct {
	Kind     EventKind
	Current  float64
	Duration float64
}

// Device is an audio output the [Controller] owns exclusively.
//
// Implementations must not call the listener while holding locks taken by their other methods.
type Device interface {
	// SetSource loads url and rewinds to 0 without starting playback.
	SetSource(ctx context.Context, url string) error
	// Play starts or resumes playback. A refusal is reported as [shared.ErrPlaybackRejected].
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	// SetVolume takes a level in [0,1].
	SetVolume(ctx context.Context, level float64) error
	// SetPosition moves the playhead to seconds.
	SetPosition(ctx context.Context, seconds float64) error
	// Times reports the current position and duration in seconds.
	Times() (current, duration float64)
	// Listen installs the event listener, replacing any previous one.
	Listen(fn func(Event))
}

// knownDuration reports whether d is a positive finite duration.
func knownDuration(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
