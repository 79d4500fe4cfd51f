package mirror

import "sync/atomic"

// SessionMarker records whether the current session has been counted as a visit.
type SessionMarker interface {
	Counted() bool
	MarkCounted()
}

// MemoryMarker is a [SessionMarker] that lasts as long as the process.
type MemoryMarker struct {
	counted atomic.Bool
}

// NewMemoryMarker returns an unmarked session.
func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{}
}

func (m *MemoryMarker) Counted() bool { return m.counted.Load() }

func (m *MemoryMarker) MarkCounted() { m.counted.Store(true) }
