// Package counter increments numeric fields through store transactions.
//
// Under N concurrent increments of one path from any number of sessions, the committed value ends
// at base+N: conflicting writes are retried by the store, never lost.
package counter

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

// VisitorCountPath is the site-wide visitor counter.
const VisitorCountPath = "settings/visitorCount"

// LikePath returns the like counter path of a community post.
func LikePath(postID string) string {
	return "diaryPosts/" + postID + "/likeCount"
}

// Service increments counters stored in a [store.Store].
type Service struct {
	store  store.Store
	logger *log.Logger
}

// New creates a Service writing through s.
func New(s store.Store, logger *log.Logger) *Service {
	return &Service{store: s, logger: shared.WithLogger(logger, "component", "counter")}
}

// Increment adds one to the number at path, treating an absent value as 0, and returns the committed value.
//
// Failures are logged and returned; the caller may ignore them since the next snapshot carries the
// canonical count.
func (s *Service) Increment(ctx context.Context, path string) (int64, error) {
	committed, err := s.store.Transact(ctx, path, incrementBy(1))
	if err != nil {
		s.logger.Warn("increment failed", "path", path, "error", err)
		return 0, err
	}

	var n int64
	if err := json.Unmarshal(committed, &n); err != nil {
		return 0, fmt.Errorf("%w: committed value at %s is not a number: %v", shared.ErrInvalidInput, path, err)
	}

	s.logger.Debug("incremented", "path", path, "value", n)
	return n, nil
}

// incrementBy returns a side-effect free update adding delta to the current number.
func incrementBy(delta int64) store.UpdateFunc {
	return func(current json.RawMessage) (any, error) {
		var n int64
		if current != nil {
			if err := json.Unmarshal(current, &n); err != nil {
				return nil, fmt.Errorf("%w: current value is not a number: %v", shared.ErrInvalidInput, err)
			}
		}
		return n + delta, nil
	}
}
