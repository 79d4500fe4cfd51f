package store

import (
	"context"
	"sync"
)

// event is one queued delivery: a snapshot or an error.
type event struct {
	snapshot *Snapshot
	err      error
}

// subscription delivers events to one subscriber in order on its own goroutine.
//
// Events queued after cancel are dropped. A callback already running when cancel is called is
// allowed to finish; subscribers must not rely on cancel waiting for it.
type subscription struct {
	id         uint64
	collection string
	onUpdate   func(Snapshot)
	onError    func(error)

	mu     sync.Mutex
	queue  []event
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	remove func(uint64)
}

func newSubscription(id uint64, collection string, onUpdate func(Snapshot), onError func(error), remove func(uint64)) *subscription {
	return &subscription{
		id:         id,
		collection: collection,
		onUpdate:   onUpdate,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		remove:     remove,
	}
}

// start runs the delivery loop until the subscription is cancelled or ctx ends.
func (s *subscription) start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				s.cancel()
				return
			case <-s.wake:
			}

			for {
				ev, ok := s.pop()
				if !ok {
					break
				}
				s.deliver(ev)
			}
		}
	}()
}

func (s *subscription) push(ev event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		s.queue = nil
		return event{}, false
	default:
	}

	if len(s.queue) == 0 {
		return event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscription) deliver(ev event) {
	switch {
	case ev.err != nil:
		if s.onError != nil {
			s.onError(ev.err)
		}
	case ev.snapshot != nil:
		if s.onUpdate != nil {
			s.onUpdate(*ev.snapshot)
		}
	}
}

// cancel stops delivery and detaches the subscription. Safe to call repeatedly.
func (s *subscription) cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.queue = nil
		s.mu.Unlock()
		if s.remove != nil {
			s.remove(s.id)
		}
	})
}

// hub tracks live subscriptions by collection.
type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*subscription)}
}

// add registers a subscription and starts its delivery loop.
func (h *hub) add(ctx context.Context, collection string, onUpdate func(Snapshot), onError func(error)) *subscription {
	h.mu.Lock()
	h.nextID++
	sub := newSubscription(h.nextID, collection, onUpdate, onError, h.remove)
	h.subs[sub.id] = sub
	h.mu.Unlock()

	sub.start(ctx)
	return sub
}

// detached starts a subscription that never joins a hub, used to report a refused subscribe.
func detached(ctx context.Context, collection string, onUpdate func(Snapshot), onError func(error)) *subscription {
	sub := newSubscription(0, collection, onUpdate, onError, nil)
	sub.start(ctx)
	return sub
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// get returns the live subscription with id, if any.
func (h *hub) get(id uint64) (*subscription, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	return sub, ok
}

// subscribers returns the live subscriptions to collection.
func (h *hub) subscribers(collection string) []*subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*subscription
	for _, sub := range h.subs {
		if sub.collection == collection {
			out = append(out, sub)
		}
	}
	return out
}

// all returns every live subscription.
func (h *hub) all() []*subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		out = append(out, sub)
	}
	return out
}

// closeAll cancels every subscription.
func (h *hub) closeAll() {
	for _, sub := range h.all() {
		sub.cancel()
	}
}
