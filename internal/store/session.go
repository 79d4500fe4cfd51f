package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/shared"
)

// ServeConn speaks the [Frame] protocol on conn until the peer disconnects or ctx ends.
//
// Requests are handled in arrival order with the identity carried by ctx. Every subscription opened
// on the connection is cancelled when ServeConn returns.
func (l *Local) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &session{local: l, conn: conn, subs: make(map[uint64]Unsubscribe)}
	defer s.closeAll()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		var req Frame
		if err := json.Unmarshal(data, &req); err != nil {
			l.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		if reply := s.handle(ctx, req); reply != nil {
			if err := s.write(ctx, *reply); err != nil {
				return err
			}
		}
	}
}

type session struct {
	local *Local
	conn  *websocket.Conn

	mu   sync.Mutex
	subs map[uint64]Unsubscribe
}

func (s *session) handle(ctx context.Context, req Frame) *Frame {
	reply := func(value json.RawMessage, version int64, err error) *Frame {
		if err != nil {
			return &Frame{Op: WireError, ID: req.ID, Path: req.Path, Error: toFrameError(err)}
		}
		return &Frame{Op: WireResult, ID: req.ID, Path: req.Path, Value: value, Version: version}
	}

	switch req.Op {
	case WireSubscribe:
		s.subscribe(ctx, req)
		return reply(nil, 0, nil)
	case WireUnsubscribe:
		s.unsubscribe(req.Sub)
		return reply(nil, 0, nil)
	case WireAppend:
		id, err := s.local.Append(ctx, req.Path, req.Value)
		if err != nil {
			return reply(nil, 0, err)
		}
		raw, _ := json.Marshal(id)
		return reply(raw, 0, nil)
	case WireReplace:
		return reply(nil, 0, s.local.Replace(ctx, req.Path, req.Value))
	case WireMerge:
		return reply(nil, 0, s.local.Merge(ctx, req.Path, req.Value))
	case WireDelete:
		return reply(nil, 0, s.local.Delete(ctx, req.Path))
	case WireGet:
		return reply(s.local.Get(ctx, req.Path))
	case WireCAS:
		return reply(nil, 0, s.local.CompareAndSwap(ctx, req.Path, req.Version, req.Value))
	default:
		err := fmt.Errorf("%w: unknown op %q", shared.ErrInvalidArgument, req.Op)
		return reply(nil, 0, shared.NewRemoteError(req.Op, req.Path, shared.KindWrite, err))
	}
}

func (s *session) subscribe(ctx context.Context, req Frame) {
	sub := req.Sub
	onUpdate := func(snap Snapshot) {
		if err := s.write(ctx, Frame{Op: WireSnapshot, Sub: sub, Path: req.Path, Snapshot: &snap}); err != nil {
			s.local.logger.Debug("failed to push snapshot", "sub", sub, "error", err)
		}
	}
	onError := func(err error) {
		if err := s.write(ctx, Frame{Op: WireError, Sub: sub, Path: req.Path, Error: toFrameError(err)}); err != nil {
			s.local.logger.Debug("failed to push subscription error", "sub", sub, "error", err)
		}
	}

	unsubscribe := s.local.Subscribe(ctx, req.Path, onUpdate, onError)

	s.mu.Lock()
	prev, exists := s.subs[sub]
	s.subs[sub] = unsubscribe
	s.mu.Unlock()

	if exists {
		prev()
	}
}

func (s *session) unsubscribe(sub uint64) {
	s.mu.Lock()
	unsubscribe, ok := s.subs[sub]
	delete(s.subs, sub)
	s.mu.Unlock()

	if ok {
		unsubscribe()
	}
}

func (s *session) closeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[uint64]Unsubscribe)
	s.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
}

func (s *session) write(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
