package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/desertthunder/pulse/internal/shared"
)

// ConnectionObserver is told when the connection to the server drops and comes back.
type ConnectionObserver interface {
	WentOffline()
	WentOnline()
}

// Remote is a [Store] talking to a sync server over a websocket.
//
// [Remote.Run] owns the connection: it dials, redials with exponential backoff after a drop and
// re-sends every live subscription once connected again. Requests issued while disconnected fail
// with [shared.ErrServiceUnavailable].
type Remote struct {
	url     string
	token   *oauth2.Token
	timeout time.Duration
	logger  *log.Logger

	nextID atomic.Uint64
	hub    *hub

	mu        sync.Mutex
	conn      *websocket.Conn
	pending   map[uint64]chan Frame
	observers []ConnectionObserver
	ready     chan struct{}
}

// NewRemote creates a Remote for the server described by cfg. Call [Remote.Run] to connect.
func NewRemote(cfg shared.ClientConfig, logger *log.Logger) *Remote {
	r := &Remote{
		url:     cfg.URL,
		timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond,
		logger:  shared.WithLogger(logger, "component", "remote"),
		hub:     newHub(),
		pending: make(map[uint64]chan Frame),
		ready:   make(chan struct{}),
	}
	if cfg.Token != "" {
		r.token = &oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	return r
}

// Observe registers obs for connection changes.
func (r *Remote) Observe(obs ConnectionObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, obs)
}

// Ready returns a channel closed after the first successful connection.
func (r *Remote) Ready() <-chan struct{} {
	return r.ready
}

// Run connects to the server and keeps reconnecting until ctx ends.
func (r *Remote) Run(ctx context.Context) error {
	defer r.hub.closeAll()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	var (
		readyOnce sync.Once
		offline   bool
	)
	wentOffline := func(err error, _ time.Duration) {
		if !offline {
			offline = true
			r.logger.Warn("server unreachable", "url", r.url, "error", err)
			r.notify(false)
		}
	}

	for {
		conn, err := backoff.RetryNotifyWithData(func() (*websocket.Conn, error) {
			return r.dial(ctx)
		}, backoff.WithContext(b, ctx), wentOffline)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to connect to %s: %w", r.url, err)
		}

		r.attach(conn)
		readyOnce.Do(func() { close(r.ready) })
		r.logger.Info("connected", "url", r.url)
		if offline {
			offline = false
			r.notify(true)
		}
		go r.resubscribe(ctx)

		err = r.readLoop(ctx, conn)
		r.detach(conn)
		if ctx.Err() != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}

		wentOffline(err, 0)
		b.Reset()
	}
}

func (r *Remote) dial(ctx context.Context) (*websocket.Conn, error) {
	header := authHeader(r.token)

	dialCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, r.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		r.logger.Debug("dial failed", "url", r.url, "error", err)
		return nil, err
	}
	conn.SetReadLimit(8 << 20)
	return conn, nil
}

// authHeader returns the handshake headers carrying token, if any.
func authHeader(token *oauth2.Token) http.Header {
	req := &http.Request{Header: http.Header{}}
	if token != nil {
		token.SetAuthHeader(req)
	}
	return req.Header
}

func (r *Remote) attach(conn *websocket.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
}

// detach forgets conn and fails every request still waiting on it.
func (r *Remote) detach(conn *websocket.Conn) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	pending := r.pending
	r.pending = make(map[uint64]chan Frame)
	r.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

func (r *Remote) notify(online bool) {
	r.mu.Lock()
	observers := append([]ConnectionObserver(nil), r.observers...)
	r.mu.Unlock()

	for _, obs := range observers {
		if online {
			obs.WentOnline()
		} else {
			obs.WentOffline()
		}
	}
}

func (r *Remote) resubscribe(ctx context.Context) {
	for _, sub := range r.hub.all() {
		if err := r.sendSubscribe(ctx, sub); err != nil {
			sub.push(event{err: err})
		}
	}
}

func (r *Remote) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			r.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		if f.Sub != 0 && (f.Op == WireSnapshot || (f.Op == WireError && f.ID == 0)) {
			sub, ok := r.hub.get(f.Sub)
			if !ok {
				continue
			}
			if f.Op == WireSnapshot && f.Snapshot != nil {
				sub.push(event{snapshot: f.Snapshot})
			} else if f.Error != nil {
				sub.push(event{err: f.Error.remoteError("subscribe", sub.collection)})
			}
			continue
		}

		r.mu.Lock()
		ch, ok := r.pending[f.ID]
		delete(r.pending, f.ID)
		r.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

// call sends req and waits for its reply.
func (r *Remote) call(ctx context.Context, req Frame) (Frame, error) {
	r.mu.Lock()
	conn := r.conn
	if conn == nil {
		r.mu.Unlock()
		return Frame{}, shared.NewRemoteError(req.Op, req.Path, shared.KindUnavailable, nil)
	}
	req.ID = r.nextID.Add(1)
	ch := make(chan Frame, 1)
	r.pending[req.ID] = ch
	r.mu.Unlock()

	forget := func() {
		r.mu.Lock()
		delete(r.pending, req.ID)
		r.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := json.Marshal(req)
	if err != nil {
		forget()
		return Frame{}, shared.NewRemoteError(req.Op, req.Path, shared.KindWrite, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		forget()
		return Frame{}, shared.NewRemoteError(req.Op, req.Path, shared.KindUnavailable, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return Frame{}, shared.NewRemoteError(req.Op, req.Path, shared.KindUnavailable, errors.New("connection closed"))
		}
		if reply.Op == WireError && reply.Error != nil {
			return Frame{}, reply.Error.remoteError(req.Op, req.Path)
		}
		return reply, nil
	case <-ctx.Done():
		forget()
		return Frame{}, shared.NewRemoteError(req.Op, req.Path, shared.KindUnavailable, fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err()))
	}
}

func (r *Remote) sendSubscribe(ctx context.Context, sub *subscription) error {
	_, err := r.call(ctx, Frame{Op: WireSubscribe, Sub: sub.id, Path: sub.collection})
	return err
}

// Subscribe implements [Store]. Subscriptions made while disconnected attach on the next connect.
func (r *Remote) Subscribe(ctx context.Context, collection string, onUpdate func(Snapshot), onError func(error)) Unsubscribe {
	sub := r.hub.add(ctx, collection, onUpdate, onError)

	r.mu.Lock()
	connected := r.conn != nil
	r.mu.Unlock()

	if connected {
		if err := r.sendSubscribe(ctx, sub); err != nil {
			sub.push(event{err: err})
		}
	}

	return func() {
		if _, live := r.hub.get(sub.id); !live {
			return
		}
		sub.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.call(ctx, Frame{Op: WireUnsubscribe, Sub: sub.id}); err != nil {
			r.logger.Debug("unsubscribe not delivered", "collection", collection, "error", err)
		}
	}
}

// Append implements [Store].
func (r *Remote) Append(ctx context.Context, collection string, value any) (string, error) {
	raw, err := encode(value)
	if err != nil {
		return "", shared.NewRemoteError(WireAppend, collection, shared.KindWrite, err)
	}

	reply, err := r.call(ctx, Frame{Op: WireAppend, Path: collection, Value: raw})
	if err != nil {
		return "", err
	}

	var id string
	if err := json.Unmarshal(reply.Value, &id); err != nil {
		return "", shared.NewRemoteError(WireAppend, collection, shared.KindWrite, err)
	}
	return id, nil
}

// Replace implements [Store].
func (r *Remote) Replace(ctx context.Context, path string, value any) error {
	raw, err := encode(value)
	if err != nil {
		return shared.NewRemoteError(WireReplace, path, shared.KindWrite, err)
	}
	_, err = r.call(ctx, Frame{Op: WireReplace, Path: path, Value: raw})
	return err
}

// Merge implements [Store].
func (r *Remote) Merge(ctx context.Context, path string, partial any) error {
	raw, err := encode(partial)
	if err != nil {
		return shared.NewRemoteError(WireMerge, path, shared.KindWrite, err)
	}
	_, err = r.call(ctx, Frame{Op: WireMerge, Path: path, Value: raw})
	return err
}

// Delete implements [Store].
func (r *Remote) Delete(ctx context.Context, path string) error {
	_, err := r.call(ctx, Frame{Op: WireDelete, Path: path})
	return err
}

// Transact implements [Store] with get and cas round trips, retrying on conflict.
func (r *Remote) Transact(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, error) {
	get := func(ctx context.Context) (json.RawMessage, int64, error) {
		reply, err := r.call(ctx, Frame{Op: WireGet, Path: path})
		if err != nil {
			return nil, 0, err
		}
		if len(reply.Value) == 0 || string(reply.Value) == "null" {
			return nil, reply.Version, nil
		}
		return reply.Value, reply.Version, nil
	}
	set := func(ctx context.Context, version int64, value json.RawMessage) error {
		_, err := r.call(ctx, Frame{Op: WireCAS, Path: path, Version: version, Value: value})
		return err
	}

	value, err := retryTransaction(ctx, newTransactionBackOff(), get, set, fn)
	if err != nil {
		var remote *shared.RemoteError
		if errors.As(err, &remote) {
			return nil, err
		}
		return nil, shared.NewRemoteError("transact", path, shared.KindWrite, err)
	}
	return value, nil
}
