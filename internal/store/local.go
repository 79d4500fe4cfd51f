package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/repositories"
	"github.com/desertthunder/pulse/internal/shared"
)

// Local is a [Store] backed by SQLite.
//
// Every operation checks [Rules] against the identity in its context. After each successful write
// the affected collection is re-read and pushed to its subscribers; publishing holds a lock so
// snapshots reach subscribers in the order the writes committed.
type Local struct {
	repo       *repositories.DocumentRepository
	rules      Rules
	hub        *hub
	logger     *log.Logger
	newBackOff func() backoff.BackOff

	publishMu sync.Mutex
}

// NewLocal creates a Local store over db, which must already be migrated.
func NewLocal(db *sql.DB, rules Rules, logger *log.Logger) *Local {
	return &Local{
		repo:       repositories.NewDocumentRepository(db),
		rules:      rules,
		hub:        newHub(),
		logger:     shared.WithLogger(logger, "component", "store"),
		newBackOff: newTransactionBackOff,
	}
}

// Rules returns the access rules the store enforces.
func (l *Local) Rules() Rules {
	return l.rules
}

// Close cancels every live subscription.
func (l *Local) Close() {
	l.hub.closeAll()
}

// Subscribe implements [Store].
func (l *Local) Subscribe(ctx context.Context, collection string, onUpdate func(Snapshot), onError func(error)) Unsubscribe {
	p, err := ParsePath(collection)
	if err == nil && !p.IsCollection() && collection != models.SettingsCollection {
		err = fmt.Errorf("%w: %q is not a collection", shared.ErrInvalidArgument, collection)
	}
	if err != nil {
		return l.refuse(ctx, collection, onUpdate, onError, shared.NewRemoteError("subscribe", collection, shared.KindRead, err))
	}
	if err := l.rules.Allow(shared.IdentityFrom(ctx), OpRead, p); err != nil {
		return l.refuse(ctx, collection, onUpdate, onError, shared.NewRemoteError("subscribe", collection, shared.KindPermission, nil))
	}

	sub := l.hub.add(ctx, collection, onUpdate, onError)

	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	snap, err := l.snapshot(collection)
	if err != nil {
		sub.push(event{err: err})
	} else {
		sub.push(event{snapshot: snap})
	}
	return sub.cancel
}

// refuse reports err to a subscriber that is never registered, so later writes to collection
// are not delivered to it.
func (l *Local) refuse(ctx context.Context, collection string, onUpdate func(Snapshot), onError func(error), err error) Unsubscribe {
	sub := detached(ctx, collection, onUpdate, onError)
	sub.push(event{err: err})
	return sub.cancel
}

// Append implements [Store].
func (l *Local) Append(ctx context.Context, collection string, value any) (string, error) {
	p, err := l.authorize(ctx, "append", collection, OpCreate)
	if err != nil {
		return "", err
	}
	if !p.IsCollection() {
		return "", shared.NewRemoteError("append", collection, shared.KindWrite, fmt.Errorf("%w: append needs a collection path", shared.ErrInvalidArgument))
	}

	raw, err := encode(value)
	if err == nil {
		err = requireObject(raw)
	}
	if err != nil {
		return "", shared.NewRemoteError("append", collection, shared.KindWrite, err)
	}

	doc, err := l.repo.Insert(p.Collection, raw)
	if err != nil {
		return "", shared.NewRemoteError("append", collection, shared.KindWrite, err)
	}

	l.publish(p.Collection)
	return doc.ID, nil
}

// Replace implements [Store].
func (l *Local) Replace(ctx context.Context, path string, value any) error {
	p, err := l.authorize(ctx, "replace", path, OpWrite)
	if err != nil {
		return err
	}
	if p.IsCollection() {
		return shared.NewRemoteError("replace", path, shared.KindWrite, fmt.Errorf("%w: cannot replace a whole collection", shared.ErrInvalidArgument))
	}

	raw, err := encode(value)
	if err != nil {
		return shared.NewRemoteError("replace", path, shared.KindWrite, err)
	}

	if p.IsField() {
		_, err = l.update(ctx, "replace", p, func(json.RawMessage) (any, error) { return raw, nil })
		return err
	}

	if err := requireObject(raw); err != nil {
		return shared.NewRemoteError("replace", path, shared.KindWrite, err)
	}
	if _, err := l.repo.Put(p.Collection, p.ID, raw); err != nil {
		return shared.NewRemoteError("replace", path, shared.KindWrite, err)
	}
	l.publish(p.Collection)
	return nil
}

// Merge implements [Store].
func (l *Local) Merge(ctx context.Context, path string, partial any) error {
	p, err := l.authorize(ctx, "merge", path, OpWrite)
	if err != nil {
		return err
	}
	if p.IsCollection() || p.IsField() {
		return shared.NewRemoteError("merge", path, shared.KindWrite, fmt.Errorf("%w: merge needs a record path", shared.ErrInvalidArgument))
	}

	raw, err := encode(partial)
	if err != nil {
		return shared.NewRemoteError("merge", path, shared.KindWrite, err)
	}

	_, err = l.update(ctx, "merge", p, func(current json.RawMessage) (any, error) {
		merged, err := mergeObject(current, raw)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(merged), nil
	})
	return err
}

// Delete implements [Store].
func (l *Local) Delete(ctx context.Context, path string) error {
	p, err := l.authorize(ctx, "delete", path, OpDelete)
	if err != nil {
		return err
	}
	if p.IsCollection() || (p.Collection == models.SettingsCollection && !p.IsField()) {
		return shared.NewRemoteError("delete", path, shared.KindWrite, fmt.Errorf("%w: cannot delete %s", shared.ErrInvalidArgument, path))
	}

	if p.IsField() {
		_, err = l.update(ctx, "delete", p, func(json.RawMessage) (any, error) { return nil, nil })
		return err
	}

	if err := l.repo.Delete(p.Collection, p.ID); err != nil {
		return shared.NewRemoteError("delete", path, shared.KindWrite, err)
	}
	l.publish(p.Collection)
	return nil
}

// Transact implements [Store].
func (l *Local) Transact(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, error) {
	p, err := l.authorize(ctx, "transact", path, OpWrite)
	if err != nil {
		return nil, err
	}
	if p.IsCollection() {
		return nil, shared.NewRemoteError("transact", path, shared.KindWrite, fmt.Errorf("%w: cannot transact on a collection", shared.ErrInvalidArgument))
	}
	return l.update(ctx, "transact", p, fn)
}

// Get returns the value at a record or field path with the version of its record.
//
// Absent values return a nil value and version 0 when the record is missing.
func (l *Local) Get(ctx context.Context, path string) (json.RawMessage, int64, error) {
	p, err := l.authorize(ctx, "get", path, OpRead)
	if err != nil {
		return nil, 0, err
	}
	if p.IsCollection() {
		return nil, 0, shared.NewRemoteError("get", path, shared.KindRead, fmt.Errorf("%w: get needs a record path", shared.ErrInvalidArgument))
	}
	return l.get(p)
}

// CompareAndSwap writes value at a record or field path if the record is still at version.
//
// Version 0 means the caller saw no record. A nil value removes a field.
func (l *Local) CompareAndSwap(ctx context.Context, path string, version int64, value json.RawMessage) error {
	p, err := l.authorize(ctx, "cas", path, OpWrite)
	if err != nil {
		return err
	}
	if p.IsCollection() {
		return shared.NewRemoteError("cas", path, shared.KindWrite, fmt.Errorf("%w: cas needs a record path", shared.ErrInvalidArgument))
	}
	if string(value) == "null" {
		value = nil
	}
	if err := l.set(p, version, value); err != nil {
		return err
	}
	l.publish(p.Collection)
	return nil
}

func (l *Local) authorize(ctx context.Context, op, path string, access Op) (Path, error) {
	p, err := ParsePath(path)
	if err != nil {
		kind := shared.KindWrite
		if access == OpRead {
			kind = shared.KindRead
		}
		return Path{}, shared.NewRemoteError(op, path, kind, err)
	}
	if err := l.rules.Allow(shared.IdentityFrom(ctx), access, p); err != nil {
		l.logger.Warn("request denied", "op", op, "path", path)
		return Path{}, shared.NewRemoteError(op, path, shared.KindPermission, nil)
	}
	return p, nil
}

// update runs fn as a transaction on p, publishing once it commits.
func (l *Local) update(ctx context.Context, op string, p Path, fn UpdateFunc) (json.RawMessage, error) {
	get := func(context.Context) (json.RawMessage, int64, error) { return l.get(p) }
	set := func(_ context.Context, version int64, value json.RawMessage) error {
		if string(value) == "null" {
			value = nil
		}
		return l.set(p, version, value)
	}

	value, err := retryTransaction(ctx, l.newBackOff(), get, set, fn)
	if err != nil {
		var remote *shared.RemoteError
		if errors.As(err, &remote) {
			return nil, err
		}
		kind := shared.KindWrite
		if errors.Is(err, shared.ErrTransactionConflict) {
			kind = shared.KindConflict
		}
		return nil, shared.NewRemoteError(op, p.String(), kind, err)
	}

	l.publish(p.Collection)
	return value, nil
}

func (l *Local) get(p Path) (json.RawMessage, int64, error) {
	doc, err := l.repo.Get(p.Collection, p.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, shared.NewRemoteError("get", p.String(), shared.KindRead, err)
	}

	if !p.IsField() {
		return doc.Value, doc.Version, nil
	}

	v, err := fieldOf(doc.Value, p.Field)
	if err != nil {
		return nil, 0, shared.NewRemoteError("get", p.String(), shared.KindRead, err)
	}
	return v, doc.Version, nil
}

// set writes value at p under optimistic concurrency without publishing.
//
// Field writes need a live record, except on the settings singleton.
func (l *Local) set(p Path, version int64, value json.RawMessage) error {
	doc := []byte(value)
	if p.IsField() {
		if version == 0 && p.Collection != models.SettingsCollection {
			return shared.NewRemoteError("cas", p.String(), shared.KindWrite, fmt.Errorf("%w: %s/%s", shared.ErrNotFound, p.Collection, p.ID))
		}

		var current []byte
		if version > 0 {
			existing, err := l.repo.Get(p.Collection, p.ID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return shared.NewRemoteError("cas", p.String(), shared.KindWrite, err)
			}
			if existing == nil || existing.Version != version {
				return shared.NewRemoteError("cas", p.String(), shared.KindConflict, nil)
			}
			current = existing.Value
		}

		updated, err := withField(current, p.Field, value)
		if err != nil {
			return shared.NewRemoteError("cas", p.String(), shared.KindWrite, err)
		}
		doc = updated
	} else if value == nil {
		return shared.NewRemoteError("cas", p.String(), shared.KindWrite, fmt.Errorf("%w: record value is required", shared.ErrInvalidInput))
	}

	if _, err := l.repo.CompareAndSwap(p.Collection, p.ID, version, doc); err != nil {
		if errors.Is(err, shared.ErrTransactionConflict) {
			return shared.NewRemoteError("cas", p.String(), shared.KindConflict, err)
		}
		return shared.NewRemoteError("cas", p.String(), shared.KindWrite, err)
	}
	return nil
}

// publish pushes the current contents of collection to its subscribers.
func (l *Local) publish(collection string) {
	subs := l.hub.subscribers(collection)
	if len(subs) == 0 {
		return
	}

	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	snap, err := l.snapshot(collection)
	if err != nil {
		l.logger.Error("failed to build snapshot", "collection", collection, "error", err)
		for _, sub := range subs {
			sub.push(event{err: err})
		}
		return
	}

	for _, sub := range l.hub.subscribers(collection) {
		sub.push(event{snapshot: snap})
	}
}

func (l *Local) snapshot(collection string) (*Snapshot, error) {
	docs, err := l.repo.List(collection)
	if err != nil {
		return nil, shared.NewRemoteError("subscribe", collection, shared.KindRead, err)
	}

	snap := &Snapshot{Collection: collection, Records: make([]Record, 0, len(docs))}
	for _, doc := range docs {
		snap.Records = append(snap.Records, Record{ID: doc.ID, Value: doc.Value})
	}
	return snap, nil
}
