// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

const AdminEmail = "admin@example.com"

// NewLocalStore creates a [store.Local] over a migrated in-memory database with [AdminEmail] as administrator.
func NewLocalStore(t *testing.T) *store.Local {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	l := store.NewLocal(db, store.Rules{AdminEmail: AdminEmail}, shared.NewLogger(io.Discard))
	t.Cleanup(func() {
		l.Close()
		db.Close()
	})
	return l
}

// AdminContext returns a context carrying the administrator identity.
func AdminContext() context.Context {
	return shared.WithIdentity(context.Background(), AdminEmail)
}

// Subscription is one subscription captured by [FakeStore].
type Subscription struct {
	Collection string
	OnUpdate   func(store.Snapshot)
	OnError    func(error)

	mu             sync.Mutex
	unsubscribeCnt int
}

// Unsubscribed reports how many times the subscription was cancelled.
func (s *Subscription) Unsubscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribeCnt
}

// FakeStore is a [store.Store] that never delivers on its own; tests fire the captured callbacks directly.
//
// Writes are recorded and answered with Err when set.
type FakeStore struct {
	Err error

	mu     sync.Mutex
	subs   []*Subscription
	writes []string
}

func (f *FakeStore) Subscribe(ctx context.Context, collection string, onUpdate func(store.Snapshot), onError func(error)) store.Unsubscribe {
	sub := &Subscription{Collection: collection, OnUpdate: onUpdate, OnError: onError}

	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	return func() {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		sub.unsubscribeCnt++
	}
}

// Subscriptions returns every subscription made so far, oldest first.
func (f *FakeStore) Subscriptions() []*Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Subscription(nil), f.subs...)
}

// Latest returns the newest subscription to collection.
func (f *FakeStore) Latest(collection string) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].Collection == collection {
			return f.subs[i]
		}
	}
	return nil
}

// Writes returns the recorded write operations as "op path" strings.
func (f *FakeStore) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *FakeStore) record(op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, op+" "+path)
	return f.Err
}

func (f *FakeStore) Append(ctx context.Context, collection string, value any) (string, error) {
	if err := f.record("append", collection); err != nil {
		return "", err
	}
	return shared.GenerateID(), nil
}

func (f *FakeStore) Replace(ctx context.Context, path string, value any) error {
	return f.record("replace", path)
}

func (f *FakeStore) Merge(ctx context.Context, path string, partial any) error {
	return f.record("merge", path)
}

func (f *FakeStore) Delete(ctx context.Context, path string) error {
	return f.record("delete", path)
}

func (f *FakeStore) Transact(ctx context.Context, path string, fn store.UpdateFunc) (json.RawMessage, error) {
	if err := f.record("transact", path); err != nil {
		return nil, err
	}
	v, err := fn(nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Snapshot builds a snapshot of collection from id/value pairs, encoding each value as JSON.
func Snapshot(t *testing.T, collection string, records ...any) store.Snapshot {
	t.Helper()

	if len(records)%2 != 0 {
		t.Fatalf("Snapshot needs id/value pairs, got %d arguments", len(records))
	}

	snap := store.Snapshot{Collection: collection, Records: []store.Record{}}
	for i := 0; i < len(records); i += 2 {
		id, ok := records[i].(string)
		if !ok {
			t.Fatalf("Record id at %d is not a string", i)
		}
		value, err := json.Marshal(records[i+1])
		if err != nil {
			t.Fatalf("Failed to encode record %s: %v", id, err)
		}
		snap.Records = append(snap.Records, store.Record{ID: id, Value: value})
	}
	return snap
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
