package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// Store is the document store contract shared by [Local] and [Remote].
//
// Every error returned is a [*shared.RemoteError]; none of them is fatal to the caller.
type Store interface {
	// Subscribe opens a live subscription to a collection. onUpdate receives the full collection
	// on attach and after every change; onError receives read failures. The returned function
	// cancels the subscription and is safe to call more than once.
	Subscribe(ctx context.Context, collection string, onUpdate func(Snapshot), onError func(error)) Unsubscribe

	// Append adds value to a collection under a generated id and returns that id.
	Append(ctx context.Context, collection string, value any) (string, error)

	// Replace overwrites the record or field at path.
	Replace(ctx context.Context, path string, value any) error

	// Merge writes the top-level fields of partial over the record at path.
	Merge(ctx context.Context, path string, partial any) error

	// Delete removes the record or field at path.
	Delete(ctx context.Context, path string) error

	// Transact runs an optimistic read-modify-write on path and returns the committed value.
	Transact(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, error)
}

var (
	_ Store = (*Local)(nil)
	_ Store = (*Remote)(nil)
)

// UpdateFunc computes the new value at a path from the current one.
//
// current is nil when nothing is stored. The function may be called several times for one
// transaction and must not have side effects.
type UpdateFunc func(current json.RawMessage) (any, error)

// Unsubscribe cancels a subscription.
type Unsubscribe func()

// Record is one entry of a [Snapshot].
type Record struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// Snapshot is the full contents of a collection at one point in time, in insertion order.
type Snapshot struct {
	Collection string   `json:"collection"`
	Records    []Record `json:"records"`
}

// Decode unmarshals every record of s into a T, setting the id through setID when non-nil.
//
// Records that fail to decode are skipped and reported through the returned error.
func Decode[T any](s Snapshot, setID func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(s.Records))
	var errs []string
	for _, rec := range s.Records {
		var v T
		if err := json.Unmarshal(rec.Value, &v); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", rec.ID, err))
			continue
		}
		if setID != nil {
			setID(&v, rec.ID)
		}
		out = append(out, v)
	}

	if len(errs) > 0 {
		return out, fmt.Errorf("%w: undecodable records in %s: %s", shared.ErrInvalidInput, s.Collection, strings.Join(errs, "; "))
	}
	return out, nil
}

// Path is a parsed store path.
type Path struct {
	Collection string
	ID         string
	Field      string
}

// ParsePath parses "collection", "collection/id" or "collection/id/field".
//
// Paths into the settings collection name a field of the singleton record: "settings/visitorCount".
func ParsePath(raw string) (Path, error) {
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if slices.Contains(parts, "") {
		return Path{}, fmt.Errorf("%w: empty path segment in %q", shared.ErrInvalidArgument, raw)
	}
	if !slices.Contains(models.Collections, parts[0]) {
		return Path{}, fmt.Errorf("%w: unknown collection %q", shared.ErrInvalidArgument, parts[0])
	}

	p := Path{Collection: parts[0]}
	if p.Collection == models.SettingsCollection {
		p.ID = models.SettingsID
		switch len(parts) {
		case 1:
		case 2:
			p.Field = parts[1]
		default:
			return Path{}, fmt.Errorf("%w: too many segments in %q", shared.ErrInvalidArgument, raw)
		}
		return p, nil
	}

	switch len(parts) {
	case 1:
	case 2:
		p.ID = parts[1]
	case 3:
		p.ID, p.Field = parts[1], parts[2]
	default:
		return Path{}, fmt.Errorf("%w: too many segments in %q", shared.ErrInvalidArgument, raw)
	}
	return p, nil
}

// IsCollection reports whether p names a whole collection. The settings path always names its record.
func (p Path) IsCollection() bool {
	return p.ID == ""
}

// IsField reports whether p names a single field of a record.
func (p Path) IsField() bool {
	return p.Field != ""
}

func (p Path) String() string {
	switch {
	case p.Collection == models.SettingsCollection && p.Field != "":
		return p.Collection + "/" + p.Field
	case p.Collection == models.SettingsCollection:
		return p.Collection
	case p.Field != "":
		return p.Collection + "/" + p.ID + "/" + p.Field
	case p.ID != "":
		return p.Collection + "/" + p.ID
	default:
		return p.Collection
	}
}

// RecordPath returns p without its field.
func (p Path) RecordPath() Path {
	return Path{Collection: p.Collection, ID: p.ID}
}

// fieldOf returns the raw value of field in the JSON object doc, or nil when absent.
func fieldOf(doc []byte, field string) (json.RawMessage, error) {
	obj, err := objectOf(doc)
	if err != nil {
		return nil, err
	}
	v, ok := obj[field]
	if !ok || string(v) == "null" {
		return nil, nil
	}
	return v, nil
}

// withField returns doc with field set to value, or removed when value is nil.
func withField(doc []byte, field string, value json.RawMessage) ([]byte, error) {
	obj, err := objectOf(doc)
	if err != nil {
		return nil, err
	}
	if value == nil {
		delete(obj, field)
	} else {
		obj[field] = value
	}
	return json.Marshal(obj)
}

// mergeObject writes every top-level key of partial over doc.
func mergeObject(doc, partial []byte) ([]byte, error) {
	obj, err := objectOf(doc)
	if err != nil {
		return nil, err
	}
	over, err := objectOf(partial)
	if err != nil {
		return nil, err
	}
	for k, v := range over {
		obj[k] = v
	}
	return json.Marshal(obj)
}

func objectOf(doc []byte) (map[string]json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(doc) == 0 || string(doc) == "null" {
		return obj, nil
	}
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("%w: record is not a JSON object: %v", shared.ErrInvalidInput, err)
	}
	return obj, nil
}

func encode(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if len(raw) == 0 {
			return json.RawMessage("null"), nil
		}
		return raw, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode value: %v", shared.ErrInvalidInput, err)
	}
	return b, nil
}

// requireObject rejects record values that are not JSON objects.
func requireObject(raw json.RawMessage) error {
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("%w: record value must be a JSON object", shared.ErrInvalidInput)
	}
	return nil
}
