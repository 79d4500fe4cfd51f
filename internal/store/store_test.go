package store

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/shared"
)

func TestParsePath(t *testing.T) {
	tc := []struct {
		name    string
		raw     string
		want    Path
		wantErr bool
	}{
		{name: "collection", raw: "songs", want: Path{Collection: "songs"}},
		{name: "record", raw: "songs/abc", want: Path{Collection: "songs", ID: "abc"}},
		{name: "field", raw: "diaryPosts/p1/likeCount", want: Path{Collection: "diaryPosts", ID: "p1", Field: "likeCount"}},
		{name: "settings record", raw: "settings", want: Path{Collection: "settings", ID: "settings"}},
		{name: "settings field", raw: "settings/visitorCount", want: Path{Collection: "settings", ID: "settings", Field: "visitorCount"}},
		{name: "surrounding slashes", raw: "/songs/abc/", want: Path{Collection: "songs", ID: "abc"}},
		{name: "unknown collection", raw: "music/abc", wantErr: true},
		{name: "empty segment", raw: "songs//name", wantErr: true},
		{name: "too deep", raw: "songs/a/b/c", wantErr: true},
		{name: "settings too deep", raw: "settings/a/b", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}

	t.Run("String round trip", func(t *testing.T) {
		for _, raw := range []string{"songs", "songs/abc", "diaryPosts/p1/likeCount", "settings", "settings/visitorCount"} {
			p, err := ParsePath(raw)
			if err != nil {
				t.Fatalf("failed to parse %s: %v", raw, err)
			}
			if p.String() != raw {
				t.Errorf("expected %s, got %s", raw, p.String())
			}
		}
	})
}

func TestFieldHelpers(t *testing.T) {
	t.Run("fieldOf", func(t *testing.T) {
		v, err := fieldOf([]byte(`{"likeCount":3,"gone":null}`), "likeCount")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(v) != "3" {
			t.Errorf("expected 3, got %s", v)
		}

		if v, _ := fieldOf([]byte(`{"gone":null}`), "gone"); v != nil {
			t.Errorf("null field should read as absent, got %s", v)
		}

		if v, _ := fieldOf(nil, "likeCount"); v != nil {
			t.Errorf("missing record should read as absent, got %s", v)
		}

		if _, err := fieldOf([]byte(`[1,2]`), "x"); err == nil {
			t.Error("expected error for non-object record")
		}
	})

	t.Run("withField", func(t *testing.T) {
		doc, err := withField([]byte(`{"a":1}`), "b", json.RawMessage(`2`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got map[string]int
		if err := json.Unmarshal(doc, &got); err != nil {
			t.Fatalf("invalid document: %v", err)
		}
		if got["a"] != 1 || got["b"] != 2 {
			t.Errorf("unexpected document %s", doc)
		}

		doc, err = withField(doc, "a", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(doc) != `{"b":2}` {
			t.Errorf("expected field a removed, got %s", doc)
		}
	})

	t.Run("mergeObject", func(t *testing.T) {
		doc, err := mergeObject([]byte(`{"a":1,"b":1}`), []byte(`{"b":2,"c":3}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got map[string]int
		if err := json.Unmarshal(doc, &got); err != nil {
			t.Fatalf("invalid document: %v", err)
		}
		if got["a"] != 1 || got["b"] != 2 || got["c"] != 3 {
			t.Errorf("unexpected merge %s", doc)
		}
	})
}

func TestDecode(t *testing.T) {
	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	snap := Snapshot{Collection: "songs", Records: []Record{
		{ID: "a", Value: json.RawMessage(`{"name":"one"}`)},
		{ID: "b", Value: json.RawMessage(`not json`)},
		{ID: "c", Value: json.RawMessage(`{"name":"three","id":"stale"}`)},
	}}

	items, err := Decode(snap, func(it *item, id string) { it.ID = id })
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected decode error for record b, got %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 decoded items, got %d", len(items))
	}
	if items[0].ID != "a" || items[1].ID != "c" {
		t.Errorf("record keys should win over stored ids: %+v", items)
	}
}

func TestRules(t *testing.T) {
	rules := Rules{AdminEmail: "admin@example.com"}

	tc := []struct {
		path     string
		op       Op
		identity string
		allowed  bool
	}{
		{"songs", OpRead, "", true},
		{"inboxMessages", OpRead, "", false},
		{"inboxMessages", OpRead, "admin@example.com", true},
		{"diaryPosts", OpCreate, "", true},
		{"inboxMessages", OpCreate, "", true},
		{"songs", OpCreate, "", false},
		{"songs", OpCreate, "admin@example.com", true},
		{"customPages/p", OpWrite, "", false},
		{"settings", OpWrite, "", false},
		{"settings/welcomeText", OpWrite, "", false},
		{"settings/visitorCount", OpWrite, "", true},
		{"diaryPosts/p1/likeCount", OpWrite, "", true},
		{"diaryPosts/p1/text", OpWrite, "", false},
		{"diaryPosts/p1", OpDelete, "", false},
		{"diaryPosts/p1", OpDelete, "someone@example.com", false},
		{"diaryPosts/p1", OpDelete, "admin@example.com", true},
		{"inboxMessages/m1", OpDelete, "admin@example.com", true},
	}

	for _, tt := range tc {
		t.Run(tt.op.String()+" "+tt.path+" "+tt.identity, func(t *testing.T) {
			p, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("failed to parse path: %v", err)
			}

			err = rules.Allow(tt.identity, tt.op, p)
			if tt.allowed && err != nil {
				t.Errorf("expected allowed, got %v", err)
			}
			if !tt.allowed && !shared.IsPermission(err) {
				t.Errorf("expected permission error, got %v", err)
			}
		})
	}

	t.Run("no administrator configured", func(t *testing.T) {
		p, _ := ParsePath("songs")
		if err := (Rules{}).Allow("", OpCreate, p); err == nil {
			t.Error("empty identity must not become administrator")
		}
	})
}
