package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestMergeSettings(t *testing.T) {
	t.Run("absent fields keep base values", func(t *testing.T) {
		base := DefaultSettings()
		count := int64(41)

		merged := MergeSettings(base, SettingsPatch{VisitorCount: &count})

		if merged.VisitorCount != 41 {
			t.Errorf("expected visitor count 41, got %d", merged.VisitorCount)
		}
		if merged.WelcomeText != base.WelcomeText {
			t.Errorf("expected welcome text %q to survive, got %q", base.WelcomeText, merged.WelcomeText)
		}
		if !merged.HeroMode {
			t.Error("expected hero mode default to survive")
		}
	})

	t.Run("explicit zero values override", func(t *testing.T) {
		off := false
		empty := ""

		merged := MergeSettings(DefaultSettings(), SettingsPatch{ShowVisitorCount: &off, WelcomeText: &empty})

		if merged.ShowVisitorCount {
			t.Error("expected showVisitorCount to be overridden to false")
		}
		if merged.WelcomeText != "" {
			t.Errorf("expected empty welcome text, got %q", merged.WelcomeText)
		}
	})

	t.Run("decoded partial record", func(t *testing.T) {
		var patch SettingsPatch
		if err := json.Unmarshal([]byte(`{"welcomeText":"hello","defaultTrackId":"t1"}`), &patch); err != nil {
			t.Fatalf("failed to decode patch: %v", err)
		}

		merged := MergeSettings(DefaultSettings(), patch)
		if merged.WelcomeText != "hello" || merged.DefaultTrackID != "t1" {
			t.Errorf("unexpected merge result: %+v", merged)
		}
		if merged.BackgroundFit != "cover" {
			t.Errorf("expected default background fit, got %q", merged.BackgroundFit)
		}
	})

	t.Run("empty patch", func(t *testing.T) {
		if !(SettingsPatch{}).Empty() {
			t.Error("zero patch should be empty")
		}
		if got := MergeSettings(DefaultSettings(), SettingsPatch{}); got != DefaultSettings() {
			t.Errorf("empty patch changed settings: %+v", got)
		}
	})
}

func TestDiffSettings(t *testing.T) {
	prev := DefaultSettings()
	next := prev
	next.WelcomeText = "new"
	next.VisitorCount = 7

	patch := DiffSettings(prev, next)

	if patch.WelcomeText == nil || *patch.WelcomeText != "new" {
		t.Error("expected welcome text in diff")
	}
	if patch.VisitorCount == nil || *patch.VisitorCount != 7 {
		t.Error("expected visitor count in diff")
	}
	if patch.HeroMode != nil {
		t.Error("unchanged hero mode should be absent from diff")
	}
	if got := MergeSettings(prev, patch); got != next {
		t.Errorf("applying diff should yield next, got %+v", got)
	}
}

func TestTrack(t *testing.T) {
	tc := []struct {
		name    string
		track   Track
		wantErr bool
	}{
		{name: "valid", track: Track{Name: "Song", MediaURL: "http://x/a.mp3"}},
		{name: "missing name", track: Track{MediaURL: "http://x/a.mp3"}, wantErr: true},
		{name: "missing media", track: Track{Name: "Song"}, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.track.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("FolderOf", func(t *testing.T) {
		if got := FolderOf(Track{FolderLabel: "Pop"}, "Misc"); got != "Pop" {
			t.Errorf("expected Pop, got %s", got)
		}
		if got := FolderOf(Track{FolderLabel: "  "}, "Misc"); got != "Misc" {
			t.Errorf("expected fallback Misc, got %s", got)
		}
	})
}
