package models

import (
	"fmt"
	"strings"
)

// Collection names in the document store.
const (
	SongsCollection    = "songs"
	PostsCollection    = "diaryPosts"
	PagesCollection    = "customPages"
	InboxCollection    = "inboxMessages"
	SettingsCollection = "settings"
)

// SettingsID is the record id of the settings singleton.
const SettingsID = "settings"

// Collections lists every collection in the store.
var Collections = []string{SongsCollection, PostsCollection, PagesCollection, InboxCollection, SettingsCollection}

// DefaultArtwork is used for tracks added without an image.
const DefaultArtwork = "https://picsum.photos/400/400"

// Track is an audio track. Identity is ID.
type Track struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	FolderLabel string `json:"folderLabel"`
	ImageURL    string `json:"imageUrl"`
	MediaURL    string `json:"mediaUrl"`
}

// Validate checks that the track can be played and grouped.
func (t Track) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("track name is required")
	}
	if strings.TrimSpace(t.MediaURL) == "" {
		return fmt.Errorf("track media url is required")
	}
	return nil
}

// CommunityPost is a visitor entry on the community board.
type CommunityPost struct {
	ID               string `json:"id,omitempty"`
	AuthorName       string `json:"authorName"`
	Text             string `json:"text"`
	Verified         bool   `json:"verified"`
	CreatedAtDisplay string `json:"createdAtDisplay"`
	LikeCount        uint64 `json:"likeCount"`
}

// InboxMessage is a private message to the administrator.
type InboxMessage struct {
	ID         string `json:"id,omitempty"`
	AuthorName string `json:"authorName"`
	Text       string `json:"text"`
}

// CustomPage is an administrator-authored page. HTMLContent is trusted and rendered verbatim.
type CustomPage struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	HTMLContent string `json:"htmlContent"`
	Icon        string `json:"icon,omitempty"`
}

// SiteSettings is the singleton settings record.
type SiteSettings struct {
	WelcomeText      string `json:"welcomeText"`
	HeroMode         bool   `json:"heroMode"`
	HeroMediaURL     string `json:"heroMediaUrl"`
	HeroMediaType    string `json:"heroMediaType"`
	BackgroundFit    string `json:"backgroundFit"`
	BackgroundFilter string `json:"backgroundFilter"`
	Animation        string `json:"animation"`
	ShowVisitorCount bool   `json:"showVisitorCount"`
	VisitorCount     int64  `json:"visitorCount"`
	DefaultTrackID   string `json:"defaultTrackId"`
}

// DefaultSettings returns the settings a fresh site starts with.
func DefaultSettings() SiteSettings {
	return SiteSettings{
		WelcomeText:      "AHMED PULSE | ULTIMATE",
		HeroMode:         true,
		HeroMediaURL:     "https://images.unsplash.com/photo-1614850523459-c2f4c699c52e?q=80&w=1920",
		HeroMediaType:    "image",
		BackgroundFit:    "cover",
		BackgroundFilter: "mode-vivid",
		Animation:        "zoom-in",
		ShowVisitorCount: true,
		VisitorCount:     0,
		DefaultTrackID:   "",
	}
}

// SettingsPatch is a partial [SiteSettings]. Nil fields are absent.
type SettingsPatch struct {
	WelcomeText      *string `json:"welcomeText,omitempty"`
	HeroMode         *bool   `json:"heroMode,omitempty"`
	HeroMediaURL     *string `json:"heroMediaUrl,omitempty"`
	HeroMediaType    *string `json:"heroMediaType,omitempty"`
	BackgroundFit    *string `json:"backgroundFit,omitempty"`
	BackgroundFilter *string `json:"backgroundFilter,omitempty"`
	Animation        *string `json:"animation,omitempty"`
	ShowVisitorCount *bool   `json:"showVisitorCount,omitempty"`
	VisitorCount     *int64  `json:"visitorCount,omitempty"`
	DefaultTrackID   *string `json:"defaultTrackId,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p SettingsPatch) Empty() bool {
	return p == SettingsPatch{}
}

// MergeSettings returns base with every field present in patch overriding it.
//
// Present-but-zero values override too: an explicit "" or false in the patch wins over base.
func MergeSettings(base SiteSettings, patch SettingsPatch) SiteSettings {
	out := base
	if patch.WelcomeText != nil {
		out.WelcomeText = *patch.WelcomeText
	}
	if patch.HeroMode != nil {
		out.HeroMode = *patch.HeroMode
	}
	if patch.HeroMediaURL != nil {
		out.HeroMediaURL = *patch.HeroMediaURL
	}
	if patch.HeroMediaType != nil {
		out.HeroMediaType = *patch.HeroMediaType
	}
	if patch.BackgroundFit != nil {
		out.BackgroundFit = *patch.BackgroundFit
	}
	if patch.BackgroundFilter != nil {
		out.BackgroundFilter = *patch.BackgroundFilter
	}
	if patch.Animation != nil {
		out.Animation = *patch.Animation
	}
	if patch.ShowVisitorCount != nil {
		out.ShowVisitorCount = *patch.ShowVisitorCount
	}
	if patch.VisitorCount != nil {
		out.VisitorCount = *patch.VisitorCount
	}
	if patch.DefaultTrackID != nil {
		out.DefaultTrackID = *patch.DefaultTrackID
	}
	return out
}

// DiffSettings returns a patch holding every field of next that differs from prev.
func DiffSettings(prev, next SiteSettings) SettingsPatch {
	var p SettingsPatch
	if prev.WelcomeText != next.WelcomeText {
		p.WelcomeText = &next.WelcomeText
	}
	if prev.HeroMode != next.HeroMode {
		p.HeroMode = &next.HeroMode
	}
	if prev.HeroMediaURL != next.HeroMediaURL {
		p.HeroMediaURL = &next.HeroMediaURL
	}
	if prev.HeroMediaType != next.HeroMediaType {
		p.HeroMediaType = &next.HeroMediaType
	}
	if prev.BackgroundFit != next.BackgroundFit {
		p.BackgroundFit = &next.BackgroundFit
	}
	if prev.BackgroundFilter != next.BackgroundFilter {
		p.BackgroundFilter = &next.BackgroundFilter
	}
	if prev.Animation != next.Animation {
		p.Animation = &next.Animation
	}
	if prev.ShowVisitorCount != next.ShowVisitorCount {
		p.ShowVisitorCount = &next.ShowVisitorCount
	}
	if prev.VisitorCount != next.VisitorCount {
		p.VisitorCount = &next.VisitorCount
	}
	if prev.DefaultTrackID != next.DefaultTrackID {
		p.DefaultTrackID = &next.DefaultTrackID
	}
	return p
}

// FolderOf returns the folder a track is grouped under, or fallback when it has none.
func FolderOf(t Track, fallback string) string {
	if label := strings.TrimSpace(t.FolderLabel); label != "" {
		return label
	}
	return fallback
}
