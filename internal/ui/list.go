package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/pulse/internal/mirror"
	"github.com/desertthunder/pulse/internal/models"
)

var (
	_ list.Item = folderItem{}
	_ list.Item = trackItem{}
	_ list.Item = postItem{}
)

// folderItem wraps [mirror.Folder] to implement [list.Item].
type folderItem struct {
	folder mirror.Folder
}

func (i folderItem) FilterValue() string { return i.folder.Label }
func (i folderItem) Title() string       { return i.folder.Label }
func (i folderItem) Description() string { return fmt.Sprintf("%d tracks", len(i.folder.Tracks)) }

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track   models.Track
	current bool
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string {
	if i.current {
		return "♪ " + i.track.Name
	}
	return i.track.Name
}
func (i trackItem) Description() string { return i.track.FolderLabel }

// postItem wraps [models.CommunityPost] to implement [list.Item].
type postItem struct {
	post models.CommunityPost
}

func (i postItem) FilterValue() string { return i.post.Text }
func (i postItem) Title() string       { return i.post.Text }
func (i postItem) Description() string {
	author := i.post.AuthorName
	if i.post.Verified {
		author += " ✓"
	}
	return fmt.Sprintf("%s • %s • ♥ %d", author, i.post.CreatedAtDisplay, i.post.LikeCount)
}
