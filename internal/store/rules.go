package store

import (
	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// Op is the kind of access a request needs.
type Op int

const (
	OpRead Op = iota
	OpCreate
	OpWrite
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Rules decides which identities may perform which operations.
//
// A single administrator, identified by AdminEmail, may do anything. Everyone else may:
//   - read every collection except inboxMessages
//   - create diaryPosts and inboxMessages
//   - write the settings visitorCount field and the likeCount field of a diary post
//
// An empty AdminEmail means nobody is administrator.
type Rules struct {
	AdminEmail string
}

// IsAdmin reports whether identity is the administrator.
func (r Rules) IsAdmin(identity string) bool {
	return r.AdminEmail != "" && identity == r.AdminEmail
}

// Allow returns nil when identity may perform op on p, or a permission [*shared.RemoteError].
func (r Rules) Allow(identity string, op Op, p Path) error {
	if r.IsAdmin(identity) || r.open(op, p) {
		return nil
	}
	return shared.NewRemoteError(op.String(), p.String(), shared.KindPermission, nil)
}

func (r Rules) open(op Op, p Path) bool {
	switch op {
	case OpRead:
		return p.Collection != models.InboxCollection
	case OpCreate:
		return p.Collection == models.PostsCollection || p.Collection == models.InboxCollection
	case OpWrite:
		switch {
		case p.Collection == models.SettingsCollection:
			return p.Field == "visitorCount"
		case p.Collection == models.PostsCollection:
			return p.ID != "" && p.Field == "likeCount"
		}
	}
	return false
}
