package store

import (
	"errors"

	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/shared"
)

// Frame operations. Clients send the request operations; the server answers each request with
// [WireResult] or [WireError] carrying the same ID, and pushes [WireSnapshot] frames for subscriptions.
const (
	WireSubscribe   = "subscribe"
	WireUnsubscribe = "unsubscribe"
	WireAppend      = "append"
	WireReplace     = "replace"
	WireMerge       = "merge"
	WireDelete      = "delete"
	WireGet         = "get"
	WireCAS         = "cas"

	WireResult   = "result"
	WireSnapshot = "snapshot"
	WireError    = "error"
)

// Frame is one websocket message in either direction.
//
// ID correlates a request with its reply. Sub names a client-chosen subscription and is set on
// subscribe, unsubscribe, and every snapshot or error pushed for it.
type Frame struct {
	Op       string          `json:"op"`
	ID       uint64          `json:"id,omitempty"`
	Sub      uint64          `json:"sub,omitempty"`
	Path     string          `json:"path,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Version  int64           `json:"version,omitempty"`
	Snapshot *Snapshot       `json:"snapshot,omitempty"`
	Error    *FrameError     `json:"error,omitempty"`
}

// FrameError carries a [shared.RemoteError] across the wire.
type FrameError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var kindsByName = map[string]shared.ErrorKind{
	shared.KindRead.String():        shared.KindRead,
	shared.KindWrite.String():       shared.KindWrite,
	shared.KindPermission.String():  shared.KindPermission,
	shared.KindConflict.String():    shared.KindConflict,
	shared.KindUnavailable.String(): shared.KindUnavailable,
}

// toFrameError converts err for transmission.
func toFrameError(err error) *FrameError {
	var remote *shared.RemoteError
	if errors.As(err, &remote) {
		msg := ""
		if remote.Cause != nil {
			msg = remote.Cause.Error()
		}
		return &FrameError{Kind: remote.Kind.String(), Message: msg}
	}
	return &FrameError{Kind: shared.KindWrite.String(), Message: err.Error()}
}

// remoteError rebuilds the error described by a received frame.
func (e *FrameError) remoteError(op, path string) *shared.RemoteError {
	kind, ok := kindsByName[e.Kind]
	if !ok {
		kind = shared.KindWrite
	}

	var cause error
	if e.Message != "" {
		cause = errors.New(e.Message)
	}
	return shared.NewRemoteError(op, path, kind, cause)
}
