package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Remote store errors
	ErrRemoteRead          = fmt.Errorf("remote read failed")
	ErrRemoteWrite         = fmt.Errorf("remote write failed")
	ErrPermissionDenied    = fmt.Errorf("permission denied")
	ErrTransactionConflict = fmt.Errorf("transaction conflict")
	ErrServiceUnavailable  = fmt.Errorf("service unavailable")
	ErrNotFound            = fmt.Errorf("record not found")
	ErrTimeout             = fmt.Errorf("operation timed out")

	// Playback errors
	ErrPlaybackRejected = fmt.Errorf("playback rejected by output device")
	ErrMediaUnavailable = fmt.Errorf("media unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ErrorKind classifies a [RemoteError].
type ErrorKind int

const (
	KindRead ErrorKind = iota
	KindWrite
	KindPermission
	KindConflict
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindPermission:
		return "permission"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return ""
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindRead:
		return ErrRemoteRead
	case KindPermission:
		return ErrPermissionDenied
	case KindConflict:
		return ErrTransactionConflict
	case KindUnavailable:
		return ErrServiceUnavailable
	default:
		return ErrRemoteWrite
	}
}

// RemoteError is returned by every remote store operation.
//
// It matches the sentinel for its kind with [errors.Is]. Failures of subscriptions and reads also
// match [ErrRemoteRead]; every other failure also matches [ErrRemoteWrite].
type RemoteError struct {
	Op    string
	Path  string
	Kind  ErrorKind
	Cause error
}

// NewRemoteError builds a [RemoteError].
func NewRemoteError(op, path string, kind ErrorKind, cause error) *RemoteError {
	return &RemoteError{Op: op, Path: path, Kind: kind, Cause: cause}
}

func (e *RemoteError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind.sentinel(), e.Cause)
}

func (e *RemoteError) Unwrap() error {
	return e.Cause
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case e.Kind.sentinel():
		return true
	case ErrRemoteRead:
		return e.isRead()
	case ErrRemoteWrite:
		return !e.isRead()
	}
	return false
}

func (e *RemoteError) isRead() bool {
	return e.Kind == KindRead || e.Op == "subscribe" || e.Op == "get"
}

// IsPermission reports whether err is a permission failure from the remote store.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
