// Package errs holds the error taxonomy shared by the sync engine and its
// remote adapters.
package errs

import (
	"context"
	"errors"
	"io/fs"
)

var (
	// configuration
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// local
	ErrLocalIO         = errors.New("local io error")
	ErrManifestCorrupt = errors.New("manifest corrupt")

	// remote
	ErrNotFound    = errors.New("remote: not found")
	ErrUnavailable = errors.New("remote: unavailable")
	ErrRejected    = errors.New("remote: rejected")

	// reconcile
	ErrStaleTail = errors.New("stale tail")
)

// Kind is the failure class reported for a path at the end of a pass.
type Kind string

const (
	KindConfiguration     Kind = "ConfigurationError"
	KindLocalIO           Kind = "LocalIOError"
	KindRemoteUnavailable Kind = "RemoteUnavailable"
	KindRemoteRejected    Kind = "RemoteRejected"
	KindManifestCorrupt   Kind = "ManifestCorrupt"
	KindStaleTail         Kind = "StaleTail"
	KindCanceled          Kind = "Canceled"
	KindUnknown           Kind = "Unknown"
)

// Classify maps err onto the failure taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrManifestCorrupt):
		return KindManifestCorrupt
	case errors.Is(err, ErrStaleTail):
		return KindStaleTail
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindRemoteUnavailable
	case errors.Is(err, ErrRejected), errors.Is(err, ErrNotFound):
		// a not-found on a write path means the remote refused the operation
		return KindRemoteRejected
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrLocalIO), isPathError(err):
		return KindLocalIO
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether a remote call that failed with err may be
// attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func isPathError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
