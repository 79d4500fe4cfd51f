package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/shared"
)

// versionedGet reads the current value at a path and the version of the record holding it.
// An absent record reports version 0 and a nil value.
type versionedGet func(ctx context.Context) (json.RawMessage, int64, error)

// versionedSet writes value at a path if the record is still at version.
// It returns an error matching [shared.ErrTransactionConflict] when it is not.
type versionedSet func(ctx context.Context, version int64, value json.RawMessage) error

// newTransactionBackOff returns the retry policy for conflicting transactions.
func newTransactionBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// retryTransaction runs get, fn and set until set succeeds, backing off between conflicts.
//
// Errors other than conflicts stop the loop immediately. fn's own errors are returned unchanged.
func retryTransaction(ctx context.Context, b backoff.BackOff, get versionedGet, set versionedSet, fn UpdateFunc) (json.RawMessage, error) {
	attempt := func() (json.RawMessage, error) {
		current, version, err := get(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		next, err := fn(current)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		value, err := encode(next)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		if err := set(ctx, version, value); err != nil {
			if errors.Is(err, shared.ErrTransactionConflict) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return value, nil
	}

	return backoff.RetryWithData(attempt, backoff.WithContext(b, ctx))
}
