package media

import "errors"

var ErrInvalidReference = errors.New("invalid source reference")
var ErrNotFound = errors.New("source not found")
var ErrNoPlayableItems = errors.New("no playable items")
var ErrRateLimited = errors.New("provider rate limited")
var ErrTimeout = errors.New("provider fetch timed out")

// retryable reports whether the resolver should attempt the fetch once more.
// Validation failures are deterministic and never retried.
func retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidReference)
}
