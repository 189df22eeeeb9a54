package fetcher

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when network access is disabled by
// configuration. No network call is attempted in that state.
var ErrNotConnected = errors.New("not connected")

// ErrTileNotFound is returned when the server confirms the tile does not
// exist (HTTP 404). The result is recorded locally via a bad marker.
var ErrTileNotFound = errors.New("tile not found")

// FetchError wraps any other transport or HTTP failure. Unlike a not-found
// result it is not recorded persistently, so the tile will be retried on
// the next lookup.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
