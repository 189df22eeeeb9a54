package fetcher

import (
	"context"

	"github.com/hamnet/maptile/internal/tile"
)

// FetchAsync runs Fetch on its own goroutine and delivers the result to cb
// through the dispatch loop, so the callback runs on the loop's goroutine
// rather than the worker. One goroutine is spawned per call; concurrent
// fetches for the same tile are not de-duplicated — each performs its own
// transfer and both write the same destination file.
//
// There is no cancellation: a fetch in flight always runs to completion.
// Callers that stop caring about a tile must track tile identity and
// ignore the late callback.
func (f *Fetcher) FetchAsync(t tile.Tile, cb Callback, args ...any) {
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Add(-1)

		path := ""
		ok := f.Fetch(context.Background(), t)
		if ok {
			if p, err := f.store.LocalPath(t); err == nil {
				path = p
			} else {
				ok = false
			}
		}

		f.loop.Post(func() {
			cb(path, ok, args...)
		})
	}()
}

// Inflight returns the number of asynchronous fetches currently running.
func (f *Fetcher) Inflight() int64 {
	return f.inflight.Load()
}
