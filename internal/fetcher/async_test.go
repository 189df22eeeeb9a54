package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamnet/maptile/internal/cache"
	"github.com/hamnet/maptile/internal/config"
	"github.com/hamnet/maptile/internal/dispatch"
	"github.com/hamnet/maptile/internal/source"
	"github.com/hamnet/maptile/internal/tile"
)

func newAsyncFetcher(t *testing.T, baseURL string) (*Fetcher, *cache.Store, *dispatch.Loop) {
	t.Helper()
	settings := config.NewSettings(t.TempDir(), "", true, 14, 0)
	store, err := cache.New(settings)
	require.NoError(t, err)

	loop := dispatch.NewLoop()
	t.Cleanup(loop.Stop)

	src := source.Source{Name: "test", URL: baseURL + "/", MaxZoom: 22}
	f, err := New(store, settings, src, loop, slog.Default())
	require.NoError(t, err)
	return f, store, loop
}

func TestFetchAsync_CachedTileNoNetwork(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	f, store, loop := newAsyncFetcher(t, server.URL)
	tl := tile.XY(4, 4, 3)
	wantPath, err := store.Write(tl, []byte("cached"))
	require.NoError(t, err)

	type result struct {
		path string
		ok   bool
		args []any
	}
	results := make(chan result, 1)
	f.FetchAsync(tl, func(path string, ok bool, args ...any) {
		results <- result{path: path, ok: ok, args: args}
	}, "extra", 42)

	// The callback is held until the dispatch loop runs: completions are
	// never delivered on the worker goroutine.
	select {
	case <-results:
		t.Fatal("callback ran before the dispatch loop started")
	case <-time.After(100 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	select {
	case got := <-results:
		assert.True(t, got.ok)
		assert.Equal(t, wantPath, got.path)
		assert.Equal(t, []any{"extra", 42}, got.args)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	assert.Equal(t, int64(0), calls.Load(), "expected no network access for a cached tile")
}

func TestFetchAsync_FailureDeliversEmptyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f, _, loop := newAsyncFetcher(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	results := make(chan string, 1)
	oks := make(chan bool, 1)
	f.FetchAsync(tile.XY(4, 4, 3), func(path string, ok bool, args ...any) {
		results <- path
		oks <- ok
	})

	select {
	case path := <-results:
		assert.Empty(t, path)
		assert.False(t, <-oks)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestFetchAsync_ConcurrentFetchesComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	f, _, loop := newAsyncFetcher(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	const n = 8
	done := make(chan bool, n)
	for i := 0; i < n; i++ {
		f.FetchAsync(tile.XY(i, i, 6), func(path string, ok bool, args ...any) {
			done <- ok
		})
	}

	for i := 0; i < n; i++ {
		select {
		case ok := <-done:
			assert.True(t, ok)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for callbacks")
		}
	}

	assert.Eventually(t, func() bool { return f.Inflight() == 0 },
		2*time.Second, 10*time.Millisecond)
}
