// Package fetcher retrieves map tiles from a remote tile server into the
// local cache. A fetch first consults the cache; only stale or missing
// tiles go to the network. Server-confirmed-absent tiles are remembered
// with a bad marker so they are not requested again.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/hamnet/maptile/internal/cache"
	"github.com/hamnet/maptile/internal/config"
	"github.com/hamnet/maptile/internal/dispatch"
	"github.com/hamnet/maptile/internal/source"
	"github.com/hamnet/maptile/internal/tile"
)

const userAgent = "maptile/1.0 (+https://github.com/hamnet/maptile)"

// maxAttempts bounds the retry loop for transient transport failures.
// Not-found and not-connected results are terminal on the first attempt.
const maxAttempts = 10

const retryBackoff = 250 * time.Millisecond

// Refresher is notified when a tile lands in the cache so the display can
// redraw. Registration is optional.
type Refresher interface {
	QueueDraw()
}

// Callback receives the result of an asynchronous fetch: the local tile
// path (empty on failure) and any extra arguments supplied at call time.
type Callback func(path string, ok bool, args ...any)

// Fetcher resolves tiles against the cache and the remote source.
type Fetcher struct {
	store    *cache.Store
	settings *config.Settings
	src      source.Source
	client   *http.Client
	loop     *dispatch.Loop
	log      *slog.Logger

	refresher Refresher
	inflight  atomic.Int64

	hits      metric.Int64Counter
	fetches   metric.Int64Counter
	failures  metric.Int64Counter
	notFound  metric.Int64Counter
	inflightG metric.Int64ObservableGauge
}

// New creates a Fetcher for one tile source. The dispatch loop receives
// asynchronous completion callbacks; it may be nil if FetchAsync is never
// used.
func New(store *cache.Store, settings *config.Settings, src source.Source, loop *dispatch.Loop, log *slog.Logger) (*Fetcher, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if settings.Proxy != "" {
		proxyURL, err := url.Parse(settings.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	f := &Fetcher{
		store:    store,
		settings: settings,
		src:      src,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		loop: loop,
		log:  log,
	}
	if err := f.initMetrics(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Fetcher) initMetrics() error {
	m := meter()

	var err error
	f.hits, err = m.Int64Counter("fetcher.cache.hits",
		metric.WithDescription("Lookups satisfied from the local cache"))
	if err != nil {
		return fmt.Errorf("creating hit counter: %w", err)
	}
	f.fetches, err = m.Int64Counter("fetcher.fetches",
		metric.WithDescription("Tiles retrieved from the remote server"))
	if err != nil {
		return fmt.Errorf("creating fetch counter: %w", err)
	}
	f.failures, err = m.Int64Counter("fetcher.failures",
		metric.WithDescription("Fetches that failed after all attempts"))
	if err != nil {
		return fmt.Errorf("creating failure counter: %w", err)
	}
	f.notFound, err = m.Int64Counter("fetcher.notfound",
		metric.WithDescription("Tiles the server confirmed absent"))
	if err != nil {
		return fmt.Errorf("creating notfound counter: %w", err)
	}

	f.inflightG, err = m.Int64ObservableGauge("fetcher.inflight",
		metric.WithDescription("Asynchronous fetches currently running"))
	if err != nil {
		return fmt.Errorf("creating inflight gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(f.inflightG, f.inflight.Load())
			return nil
		},
		f.inflightG,
	)
	if err != nil {
		return fmt.Errorf("registering inflight callback: %w", err)
	}
	return nil
}

// SetRefresher registers the display widget to poke after a successful
// fetch.
func (f *Fetcher) SetRefresher(r Refresher) {
	f.refresher = r
}

// Source returns the tile source this fetcher is bound to.
func (f *Fetcher) Source() source.Source {
	return f.src
}

// RemoteURL returns the remote URL for a tile.
func (f *Fetcher) RemoteURL(t tile.Tile) string {
	return f.src.TileURL(t)
}

// Fetch ensures a local copy of the tile exists, fetching it from the
// remote server when the cache has no valid entry. Returns true when a
// local copy (or bad marker) is in place. Errors are logged and collapsed
// into the boolean result.
func (f *Fetcher) Fetch(ctx context.Context, t tile.Tile) bool {
	if f.store.HasValid(t) {
		f.hits.Add(ctx, 1)
		return true
	}

	dest, err := f.store.LocalPath(t)
	if err != nil {
		f.log.Error("Cannot resolve tile path", "tile", t.String(), "error", err)
		return false
	}
	remote := f.RemoteURL(t)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = f.FetchURL(ctx, remote, dest)
		if err == nil {
			f.log.Debug("Fetched tile", "url", remote, "attempt", attempt)
			f.fetches.Add(ctx, 1)
			if f.refresher != nil {
				f.refresher.QueueDraw()
			}
			return true
		}

		if errors.Is(err, ErrTileNotFound) {
			if _, markErr := f.store.MarkBad(t); markErr != nil {
				f.log.Error("Failed to create bad marker", "tile", t.String(), "error", markErr)
			}
			f.log.Info("Tile not found on server", "url", remote)
			f.notFound.Add(ctx, 1)
			return false
		}
		if errors.Is(err, ErrNotConnected) {
			f.log.Debug("Fetch skipped, not connected", "url", remote)
			f.failures.Add(ctx, 1)
			return false
		}

		f.log.Warn("Failed to fetch tile", "url", remote, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			f.failures.Add(context.Background(), 1)
			return false
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		}
	}

	f.failures.Add(ctx, 1)
	return false
}

// FetchURL performs one network transfer of url into the local file dest.
// It returns ErrNotConnected without touching the network when fetching is
// disabled, ErrTileNotFound on HTTP 404 and a *FetchError on any other
// failure. On success the full response body replaces dest.
func (f *Fetcher) FetchURL(ctx context.Context, remote, dest string) error {
	if !f.settings.Connected() {
		return ErrNotConnected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return &FetchError{URL: remote, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{URL: remote, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", remote, ErrTileNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return &FetchError{URL: remote, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{URL: remote, Err: err}
	}

	// Write through a temp file so a concurrent reader never sees a
	// partial tile.
	tmpPath := dest + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return &FetchError{URL: remote, Err: err}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return &FetchError{URL: remote, Err: err}
	}
	return nil
}

// LocalPath returns the tile's cache path after ensuring a fetch was
// attempted.
func (f *Fetcher) LocalPath(ctx context.Context, t tile.Tile) (string, bool) {
	ok := f.Fetch(ctx, t)
	if !ok {
		return "", false
	}
	path, err := f.store.LocalPath(t)
	if err != nil {
		return "", false
	}
	return path, true
}
