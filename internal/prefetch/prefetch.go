// Package prefetch warms the tile cache for an area ahead of display, the
// way the map window pre-loads the visible region and its neighbors.
package prefetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hamnet/maptile/internal/geo"
	"github.com/hamnet/maptile/internal/tile"
)

// TileFetcher is the fetch dependency; satisfied by *fetcher.Fetcher.
type TileFetcher interface {
	Fetch(ctx context.Context, t tile.Tile) bool
}

// Result reports the outcome of one prefetched tile.
type Result struct {
	Tile tile.Tile
	OK   bool
}

// Prefetcher fetches batches of tiles with a bounded worker pool.
type Prefetcher struct {
	fetcher TileFetcher
	workers int
	log     *slog.Logger
}

// New creates a Prefetcher running at most workers concurrent fetches.
func New(f TileFetcher, workers int, log *slog.Logger) *Prefetcher {
	if workers < 1 {
		workers = 1
	}
	return &Prefetcher{
		fetcher: f,
		workers: workers,
		log:     log,
	}
}

// Area enumerates the tiles within radius grid steps of center at the given
// zoom. Indices are clamped to the grid, and tiles that would repeat after
// clamping are dropped.
func Area(center geo.Position, radius, zoom int) ([]tile.Tile, error) {
	if zoom < 0 || zoom > geo.MaxZoom {
		return nil, fmt.Errorf("zoom %d: %w", zoom, geo.ErrInvalidZoom)
	}
	if radius < 0 {
		return nil, fmt.Errorf("negative radius %d", radius)
	}

	centerTile := tile.At(center, zoom)
	seen := make(map[[2]int]struct{})
	var tiles []tile.Tile
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			x := geo.ClampIndex(centerTile.X+dx, zoom)
			y := geo.ClampIndex(centerTile.Y+dy, zoom)
			key := [2]int{x, y}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			tiles = append(tiles, tile.XY(x, y, zoom))
		}
	}
	return tiles, nil
}

// Run fetches every tile, invoking report for each as it completes. Report
// calls are serialized. Run returns the number of tiles fetched or already
// cached; it stops early when the context is canceled.
func (p *Prefetcher) Run(ctx context.Context, tiles []tile.Tile, report func(Result)) int {
	work := make(chan tile.Tile)
	results := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				results <- Result{Tile: t, OK: p.fetcher.Fetch(ctx, t)}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, t := range tiles {
			select {
			case <-ctx.Done():
				return
			case work <- t:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	succeeded := 0
	for r := range results {
		if r.OK {
			succeeded++
		} else {
			p.log.Warn("Prefetch failed", "tile", r.Tile.String())
		}
		if report != nil {
			report(r)
		}
	}
	return succeeded
}
