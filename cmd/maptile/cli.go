package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hamnet/maptile/internal/geo"
	"github.com/hamnet/maptile/internal/mbtiles"
	"github.com/hamnet/maptile/internal/prefetch"
	"github.com/hamnet/maptile/internal/tile"

	"github.com/spf13/viper"
)

func parsePosition(args []string) (geo.Position, error) {
	if len(args) < 2 {
		return geo.Position{}, fmt.Errorf("latitude and longitude required")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return geo.Position{}, fmt.Errorf("invalid latitude %q: %w", args[0], err)
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return geo.Position{}, fmt.Errorf("invalid longitude %q: %w", args[1], err)
	}
	return geo.Position{Latitude: lat, Longitude: lon}, nil
}

func cmdFetch(ctx context.Context, a *app, args []string) error {
	pos, err := parsePosition(args)
	if err != nil {
		return err
	}

	zoom := a.settings.Zoom()
	if len(args) > 2 {
		zoom, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid zoom %q: %w", args[2], err)
		}
	}

	t := tile.At(pos, zoom)
	fmt.Println("Fetching", t.String())

	path, ok := a.fetcher.LocalPath(ctx, t)
	if !ok {
		return fmt.Errorf("tile %s could not be fetched", t.String())
	}

	fmt.Println("Tile available at", path)
	return nil
}

func cmdPrefetch(ctx context.Context, a *app, args []string) error {
	pos, err := parsePosition(args)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return fmt.Errorf("radius required")
	}
	radius, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid radius %q: %w", args[2], err)
	}

	zoom := a.settings.Zoom()
	if len(args) > 3 {
		zoom, err = strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid zoom %q: %w", args[3], err)
		}
	}

	tiles, err := prefetch.Area(pos, radius, zoom)
	if err != nil {
		return err
	}
	fmt.Printf("Prefetching %d tiles around %s at zoom %d\n", len(tiles), pos.String(), zoom)

	if err := a.monitor.Start(); err != nil {
		Logger.Error("Failed to start cache monitor", "error", err)
	}

	start := time.Now()
	var failed int
	p := prefetch.New(a.fetcher, viper.GetInt("map.fetchWorkers"), Logger)
	fetched := p.Run(ctx, tiles, func(r prefetch.Result) {
		if !r.OK {
			failed++
			fmt.Println("Failed:", r.Tile.String())
		}
	})

	fmt.Printf("Fetched %d/%d tiles in %s (%d failed)\n",
		fetched, len(tiles), time.Since(start).Round(time.Millisecond), failed)
	return nil
}

func cmdStat(a *app) error {
	stats, err := a.store.Stats()
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdClear(a *app) error {
	if err := a.store.Clear(); err != nil {
		return err
	}
	fmt.Println("Cleared tile cache at", a.store.BaseDir())
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("output file required")
	}
	name := AppName
	if len(args) > 1 {
		name = args[1]
	}

	start := time.Now()
	count, err := mbtiles.Export(ctx, a.store, args[0], name, Logger)
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d tiles to %s in %s\n", count, args[0], time.Since(start).Round(time.Millisecond))
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("input file required")
	}

	start := time.Now()
	count, err := mbtiles.Import(ctx, a.store, args[0], Logger)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d tiles from %s in %s\n", count, args[0], time.Since(start).Round(time.Millisecond))
	return nil
}

func cmdSources(a *app) error {
	for _, name := range a.sources.Names() {
		src, _ := a.sources.Lookup(name)
		marker := " "
		if name == a.src.Name {
			marker = "*"
		}
		fmt.Printf("%s %-12s %s (zoom %d-%d)\n", marker, name, src.URL, src.MinZoom, src.MaxZoom)
		if src.Attribution != "" {
			fmt.Printf("               %s\n", src.Attribution)
		}
	}
	return nil
}
