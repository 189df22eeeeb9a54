// Package mbtiles moves the tile cache in and out of MBTiles archives, the
// SQLite-based container most map tooling exchanges tiles in. The tiles
// table uses the TMS row order, so the y index is flipped relative to the
// slippy-map scheme.
package mbtiles

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hamnet/maptile/internal/cache"
	"github.com/hamnet/maptile/internal/geo"
	"github.com/hamnet/maptile/internal/tile"
)

const batchSize = 500

// Metadata is one row of the MBTiles metadata table.
type Metadata struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value string `gorm:"column:value"`
}

// TableName implements the gorm naming override.
func (Metadata) TableName() string { return "metadata" }

// TileRow is one row of the MBTiles tiles table. TileRow counts from the
// south edge (TMS), unlike the slippy-map y index. The three indices form
// the composite primary key, which batched reads paginate by.
type TileRow struct {
	ZoomLevel  int    `gorm:"column:zoom_level;primaryKey"`
	TileColumn int    `gorm:"column:tile_column;primaryKey"`
	TileRow    int    `gorm:"column:tile_row;primaryKey"`
	TileData   []byte `gorm:"column:tile_data"`
}

// TableName implements the gorm naming override.
func (TileRow) TableName() string { return "tiles" }

func open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mbtiles database: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func flipY(y, zoom int) int {
	return (1 << zoom) - 1 - y
}

// Export writes every cached tile into a new MBTiles archive at dbPath.
// Bad markers are not exported; they are local state, not tiles. Returns
// the number of tiles written.
func Export(ctx context.Context, store *cache.Store, dbPath, name string, log *slog.Logger) (int, error) {
	db, err := open(dbPath)
	if err != nil {
		return 0, err
	}
	defer closeDB(db)

	if err := db.WithContext(ctx).AutoMigrate(&Metadata{}, &TileRow{}); err != nil {
		return 0, fmt.Errorf("failed to migrate mbtiles schema: %w", err)
	}

	var rows []TileRow
	bounds := struct {
		south, west, north, east float64
		set                      bool
	}{}
	minZoom, maxZoom := -1, -1

	base := store.BaseDir()
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".png") {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		zoom, errZ := strconv.Atoi(parts[0])
		x, errX := strconv.Atoi(parts[1])
		y, errY := strconv.Atoi(strings.TrimSuffix(parts[2], ".png"))
		if errZ != nil || errX != nil || errY != nil {
			log.Warn("Skipping unrecognized cache entry", "path", rel)
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rows = append(rows, TileRow{
			ZoomLevel:  zoom,
			TileColumn: x,
			TileRow:    flipY(y, zoom),
			TileData:   data,
		})

		edges := geo.TileEdges(x, y, zoom)
		if !bounds.set {
			bounds.south, bounds.west = edges.South, edges.West
			bounds.north, bounds.east = edges.North, edges.East
			bounds.set = true
		} else {
			bounds.south = min(bounds.south, edges.South)
			bounds.west = min(bounds.west, edges.West)
			bounds.north = max(bounds.north, edges.North)
			bounds.east = max(bounds.east, edges.East)
		}
		if minZoom == -1 || zoom < minZoom {
			minZoom = zoom
		}
		maxZoom = max(maxZoom, zoom)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk cache: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("cache is empty, nothing to export")
	}

	if err := db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return 0, fmt.Errorf("failed to write tiles: %w", err)
	}

	centerPos := geo.Position{
		Latitude:  (bounds.south + bounds.north) / 2,
		Longitude: (bounds.west + bounds.east) / 2,
	}
	centerTile := tile.At(centerPos, minZoom)
	center := geo.TileCenter(centerTile.X, centerTile.Y, minZoom)
	coords, _ := center.Coordinates()

	meta := []Metadata{
		{Name: "name", Value: name},
		{Name: "type", Value: "baselayer"},
		{Name: "version", Value: "1.1"},
		{Name: "format", Value: "png"},
		{Name: "minzoom", Value: strconv.Itoa(minZoom)},
		{Name: "maxzoom", Value: strconv.Itoa(maxZoom)},
		{Name: "bounds", Value: fmt.Sprintf("%f,%f,%f,%f",
			bounds.west, bounds.south, bounds.east, bounds.north)},
		{Name: "center", Value: fmt.Sprintf("%f,%f,%d", coords.X, coords.Y, minZoom)},
	}
	if err := db.WithContext(ctx).Create(&meta).Error; err != nil {
		return 0, fmt.Errorf("failed to write metadata: %w", err)
	}

	log.Info("Exported cache to MBTiles", "path", dbPath, "tiles", len(rows))
	return len(rows), nil
}

// Import seeds the cache from an MBTiles archive. Existing cache entries
// are overwritten. Returns the number of tiles written.
func Import(ctx context.Context, store *cache.Store, dbPath string, log *slog.Logger) (int, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return 0, fmt.Errorf("mbtiles archive not readable: %w", err)
	}
	db, err := open(dbPath)
	if err != nil {
		return 0, err
	}
	defer closeDB(db)

	imported := 0
	var batch []TileRow
	result := db.WithContext(ctx).FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		for _, row := range batch {
			t := tile.XY(row.TileColumn, flipY(row.TileRow, row.ZoomLevel), row.ZoomLevel)
			if _, err := store.Write(t, row.TileData); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if result.Error != nil {
		return imported, fmt.Errorf("failed to read tiles: %w", result.Error)
	}

	log.Info("Imported MBTiles into cache", "path", dbPath, "tiles", imported)
	return imported, nil
}
