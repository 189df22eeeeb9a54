// Package cache maintains the on-disk tile cache. The layout is
// <baseDir>/<zoom>/<x>/<y>.png for tile images and .bad for markers of
// tiles the server confirmed absent. Entries are never evicted; staleness
// only controls whether a fetch is attempted again.
package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hamnet/maptile/internal/config"
	"github.com/hamnet/maptile/internal/tile"
)

// Store maps tiles to their cache files and answers freshness queries.
type Store struct {
	baseDir  string
	settings *config.Settings
}

// New creates a Store rooted at settings.BaseDir, creating the directory
// if absent.
func New(settings *config.Settings) (*Store, error) {
	if settings.BaseDir == "" {
		return nil, fmt.Errorf("cache base directory not configured")
	}
	if err := os.MkdirAll(settings.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{
		baseDir:  settings.BaseDir,
		settings: settings,
	}, nil
}

// BaseDir returns the cache root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// LocalPath returns the tile's cache file path, creating intermediate
// directories on demand.
func (s *Store) LocalPath(t tile.Tile) (string, error) {
	return s.ensurePath(t.Path())
}

// BadMarkerPath returns the tile's bad-marker path, creating intermediate
// directories on demand.
func (s *Store) BadMarkerPath(t tile.Tile) (string, error) {
	return s.ensurePath(t.BadPath())
}

func (s *Store) ensurePath(rel string) (string, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create tile directory: %w", err)
	}
	return path, nil
}

// HasValid reports whether a usable local copy of the tile exists. A bad
// marker counts as a valid copy so confirmed-absent tiles are not
// re-requested. When offline, or when the tile lifetime is zero, any
// existing copy is accepted regardless of age.
func (s *Store) HasValid(t tile.Tile) bool {
	path, err := s.LocalPath(t)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		badPath, badErr := s.BadMarkerPath(t)
		if badErr != nil {
			return false
		}
		info, err = os.Stat(badPath)
	}
	if err != nil {
		return false
	}

	if s.settings.TileLifetime() == 0 || !s.settings.Connected() {
		return true
	}
	return time.Since(info.ModTime()) < s.settings.TileLifetime()
}

// Write stores tile data, overwriting any existing entry. The data lands in
// a temporary file first and is renamed into place so readers never observe
// a partial tile.
func (s *Store) Write(t tile.Tile, data []byte) (string, error) {
	path, err := s.LocalPath(t)
	if err != nil {
		return "", err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write tile: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move tile into place: %w", err)
	}
	return path, nil
}

// MarkBad records that the server has no such tile by creating an empty
// marker file.
func (s *Store) MarkBad(t tile.Tile) (string, error) {
	path, err := s.BadMarkerPath(t)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return "", fmt.Errorf("failed to create bad marker: %w", err)
	}
	return path, nil
}

// Clear deletes the entire cache tree and recreates the empty root.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.baseDir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return os.MkdirAll(s.baseDir, 0755)
}

// Stats summarizes the cache contents.
type Stats struct {
	Tiles      int
	BadMarkers int
	Bytes      int64
}

// Stats walks the cache tree and counts entries.
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		switch {
		case strings.HasSuffix(path, ".png"):
			info, err := d.Info()
			if err != nil {
				return err
			}
			stats.Tiles++
			stats.Bytes += info.Size()
		case strings.HasSuffix(path, ".bad"):
			stats.BadMarkers++
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to walk cache: %w", err)
	}
	return stats, nil
}
