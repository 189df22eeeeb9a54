// Package source holds the registry of named tile servers a user can
// select between.
package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/hamnet/maptile/internal/geo"
	"github.com/hamnet/maptile/internal/tile"
)

// Source describes one remote tile server.
type Source struct {
	Name        string
	URL         string
	AccessKey   string
	Attribution string
	MinZoom     int
	MaxZoom     int
}

// TileURL returns the remote URL for a tile: base URL plus the tile's
// relative path, with the access key appended verbatim when configured.
func (s Source) TileURL(t tile.Tile) string {
	url := s.URL + t.Path()
	if s.AccessKey != "" {
		url += s.AccessKey
	}
	return url
}

// SupportsZoom reports whether the server publishes tiles at the given zoom.
func (s Source) SupportsZoom(zoom int) bool {
	return s.MinZoom <= zoom && zoom <= s.MaxZoom
}

// Registry is the set of configured sources plus the default selection.
type Registry struct {
	sources     map[string]Source
	defaultName string
}

// FromViper builds the registry from the loaded configuration. Each entry
// under "sources" becomes a Source; "map.source" selects the default.
func FromViper() (*Registry, error) {
	names := viper.GetStringMap("sources")
	if len(names) == 0 {
		return nil, fmt.Errorf("no tile sources configured")
	}

	r := &Registry{
		sources:     make(map[string]Source, len(names)),
		defaultName: viper.GetString("map.source"),
	}
	for name := range names {
		prefix := "sources." + name + "."
		src := Source{
			Name:        name,
			URL:         viper.GetString(prefix + "url"),
			AccessKey:   viper.GetString(prefix + "accessKey"),
			Attribution: viper.GetString(prefix + "attribution"),
			MinZoom:     viper.GetInt(prefix + "minZoom"),
			MaxZoom:     viper.GetInt(prefix + "maxZoom"),
		}
		if src.URL == "" {
			return nil, fmt.Errorf("tile source %q has no url", name)
		}
		if !strings.HasSuffix(src.URL, "/") {
			src.URL += "/"
		}
		if src.MaxZoom == 0 {
			src.MaxZoom = geo.MaxZoom
		}
		r.sources[name] = src
	}

	if _, ok := r.sources[r.defaultName]; !ok {
		return nil, fmt.Errorf("default tile source %q not configured", r.defaultName)
	}
	return r, nil
}

// Lookup returns the named source.
func (r *Registry) Lookup(name string) (Source, bool) {
	src, ok := r.sources[name]
	return src, ok
}

// Default returns the configured default source.
func (r *Registry) Default() Source {
	return r.sources[r.defaultName]
}

// Names returns the configured source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
