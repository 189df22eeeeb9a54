package config

import (
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// Settings is the shared runtime view of the map configuration. One instance
// is constructed at startup and passed to every cache and fetch component.
// Connected, zoom and tile lifetime can be flipped at runtime (connectivity
// toggling, zoom changes) and are safe for concurrent readers.
type Settings struct {
	BaseDir string
	Proxy   string

	connected atomic.Bool
	zoom      atomic.Int32
	lifetime  atomic.Int64 // seconds
}

// NewSettings creates a Settings with explicit values.
func NewSettings(baseDir, proxy string, connected bool, zoom int, lifetime time.Duration) *Settings {
	s := &Settings{
		BaseDir: baseDir,
		Proxy:   proxy,
	}
	s.connected.Store(connected)
	s.zoom.Store(int32(zoom))
	s.lifetime.Store(int64(lifetime.Seconds()))
	return s
}

// SettingsFromViper builds Settings from the loaded configuration.
func SettingsFromViper() *Settings {
	return NewSettings(
		viper.GetString("map.baseDir"),
		viper.GetString("map.proxy"),
		viper.GetBool("map.connected"),
		viper.GetInt("map.zoom"),
		time.Duration(viper.GetInt("map.tileLifetimeSeconds"))*time.Second,
	)
}

// Connected reports whether network fetches are allowed.
func (s *Settings) Connected() bool {
	return s.connected.Load()
}

// SetConnected enables or disables network fetches.
func (s *Settings) SetConnected(connected bool) {
	s.connected.Store(connected)
}

// Zoom returns the current zoom level.
func (s *Settings) Zoom() int {
	return int(s.zoom.Load())
}

// SetZoom changes the zoom level for subsequently constructed tiles.
func (s *Settings) SetZoom(zoom int) {
	s.zoom.Store(int32(zoom))
}

// TileLifetime returns the maximum cached tile age. Zero means cached tiles
// never expire.
func (s *Settings) TileLifetime() time.Duration {
	return time.Duration(s.lifetime.Load()) * time.Second
}

// SetTileLifetime changes the maximum cached tile age.
func (s *Settings) SetTileLifetime(lifetime time.Duration) {
	s.lifetime.Store(int64(lifetime.Seconds()))
}
