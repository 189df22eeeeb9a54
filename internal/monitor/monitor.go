package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hamnet/maptile/internal/cache"
	"github.com/hamnet/maptile/internal/config"
	"github.com/hamnet/maptile/internal/fetcher"
	"github.com/hamnet/maptile/internal/influx"
	"github.com/hamnet/maptile/internal/logging"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Store      *cache.Store
	Fetcher    *fetcher.Fetcher
	Settings   *config.Settings
	LogManager *logging.Manager
	Influx     *influx.Manager
	Interval   time.Duration
}

// Snapshot is one observation of the cache and fetcher state.
type Snapshot struct {
	Time       time.Time `json:"time"`
	Tiles      int       `json:"tiles"`
	BadMarkers int       `json:"badMarkers"`
	Bytes      int64     `json:"bytes"`
	Inflight   int64     `json:"inflight"`
	Connected  bool      `json:"connected"`
	Zoom       int       `json:"zoom"`
}

// Service periodically samples cache statistics and publishes them
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Minute
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample takes a snapshot of the current cache and fetcher state.
func (s *Service) Sample() (Snapshot, error) {
	stats, err := s.deps.Store.Stats()
	if err != nil {
		return Snapshot{}, fmt.Errorf("sampling cache stats: %w", err)
	}

	snap := Snapshot{
		Time:       time.Now(),
		Tiles:      stats.Tiles,
		BadMarkers: stats.BadMarkers,
		Bytes:      stats.Bytes,
		Connected:  s.deps.Settings.Connected(),
		Zoom:       s.deps.Settings.Zoom(),
	}
	if s.deps.Fetcher != nil {
		snap.Inflight = s.deps.Fetcher.Inflight()
	}
	return snap, nil
}

// publish writes a snapshot to the status file and, when configured,
// to InfluxDB.
func (s *Service) publish(snap Snapshot, statusFile *os.File) {
	logger := s.deps.LogManager.Logger()

	if statusFile != nil {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		statusFile.Truncate(0)
		statusFile.Seek(0, 0)
		statusFile.Write(append(data, '\n'))
	}

	if s.deps.Influx != nil {
		point := influxdb2.NewPointWithMeasurement("tile_cache").
			AddTag("baseDir", s.deps.Store.BaseDir()).
			AddField("tiles", snap.Tiles).
			AddField("badMarkers", snap.BadMarkers).
			AddField("bytes", snap.Bytes).
			AddField("inflight", snap.Inflight).
			AddField("zoom", snap.Zoom).
			SetTime(snap.Time)
		err := s.deps.Influx.WritePoint(context.Background(), influx.BucketCacheStats, point)
		if err != nil {
			logger.Error("Error writing snapshot to InfluxDB", "error", err)
		}
	}
}

// Start starts the monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting cache monitor goroutine", "interval", s.deps.Interval)

		statusFile, err := os.Create(filepath.Join(s.deps.Store.BaseDir(), "status.json"))
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				snap, err := s.Sample()
				if err != nil {
					logger.Error("Error sampling cache stats", "error", err)
					continue
				}
				s.publish(snap, statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
