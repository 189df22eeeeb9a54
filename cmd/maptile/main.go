package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hamnet/maptile/internal/cache"
	"github.com/hamnet/maptile/internal/config"
	"github.com/hamnet/maptile/internal/dispatch"
	"github.com/hamnet/maptile/internal/fetcher"
	"github.com/hamnet/maptile/internal/influx"
	"github.com/hamnet/maptile/internal/logging"
	"github.com/hamnet/maptile/internal/monitor"
	intOtel "github.com/hamnet/maptile/internal/otel"
	"github.com/hamnet/maptile/internal/source"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Version can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "maptile"
)

var (
	SessionStartTime time.Time = time.Now()

	// LogManager handles all slog-based logging
	LogManager *logging.Manager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	MapLogFilePath string
	MapLogFile     *os.File
)

// app holds the wired services for a single run.
type app struct {
	settings *config.Settings
	store    *cache.Store
	sources  *source.Registry
	src      source.Source
	loop     *dispatch.Loop
	fetcher  *fetcher.Fetcher
	influx   *influx.Manager
	monitor  *monitor.Service
}

func setup() (*app, error) {
	var err error

	// Initialize slog manager with initial config
	LogManager = logging.NewManager()
	LogManager.Setup(nil, viper.GetString("logLevel"), nil, nil)
	Logger = LogManager.Logger()

	// load config from the working directory
	err = config.Load(".")
	if err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	// create logs dir if it doesn't exist
	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.MkdirAll(logsDir, 0755)
	}

	MapLogFilePath = logging.LogFilePath(logsDir, SessionStartTime)
	MapLogFile, err = os.OpenFile(MapLogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", MapLogFilePath)
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    MapLogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", MapLogFilePath)
		}
	}

	a := &app{}
	a.settings = config.SettingsFromViper()

	// Re-setup logging with file output, optional OTel and map state context
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	LogManager.Setup(MapLogFile, viper.GetString("logLevel"), otelLogProvider, func() []slog.Attr {
		return []slog.Attr{
			slog.Int("zoom", a.settings.Zoom()),
			slog.Bool("connected", a.settings.Connected()),
		}
	})
	Logger = LogManager.Logger()
	Logger.Info("Logging to file", "path", MapLogFilePath)

	a.store, err = cache.New(a.settings)
	if err != nil {
		return nil, fmt.Errorf("error opening tile cache: %w", err)
	}

	a.sources, err = source.FromViper()
	if err != nil {
		return nil, fmt.Errorf("error loading tile sources: %w", err)
	}

	a.src = a.sources.Default()
	Logger.Info("Using tile source", "source", a.src.Name, "url", a.src.URL)

	a.loop = dispatch.NewLoop()

	a.fetcher, err = fetcher.New(a.store, a.settings, a.src, a.loop, Logger)
	if err != nil {
		return nil, fmt.Errorf("error creating tile fetcher: %w", err)
	}

	if viper.GetBool("influx.enabled") {
		zlog := zerolog.New(MapLogFile).With().Timestamp().Logger()
		backupPath := filepath.Join(logsDir, "influx_backup.gz")
		a.influx = influx.NewManager(zlog, backupPath)
		if err := a.influx.Connect(); err != nil {
			Logger.Error("Failed to connect to InfluxDB", "error", err)
			a.influx = nil
		}
	}

	a.monitor = monitor.NewService(monitor.Dependencies{
		Store:      a.store,
		Fetcher:    a.fetcher,
		Settings:   a.settings,
		LogManager: LogManager,
		Influx:     a.influx,
		Interval:   time.Duration(viper.GetInt("monitor.intervalSeconds")) * time.Second,
	})

	return a, nil
}

func (a *app) shutdown(ctx context.Context) {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.loop != nil {
		a.loop.Stop()
	}
	if a.influx != nil {
		a.influx.Close()
	}
	if err := LogManager.Flush(ctx); err != nil {
		Logger.Error("Error flushing logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Error("Error shutting down OTel provider", "error", err)
		}
	}
	if MapLogFile != nil {
		MapLogFile.Close()
	}
}

func usage() {
	fmt.Printf("%s %s (built %s)\n", AppName, Version, BuildDate)
	fmt.Println("Usage:")
	fmt.Println("  maptile fetch <lat> <lon> [zoom]       fetch a single tile")
	fmt.Println("  maptile prefetch <lat> <lon> <radius> [zoom]")
	fmt.Println("                                         fetch all tiles within radius")
	fmt.Println("  maptile stat                           show cache statistics")
	fmt.Println("  maptile clear                          remove all cached tiles")
	fmt.Println("  maptile export <file.mbtiles> [name]   export cache to MBTiles")
	fmt.Println("  maptile import <file.mbtiles>          import tiles from MBTiles")
	fmt.Println("  maptile sources                        list configured tile sources")
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	a, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.loop.Run(ctx)
	defer a.shutdown(context.Background())

	switch strings.ToLower(args[0]) {
	case "fetch":
		err = cmdFetch(ctx, a, args[1:])
	case "prefetch":
		err = cmdPrefetch(ctx, a, args[1:])
	case "stat":
		err = cmdStat(a)
	case "clear":
		err = cmdClear(a)
	case "export":
		err = cmdExport(ctx, a, args[1:])
	case "import":
		err = cmdImport(ctx, a, args[1:])
	case "sources":
		err = cmdSources(a)
	default:
		usage()
		err = fmt.Errorf("unknown command %q", args[0])
	}

	if err != nil {
		Logger.Error("Command failed", "command", args[0], "error", err)
		return err
	}
	return nil
}
