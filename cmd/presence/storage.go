package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/config"
	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	"github.com/MiaMao0615/AR-Accompanied/internal/influx"
	"github.com/MiaMao0615/AR-Accompanied/internal/logging"
	"github.com/MiaMao0615/AR-Accompanied/internal/storage"
	"github.com/MiaMao0615/AR-Accompanied/internal/storage/memory"
	pgstorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/postgres"
	sqlitestorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/sqlite"
	wsstorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/websocket"
)

// storageEnv carries what the backends need besides their own settings.
type storageEnv struct {
	Tag       string
	Site      *geo.Site
	Logger    *slog.Logger
	LogWriter io.Writer // zerolog sink of the database and influx managers
	LogLevel  string
	Start     time.Time
}

// siteFromConfig returns nil when no geo-reference is configured.
func siteFromConfig(cfg config.SiteConfig) *geo.Site {
	if cfg.Latitude == 0 && cfg.Longitude == 0 {
		return nil
	}
	return geo.NewSite(cfg.Longitude, cfg.Latitude)
}

func createStorageBackend(storageCfg config.StorageConfig, env storageEnv) (storage.Backend, error) {
	stamp := env.Start.Format("20060102_150405")

	switch strings.ToLower(storageCfg.Type) {
	case "postgres":
		fallback := filepath.Join(storageCfg.Memory.OutputDir, fmt.Sprintf("%s_%s.db", ExtensionName, stamp))
		env.Logger.Info("Postgres storage backend initialized", "fallback", fallback)
		return pgstorage.New(pgstorage.Dependencies{
			DB:           config.GetDBConfig(),
			FallbackPath: fallback,
			Site:         env.Site,
			Tag:          env.Tag,
			Logger:       env.Logger,
			DBLogger:     logging.NewZerolog(env.LogWriter, env.LogLevel, "database"),
		}), nil

	case "sqlite":
		path := storageCfg.SQLite.Path
		if path == "" {
			path = filepath.Join(storageCfg.Memory.OutputDir, fmt.Sprintf("%s_%s.db", ExtensionName, stamp))
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     path,
		}, env.Site, env.Tag, env.Logger, logging.NewZerolog(env.LogWriter, env.LogLevel, "database"))
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		env.Logger.Info("SQLite storage backend initialized", "path", path)
		return backend, nil

	case "websocket":
		wsURL := storageCfg.Websocket.URL
		if wsURL == "" {
			wsURL = httpToWS(config.GetAPIConfig().ServerURL) + "/api/v1/stream"
		}
		secret := storageCfg.Websocket.Secret
		if secret == "" {
			secret = config.GetAPIConfig().APIKey
		}
		env.Logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:          wsURL,
			Secret:       secret,
			Tag:          env.Tag,
			WriteTimeout: storageCfg.Websocket.WriteTimeout,
		}, env.Logger), nil

	case "influx":
		backup := filepath.Join(storageCfg.Memory.OutputDir, fmt.Sprintf("%s_influx_%s.lp.gz", ExtensionName, stamp))
		m := influx.NewManager(config.GetInfluxConfig(), logging.NewZerolog(env.LogWriter, env.LogLevel, "influx"), backup)
		env.Logger.Info("InfluxDB storage backend initialized", "url", m.ServerURL(), "backup", backup)
		return influx.NewBackend(m).WithSite(env.Site), nil

	case "memory", "":
		env.Logger.Info("Memory storage backend initialized", "dir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory, env.Tag), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageCfg.Type)
	}
}

// createTelemetry returns the influx backend used for performance samples
// and :METRIC: lines, or nil when influx is disabled or already the journal.
func createTelemetry(storageCfg config.StorageConfig, journal storage.Backend, env storageEnv) *influx.Backend {
	if b, ok := journal.(*influx.Backend); ok {
		return b
	}
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	backup := filepath.Join(storageCfg.Memory.OutputDir, fmt.Sprintf("%s_influx_%s.lp.gz", ExtensionName, env.Start.Format("20060102_150405")))
	return influx.NewBackend(influx.NewManager(cfg, logging.NewZerolog(env.LogWriter, env.LogLevel, "influx"), backup)).WithSite(env.Site)
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
