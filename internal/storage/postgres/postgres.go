// Package postgres implements the storage.Backend interface on PostgreSQL.
// When the server is unreachable it falls back to an in-memory SQLite
// database that is dumped to disk when the session ends.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/MiaMao0615/AR-Accompanied/internal/config"
	"github.com/MiaMao0615/AR-Accompanied/internal/database"
	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	gormstorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/gorm"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the postgres storage backend.
type Dependencies struct {
	DB             config.DBConfig
	FallbackPath   string
	Site           *geo.Site
	Tag            string
	Logger         *slog.Logger
	DBLogger       zerolog.Logger
	connectManager func(*database.Manager) error
}

// Backend wraps the GORM backend with a managed postgres connection.
type Backend struct {
	*gormstorage.Backend
	deps    Dependencies
	manager *database.Manager
}

// New creates a postgres backend. The connection is opened by Init.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.connectManager == nil {
		deps.connectManager = (*database.Manager).Connect
	}
	return &Backend{
		deps:    deps,
		manager: database.NewManager(deps.DB, deps.FallbackPath, deps.DBLogger),
	}
}

// Init connects, migrates the schema and starts the writer.
func (b *Backend) Init() error {
	if err := b.deps.connectManager(b.manager); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if b.manager.ShouldSaveLocal {
		b.deps.Logger.Warn("Postgres unavailable, recording to local SQLite", "fallback", b.deps.FallbackPath)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:       b.manager.DB,
		Logger:   b.deps.Logger,
		DBLogger: b.deps.DBLogger,
		Site:     b.deps.Site,
		Tag:      b.deps.Tag,
	})
	return b.Backend.Init()
}

// SavesLocal reports whether the backend fell back to SQLite.
func (b *Backend) SavesLocal() bool {
	return b.manager.ShouldSaveLocal
}

// StartSession records a new session row.
func (b *Backend) StartSession(s *core.Session) error {
	if b.Backend == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	return b.Backend.StartSession(s)
}

// EndSession closes the session and, on the SQLite fallback, dumps it to disk.
func (b *Backend) EndSession() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	if b.manager.ShouldSaveLocal && b.deps.FallbackPath != "" {
		return b.manager.DumpMemoryToDisk()
	}
	return nil
}

// Close stops the writer and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend != nil {
		if err := b.Backend.Close(); err != nil {
			return err
		}
	}
	return b.manager.Close()
}
