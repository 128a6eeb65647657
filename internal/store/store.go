// Package store persists discovered resources, discovery events and
// tombstones in Postgres or SQLite.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/communityfood/discovery-engine/internal/model"
)

// Store defines the persistence interface for the discovery engine.
type Store interface {
	// Tombstones
	FindTombstone(ctx context.Context, normalizedAddress string) (*model.Tombstone, error)
	InsertTombstones(ctx context.Context, tombstones []model.Tombstone) (int64, error)

	// Inventory
	FindInBoundingBox(ctx context.Context, box model.BoundingBox) ([]model.InventoryRecord, error)
	UpsertResource(ctx context.Context, r *model.Resource) (bool, error)

	// Discovery events
	InsertEvent(ctx context.Context, ev *model.DiscoveryEvent) error
	CompleteEvent(ctx context.Context, id string, status model.EventStatus, resultCount int, completedAt time.Time) error
	LatestEventSince(ctx context.Context, locationHash string, since time.Time) (*model.DiscoveryEvent, error)
	ListEvents(ctx context.Context, limit int) ([]model.DiscoveryEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the backing database.
type Config struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string     `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open returns the store named by cfg.Driver ("postgres" or "sqlite").
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql", "pg":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver requires database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = "discovery.db"
		}
		return NewSQLite(path)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
