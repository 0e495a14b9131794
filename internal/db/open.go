package db

import (
	"context"
	"fmt"

	"github.com/RichardoC/orion/internal/config"
)

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return New(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.URL)
	case "mongo":
		return NewMongoStorage(ctx, cfg.URL, cfg.Name)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
