package factory

import (
	"context"
	"fmt"

	"github.com/DjordjeVuckovic/index-relay/internal/postgres"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
	"github.com/DjordjeVuckovic/index-relay/internal/source/in_mem"
	"github.com/DjordjeVuckovic/index-relay/internal/source/pg"
	"github.com/DjordjeVuckovic/index-relay/internal/source/redis"
)

// NewOrderedSource creates a source.OrderedSource based on the source type
func NewOrderedSource(ctx context.Context, cfg *SourceConfig) (source.OrderedSource, error) {
	switch cfg.Type {
	case source.PG:
		if cfg.Pg == nil {
			return nil, fmt.Errorf("invalid config for PostgreSQL source: pool config is missing")
		}
		pool, err := postgres.NewConnectionPool(ctx, *cfg.Pg)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
		}
		return pg.NewSource(pool, cfg.PgTable), nil

	case source.Redis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("invalid config for Redis source: client config is missing")
		}
		s, err := redis.NewSource(ctx, *cfg.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil

	case source.InMem:
		return in_mem.NewSource(), nil

	default:
		return nil, fmt.Errorf(string(source.ErrUnsupportedSource), cfg.Type)
	}
}
