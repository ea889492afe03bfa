package factory

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/DjordjeVuckovic/index-relay/internal/postgres"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
	"github.com/DjordjeVuckovic/index-relay/internal/source/pg"
	"github.com/DjordjeVuckovic/index-relay/internal/source/redis"
)

type SourceConfig struct {
	source.Type
	Pg      *postgres.PoolConfig
	PgTable pg.Config
	Redis   *redis.Config
}

func LoadEnv() (*SourceConfig, error) {
	sourceType := source.Type(os.Getenv("SOURCE_TYPE"))
	if sourceType == "" {
		slog.Error("SOURCE_TYPE environment variable is not set")
		return nil, fmt.Errorf("SOURCE_TYPE environment variable is not set")
	}
	if sourceType != source.PG && sourceType != source.Redis && sourceType != source.InMem {
		slog.Error("Invalid SOURCE_TYPE environment variable value", "value", sourceType)
		return nil, fmt.Errorf(
			"invalid SOURCE_TYPE environment variable value: %s, expected one of %v",
			sourceType,
			[]source.Type{source.PG, source.Redis, source.InMem})
	}

	cfg := &SourceConfig{Type: sourceType}

	switch sourceType {
	case source.PG:
		cfg.Pg = &postgres.PoolConfig{
			ConnStr: os.Getenv("PG_CONNECTION_STRING"),
		}
		if cfg.Pg.ConnStr == "" {
			slog.Error("PostgreSQL connection string is not set")
			return nil, fmt.Errorf("PG_CONNECTION_STRING environment variable is not set")
		}
		cfg.PgTable = pg.Config{
			Table:   os.Getenv("PG_RECORDS_TABLE"),
			Channel: os.Getenv("PG_CHANGES_CHANNEL"),
		}
	case source.Redis:
		cfg.Redis = &redis.Config{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			Namespace: os.Getenv("REDIS_NAMESPACE"),
		}
		if cfg.Redis.Addr == "" {
			slog.Error("Redis address is not set")
			return nil, fmt.Errorf("REDIS_ADDR environment variable is not set")
		}
		if db := os.Getenv("REDIS_DB"); db != "" {
			n, err := strconv.Atoi(db)
			if err != nil || n < 0 {
				slog.Error("Invalid REDIS_DB environment variable value", "value", db)
				return nil, fmt.Errorf("invalid REDIS_DB environment variable value: %s", db)
			}
			cfg.Redis.DB = n
		}
	}

	return cfg, nil
}
