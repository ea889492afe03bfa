package factory

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/DjordjeVuckovic/index-relay/internal/postgres"
	"github.com/DjordjeVuckovic/index-relay/internal/sink"
	"github.com/DjordjeVuckovic/index-relay/internal/sink/es"
	"github.com/DjordjeVuckovic/index-relay/pkg/utils"
)

type SinkConfig struct {
	sink.Type
	Pg *postgres.PoolConfig
	Es *es.ClientConfig
}

func LoadEnv() (*SinkConfig, error) {
	sinkType := sink.Type(os.Getenv("SINK_TYPE"))
	if sinkType == "" {
		slog.Error("SINK_TYPE environment variable is not set")
		return nil, fmt.Errorf("SINK_TYPE environment variable is not set")
	}
	if sinkType != sink.ES && sinkType != sink.PG && sinkType != sink.InMem {
		slog.Error("Invalid SINK_TYPE environment variable value", "value", sinkType)
		return nil, fmt.Errorf(
			"invalid SINK_TYPE environment variable value: %s, expected one of %v",
			sinkType,
			[]sink.Type{sink.ES, sink.PG, sink.InMem})
	}

	cfg := &SinkConfig{Type: sinkType}

	switch sinkType {
	case sink.ES:
		addresses := utils.SplitList(os.Getenv("ES_ADDRESSES"))
		if len(addresses) == 0 {
			slog.Error("Elasticsearch configuration is incomplete", "addresses", addresses)
			return nil, fmt.Errorf("elasticsearch configuration is incomplete: ES_ADDRESSES is missing")
		}
		cfg.Es = &es.ClientConfig{
			Addresses: addresses,
			Username:  os.Getenv("ES_USERNAME"),
			Password:  os.Getenv("ES_PASSWORD"),
		}
	case sink.PG:
		cfg.Pg = &postgres.PoolConfig{
			ConnStr: os.Getenv("PG_SINK_CONNECTION_STRING"),
		}
		if cfg.Pg.ConnStr == "" {
			slog.Error("PostgreSQL sink connection string is not set")
			return nil, fmt.Errorf("PG_SINK_CONNECTION_STRING environment variable is not set")
		}
	}

	return cfg, nil
}
