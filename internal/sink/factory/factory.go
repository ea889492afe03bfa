package factory

import (
	"context"
	"fmt"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/postgres"
	"github.com/DjordjeVuckovic/index-relay/internal/sink"
	"github.com/DjordjeVuckovic/index-relay/internal/sink/es"
	"github.com/DjordjeVuckovic/index-relay/internal/sink/in_mem"
	"github.com/DjordjeVuckovic/index-relay/internal/sink/pg"
)

// Writer is a constructed sink together with its health check and cleanup.
type Writer struct {
	sink.BulkWriter
	healthy func(ctx context.Context) bool
	close   func()
}

func (w *Writer) Healthy(ctx context.Context) bool {
	return w.healthy(ctx)
}

func (w *Writer) Close() {
	if w.close != nil {
		w.close()
	}
}

// NewBulkWriter creates the configured sink. The Elasticsearch sink makes sure
// the target index exists before returning.
func NewBulkWriter(ctx context.Context, cfg *SinkConfig, target domain.Target) (*Writer, error) {
	switch cfg.Type {
	case sink.ES:
		if cfg.Es == nil {
			return nil, fmt.Errorf("invalid config for Elasticsearch sink: client config is missing")
		}
		s, err := es.NewBulkSink(*cfg.Es)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndex(ctx, target.Index); err != nil {
			return nil, fmt.Errorf("failed to ensure index exists: %w", err)
		}
		return &Writer{BulkWriter: s, healthy: s.Healthy}, nil

	case sink.PG:
		if cfg.Pg == nil {
			return nil, fmt.Errorf("invalid config for PostgreSQL sink: pool config is missing")
		}
		pool, err := postgres.NewConnectionPool(ctx, *cfg.Pg)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
		}
		return &Writer{
			BulkWriter: pg.NewBulkSink(pool),
			healthy:    postgres.NewHealthChecker(pool).Healthy,
			close:      pool.Close,
		}, nil

	case sink.InMem:
		return &Writer{
			BulkWriter: in_mem.NewSink(),
			healthy:    func(context.Context) bool { return true },
		}, nil

	default:
		return nil, fmt.Errorf(string(sink.ErrUnsupportedSink), cfg.Type)
	}
}
