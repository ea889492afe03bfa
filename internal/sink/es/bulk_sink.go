package es

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/sink"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// BulkSink writes batches of bulk operations to Elasticsearch with the _bulk API.
// Upserts are sent as index actions (full document replace by id).
type BulkSink struct {
	client *elasticsearch.TypedClient
}

func NewBulkSink(config ClientConfig) (*BulkSink, error) {
	client, err := newClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	return &BulkSink{client: client}, nil
}

// BulkWrite sends ops in a single _bulk request. Deleting a missing document
// counts as success. Any other rejected item fails the whole call.
func (s *BulkSink) BulkWrite(ctx context.Context, ops []domain.BulkOperation, target domain.Target) error {
	if len(ops) == 0 {
		return nil
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         target.Index,
		Client:        s.client,
		NumWorkers:    1,
		FlushBytes:    100e+6,
		FlushInterval: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var successful, failed atomic.Int64

	for _, op := range ops {
		item, err := s.bulkItem(op, &successful, &failed)
		if err != nil {
			_ = bi.Close(ctx)
			return err
		}
		if err := bi.Add(ctx, item); err != nil {
			_ = bi.Close(ctx)
			return fmt.Errorf("failed to add %s to bulk indexer: %w", op, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("failed to close bulk indexer: %w", err)
	}

	st := bi.Stats()
	slog.Debug("Elasticsearch bulk request completed",
		"index", target.Index,
		"successful", successful.Load(),
		"failed", failed.Load(),
		"requests", st.NumRequests,
	)

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("failed to write %d out of %d operations to index %s", n, len(ops), target.Index)
	}
	return nil
}

func (s *BulkSink) bulkItem(op domain.BulkOperation, successful, failed *atomic.Int64) (esutil.BulkIndexerItem, error) {
	item := esutil.BulkIndexerItem{
		DocumentID: op.ID,
		OnSuccess: func(context.Context, esutil.BulkIndexerItem, esutil.BulkIndexerResponseItem) {
			successful.Add(1)
		},
		OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			if err == nil && item.Action == "delete" && res.Status == http.StatusNotFound {
				successful.Add(1)
				return
			}
			failed.Add(1)
			if err != nil {
				slog.Error("bulk item error", "error", err, "id", item.DocumentID)
			} else {
				slog.Error("bulk item error", "status", res.Status, "error", res.Error.Type, "reason", res.Error.Reason, "id", item.DocumentID)
			}
		},
	}

	switch op.Kind {
	case domain.OpUpsert:
		item.Action = "index"
		item.Body = bytes.NewReader(op.Document)
	case domain.OpDelete:
		item.Action = "delete"
	default:
		return item, apperr.NewInvalidOperation(string(op.Kind))
	}
	return item, nil
}

// EnsureIndex creates index with dynamic mappings when it does not exist yet.
func (s *BulkSink) EnsureIndex(ctx context.Context, index string) error {
	exists, err := s.client.Indices.Exists(index).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check if index exists: %w", err)
	}

	if exists {
		slog.Info("Index already exists", "index", index)
		return nil
	}

	createRes, err := s.client.Indices.Create(index).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if !createRes.Acknowledged {
		return fmt.Errorf("index creation was not acknowledged")
	}

	slog.Info("Index created successfully", "index", index)
	return nil
}

// Refresh makes recent writes to index visible to search.
func (s *BulkSink) Refresh(ctx context.Context, index string) error {
	if _, err := s.client.Indices.Refresh().Index(index).Do(ctx); err != nil {
		return fmt.Errorf("failed to refresh index: %w", err)
	}
	return nil
}

func (s *BulkSink) Healthy(ctx context.Context) bool {
	ok, err := s.client.Ping().Do(ctx)
	return err == nil && ok
}

var _ sink.BulkWriter = (*BulkSink)(nil)
