package pg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/postgres"
	"github.com/DjordjeVuckovic/index-relay/internal/sink"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	upsertDocumentSQL = `
        INSERT INTO documents (index_name, id, doc_type, body, updated_at)
        VALUES ($1, $2, $3, $4, now())
        ON CONFLICT (index_name, id)
        DO UPDATE SET doc_type = EXCLUDED.doc_type, body = EXCLUDED.body, updated_at = now();
    `
	deleteDocumentSQL = `DELETE FROM documents WHERE index_name = $1 AND id = $2;`
)

// BulkSink writes bulk operations into the documents table. A batch is applied
// in one transaction, so it either lands completely or not at all.
type BulkSink struct {
	db *pgxpool.Pool
}

func NewBulkSink(pool *postgres.ConnectionPool) *BulkSink {
	return &BulkSink{db: pool.GetConn()}
}

func (s *BulkSink) BulkWrite(ctx context.Context, ops []domain.BulkOperation, target domain.Target) error {
	if len(ops) == 0 {
		return nil
	}

	docType := target.Type
	if docType == "" {
		docType = domain.DefaultTargetType
	}

	batch := &pgx.Batch{}
	for _, op := range ops {
		switch op.Kind {
		case domain.OpUpsert:
			batch.Queue(upsertDocumentSQL, target.Index, op.ID, docType, op.Document)
		case domain.OpDelete:
			batch.Queue(deleteDocumentSQL, target.Index, op.ID)
		default:
			return apperr.NewInvalidOperation(string(op.Kind))
		}
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to apply bulk operations: %w", err)
	}

	slog.Debug("Bulk written to documents table", "index", target.Index, "count", len(ops))
	return nil
}

var _ sink.BulkWriter = (*BulkSink)(nil)
