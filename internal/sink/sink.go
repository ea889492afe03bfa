package sink

import (
	"context"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
)

// BulkWriter is the bulk-sink collaborator. One call writes one batch.
type BulkWriter interface {
	BulkWrite(ctx context.Context, ops []domain.BulkOperation, target domain.Target) error
}

type Type string

const (
	ES    Type = "es"
	PG    Type = "pg"
	InMem Type = "in_mem"
)

type SinkError string

const (
	ErrUnsupportedSink SinkError = "unsupported sink type: %s"
)

func (e SinkError) Error() string {
	return string(e)
}
