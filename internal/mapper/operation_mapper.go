package mapper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/stream"
)

// Map converts a change event into the bulk operation that mirrors it.
//
//	added, changed -> upsert(record.key, record.value)
//	removed        -> delete(record.key)
//
// Any other kind fails with *apperr.InvalidOperationError.
func Map(ev domain.ChangeEvent) (domain.BulkOperation, error) {
	switch ev.Kind {
	case domain.Added, domain.Changed:
		return domain.Upsert(ev.Record.Key, ev.Record.Value), nil
	case domain.Removed:
		return domain.Delete(ev.Record.Key), nil
	default:
		return domain.BulkOperation{}, apperr.NewInvalidOperation(string(ev.Kind))
	}
}

// OperationMapper is the pipeline stage around Map.
// By default an unmappable event fails the stage. With skipInvalid it is logged, counted and dropped.
type OperationMapper struct {
	skipInvalid bool
	skipped     atomic.Int64
}

type Option func(*OperationMapper)

func WithSkipInvalid(skip bool) Option {
	return func(m *OperationMapper) {
		m.skipInvalid = skip
	}
}

func New(opts ...Option) *OperationMapper {
	m := &OperationMapper{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *OperationMapper) Transform(ctx context.Context, ev domain.ChangeEvent, next stream.Consumer[domain.Mapped[domain.ChangeEvent]]) error {
	op, err := Map(ev)
	if err != nil {
		var invalid *apperr.InvalidOperationError
		if m.skipInvalid && errors.As(err, &invalid) {
			m.skipped.Add(1)
			slog.Warn("Skipping event with invalid operation", "kind", ev.Kind, "key", ev.Record.Key)
			return nil
		}
		return err
	}

	return next.Consume(ctx, domain.Mapped[domain.ChangeEvent]{Source: ev, Op: op})
}

// Skipped returns the number of dropped events.
func (m *OperationMapper) Skipped() int64 {
	return m.skipped.Load()
}

var _ stream.Transformer[domain.ChangeEvent, domain.Mapped[domain.ChangeEvent]] = (*OperationMapper)(nil)
