package consumer

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/DjordjeVuckovic/index-relay/internal/stream"
)

// LogConsumer is the terminal stage of a pipeline. It runs an observer for
// every item and acknowledges synchronously. Without an observer items are
// logged at debug level.
type LogConsumer[T any] struct {
	name    string
	observe func(ctx context.Context, item T) error
	count   atomic.Int64
}

type Option[T any] func(*LogConsumer[T])

func WithName[T any](name string) Option[T] {
	return func(c *LogConsumer[T]) {
		c.name = name
	}
}

// WithObserver replaces the default debug log. A returned error stops the pipeline.
func WithObserver[T any](fn func(ctx context.Context, item T) error) Option[T] {
	return func(c *LogConsumer[T]) {
		c.observe = fn
	}
}

func NewLogConsumer[T any](opts ...Option[T]) *LogConsumer[T] {
	c := &LogConsumer[T]{name: "consumer"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LogConsumer[T]) Consume(ctx context.Context, item T) error {
	c.count.Add(1)

	if c.observe == nil {
		slog.DebugContext(ctx, "Item relayed", "consumer", c.name, "item", item)
		return nil
	}
	return c.observe(ctx, item)
}

// Count returns how many items were consumed.
func (c *LogConsumer[T]) Count() int64 {
	return c.count.Load()
}

var _ stream.Consumer[string] = (*LogConsumer[string])(nil)
