// Package stream defines the three stage roles of a relay pipeline.
//
// Stages are composed synchronously: a producer hands each item to its consumer
// and waits for Consume to return before producing the next one. A nil return is
// the acknowledgment that re-establishes demand; a non-nil error stops the producer.
package stream

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("stream closed")

// Producer pushes items into out until the sequence ends, ctx is done or out fails.
// Produce returns nil at end of sequence.
type Producer[T any] interface {
	Produce(ctx context.Context, out Consumer[T]) error
}

// Transformer converts T into U and forwards the result to next.
type Transformer[T, U any] interface {
	Transform(ctx context.Context, item T, next Consumer[U]) error
}

// Consumer accepts one item at a time.
type Consumer[T any] interface {
	Consume(ctx context.Context, item T) error
}

type ConsumerFunc[T any] func(ctx context.Context, item T) error

func (f ConsumerFunc[T]) Consume(ctx context.Context, item T) error {
	return f(ctx, item)
}

type TransformerFunc[T, U any] func(ctx context.Context, item T, next Consumer[U]) error

func (f TransformerFunc[T, U]) Transform(ctx context.Context, item T, next Consumer[U]) error {
	return f(ctx, item, next)
}

// Through returns a consumer of T that runs every item through t into next.
func Through[T, U any](t Transformer[T, U], next Consumer[U]) Consumer[T] {
	return ConsumerFunc[T](func(ctx context.Context, item T) error {
		return t.Transform(ctx, item, next)
	})
}

// Convert returns a producer that applies fn to every item of p.
func Convert[T, U any](p Producer[T], fn func(T) U) Producer[U] {
	return &converted[T, U]{src: p, fn: fn}
}

type converted[T, U any] struct {
	src Producer[T]
	fn  func(T) U
}

func (c *converted[T, U]) Produce(ctx context.Context, out Consumer[U]) error {
	return c.src.Produce(ctx, ConsumerFunc[T](func(ctx context.Context, item T) error {
		return out.Consume(ctx, c.fn(item))
	}))
}

// Slice is a consumer that keeps every item it receives. Safe for concurrent use.
type Slice[T any] struct {
	mu    sync.Mutex
	items []T
}

func NewSlice[T any]() *Slice[T] {
	return &Slice[T]{}
}

func (s *Slice[T]) Consume(_ context.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return nil
}

// Items returns a copy of the received items.
func (s *Slice[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
