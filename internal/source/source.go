package source

import (
	"context"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
)

// PageFetcher runs ordered range queries over a collection.
type PageFetcher interface {
	// FetchPage returns at most limit records in (priority, key) order.
	// A nil startAt reads from the beginning; otherwise the page starts at
	// startAt inclusive, so the record under the cursor is returned again if it still exists.
	FetchPage(ctx context.Context, startAt *domain.Cursor, limit int) ([]domain.Record, error)
}

// Subscriber opens change subscriptions on a collection.
type Subscriber interface {
	// Subscribe starts delivering the given change kinds in the order the source emits them.
	Subscribe(ctx context.Context, kinds []domain.ChangeKind) (Subscription, error)
}

// Subscription is a live change feed.
type Subscription interface {
	// Events is closed when the subscription ends; Err then reports why.
	Events() <-chan domain.ChangeEvent
	Err() error
	Close() error
}

// OrderedSource is the realtime-database collaborator a relay reads from.
type OrderedSource interface {
	PageFetcher
	Subscriber
	Healthy(ctx context.Context) bool
	Close() error
}

type Type string

const (
	PG    Type = "pg"
	Redis Type = "redis"
	InMem Type = "in_mem"
)

type SourceError string

const (
	ErrUnsupportedSource SourceError = "unsupported source type: %s"
)

func (e SourceError) Error() string {
	return string(e)
}
