package reader

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
	"github.com/DjordjeVuckovic/index-relay/internal/stream"
)

// EventReader turns a change subscription into an ordered sequence of events.
// The subscription is opened once, on first demand, and never re-issued.
// The sequence has no natural end; it stops on Stop, context cancellation or a source failure.
type EventReader struct {
	subscriber source.Subscriber
	kinds      []domain.ChangeKind

	mu      sync.Mutex
	sub     source.Subscription
	stopped bool

	consuming atomic.Bool
}

type EventReaderOption func(*EventReader)

// WithKinds restricts the subscription to the given change kinds.
func WithKinds(kinds ...domain.ChangeKind) EventReaderOption {
	return func(r *EventReader) {
		if len(kinds) > 0 {
			r.kinds = kinds
		}
	}
}

func NewEventReader(subscriber source.Subscriber, opts ...EventReaderOption) *EventReader {
	r := &EventReader{
		subscriber: subscriber,
		kinds:      domain.AllChangeKinds,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens the subscription if it is not open yet. Concurrent and repeated
// calls share the single subscription. Events arriving before Produce are buffered by the source.
func (r *EventReader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return stream.ErrClosed
	}
	if r.sub != nil {
		return nil
	}

	sub, err := r.subscriber.Subscribe(ctx, r.kinds)
	if err != nil {
		slog.Error("Change subscription failed", "error", err, "kinds", r.kinds)
		return apperr.NewSourceFetch("subscribe", err)
	}
	r.sub = sub

	slog.Info("Change subscription opened", "kinds", r.kinds)
	return nil
}

// Subscribed reports whether the subscription has been opened.
func (r *EventReader) Subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub != nil
}

// Produce delivers events to out in source emission order.
func (r *EventReader) Produce(ctx context.Context, out stream.Consumer[domain.ChangeEvent]) error {
	if !r.consuming.CompareAndSwap(false, true) {
		return ErrAlreadyReading
	}
	defer r.consuming.Store(false)

	if err := r.Start(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()

	delivered := 0
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Event reader context cancelled", "delivered", delivered)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := sub.Err(); err != nil {
					slog.Error("Change subscription failed", "error", err, "delivered", delivered)
					return apperr.NewSourceFetch("subscription", err)
				}
				slog.Info("Change subscription closed", "delivered", delivered)
				return nil
			}

			if err := out.Consume(ctx, ev); err != nil {
				return err
			}
			delivered++
		}
	}
}

// Stop closes the subscription. Produce returns once buffered events are drained.
func (r *EventReader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.sub == nil {
		return nil
	}
	return r.sub.Close()
}

var _ stream.Producer[domain.ChangeEvent] = (*EventReader)(nil)
