package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
	"github.com/jackc/pgx/v5"
)

// NotificationPayload is the JSON body published by notify_record_change.
type NotificationPayload struct {
	Kind      domain.ChangeKind `json:"kind"`
	Key       string            `json:"key"`
	Priority  float64           `json:"priority"`
	Value     json.RawMessage   `json:"value,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
}

func parsePayload(payload string) (NotificationPayload, error) {
	var p NotificationPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return p, fmt.Errorf("failed to parse notification payload: %w", err)
	}
	if p.Key == "" {
		return p, fmt.Errorf("notification payload has no key")
	}
	return p, nil
}

// Subscribe takes a connection out of the pool and LISTENs on the change channel.
// Notifications are delivered in the order the server sends them.
func (s *Source) Subscribe(ctx context.Context, kinds []domain.ChangeKind) (source.Subscription, error) {
	if len(kinds) == 0 {
		kinds = domain.AllChangeKinds
	}

	pooled, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	// the listening connection never goes back to the pool
	conn := pooled.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen on %s: %w", s.channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	sub := source.NewChanSubscription(s.buffer, func() error {
		cancel()
		return nil
	})

	go s.listen(listenCtx, conn, sub, kinds)

	slog.Info("Listening for record changes", "channel", s.channel, "kinds", kinds)
	return sub, nil
}

func (s *Source) listen(ctx context.Context, conn *pgx.Conn, sub *source.ChanSubscription, kinds []domain.ChangeKind) {
	defer func() {
		_ = conn.Close(context.Background())
	}()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				sub.End(nil)
				return
			}
			slog.Error("Listen connection failed", "channel", s.channel, "error", err)
			sub.End(fmt.Errorf("failed to wait for notification: %w", err))
			return
		}

		ev, ok, err := s.toEvent(ctx, n.Payload, kinds)
		if err != nil {
			if ctx.Err() != nil {
				sub.End(nil)
				return
			}
			sub.End(err)
			return
		}
		if !ok {
			continue
		}

		if !sub.Deliver(ev) {
			sub.End(nil)
			return
		}
	}
}

// toEvent turns a notification into a change event. Values left out of the
// payload are read back from the table; a record deleted in the meantime is skipped.
func (s *Source) toEvent(ctx context.Context, payload string, kinds []domain.ChangeKind) (domain.ChangeEvent, bool, error) {
	p, err := parsePayload(payload)
	if err != nil {
		return domain.ChangeEvent{}, false, err
	}
	if !domain.ContainsKind(kinds, p.Kind) {
		return domain.ChangeEvent{}, false, nil
	}

	ev := domain.ChangeEvent{
		Kind:   p.Kind,
		Record: domain.Record{Key: p.Key, Priority: p.Priority, Value: p.Value},
	}

	if p.Truncated && p.Kind != domain.Removed {
		r, found, err := s.Get(ctx, p.Key)
		if err != nil {
			return domain.ChangeEvent{}, false, err
		}
		if !found {
			slog.Debug("Changed record no longer exists", "key", p.Key)
			return domain.ChangeEvent{}, false, nil
		}
		ev.Record = r
	}

	return ev, true, nil
}
