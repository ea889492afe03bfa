package in_mem

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
)

// Source is an ordered collection held in memory. Put and Remove emit change
// events to every open subscription, in call order.
type Source struct {
	storageLock sync.RWMutex
	storage     map[string]domain.Record

	// emitLock serialises mutations with their notifications.
	emitLock sync.Mutex
	subs     map[*source.ChanSubscription][]domain.ChangeKind
	buffer   int
}

type Option func(*Source)

// WithBuffer sets the per-subscription event buffer.
func WithBuffer(n int) Option {
	return func(s *Source) {
		s.buffer = n
	}
}

func NewSource(opts ...Option) *Source {
	s := &Source{
		storage: make(map[string]domain.Record),
		subs:    make(map[*source.ChanSubscription][]domain.ChangeKind),
		buffer:  source.DefaultSubscriptionBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put inserts or replaces a record and emits added or changed.
func (s *Source) Put(r domain.Record) {
	s.emitLock.Lock()
	defer s.emitLock.Unlock()

	s.storageLock.Lock()
	_, existed := s.storage[r.Key]
	s.storage[r.Key] = r
	s.storageLock.Unlock()

	kind := domain.Added
	if existed {
		kind = domain.Changed
	}
	s.emit(domain.ChangeEvent{Kind: kind, Record: r})
}

// Remove deletes a record and emits removed. It reports whether the key existed.
func (s *Source) Remove(key string) bool {
	s.emitLock.Lock()
	defer s.emitLock.Unlock()

	s.storageLock.Lock()
	r, existed := s.storage[key]
	delete(s.storage, key)
	s.storageLock.Unlock()

	if existed {
		s.emit(domain.ChangeEvent{Kind: domain.Removed, Record: r})
	}
	return existed
}

func (s *Source) Len() int {
	s.storageLock.RLock()
	defer s.storageLock.RUnlock()
	return len(s.storage)
}

func (s *Source) emit(ev domain.ChangeEvent) {
	for sub, kinds := range s.subs {
		if !domain.ContainsKind(kinds, ev.Kind) {
			continue
		}
		if !sub.Deliver(ev) {
			slog.Debug("in-memory subscription closed, event not delivered", "event", ev.String())
		}
	}
}

func (s *Source) FetchPage(ctx context.Context, startAt *domain.Cursor, limit int) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.storageLock.RLock()
	records := make([]domain.Record, 0, len(s.storage))
	for _, r := range s.storage {
		records = append(records, r)
	}
	s.storageLock.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Less(records[j])
	})

	start := 0
	if startAt != nil {
		start = sort.Search(len(records), func(i int) bool {
			return domain.Compare(records[i].Priority, records[i].Key, startAt.Priority, startAt.Key) >= 0
		})
	}

	end := start + limit
	if limit <= 0 || end > len(records) {
		end = len(records)
	}
	return records[start:end], nil
}

func (s *Source) Subscribe(ctx context.Context, kinds []domain.ChangeKind) (source.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = domain.AllChangeKinds
	}

	var sub *source.ChanSubscription
	sub = source.NewChanSubscription(s.buffer, func() error {
		s.emitLock.Lock()
		delete(s.subs, sub)
		s.emitLock.Unlock()
		sub.End(nil)
		return nil
	})

	s.emitLock.Lock()
	s.subs[sub] = kinds
	s.emitLock.Unlock()

	slog.Debug("In-memory subscription opened", "kinds", kinds)
	return sub, nil
}

func (s *Source) Healthy(ctx context.Context) bool {
	return true
}

// Close ends every open subscription.
func (s *Source) Close() error {
	s.emitLock.Lock()
	subs := make([]*source.ChanSubscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.emitLock.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

var _ source.OrderedSource = (*Source)(nil)
