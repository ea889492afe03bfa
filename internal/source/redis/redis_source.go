package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
	"github.com/go-redis/redis/v8"
)

const DefaultNamespace = "records"

type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	Buffer    int
}

// Source keeps an ordered collection in Redis:
//
//	<ns>:order    sorted set of keys scored by priority
//	<ns>:values   hash of key -> JSON value
//	<ns>:changes  pub/sub channel carrying JSON change events
//
// Members with equal scores are ordered by their bytes, which matches the
// (priority, key) order of domain.Compare.
type Source struct {
	client    *redis.Client
	orderKey  string
	valuesKey string
	channel   string
	buffer    int
}

func NewSource(ctx context.Context, cfg Config) (*Source, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewSourceWithClient(client, cfg), nil
}

func NewSourceWithClient(client *redis.Client, cfg Config) *Source {
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = source.DefaultSubscriptionBuffer
	}
	return &Source{
		client:    client,
		orderKey:  ns + ":order",
		valuesKey: ns + ":values",
		channel:   ns + ":changes",
		buffer:    buffer,
	}
}

// FetchPage reads the sorted set by score starting at startAt inclusive.
// Members sharing the cursor's score but sorting before its key are skipped.
func (s *Source) FetchPage(ctx context.Context, startAt *domain.Cursor, limit int) ([]domain.Record, error) {
	minScore := "-inf"
	if startAt != nil {
		minScore = strconv.FormatFloat(startAt.Priority, 'g', -1, 64)
	}

	var (
		zs     []redis.Z
		offset int64
	)
	for {
		by := &redis.ZRangeBy{Min: minScore, Max: "+inf"}
		if limit > 0 {
			by.Offset = offset
			by.Count = int64(limit - len(zs))
		}

		page, err := s.client.ZRangeByScoreWithScores(ctx, s.orderKey, by).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to range %s: %w", s.orderKey, err)
		}
		offset += int64(len(page))

		for _, z := range page {
			member, _ := z.Member.(string)
			if startAt != nil && domain.Compare(z.Score, member, startAt.Priority, startAt.Key) < 0 {
				continue
			}
			zs = append(zs, z)
		}

		if limit <= 0 || int64(len(page)) < by.Count || len(zs) >= limit {
			break
		}
	}

	if len(zs) == 0 {
		return []domain.Record{}, nil
	}

	fields := make([]string, len(zs))
	for i, z := range zs {
		fields[i], _ = z.Member.(string)
	}

	values, err := s.client.HMGet(ctx, s.valuesKey, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read values: %w", err)
	}

	records := make([]domain.Record, len(zs))
	for i, z := range zs {
		records[i] = domain.Record{Key: fields[i], Priority: z.Score}
		if v, ok := values[i].(string); ok && v != "" {
			records[i].Value = json.RawMessage(v)
		}
	}
	return records, nil
}

// Put stores r and publishes added or changed.
func (s *Source) Put(ctx context.Context, r domain.Record) error {
	var zadd *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		zadd = pipe.ZAdd(ctx, s.orderKey, &redis.Z{Score: r.Priority, Member: r.Key})
		if len(r.Value) > 0 {
			pipe.HSet(ctx, s.valuesKey, r.Key, string(r.Value))
		} else {
			pipe.HDel(ctx, s.valuesKey, r.Key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store record %q: %w", r.Key, err)
	}

	kind := domain.Changed
	if zadd.Val() == 1 {
		kind = domain.Added
	}
	return s.publish(ctx, domain.ChangeEvent{Kind: kind, Record: r})
}

// Remove deletes key and publishes removed with the last known record.
func (s *Source) Remove(ctx context.Context, key string) (bool, error) {
	var (
		score *redis.FloatCmd
		value *redis.StringCmd
		zrem  *redis.IntCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		score = pipe.ZScore(ctx, s.orderKey, key)
		value = pipe.HGet(ctx, s.valuesKey, key)
		zrem = pipe.ZRem(ctx, s.orderKey, key)
		pipe.HDel(ctx, s.valuesKey, key)
		return nil
	})
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to remove record %q: %w", key, err)
	}

	if zrem.Val() == 0 {
		return false, nil
	}

	r := domain.Record{Key: key, Priority: score.Val()}
	if v := value.Val(); v != "" {
		r.Value = json.RawMessage(v)
	}
	return true, s.publish(ctx, domain.ChangeEvent{Kind: domain.Removed, Record: r})
}

func (s *Source) publish(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev, err)
	}
	return nil
}

// Subscribe listens on the change channel. The subscription is confirmed
// before returning, so changes published afterwards are not missed.
func (s *Source) Subscribe(ctx context.Context, kinds []domain.ChangeKind) (source.Subscription, error) {
	if len(kinds) == 0 {
		kinds = domain.AllChangeKinds
	}

	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	sub := source.NewChanSubscription(s.buffer, ps.Close)
	go s.receive(ps.Channel(), sub, kinds)

	slog.Info("Subscribed to record changes", "channel", s.channel, "kinds", kinds)
	return sub, nil
}

func (s *Source) receive(ch <-chan *redis.Message, sub *source.ChanSubscription, kinds []domain.ChangeKind) {
	for {
		select {
		case <-sub.Done():
			sub.End(nil)
			return
		case msg, ok := <-ch:
			if !ok {
				sub.End(nil)
				return
			}

			var ev domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				sub.End(fmt.Errorf("failed to decode change event: %w", err))
				return
			}
			if !domain.ContainsKind(kinds, ev.Kind) {
				continue
			}
			if !sub.Deliver(ev) {
				sub.End(nil)
				return
			}
		}
	}
}

func (s *Source) Healthy(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

func (s *Source) Close() error {
	return s.client.Close()
}

var _ source.OrderedSource = (*Source)(nil)
