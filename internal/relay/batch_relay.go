package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/sink"
	"github.com/DjordjeVuckovic/index-relay/internal/stream"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

const (
	DefaultBodyMaxSize   = 10
	DefaultFlushInterval = time.Second
	DefaultFlushTimeout  = 30 * time.Second
)

// Trigger names what started a flush.
type Trigger string

const (
	TriggerSize   Trigger = "size"
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
	TriggerClose  Trigger = "close"
)

// Stats is a point-in-time view of a relay.
type Stats struct {
	Accepted      int64             `json:"accepted"`
	Pending       int               `json:"pending"`
	Flushes       map[Trigger]int64 `json:"flushes"`
	FlushedOps    int64             `json:"flushed_operations"`
	FlushErrors   int64             `json:"flush_errors"`
	DroppedOps    int64             `json:"dropped_operations"`
	LastFlushAt   time.Time         `json:"last_flush_at,omitempty"`
	LastFlushErr  string            `json:"last_flush_error,omitempty"`
	TimerArmed    bool              `json:"timer_armed"`
	FlushInFlight bool              `json:"flush_in_flight"`
}

type config struct {
	name          string
	bodyMaxSize   int
	flushInterval time.Duration
	flushTimeout  time.Duration
	clock         clock.Clock
	metrics       *Metrics
}

type Option func(*config)

func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithBodyMaxSize sets the batch size that triggers an immediate flush.
func WithBodyMaxSize(n int) Option {
	return func(c *config) {
		c.bodyMaxSize = n
	}
}

// WithFlushInterval sets the idle time after which a partial batch is flushed.
func WithFlushInterval(d time.Duration) Option {
	return func(c *config) {
		c.flushInterval = d
	}
}

// WithFlushTimeout bounds sink calls made from the idle timer.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *config) {
		c.flushTimeout = d
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		c.clock = clk
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// BatchRelay buffers bulk operations and writes them to a sink in batches, while
// passing every original item downstream as soon as it is accepted.
//
// A batch is flushed when it reaches bodyMaxSize, synchronously for the item that
// filled it, or when the idle timer armed by the first item of a batch fires.
// Flushes are serialised: a size flush waits for an in-flight timer flush before
// the triggering item is acknowledged. The live batch is swapped for a fresh one
// when a flush starts, so the slice handed to the sink is never touched again.
//
// Failed flushes are not retried and their batch is dropped. A size flush failure
// is returned by Transform; a timer flush failure is returned by the next Transform or Close.
type BatchRelay[T any] struct {
	writer sink.BulkWriter
	target domain.Target
	cfg    config

	mu       sync.Mutex
	batch    []domain.BulkOperation
	timer    clock.Timer
	timerGen uint64
	asyncErr error
	closed   bool
	stats    Stats

	flushMu sync.Mutex
}

func New[T any](writer sink.BulkWriter, target domain.Target, opts ...Option) (*BatchRelay[T], error) {
	cfg := config{
		name:          "relay",
		bodyMaxSize:   DefaultBodyMaxSize,
		flushInterval: DefaultFlushInterval,
		flushTimeout:  DefaultFlushTimeout,
		clock:         clock.WallClock,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if writer == nil {
		return nil, apperr.NewValidation("relay requires a bulk writer")
	}
	if target.Index == "" {
		return nil, apperr.NewValidation("relay target index is required")
	}
	if cfg.bodyMaxSize <= 0 {
		return nil, apperr.NewValidation("relay body max size must be positive")
	}
	if cfg.flushInterval <= 0 {
		return nil, apperr.NewValidation("relay flush interval must be positive")
	}
	if cfg.clock == nil {
		cfg.clock = clock.WallClock
	}

	return &BatchRelay[T]{
		writer: writer,
		target: target,
		cfg:    cfg,
		batch:  make([]domain.BulkOperation, 0, cfg.bodyMaxSize),
		stats:  Stats{Flushes: make(map[Trigger]int64)},
	}, nil
}

// Transform appends item.Op to the batch, forwards item.Source to next and
// flushes if the batch is full.
func (r *BatchRelay[T]) Transform(ctx context.Context, item domain.Mapped[T], next stream.Consumer[T]) error {
	full, err := r.accept(item.Op)
	if err != nil {
		return err
	}

	if err := next.Consume(ctx, item.Source); err != nil {
		return err
	}

	if full {
		return r.flush(ctx, TriggerSize, 0)
	}
	return nil
}

func (r *BatchRelay[T]) accept(op domain.BulkOperation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, stream.ErrClosed
	}
	if err := r.asyncErr; err != nil {
		r.asyncErr = nil
		return false, err
	}

	r.batch = append(r.batch, op)
	r.stats.Accepted++
	r.cfg.metrics.itemAccepted(r.cfg.name)

	if len(r.batch) >= r.cfg.bodyMaxSize {
		return true, nil
	}
	if r.timer == nil {
		r.armTimer()
	}
	return false, nil
}

// armTimer must be called with mu held.
func (r *BatchRelay[T]) armTimer() {
	r.timerGen++
	gen := r.timerGen
	r.timer = r.cfg.clock.AfterFunc(r.cfg.flushInterval, func() {
		r.onTimer(gen)
	})
}

// cancelTimer must be called with mu held.
func (r *BatchRelay[T]) cancelTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	// a timer that already fired but has not taken mu yet becomes stale
	r.timerGen++
}

func (r *BatchRelay[T]) onTimer(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.flushTimeout)
	defer cancel()
	_ = r.flush(ctx, TriggerTimer, gen)
}

// Flush writes whatever is pending. It is a no-op on an empty batch.
func (r *BatchRelay[T]) Flush(ctx context.Context) error {
	return r.flush(ctx, TriggerManual, 0)
}

// flush swaps out the live batch and writes it. gen is the generation of the
// timer that requested the flush, or 0 for any other trigger. A timer flush is
// dropped when its timer was cancelled or replaced while it waited for flushMu.
func (r *BatchRelay[T]) flush(ctx context.Context, trigger Trigger, gen uint64) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if gen != 0 && gen != r.timerGen {
		r.mu.Unlock()
		return nil
	}
	r.cancelTimer()
	batch := r.batch
	if len(batch) == 0 {
		r.mu.Unlock()
		return nil
	}
	r.batch = make([]domain.BulkOperation, 0, r.cfg.bodyMaxSize)
	r.stats.FlushInFlight = true
	r.mu.Unlock()

	batchID := uuid.New()
	start := time.Now()
	err := r.writer.BulkWrite(ctx, batch, r.target)
	took := time.Since(start)

	r.cfg.metrics.flushed(r.cfg.name, trigger, len(batch), took, err)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.FlushInFlight = false
	r.stats.Flushes[trigger]++
	r.stats.LastFlushAt = r.cfg.clock.Now()

	if err != nil {
		werr := apperr.NewSinkWrite(r.target.Index, len(batch), err)
		r.stats.FlushErrors++
		r.stats.DroppedOps += int64(len(batch))
		r.stats.LastFlushErr = werr.Error()
		if trigger == TriggerTimer && r.asyncErr == nil {
			r.asyncErr = werr
		}

		slog.Error("Bulk flush failed, batch dropped",
			"relay", r.cfg.name,
			"batch_id", batchID,
			"trigger", trigger,
			"count", len(batch),
			"index", r.target.Index,
			"error", err,
		)
		return werr
	}

	r.stats.FlushedOps += int64(len(batch))
	slog.Info("Bulk flush completed",
		"relay", r.cfg.name,
		"batch_id", batchID,
		"trigger", trigger,
		"count", len(batch),
		"index", r.target.Index,
		"duration", took,
	)
	return nil
}

// Close cancels the idle timer, flushes the remaining batch and reports any
// failure not yet returned. Transform fails with stream.ErrClosed afterwards.
func (r *BatchRelay[T]) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	flushErr := r.flush(ctx, TriggerClose, 0)

	r.mu.Lock()
	r.cancelTimer()
	asyncErr := r.asyncErr
	r.asyncErr = nil
	r.mu.Unlock()

	slog.Info("Relay closed", "relay", r.cfg.name, "error", errors.Join(asyncErr, flushErr))
	return errors.Join(asyncErr, flushErr)
}

// Healthy reports false while a timer flush failure has not been returned to the caller yet.
func (r *BatchRelay[T]) Healthy(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asyncErr == nil
}

// Stats returns a snapshot of the relay counters.
func (r *BatchRelay[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.Pending = len(r.batch)
	s.TimerArmed = r.timer != nil
	s.Flushes = make(map[Trigger]int64, len(r.stats.Flushes))
	for k, v := range r.stats.Flushes {
		s.Flushes[k] = v
	}
	return s
}

var _ stream.Transformer[domain.Mapped[int], int] = (*BatchRelay[int])(nil)
