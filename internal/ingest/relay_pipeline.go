package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DjordjeVuckovic/index-relay/internal/consumer"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/dto"
	"github.com/DjordjeVuckovic/index-relay/internal/mapper"
	"github.com/DjordjeVuckovic/index-relay/internal/reader"
	"github.com/DjordjeVuckovic/index-relay/internal/relay"
	"github.com/DjordjeVuckovic/index-relay/internal/sink"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
	"github.com/DjordjeVuckovic/index-relay/internal/stream"
	"github.com/google/uuid"
)

const closeTimeout = 30 * time.Second

// Stats is a point-in-time view of a pipeline.
type Stats struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	Mode     Mode        `json:"mode"`
	Running  bool        `json:"running"`
	Read     int         `json:"snapshot_records_read"`
	Pages    int         `json:"snapshot_pages"`
	Position string      `json:"snapshot_position,omitempty"`
	Skipped  int64       `json:"skipped_invalid"`
	Consumed int64       `json:"consumed"`
	Relay    relay.Stats `json:"relay"`
}

// RelayPipeline wires a reader, the operation mapper, the batch relay and a
// terminal consumer: reader -> mapper -> relay -> consumer, with the relay
// writing batches to the sink on the side.
type RelayPipeline struct {
	id  uuid.UUID
	cfg Config

	cursor   *reader.CursorReader
	events   *reader.EventReader
	mapper   *mapper.OperationMapper
	relay    *relay.BatchRelay[domain.ChangeEvent]
	consumer *consumer.LogConsumer[domain.ChangeEvent]

	running atomic.Bool
	stopped atomic.Bool
	failed  atomic.Bool
	runOnce sync.Once
}

type options struct {
	observer     func(ctx context.Context, ev domain.ChangeEvent) error
	relayOptions []relay.Option
}

type Option func(*options)

// WithObserver sets the action run by the terminal consumer for every relayed event.
func WithObserver(fn func(ctx context.Context, ev domain.ChangeEvent) error) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithRelayOptions passes extra options to the batch relay, e.g. a clock or metrics.
func WithRelayOptions(opts ...relay.Option) Option {
	return func(o *options) {
		o.relayOptions = append(o.relayOptions, opts...)
	}
}

func NewRelayPipeline(src source.OrderedSource, writer sink.BulkWriter, cfg Config, opts ...Option) (*RelayPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	relayOpts := append([]relay.Option{
		relay.WithName(cfg.Name),
		relay.WithBodyMaxSize(cfg.BodyMaxSize),
		relay.WithFlushInterval(cfg.FlushInterval()),
	}, o.relayOptions...)

	r, err := relay.New[domain.ChangeEvent](writer, cfg.Target, relayOpts...)
	if err != nil {
		return nil, err
	}

	startAfter, err := dto.DecodeCursor(cfg.ResumeAfter)
	if err != nil {
		return nil, err
	}

	consumerOpts := []consumer.Option[domain.ChangeEvent]{consumer.WithName[domain.ChangeEvent](cfg.Name)}
	if o.observer != nil {
		consumerOpts = append(consumerOpts, consumer.WithObserver(o.observer))
	}

	return &RelayPipeline{
		id:       uuid.New(),
		cfg:      cfg,
		cursor:   reader.NewCursorReader(src,
			reader.WithPageSize(cfg.PageSize),
			reader.WithMax(cfg.MaxRecords),
			reader.WithStartAfter(startAfter),
		),
		events:   reader.NewEventReader(src, reader.WithKinds(cfg.EventKinds...)),
		mapper:   mapper.New(mapper.WithSkipInvalid(cfg.SkipInvalid)),
		relay:    r,
		consumer: consumer.NewLogConsumer(consumerOpts...),
	}, nil
}

// Run drives the pipeline once. It returns when the snapshot is done (snapshot
// mode), when the change subscription ends, when ctx is cancelled or on the first
// error. The relay is always closed on the way out so pending operations are flushed.
func (p *RelayPipeline) Run(ctx context.Context) error {
	err := stream.ErrClosed
	p.runOnce.Do(func() {
		err = p.run(ctx)
	})
	return err
}

func (p *RelayPipeline) run(ctx context.Context) error {
	p.running.Store(true)
	defer p.running.Store(false)

	start := time.Now()
	slog.Info("Starting relay pipeline",
		"pipeline", p.cfg.Name,
		"run_id", p.id,
		"mode", p.cfg.Mode,
		"index", p.cfg.Target.Index,
		"body_max_size", p.cfg.BodyMaxSize,
		"flush_interval", p.cfg.FlushInterval(),
	)

	head := stream.Through[domain.ChangeEvent, domain.Mapped[domain.ChangeEvent]](
		p.mapper,
		stream.Through[domain.Mapped[domain.ChangeEvent], domain.ChangeEvent](p.relay, p.consumer),
	)

	runErr := p.drive(ctx, head)
	// the branch is over: close the subscription so the source stops delivering into it
	p.releaseReaders()
	if p.stopped.Load() && (errors.Is(runErr, stream.ErrClosed) || errors.Is(runErr, context.Canceled)) {
		runErr = nil
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	closeErr := p.relay.Close(closeCtx)

	err := errors.Join(runErr, closeErr)
	p.failed.Store(err != nil)
	slog.Info("Relay pipeline run completed",
		"pipeline", p.cfg.Name,
		"run_id", p.id,
		"duration", time.Since(start),
		"consumed", p.consumer.Count(),
		"skipped", p.mapper.Skipped(),
		"error", err,
	)
	return err
}

func (p *RelayPipeline) drive(ctx context.Context, head stream.Consumer[domain.ChangeEvent]) error {
	snapshot := stream.Convert[domain.Record, domain.ChangeEvent](p.cursor, domain.SnapshotEvent)

	switch p.cfg.Mode {
	case ModeSnapshot:
		return snapshot.Produce(ctx, head)

	case ModeSync:
		// subscribe first so changes made while the snapshot runs are not lost
		if err := p.events.Start(ctx); err != nil {
			return err
		}
		if err := snapshot.Produce(ctx, head); err != nil {
			return err
		}
		slog.Info("Snapshot completed, following changes",
			"pipeline", p.cfg.Name,
			"records", p.cursor.Count(),
			"pages", p.cursor.Pages(),
		)
		if p.stopped.Load() {
			return nil
		}
		return p.events.Produce(ctx, head)

	default:
		return p.events.Produce(ctx, head)
	}
}

// Stop ends the readers. A page fetch in flight completes but nothing more is
// read; Run then flushes the relay and returns.
func (p *RelayPipeline) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	slog.Info("Stopping relay pipeline", "pipeline", p.cfg.Name, "run_id", p.id)

	p.releaseReaders()
}

func (p *RelayPipeline) releaseReaders() {
	p.cursor.Stop()
	if err := p.events.Stop(); err != nil {
		slog.Error("Failed to close change subscription", "pipeline", p.cfg.Name, "error", err)
	}
}

// Healthy reports false once a run has failed or while the relay holds an unreported flush failure.
func (p *RelayPipeline) Healthy(ctx context.Context) bool {
	return !p.failed.Load() && p.relay.Healthy(ctx)
}

func (p *RelayPipeline) Stats() Stats {
	return Stats{
		ID:       p.id,
		Name:     p.cfg.Name,
		Mode:     p.cfg.Mode,
		Running:  p.running.Load(),
		Read:     p.cursor.Count(),
		Pages:    p.cursor.Pages(),
		Position: dto.CursorString(p.cursor.Position()),
		Skipped:  p.mapper.Skipped(),
		Consumed: p.consumer.Count(),
		Relay:    p.relay.Stats(),
	}
}

var _ Pipeline = (*RelayPipeline)(nil)
