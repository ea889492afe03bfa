package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/stream"
	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timerWait = time.Second
	eventual  = 2 * time.Second
	tick      = 5 * time.Millisecond
)

var target = domain.Target{Index: "jobs", Type: domain.DefaultTargetType}

// recordingSink keeps every batch it receives.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]domain.BulkOperation
	err     error
	log     *[]string

	// when gate is set the first call signals entered and waits for gate to close
	gate    chan struct{}
	entered chan struct{}
	gated   bool
}

func (s *recordingSink) BulkWrite(_ context.Context, ops []domain.BulkOperation, tgt domain.Target) error {
	s.mu.Lock()
	wait := s.gate != nil && !s.gated
	s.gated = s.gated || wait
	s.mu.Unlock()

	if wait {
		s.entered <- struct{}{}
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, ops)
	if s.log != nil {
		*s.log = append(*s.log, fmt.Sprintf("flush:%d", len(ops)))
	}
	return s.err
}

func (s *recordingSink) Batches() [][]domain.BulkOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]domain.BulkOperation, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *recordingSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func item(i int) domain.Mapped[int] {
	return domain.Mapped[int]{
		Source: i,
		Op:     domain.Upsert(fmt.Sprintf("k%d", i), json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))),
	}
}

func newRelay(t *testing.T, w *recordingSink, opts ...Option) (*BatchRelay[int], *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(time.Time{})
	r, err := New[int](w, target, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return r, clk
}

func ids(batch []domain.BulkOperation) []string {
	out := make([]string, 0, len(batch))
	for _, op := range batch {
		out = append(out, op.ID)
	}
	return out
}

func TestBatchRelay_SizeAndTimerTriggers(t *testing.T) {
	w := &recordingSink{}
	r, clk := newRelay(t, w, WithBodyMaxSize(3))
	out := stream.NewSlice[int]()
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		require.NoError(t, r.Transform(ctx, item(i), out))
	}

	batches := w.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"k1", "k2", "k3"}, ids(batches[0]))
	assert.Equal(t, []string{"k4", "k5", "k6"}, ids(batches[1]))
	assert.Equal(t, 1, r.Stats().Pending)

	require.NoError(t, clk.WaitAdvance(DefaultFlushInterval, timerWait, 1))
	require.Eventually(t, func() bool { return len(w.Batches()) == 3 }, eventual, tick)

	var flushed []string
	for _, b := range w.Batches() {
		flushed = append(flushed, ids(b)...)
	}
	assert.Equal(t, []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7"}, flushed)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, out.Items())

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Flushes[TriggerSize])
	assert.Equal(t, int64(1), stats.Flushes[TriggerTimer])
	assert.Equal(t, int64(7), stats.FlushedOps)
	assert.Equal(t, 0, stats.Pending)
}

func TestBatchRelay_IdleTimerFlushesOnce(t *testing.T) {
	w := &recordingSink{}
	r, clk := newRelay(t, w, WithFlushInterval(time.Second), WithBodyMaxSize(10))
	out := stream.NewSlice[int]()

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.Transform(context.Background(), item(i), out))
	}
	assert.True(t, r.Stats().TimerArmed)

	require.NoError(t, clk.WaitAdvance(999*time.Millisecond, timerWait, 1))
	assert.Empty(t, w.Batches())

	clk.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(w.Batches()) == 1 }, eventual, tick)
	assert.Len(t, w.Batches()[0], 4)
	assert.Len(t, out.Items(), 4)
}

func TestBatchRelay_EmptyFlushSkipsSink(t *testing.T) {
	w := &recordingSink{}
	r, _ := newRelay(t, w)

	require.NoError(t, r.Flush(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	assert.Empty(t, w.Batches())
	assert.Empty(t, r.Stats().Flushes)
}

func TestBatchRelay_PassThroughPrecedesFlush(t *testing.T) {
	var log []string
	w := &recordingSink{log: &log}
	r, _ := newRelay(t, w, WithBodyMaxSize(2))
	out := stream.ConsumerFunc[int](func(_ context.Context, i int) error {
		log = append(log, fmt.Sprintf("item:%d", i))
		return nil
	})

	for i := 1; i <= 2; i++ {
		require.NoError(t, r.Transform(context.Background(), item(i), out))
	}

	assert.Equal(t, []string{"item:1", "item:2", "flush:2"}, log)
}

func TestBatchRelay_SizeFlushFailureDropsBatch(t *testing.T) {
	cause := errors.New("es unavailable")
	w := &recordingSink{err: cause}
	r, _ := newRelay(t, w, WithBodyMaxSize(2))
	out := stream.NewSlice[int]()
	ctx := context.Background()

	require.NoError(t, r.Transform(ctx, item(1), out))
	err := r.Transform(ctx, item(2), out)

	var swe *apperr.SinkWriteError
	require.ErrorAs(t, err, &swe)
	assert.Equal(t, 2, swe.Count)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []int{1, 2}, out.Items())

	w.setErr(nil)
	require.NoError(t, r.Transform(ctx, item(3), out))
	require.NoError(t, r.Transform(ctx, item(4), out))

	batches := w.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"k3", "k4"}, ids(batches[1]))

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.FlushErrors)
	assert.Equal(t, int64(2), stats.DroppedOps)
	assert.Equal(t, int64(2), stats.FlushedOps)
}

func TestBatchRelay_TimerFlushFailureSurfacesOnNextItem(t *testing.T) {
	cause := errors.New("bulk rejected")
	w := &recordingSink{err: cause}
	r, clk := newRelay(t, w)
	out := stream.NewSlice[int]()
	ctx := context.Background()

	require.NoError(t, r.Transform(ctx, item(1), out))
	assert.True(t, r.Healthy(ctx))
	require.NoError(t, clk.WaitAdvance(DefaultFlushInterval, timerWait, 1))
	require.Eventually(t, func() bool { return r.Stats().FlushErrors == 1 }, eventual, tick)
	assert.False(t, r.Healthy(ctx))

	err := r.Transform(ctx, item(2), out)
	var swe *apperr.SinkWriteError
	require.ErrorAs(t, err, &swe)
	assert.Equal(t, []int{1}, out.Items())
	assert.True(t, r.Healthy(ctx))

	// reported once
	w.setErr(nil)
	require.NoError(t, r.Transform(ctx, item(3), out))
}

func currentTimerGen(r *BatchRelay[int]) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timerGen
}

func TestBatchRelay_TimerFlushWithStaleGenerationIsDropped(t *testing.T) {
	w := &recordingSink{}
	r, _ := newRelay(t, w)
	ctx := context.Background()

	require.NoError(t, r.Transform(ctx, item(1), stream.NewSlice[int]()))
	stale := currentTimerGen(r)
	require.NoError(t, r.Flush(ctx))

	require.NoError(t, r.Transform(ctx, item(2), stream.NewSlice[int]()))
	armed := currentTimerGen(r)
	require.NotEqual(t, stale, armed)

	// a timer that was replaced while it waited for the flush lock
	require.NoError(t, r.flush(ctx, TriggerTimer, stale))
	assert.Len(t, w.Batches(), 1)
	assert.Equal(t, 1, r.Stats().Pending)
	assert.True(t, r.Stats().TimerArmed)

	require.NoError(t, r.flush(ctx, TriggerTimer, armed))
	require.Len(t, w.Batches(), 2)
	assert.Equal(t, []string{"k2"}, ids(w.Batches()[1]))
	assert.Equal(t, int64(1), r.Stats().Flushes[TriggerTimer])
}

func TestBatchRelay_LateTimerDoesNotFlushNextBatch(t *testing.T) {
	w := &recordingSink{}
	r, clk := newRelay(t, w)
	out := stream.NewSlice[int]()
	ctx := context.Background()

	require.NoError(t, r.Transform(ctx, item(1), out))
	first := currentTimerGen(r)
	require.NoError(t, r.Flush(ctx))

	require.NoError(t, r.Transform(ctx, item(2), out))
	require.True(t, r.Stats().TimerArmed)

	// the callback of the cancelled timer arrives after the next batch armed its own
	r.onTimer(first)
	require.Len(t, w.Batches(), 1)
	assert.Equal(t, 1, r.Stats().Pending)
	assert.True(t, r.Stats().TimerArmed)

	require.NoError(t, clk.WaitAdvance(DefaultFlushInterval, timerWait, 1))
	require.Eventually(t, func() bool { return len(w.Batches()) == 2 }, eventual, tick)
	assert.Equal(t, []string{"k2"}, ids(w.Batches()[1]))
}

func TestBatchRelay_TimerFlushFailureReportedByClose(t *testing.T) {
	w := &recordingSink{err: errors.New("bulk rejected")}
	r, clk := newRelay(t, w)

	require.NoError(t, r.Transform(context.Background(), item(1), stream.NewSlice[int]()))
	require.NoError(t, clk.WaitAdvance(DefaultFlushInterval, timerWait, 1))
	require.Eventually(t, func() bool { return r.Stats().FlushErrors == 1 }, eventual, tick)

	var swe *apperr.SinkWriteError
	assert.ErrorAs(t, r.Close(context.Background()), &swe)
}

func TestBatchRelay_CloseFlushesRemainder(t *testing.T) {
	w := &recordingSink{}
	r, _ := newRelay(t, w)
	out := stream.NewSlice[int]()
	ctx := context.Background()

	require.NoError(t, r.Transform(ctx, item(1), out))
	require.NoError(t, r.Transform(ctx, item(2), out))
	require.NoError(t, r.Close(ctx))

	batches := w.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"k1", "k2"}, ids(batches[0]))
	assert.False(t, r.Stats().TimerArmed)
	assert.Equal(t, int64(1), r.Stats().Flushes[TriggerClose])

	assert.ErrorIs(t, r.Transform(ctx, item(3), out), stream.ErrClosed)
	assert.NoError(t, r.Close(ctx))
}

func TestBatchRelay_SizeFlushWaitsForInFlightFlush(t *testing.T) {
	w := &recordingSink{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	r, clk := newRelay(t, w, WithBodyMaxSize(3))
	out := stream.NewSlice[int]()
	ctx := context.Background()

	require.NoError(t, r.Transform(ctx, item(1), out))
	require.NoError(t, clk.WaitAdvance(DefaultFlushInterval, timerWait, 1))
	<-w.entered

	// the timer flush holds [k1]; new items go to a fresh batch
	require.NoError(t, r.Transform(ctx, item(2), out))
	require.NoError(t, r.Transform(ctx, item(3), out))
	assert.Equal(t, 2, r.Stats().Pending)
	assert.True(t, r.Stats().FlushInFlight)

	done := make(chan error, 1)
	go func() {
		done <- r.Transform(ctx, item(4), out)
	}()

	select {
	case <-done:
		t.Fatal("size flush did not wait for the in-flight flush")
	case <-time.After(50 * time.Millisecond):
	}

	close(w.gate)
	require.NoError(t, <-done)

	batches := w.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"k1"}, ids(batches[0]))
	assert.Equal(t, []string{"k2", "k3", "k4"}, ids(batches[1]))
}

func TestBatchRelay_BatchHandedToSinkIsNotReused(t *testing.T) {
	w := &recordingSink{}
	r, _ := newRelay(t, w, WithBodyMaxSize(2))
	out := stream.NewSlice[int]()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.Transform(ctx, item(i), out))
	}

	batches := w.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"k1", "k2"}, ids(batches[0]))
	assert.Equal(t, []string{"k3", "k4"}, ids(batches[1]))
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		target domain.Target
		opts   []Option
	}{
		{name: "missing index", target: domain.Target{}},
		{name: "zero body size", target: target, opts: []Option{WithBodyMaxSize(0)}},
		{name: "zero interval", target: target, opts: []Option{WithFlushInterval(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New[int](&recordingSink{}, tt.target, tt.opts...)
			var ve *apperr.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}

	_, err := New[int](nil, target)
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestMetrics_Registered(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m))

	w := &recordingSink{}
	r, _ := newRelay(t, w, WithBodyMaxSize(1), WithMetrics(m), WithName("test"))
	require.NoError(t, r.Transform(context.Background(), item(1), stream.NewSlice[int]()))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["index_relay_accepted_items_total"])
	assert.True(t, names["index_relay_flushes_total"])
	assert.True(t, names["index_relay_flushed_operations_total"])
}
