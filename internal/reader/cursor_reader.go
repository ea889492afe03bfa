package reader

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/source"
	"github.com/DjordjeVuckovic/index-relay/internal/stream"
)

const DefaultPageSize = 100

var (
	ErrAlreadyReading = errors.New("reader is already producing")
	ErrReaderDone     = errors.New("reader has terminated")
)

// CursorReader pages through an ordered collection with a keyset cursor.
//
// The first page is a plain size-limited fetch. Every following page starts at
// the cursor (inclusive) and asks for one extra record, because the record under
// the cursor was already delivered and is skipped. The reader ends when a page
// yields nothing new, comes back short, or max records have been delivered.
// A reader is single use.
type CursorReader struct {
	fetcher  source.PageFetcher
	pageSize int
	max      int

	count    atomic.Int64
	pages    atomic.Int64
	cursor   *domain.Cursor
	position atomic.Pointer[domain.Cursor]

	reading atomic.Bool
	done    atomic.Bool
	stopped atomic.Bool
}

type CursorReaderOption func(*CursorReader)

// WithPageSize sets the number of records per page. Non-positive values keep the default.
func WithPageSize(n int) CursorReaderOption {
	return func(r *CursorReader) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithMax caps the number of delivered records. Non-positive values mean unbounded.
func WithMax(n int) CursorReaderOption {
	return func(r *CursorReader) {
		if n > 0 {
			r.max = n
		} else {
			r.max = 0
		}
	}
}

// WithStartAfter resumes reading after the given position instead of from the beginning.
func WithStartAfter(c *domain.Cursor) CursorReaderOption {
	return func(r *CursorReader) {
		if c != nil {
			start := *c
			r.cursor = &start
		}
	}
}

func NewCursorReader(fetcher source.PageFetcher, opts ...CursorReaderOption) *CursorReader {
	r := &CursorReader{
		fetcher:  fetcher,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Produce delivers records to out in (priority, key) order until the end of
// sequence. Each record is delivered only after the previous one was acknowledged.
func (r *CursorReader) Produce(ctx context.Context, out stream.Consumer[domain.Record]) error {
	if !r.reading.CompareAndSwap(false, true) {
		return ErrAlreadyReading
	}
	defer r.reading.Store(false)

	if r.done.Load() {
		return ErrReaderDone
	}
	defer r.terminate()

	slog.Debug("Cursor reader started", "page_size", r.pageSize, "max", r.max)

	for {
		if r.stopped.Load() {
			slog.Debug("Cursor reader stopped", "delivered", r.count.Load(), "pages", r.pages.Load())
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		page, limit, err := r.fetchPage(ctx)
		if err != nil {
			slog.Error("Cursor reader page fetch failed", "error", err, "pages", r.pages.Load())
			return apperr.NewSourceFetch("fetch page", err)
		}

		// an in-flight fetch finishes but nothing more is delivered after Stop
		if r.stopped.Load() {
			slog.Debug("Cursor reader stopped after fetch", "delivered", r.count.Load(), "pages", r.pages.Load())
			return nil
		}

		last, err := r.deliver(ctx, page, out)
		if err != nil {
			return err
		}

		if last == nil {
			slog.Debug("Cursor reader reached end of collection", "delivered", r.count.Load(), "pages", r.pages.Load())
			return nil
		}
		if r.reachedMax() {
			slog.Debug("Cursor reader reached max", "delivered", r.count.Load(), "max", r.max, "pages", r.pages.Load())
			return nil
		}
		// a short page means nothing else sorts after the cursor
		if len(page) < limit {
			slog.Debug("Cursor reader reached end of collection", "delivered", r.count.Load(), "pages", r.pages.Load())
			return nil
		}

		r.cursor = domain.CursorOf(*last)
	}
}

func (r *CursorReader) fetchPage(ctx context.Context) ([]domain.Record, int, error) {
	limit := r.pageSize
	if r.cursor != nil {
		limit++
	}
	r.pages.Add(1)
	page, err := r.fetcher.FetchPage(ctx, r.cursor, limit)
	return page, limit, err
}

// deliver hands the new records of a page to out and returns the last one delivered.
func (r *CursorReader) deliver(ctx context.Context, page []domain.Record, out stream.Consumer[domain.Record]) (*domain.Record, error) {
	var last *domain.Record
	for i := range page {
		rec := page[i]
		if r.cursor != nil && rec.Key == r.cursor.Key {
			continue
		}
		if r.reachedMax() || r.stopped.Load() {
			break
		}
		if err := out.Consume(ctx, rec); err != nil {
			return nil, err
		}
		r.count.Add(1)
		r.position.Store(domain.CursorOf(rec))
		last = &page[i]
	}
	return last, nil
}

func (r *CursorReader) reachedMax() bool {
	return r.max > 0 && r.count.Load() >= int64(r.max)
}

func (r *CursorReader) terminate() {
	r.done.Store(true)
	r.cursor = nil
}

// Stop ends the reader at the next suspension point. A fetch already in flight completes
// but its records are not delivered.
func (r *CursorReader) Stop() {
	r.stopped.Store(true)
}

// Count returns the number of delivered records.
func (r *CursorReader) Count() int {
	return int(r.count.Load())
}

// Pages returns the number of page fetches issued.
func (r *CursorReader) Pages() int {
	return int(r.pages.Load())
}

// Position returns the last delivered position, or nil before the first record.
func (r *CursorReader) Position() *domain.Cursor {
	return r.position.Load()
}

var _ stream.Producer[domain.Record] = (*CursorReader)(nil)
