package in_mem

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
)

// Batch is one recorded BulkWrite call.
type Batch struct {
	Target domain.Target
	Ops    []domain.BulkOperation
}

// Sink keeps documents per index in memory and records every batch it was given.
type Sink struct {
	storageLock sync.RWMutex
	storage     map[string]map[string]json.RawMessage
	batches     []Batch
	failure     error
}

func NewSink() *Sink {
	return &Sink{
		storage: make(map[string]map[string]json.RawMessage),
	}
}

func (s *Sink) BulkWrite(ctx context.Context, ops []domain.BulkOperation, target domain.Target) error {
	s.storageLock.Lock()
	defer s.storageLock.Unlock()

	recorded := make([]domain.BulkOperation, len(ops))
	copy(recorded, ops)
	s.batches = append(s.batches, Batch{Target: target, Ops: recorded})

	if s.failure != nil {
		return s.failure
	}

	docs, ok := s.storage[target.Index]
	if !ok {
		docs = make(map[string]json.RawMessage)
		s.storage[target.Index] = docs
	}

	for _, op := range ops {
		switch op.Kind {
		case domain.OpUpsert:
			docs[op.ID] = op.Document
		case domain.OpDelete:
			delete(docs, op.ID)
		default:
			return apperr.NewInvalidOperation(string(op.Kind))
		}
	}

	slog.Debug("Bulk written to in-memory sink", "index", target.Index, "count", len(ops))
	return nil
}

// SetFailure makes every following BulkWrite fail with err. Nil restores normal writes.
func (s *Sink) SetFailure(err error) {
	s.storageLock.Lock()
	defer s.storageLock.Unlock()
	s.failure = err
}

// Get returns the stored document for id in index.
func (s *Sink) Get(index, id string) (json.RawMessage, bool) {
	s.storageLock.RLock()
	defer s.storageLock.RUnlock()
	doc, ok := s.storage[index][id]
	return doc, ok
}

// Count returns the number of documents stored in index.
func (s *Sink) Count(index string) int {
	s.storageLock.RLock()
	defer s.storageLock.RUnlock()
	return len(s.storage[index])
}

// Batches returns every batch received so far, failed ones included.
func (s *Sink) Batches() []Batch {
	s.storageLock.RLock()
	defer s.storageLock.RUnlock()
	out := make([]Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

// Ops returns every operation received so far in call order.
func (s *Sink) Ops() []domain.BulkOperation {
	s.storageLock.RLock()
	defer s.storageLock.RUnlock()
	var out []domain.BulkOperation
	for _, b := range s.batches {
		out = append(out, b.Ops...)
	}
	return out
}
