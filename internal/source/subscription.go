package source

import (
	"sync"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
)

const DefaultSubscriptionBuffer = 256

// ChanSubscription is a Subscription backed by a channel.
// The goroutine that delivers events owns the channel and must call End exactly when it stops delivering.
type ChanSubscription struct {
	events  chan domain.ChangeEvent
	done    chan struct{}
	onClose func() error

	closeOnce sync.Once
	endOnce   sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

func NewChanSubscription(buffer int, onClose func() error) *ChanSubscription {
	if buffer < 0 {
		buffer = 0
	}
	return &ChanSubscription{
		events:  make(chan domain.ChangeEvent, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *ChanSubscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

// Done is closed once Close has been called.
func (s *ChanSubscription) Done() <-chan struct{} {
	return s.done
}

// Deliver queues ev for the reader. It blocks while the buffer is full and
// returns false if the subscription was closed in the meantime.
func (s *ChanSubscription) Deliver(ev domain.ChangeEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// End closes the event channel. A non-nil err is reported by Err unless the
// subscription was closed by its owner first.
func (s *ChanSubscription) End(err error) {
	s.endOnce.Do(func() {
		if err != nil && !s.closed() {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
		close(s.events)
	})
}

func (s *ChanSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ChanSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.closeErr = s.onClose()
		}
	})
	return s.closeErr
}

func (s *ChanSubscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
