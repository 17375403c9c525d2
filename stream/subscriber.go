package stream

import (
	"sync"
	"sync/atomic"
)

type outcome int

const (
	accepted outcome = iota
	skipped          // filter rejected the event
	refused          // closed, out of credits or buffer full
)

// Subscriber is one consumer of broker events.
//
// Each accepted event spends a credit; with no credits left events are
// refused until AddCredits is called. An event that finds the buffer full
// is refused and the credit is returned.
type Subscriber struct {
	id      string
	ch      chan *Event
	credits atomic.Int64
	filter  func(*Event) bool

	// mu guards closed and orders offers before close(ch).
	mu     sync.RWMutex
	closed bool
}

func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{id: id, ch: make(chan *Event, bufferSize)}
	s.credits.Store(initialCredits)
	return s
}

func (s *Subscriber) ID() string { return s.id }

// C is closed once the subscriber is removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// SetFilter must be called before the subscriber starts receiving.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

func (s *Subscriber) spend() bool {
	for {
		n := s.credits.Load()
		if n <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (s *Subscriber) offer(evt *Event) outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.closed:
		return refused
	case s.filter != nil && !s.filter(evt):
		return skipped
	case !s.spend():
		return refused
	}
	select {
	case s.ch <- evt:
		return accepted
	default:
		s.credits.Add(1)
		return refused
	}
}

// Close is idempotent.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
