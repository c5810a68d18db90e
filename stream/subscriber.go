package stream

import (
	"sync"

	"github.com/docflowlabs/docflow/core"
)

// subscriber owns one consumer channel. Events are appended to an unbounded
// queue and drained by a single pump goroutine, so publishing never blocks
// on a slow consumer. Closing flushes the queue before closing the channel;
// cancelling abandons it immediately.
type subscriber struct {
	mu     sync.Mutex
	queue  []*core.Event
	closed bool

	wake chan struct{}
	done chan struct{}
	ch   chan *core.Event

	cancelOnce sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		ch:   make(chan *core.Event),
	}

	go s.pump()

	return s
}

func (s *subscriber) enqueue(evt *core.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	s.signal()
}

// close stops further enqueues. The pump delivers what is already queued,
// then closes the consumer channel.
func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.mu.Unlock()

	s.signal()
}

// cancel stops the pump without draining. The consumer channel closes as
// soon as the pump observes the cancellation.
func (s *subscriber) cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
	})
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()

			select {
			case <-s.wake:
			case <-s.done:
				return
			}

			s.mu.Lock()
		}

		evt := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- evt:
		case <-s.done:
			return
		}
	}
}
