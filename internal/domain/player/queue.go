package player

import "sync"

// MediaQueue is an unbounded FIFO of media events. Outputs push from their
// command goroutines and drain on a separate goroutine with Drain, so a
// slow sink never blocks a Handle method.
type MediaQueue struct {
	mu     sync.Mutex
	items  []MediaEvent
	signal chan struct{}
}

func NewMediaQueue() *MediaQueue {
	return &MediaQueue{signal: make(chan struct{}, 1)}
}

func (q *MediaQueue) Push(ev MediaEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop blocks until an event is queued or done closes.
func (q *MediaQueue) Pop(done <-chan struct{}) (MediaEvent, bool) {
	for {
		select {
		case <-done:
			return MediaEvent{}, false
		default:
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = MediaEvent{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-done:
			return MediaEvent{}, false
		}
	}
}

// Drain feeds queued events to sink in order until done closes.
func (q *MediaQueue) Drain(done <-chan struct{}, sink EventSink) {
	for {
		ev, ok := q.Pop(done)
		if !ok {
			return
		}
		sink(ev)
	}
}
