package player

import (
	"sync"

	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/rs/zerolog/log"
)

// EventKind identifies a controller notification.
type EventKind string

const (
	// EventState carries a new snapshot after any state change other than
	// position.
	EventState EventKind = "state"
	// EventPosition carries a snapshot after a position report or seek.
	EventPosition EventKind = "position"
	// EventQueue is published when the playlist is replaced or grows.
	EventQueue EventKind = "queue"
	// EventError reports a recovered playback failure.
	EventError EventKind = "error"
	// EventTrackStarted is published once per bind when playback starts.
	EventTrackStarted EventKind = "trackStarted"
)

// Event is published on the controller's bus.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
	Track    *catalog.Track
	Err      string
}

const defaultSubscriberBuffer = 64

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it. buffer <= 0 selects a default size.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber with room for it.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Debug().Int("subscriber", id).Str("kind", string(ev.Kind)).Msg("Dropped player event for slow subscriber")
		}
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
