// Package virtual provides a simulated audio output. It plays nothing; it
// advances a position clock and reports media events the way a real
// element would, so the player runs without sound hardware.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/neon-player-backend/internal/audio"
	"github.com/edumarques81/neon-player-backend/internal/domain/player"
)

// ErrNotFound is reported through a MediaError event when the lookup does
// not know a source.
var ErrNotFound = errors.New("media not found")

var errClosed = errors.New("virtual: handle closed")

// Lookup reports the duration in seconds of a resolved source.
type Lookup func(src string) (float64, bool)

type Options struct {
	// Lookup resolves durations. Nil accepts every source at
	// DefaultDuration.
	Lookup Lookup
	// Tick is the wall-clock interval between time updates.
	Tick time.Duration
	// Speed multiplies how much media time passes per tick.
	Speed float64
	// LoadDelay is how long metadata takes to arrive after Load.
	LoadDelay time.Duration
}

const (
	DefaultTick     = 250 * time.Millisecond
	DefaultDuration = 180.0
)

type Output struct {
	opts Options

	mu      sync.Mutex
	handles map[*handle]struct{}
	closed  bool
}

func NewOutput(opts Options) *Output {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Lookup == nil {
		opts.Lookup = func(string) (float64, bool) { return DefaultDuration, true }
	}
	return &Output{opts: opts, handles: make(map[*handle]struct{})}
}

// Bind implements player.Output.
func (o *Output) Bind(src string, sink player.EventSink) (player.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, errors.New("virtual: output closed")
	}
	h := &handle{
		out:    o,
		src:    src,
		events: player.NewMediaQueue(),
		done:   make(chan struct{}),
		volume: 1,
	}
	o.handles[h] = struct{}{}
	go h.events.Drain(h.done, sink)
	return h, nil
}

// Close closes every live handle.
func (o *Output) Close() error {
	o.mu.Lock()
	o.closed = true
	handles := make([]*handle, 0, len(o.handles))
	for h := range o.handles {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	return nil
}

// Live reports how many handles are bound and not yet closed.
func (o *Output) Live() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles)
}

func (o *Output) forget(h *handle) {
	o.mu.Lock()
	delete(o.handles, h)
	o.mu.Unlock()
}

type handle struct {
	out    *Output
	src    string
	events *player.MediaQueue
	done   chan struct{}

	mu       sync.Mutex
	loading  bool
	loaded   bool
	playing  bool
	closed   bool
	position float64
	duration float64
	volume   float64
	ticking  bool
}

func (h *handle) Load() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errClosed
	}
	if h.loading || h.loaded {
		return nil
	}
	h.loading = true
	h.events.Push(player.MediaEvent{Kind: player.MediaLoadStart})
	time.AfterFunc(h.out.opts.LoadDelay, h.finishLoad)
	return nil
}

func (h *handle) finishLoad() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.loading = false

	d, ok := h.out.opts.Lookup(h.src)
	if !ok {
		h.events.Push(player.MediaEvent{Kind: player.MediaError, Err: fmt.Errorf("%s: %w", h.src, ErrNotFound)})
		return
	}
	h.loaded = true
	h.duration = d
	h.events.Push(player.MediaEvent{
		Kind:     player.MediaMetadata,
		Duration: d,
		Format:   &audio.Format{Codec: audio.CodecFromSource(h.src), SampleRate: 44100, BitDepth: 16, Channels: 2},
	})
	h.events.Push(player.MediaEvent{Kind: player.MediaCanPlay})
	if h.playing {
		h.startTickerLocked()
	}
}

// Play starts the clock. Before metadata arrives it only records intent;
// the clock starts once the source is loaded.
func (h *handle) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errClosed
	}
	if h.loaded && h.position >= h.duration {
		h.position = 0
	}
	h.playing = true
	if h.loaded {
		h.startTickerLocked()
	}
	return nil
}

func (h *handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errClosed
	}
	h.playing = false
	return nil
}

func (h *handle) Seek(seconds float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errClosed
	}
	if seconds < 0 {
		seconds = 0
	}
	if h.loaded && seconds > h.duration {
		seconds = h.duration
	}
	h.position = seconds
	if h.loaded {
		h.events.Push(player.MediaEvent{Kind: player.MediaTimeUpdate, Position: seconds})
	}
	return nil
}

func (h *handle) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errClosed
	}
	h.volume = v
	log.Debug().Str("src", h.src).Float64("volume", v).Msg("Virtual output volume changed")
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.playing = false
	close(h.done)
	h.mu.Unlock()

	h.out.forget(h)
	return nil
}

func (h *handle) startTickerLocked() {
	if h.ticking {
		return
	}
	h.ticking = true
	go h.tick()
}

func (h *handle) tick() {
	step := h.out.opts.Tick.Seconds() * h.out.opts.Speed
	ticker := time.NewTicker(h.out.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
		}

		h.mu.Lock()
		if !h.playing || h.closed {
			h.ticking = false
			h.mu.Unlock()
			return
		}
		h.position += step
		if h.position >= h.duration {
			h.position = h.duration
			h.playing = false
			h.ticking = false
			h.events.Push(player.MediaEvent{Kind: player.MediaTimeUpdate, Position: h.position})
			h.events.Push(player.MediaEvent{Kind: player.MediaEnded})
			h.mu.Unlock()
			return
		}
		h.events.Push(player.MediaEvent{Kind: player.MediaTimeUpdate, Position: h.position})
		h.mu.Unlock()
	}
}
