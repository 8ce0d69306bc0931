package mpd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/neon-player-backend/internal/audio"
	"github.com/edumarques81/neon-player-backend/internal/domain/player"
)

// DefaultPollInterval is how often a playing handle samples MPD's status.
const DefaultPollInterval = 250 * time.Millisecond

var errHandleClosed = errors.New("mpd: handle closed")

// Output plays tracks through MPD. MPD has a single queue, so only the most
// recently bound handle owns it; binding a new handle replaces the queue.
type Output struct {
	client       *Client
	pollInterval time.Duration

	mu      sync.Mutex
	current *handle
	stop    chan struct{}
	closed  bool
}

// NewOutput creates an output over client. Call Start to receive MPD's
// change notifications; without them handles fall back to polling.
func NewOutput(client *Client, pollInterval time.Duration) *Output {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Output{
		client:       client,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
	}
}

// Start subscribes to MPD's player and mixer subsystems and forwards each
// change to the current handle.
func (o *Output) Start() error {
	events, err := o.client.Watch("player", "mixer")
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-o.stop:
				return
			case subsystem, ok := <-events:
				if !ok {
					return
				}
				log.Debug().Str("subsystem", subsystem).Msg("MPD subsystem changed")
				o.mu.Lock()
				h := o.current
				o.mu.Unlock()
				if h != nil {
					h.poke()
				}
			}
		}
	}()
	return nil
}

// Bind implements player.Output.
func (o *Output) Bind(src string, sink player.EventSink) (player.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, errors.New("mpd: output closed")
	}

	h := newHandle(o, src, sink)
	o.current = h
	go h.run()
	go h.events.Drain(h.done, h.sink)
	return h, nil
}

// Close stops playback and the watcher.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	h := o.current
	o.current = nil
	close(o.stop)
	o.mu.Unlock()

	if h != nil {
		h.Close()
	}
	if err := o.client.Stop(); err != nil {
		log.Debug().Err(err).Msg("MPD stop on close failed")
	}
	return o.client.Close()
}

func (o *Output) release(h *handle) {
	o.mu.Lock()
	if o.current == h {
		o.current = nil
	}
	o.mu.Unlock()
}

// handle serializes its MPD commands on one goroutine and delivers events
// on another, so Handle methods never block on the sink.
type handle struct {
	out  *Output
	src  string
	sink player.EventSink

	ops    chan func()
	pokes  chan struct{}
	done   chan struct{}
	events *player.MediaQueue

	closeOnce sync.Once

	// Owned by the run goroutine.
	songID      int
	wantPlaying bool
	sawPlaying  bool
	pendingSeek float64
	duration    float64
	format      *audio.Format
	lastErr     string
}

func newHandle(out *Output, src string, sink player.EventSink) *handle {
	return &handle{
		out:         out,
		src:         src,
		sink:        sink,
		ops:         make(chan func(), 32),
		pokes:       make(chan struct{}, 1),
		done:        make(chan struct{}),
		events:      player.NewMediaQueue(),
		songID:      -1,
		pendingSeek: -1,
	}
}

func (h *handle) Load() error {
	return h.enqueue(h.load)
}

func (h *handle) Play(ctx context.Context) error {
	result := make(chan error, 1)
	if err := h.enqueue(func() { result <- h.play() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errHandleClosed
	}
}

func (h *handle) Pause() error {
	return h.enqueue(func() {
		h.wantPlaying = false
		if h.songID < 0 {
			return
		}
		if err := h.out.client.Pause(true); err != nil {
			log.Warn().Err(err).Msg("MPD pause failed")
		}
	})
}

func (h *handle) Seek(seconds float64) error {
	return h.enqueue(func() { h.seek(seconds) })
}

func (h *handle) SetVolume(v float64) error {
	vol := int(v*100 + 0.5)
	return h.enqueue(func() {
		if err := h.out.client.SetVolume(vol); err != nil {
			log.Debug().Err(err).Int("volume", vol).Msg("MPD volume change failed")
		}
	})
}

func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		h.out.release(h)
	})
	return nil
}

func (h *handle) enqueue(op func()) error {
	select {
	case <-h.done:
		return errHandleClosed
	default:
	}
	select {
	case h.ops <- op:
		return nil
	case <-h.done:
		return errHandleClosed
	}
}

func (h *handle) poke() {
	select {
	case h.pokes <- struct{}{}:
	default:
	}
}

func (h *handle) emit(ev player.MediaEvent) {
	h.events.Push(ev)
}

func (h *handle) run() {
	ticker := time.NewTicker(h.out.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case op := <-h.ops:
			op()
		case <-h.pokes:
			h.check()
		case <-ticker.C:
			if h.wantPlaying {
				h.check()
			}
		}
	}
}

func (h *handle) load() {
	h.emit(player.MediaEvent{Kind: player.MediaLoadStart})

	client := h.out.client
	if err := client.Clear(); err != nil {
		h.emit(player.MediaEvent{Kind: player.MediaError, Err: fmt.Errorf("clear queue: %w", err)})
		return
	}
	id, err := client.AddID(h.src)
	if err != nil {
		h.emit(player.MediaEvent{Kind: player.MediaError, Err: fmt.Errorf("add %s: %w", h.src, err)})
		return
	}
	h.songID = id

	if attrs, err := client.SongInfo(id); err == nil {
		h.duration = songDuration(attrs)
	} else {
		log.Debug().Err(err).Int("songId", id).Msg("MPD song info unavailable")
	}
	h.format = &audio.Format{Codec: audio.CodecFromSource(h.src)}
	h.emit(player.MediaEvent{Kind: player.MediaMetadata, Duration: h.duration, Format: h.format})
	h.emit(player.MediaEvent{Kind: player.MediaCanPlay})
}

func (h *handle) play() error {
	if h.songID < 0 {
		return errors.New("mpd: source not loaded")
	}
	client := h.out.client

	status, err := client.Status()
	if err != nil {
		return err
	}
	if status["state"] == "pause" && status["songid"] == strconv.Itoa(h.songID) {
		err = client.Pause(false)
	} else {
		err = client.PlayID(h.songID)
	}
	if err != nil {
		return err
	}
	h.wantPlaying = true

	if h.pendingSeek >= 0 {
		pos := h.pendingSeek
		h.pendingSeek = -1
		if err := client.SeekCur(secondsToDuration(pos)); err != nil {
			log.Warn().Err(err).Float64("position", pos).Msg("MPD deferred seek failed")
		}
	}
	return nil
}

func (h *handle) seek(seconds float64) {
	if h.songID < 0 {
		h.pendingSeek = seconds
		return
	}
	status, err := h.out.client.Status()
	if err != nil || status["songid"] != strconv.Itoa(h.songID) || status["state"] == "stop" {
		// MPD can only seek the song it is playing or holding paused.
		h.pendingSeek = seconds
		return
	}
	if err := h.out.client.SeekCur(secondsToDuration(seconds)); err != nil {
		log.Warn().Err(err).Float64("position", seconds).Msg("MPD seek failed")
	}
}

// check samples MPD's status and turns it into media events.
func (h *handle) check() {
	if h.songID < 0 {
		return
	}
	status, err := h.out.client.Status()
	if err != nil {
		log.Debug().Err(err).Msg("MPD status poll failed")
		return
	}

	if msg := status["error"]; msg != "" && msg != h.lastErr {
		h.lastErr = msg
		h.wantPlaying = false
		h.sawPlaying = false
		if err := h.out.client.ClearError(); err != nil {
			log.Debug().Err(err).Msg("MPD clearerror failed")
		}
		h.emit(player.MediaEvent{Kind: player.MediaError, Err: errors.New(msg)})
		return
	}

	state := status["state"]
	ours := status["songid"] == strconv.Itoa(h.songID)

	if ours && state == "play" {
		h.sawPlaying = true
		if d := parseSeconds(status["duration"]); d > 0 && d != h.duration {
			h.duration = d
			h.emit(player.MediaEvent{Kind: player.MediaMetadata, Duration: d, Format: h.format})
		}
		if f := audio.ParseMPDAudio(status["audio"]); f != nil {
			f.Codec = audio.CodecFromSource(h.src)
			if !f.Equal(h.format) {
				h.format = f
				h.emit(player.MediaEvent{Kind: player.MediaMetadata, Duration: h.duration, Format: f})
			}
		}
		h.emit(player.MediaEvent{Kind: player.MediaTimeUpdate, Position: parseSeconds(status["elapsed"])})
		return
	}

	if h.sawPlaying && h.wantPlaying && (state == "stop" || !ours) {
		h.sawPlaying = false
		h.wantPlaying = false
		h.emit(player.MediaEvent{Kind: player.MediaTimeUpdate, Position: h.duration})
		h.emit(player.MediaEvent{Kind: player.MediaEnded})
	}
}

func songDuration(attrs map[string]string) float64 {
	if d := parseSeconds(attrs["duration"]); d > 0 {
		return d
	}
	return parseSeconds(attrs["Time"])
}

func parseSeconds(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
