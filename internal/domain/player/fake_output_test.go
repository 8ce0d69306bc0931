package player_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/persistence"
	"github.com/edumarques81/neon-player-backend/internal/domain/player"
	"github.com/edumarques81/neon-player-backend/internal/domain/session"
	"github.com/edumarques81/neon-player-backend/internal/infra/store"
)

// fakeOutput records every handle it creates. Tests drive media events by
// calling emit on a handle from the test goroutine.
type fakeOutput struct {
	mu      sync.Mutex
	handles []*fakeHandle
	bindErr error
	playErr error
	gated   bool
}

func (o *fakeOutput) Bind(src string, sink player.EventSink) (player.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bindErr != nil {
		return nil, o.bindErr
	}
	h := &fakeHandle{src: src, sink: sink, playErr: o.playErr, volume: -1}
	if o.gated {
		h.gate = make(chan struct{})
	}
	o.handles = append(o.handles, h)
	return h, nil
}

func (o *fakeOutput) Close() error { return nil }

func (o *fakeOutput) last() *fakeHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.handles) == 0 {
		return nil
	}
	return o.handles[len(o.handles)-1]
}

func (o *fakeOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles)
}

type fakeHandle struct {
	mu       sync.Mutex
	src      string
	sink     player.EventSink
	playErr  error
	gate     chan struct{}
	loaded   bool
	playing  bool
	plays    int
	pauses   int
	volume   float64
	position float64
	seeks    []float64
	closed   bool
}

func (h *fakeHandle) Load() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded = true
	return nil
}

func (h *fakeHandle) Play(ctx context.Context) error {
	if h.gate != nil {
		select {
		case <-h.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plays++
	if h.playErr != nil {
		return h.playErr
	}
	h.playing = true
	return nil
}

func (h *fakeHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
	h.playing = false
	return nil
}

func (h *fakeHandle) Seek(seconds float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.position = seconds
	h.seeks = append(h.seeks, seconds)
	return nil
}

func (h *fakeHandle) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.playing = false
	return nil
}

func (h *fakeHandle) emit(ev player.MediaEvent) {
	h.sink(ev)
}

func (h *fakeHandle) isPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *fakeHandle) playCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plays
}

func (h *fakeHandle) appliedVolume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

func (h *fakeHandle) seekPosition() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) setPlayErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playErr = err
}

var errAutoplayBlocked = errors.New("autoplay blocked")

func threeTracks() []catalog.Track {
	return []catalog.Track{
		{ID: "1", Title: "Neon Dreams", Src: "neon-dreams.mp3", Duration: 200},
		{ID: "2", Title: "Digital Rain", Src: "digital-rain.mp3", Duration: 252},
		{ID: "3", Title: "Cyber Pulse", Src: "cyber-pulse.mp3", Duration: 208},
	}
}

type harness struct {
	ctrl    *player.Controller
	out     *fakeOutput
	session *session.Session
	store   *persistence.Adapter
}

func newHarness(t *testing.T, out *fakeOutput, tracks []catalog.Track) *harness {
	t.Helper()
	return newHarnessWithStore(t, out, tracks, persistence.New(store.NewMemory()), 0)
}

func newHarnessWithStore(t *testing.T, out *fakeOutput, tracks []catalog.Track, st *persistence.Adapter, timeout time.Duration) *harness {
	t.Helper()
	if out == nil {
		out = &fakeOutput{}
	}
	sess := session.New()
	ctrl := player.NewController(player.Config{
		Output:       out,
		Session:      sess,
		Store:        st,
		Playlist:     tracks,
		MediaBaseURL: "/audio",
		LoadTimeout:  timeout,
	})
	t.Cleanup(func() { ctrl.Close() })
	return &harness{ctrl: ctrl, out: out, session: sess, store: st}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
