package mpd_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/neon-player-backend/internal/domain/player"
	"github.com/edumarques81/neon-player-backend/internal/infra/mpd"
)

type recorder struct {
	mu     sync.Mutex
	events []player.MediaEvent
}

func (r *recorder) sink(ev player.MediaEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []player.MediaEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]player.MediaEventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestOutputLoadWithoutServerReportsError(t *testing.T) {
	out := mpd.NewOutput(mpd.NewClient("localhost", deadPort, ""), 10*time.Millisecond)
	defer out.Close()

	rec := &recorder{}
	h, err := out.Bind("neon-dreams.mp3", rec.sink)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := h.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.kinds()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	kinds := rec.kinds()
	if len(kinds) < 2 {
		t.Fatalf("events = %v, want loadstart then error", kinds)
	}
	if kinds[0] != player.MediaLoadStart || kinds[1] != player.MediaError {
		t.Errorf("events = %v, want loadstart then error", kinds)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Play(ctx); err == nil {
		t.Error("Play should fail when the source never loaded")
	}
}

func TestOutputHandleClose(t *testing.T) {
	out := mpd.NewOutput(mpd.NewClient("localhost", deadPort, ""), 0)
	defer out.Close()

	h, err := out.Bind("neon-dreams.mp3", func(player.MediaEvent) {})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := h.Pause(); err == nil {
		t.Error("Pause after Close should fail")
	}
	if err := h.Play(context.Background()); err == nil {
		t.Error("Play after Close should fail")
	}
}

func TestOutputBindAfterClose(t *testing.T) {
	out := mpd.NewOutput(mpd.NewClient("localhost", deadPort, ""), 0)
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := out.Bind("neon-dreams.mp3", func(player.MediaEvent) {}); err == nil {
		t.Error("Bind after Close should fail")
	}
}

func TestOutputStartWithoutServer(t *testing.T) {
	out := mpd.NewOutput(mpd.NewClient("localhost", deadPort, ""), 0)
	defer out.Close()

	if err := out.Start(); err == nil {
		t.Error("Start should fail when MPD is unreachable")
	}
}
