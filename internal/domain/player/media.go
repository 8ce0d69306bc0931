package player

import (
	"context"

	"github.com/edumarques81/neon-player-backend/internal/audio"
)

// MediaEventKind identifies a report from a media handle.
type MediaEventKind int

const (
	MediaLoadStart MediaEventKind = iota
	MediaCanPlay
	MediaMetadata
	MediaTimeUpdate
	MediaEnded
	MediaError
)

func (k MediaEventKind) String() string {
	switch k {
	case MediaLoadStart:
		return "loadstart"
	case MediaCanPlay:
		return "canplay"
	case MediaMetadata:
		return "loadedmetadata"
	case MediaTimeUpdate:
		return "timeupdate"
	case MediaEnded:
		return "ended"
	case MediaError:
		return "error"
	}
	return "unknown"
}

// MediaEvent is one report from a bound handle.
type MediaEvent struct {
	Kind     MediaEventKind
	Position float64       // seconds, for MediaTimeUpdate
	Duration float64       // seconds, for MediaMetadata
	Format   *audio.Format // optional, for MediaMetadata
	Err      error         // for MediaError
}

// EventSink receives a handle's events.
type EventSink func(MediaEvent)

// Output creates media handles. Only the Controller talks to an Output.
type Output interface {
	// Bind creates a handle for src that reports to sink. Implementations
	// deliver events from their own goroutines, never synchronously from
	// inside a Handle or Output method, and in the order they occur.
	Bind(src string, sink EventSink) (Handle, error)
	Close() error
}

// Handle is one live media binding.
type Handle interface {
	// Load starts fetching the source. Progress arrives as events.
	Load() error
	// Play starts playback. It may block until the output accepts or
	// rejects the request; the Controller always calls it off its lock.
	Play(ctx context.Context) error
	Pause() error
	Seek(seconds float64) error
	SetVolume(v float64) error
	// Close stops the handle and its event delivery. It must not wait for
	// sink calls already in flight.
	Close() error
}
