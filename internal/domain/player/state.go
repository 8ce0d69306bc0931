// Package player owns the single media output and keeps it in step with the
// playback session: transport controls, event relay, auto-advance and
// persistence of the player snapshot.
package player

import (
	"github.com/edumarques81/neon-player-backend/internal/audio"
	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/ordering"
)

// Phase is the controller's position in its state machine.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhasePlaying Phase = "playing"
	PhaseError   Phase = "error"
)

// TransportState is the state derived from the media handle.
type TransportState struct {
	CurrentTime float64           `json:"currentTime"`
	Duration    float64           `json:"duration"`
	Volume      float64           `json:"volume"`
	IsMuted     bool              `json:"isMuted"`
	IsShuffled  bool              `json:"isShuffled"`
	LoopMode    ordering.LoopMode `json:"loopMode"`
	IsLoading   bool              `json:"isLoading"`
	Format      *audio.Format     `json:"format,omitempty"`
}

// EffectiveVolume is the volume applied to the output.
func (t TransportState) EffectiveVolume() float64 {
	if t.IsMuted {
		return 0
	}
	return t.Volume
}

// Snapshot is a consistent view of session and transport.
type Snapshot struct {
	Track            *catalog.Track `json:"track"`
	Index            int            `json:"index"`
	IsPlaying        bool           `json:"isPlaying"`
	IsWidgetExpanded bool           `json:"isWidgetExpanded"`
	Transport        TransportState `json:"transport"`
	Phase            Phase          `json:"phase"`
	LastError        string         `json:"lastError,omitempty"`
	QueueLength      int            `json:"queueLength"`
}

// Progress returns the played percentage of the current track.
func (s Snapshot) Progress() float64 {
	return audio.Progress(s.Transport.CurrentTime, s.Transport.Duration)
}

// ToJSON returns the snapshot as a flat map for the pushState event.
func (s Snapshot) ToJSON() map[string]interface{} {
	state := map[string]interface{}{
		"status":           statusOf(s),
		"phase":            string(s.Phase),
		"position":         s.Index,
		"seek":             int(s.Transport.CurrentTime * 1000),
		"seekText":         audio.FormatDuration(s.Transport.CurrentTime),
		"duration":         s.Transport.Duration,
		"durationText":     audio.FormatDuration(s.Transport.Duration),
		"progress":         s.Progress(),
		"volume":           s.Transport.Volume,
		"mute":             s.Transport.IsMuted,
		"random":           s.Transport.IsShuffled,
		"loop":             s.Transport.LoopMode.String(),
		"repeat":           s.Transport.LoopMode != ordering.LoopNone,
		"repeatSingle":     s.Transport.LoopMode == ordering.LoopTrack,
		"isLoading":        s.Transport.IsLoading,
		"isPlaying":        s.IsPlaying,
		"isWidgetExpanded": s.IsWidgetExpanded,
		"queueLength":      s.QueueLength,
		"error":            s.LastError,
		"id":               "",
		"title":            "",
		"artist":           "",
		"album":            "",
		"albumart":         "",
		"uri":              "",
		"trackType":        "",
		"isExclusive":      false,
	}

	if t := s.Track; t != nil {
		state["id"] = string(t.ID)
		state["title"] = t.Title
		state["artist"] = t.Artist
		state["album"] = t.Album
		state["albumart"] = t.Cover
		state["uri"] = t.Src
		state["trackType"] = audio.CodecFromSource(t.Src)
		state["isExclusive"] = t.Exclusive
	}
	if f := s.Transport.Format; f != nil {
		state["samplerate"] = audio.FormatSampleRate(f.SampleRate)
		state["bitdepth"] = f.BitDepth
		state["channels"] = f.Channels
	}
	return state
}

func statusOf(s Snapshot) string {
	switch {
	case s.Track == nil:
		return "stop"
	case s.IsPlaying:
		return "play"
	default:
		return "pause"
	}
}
