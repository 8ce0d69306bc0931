// Package ordering computes which track plays next or previous under the
// player's loop and shuffle policies. Everything here is free of side effects
// apart from the random source used for shuffling.
package ordering

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

// LoopMode governs auto-advance at the end of a track.
type LoopMode int

const (
	// LoopNone stops at the end of the playlist.
	LoopNone LoopMode = iota
	// LoopTrack repeats the current track.
	LoopTrack
	// LoopPlaylist wraps around to the start of the playlist.
	LoopPlaylist
)

// String returns the persisted name of the mode.
func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopPlaylist:
		return "playlist"
	default:
		return "none"
	}
}

// Next returns the mode that follows m in the UI cycle none → playlist → track.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopNone:
		return LoopPlaylist
	case LoopPlaylist:
		return LoopTrack
	default:
		return LoopNone
	}
}

// ParseLoopMode parses a persisted loop mode name.
func ParseLoopMode(s string) (LoopMode, error) {
	switch s {
	case "none", "":
		return LoopNone, nil
	case "track":
		return LoopTrack, nil
	case "playlist":
		return LoopPlaylist, nil
	}
	return LoopNone, fmt.Errorf("unknown loop mode %q", s)
}

// MarshalJSON encodes the mode by name.
func (m LoopMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a mode name; unknown names are an error.
func (m *LoopMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, err := ParseLoopMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// NextIndex returns the index to play after current, and false when playback
// should stop instead of advancing. With shuffle on it picks uniformly among
// the other indices on every call.
//
// Callers guarantee 0 <= current < length whenever length > 0.
func NextIndex(current, length int, loop LoopMode, shuffle bool) (int, bool) {
	return nextIndex(rand.IntN, current, length, loop, shuffle)
}

func nextIndex(intn func(int) int, current, length int, loop LoopMode, shuffle bool) (int, bool) {
	if length <= 0 {
		return 0, false
	}
	if loop == LoopTrack {
		return current, true
	}

	if shuffle {
		if length <= 1 {
			if loop == LoopPlaylist {
				return current, true
			}
			return 0, false
		}
		// Pick among length-1 candidates and skip over current.
		pick := intn(length - 1)
		if pick >= current {
			pick++
		}
		return pick, true
	}

	next := current + 1
	if next >= length {
		if loop == LoopPlaylist {
			return 0, true
		}
		return 0, false
	}
	return next, true
}

// PreviousIndex returns the index before current, and false when there is
// none. It always walks the sequential order.
func PreviousIndex(current, length int, loop LoopMode) (int, bool) {
	if length <= 0 {
		return 0, false
	}
	prev := current - 1
	if prev < 0 {
		if loop == LoopPlaylist {
			return length - 1, true
		}
		return 0, false
	}
	return prev, true
}
