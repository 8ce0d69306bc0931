// Package catalog holds the artist's static track catalog: singles, exclusive
// tracks and albums, plus the named playlists the player can be fed with.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// TrackID identifies a track. The site data mixes numeric and string IDs, so
// JSON numbers are accepted and normalized to their decimal string form.
type TrackID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *TrackID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TrackID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("track id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = TrackID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = TrackID(n.String())
	return nil
}

// Track is an immutable catalog entry. Duration is advisory; the media output
// reports the authoritative duration once the source is loaded.
type Track struct {
	ID        TrackID `json:"id" yaml:"id"`
	Title     string  `json:"title" yaml:"title"`
	Artist    string  `json:"artist,omitempty" yaml:"artist"`
	Album     string  `json:"album,omitempty" yaml:"album"`
	Cover     string  `json:"cover" yaml:"cover"`
	Src       string  `json:"src" yaml:"src"`
	Duration  float64 `json:"duration" yaml:"duration"`
	Exclusive bool    `json:"isExclusive,omitempty" yaml:"exclusive"`
}

// Same reports whether t and other refer to the same catalog track.
// A nil track is only the same as another nil track.
func (t *Track) Same(other *Track) bool {
	if t == nil || other == nil {
		return t == nil && other == nil
	}
	return t.ID == other.ID
}

// IndexOf returns the position of the track with the given ID, or -1.
func IndexOf(tracks []Track, id TrackID) int {
	for i := range tracks {
		if tracks[i].ID == id {
			return i
		}
	}
	return -1
}

// WithoutExclusive drops exclusive tracks from tracks. The returned index
// points at the track that was at index, or at the next surviving track
// when that one was dropped.
func WithoutExclusive(tracks []Track, index int) ([]Track, int) {
	kept := make([]Track, 0, len(tracks))
	newIndex := 0
	for i, t := range tracks {
		if t.Exclusive {
			continue
		}
		if i < index {
			newIndex++
		}
		kept = append(kept, t)
	}
	if newIndex >= len(kept) {
		newIndex = 0
	}
	return kept, newIndex
}
