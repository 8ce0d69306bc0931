// Package session holds the process-wide playback session: which track is
// current, whether it should be playing and whether the floating widget is
// expanded. It owns no audio; the player controller observes it.
package session

import (
	"sync"

	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
)

// Origin tags who made a change so observers can ignore their own writes.
type Origin string

const (
	OriginUI        Origin = "ui"
	OriginTransport Origin = "transport"
)

// Snapshot is a consistent view of the session.
type Snapshot struct {
	CurrentTrack     *catalog.Track `json:"currentTrack"`
	CurrentIndex     int            `json:"currentIndex"`
	IsPlaying        bool           `json:"isPlaying"`
	IsWidgetExpanded bool           `json:"isWidgetExpanded"`
	Version          uint64         `json:"version"`
}

func (s Snapshot) copy() Snapshot {
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		s.CurrentTrack = &t
	}
	return s
}

func (s Snapshot) equal(o Snapshot) bool {
	return s.CurrentTrack.Same(o.CurrentTrack) &&
		s.CurrentIndex == o.CurrentIndex &&
		s.IsPlaying == o.IsPlaying &&
		s.IsWidgetExpanded == o.IsWidgetExpanded
}

// Change describes one applied transition.
type Change struct {
	Origin Origin
	Before Snapshot
	After  Snapshot
}

// TrackChanged reports whether the current track or index moved.
func (c Change) TrackChanged() bool {
	return !c.Before.CurrentTrack.Same(c.After.CurrentTrack) || c.Before.CurrentIndex != c.After.CurrentIndex
}

// Session is safe for concurrent use. Every write is applied as one
// transition; readers never see a partially updated session.
type Session struct {
	mu        sync.Mutex
	state     Snapshot
	listeners map[int]func(Change)
	nextID    int
}

// New creates an empty session.
func New() *Session {
	return &Session{listeners: make(map[int]func(Change))}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.copy()
}

// Subscribe registers fn for every applied change and returns a function
// that removes it. fn runs on the writer's goroutine after the session lock
// is released.
func (s *Session) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Apply runs fn against a copy of the state and commits the result as one
// transition. It reports whether anything changed.
func (s *Session) Apply(origin Origin, fn func(*Snapshot)) bool {
	s.mu.Lock()
	before := s.state.copy()
	next := s.state.copy()
	fn(&next)
	if next.equal(before) {
		s.mu.Unlock()
		return false
	}
	next.Version = before.Version + 1
	s.state = next

	listeners := make([]func(Change), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	change := Change{Origin: origin, Before: before, After: next.copy()}
	s.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
	return true
}

// PlayTrack makes track current at index and marks it playing with the
// widget expanded. When the same track is already current and playing the
// call does nothing, so a double click never restarts it. It reports
// whether the session changed.
func (s *Session) PlayTrack(track catalog.Track, index int) bool {
	return s.Apply(OriginUI, func(st *Snapshot) {
		if st.IsPlaying && st.CurrentTrack.Same(&track) {
			return
		}
		st.CurrentTrack = &track
		st.CurrentIndex = index
		st.IsPlaying = true
		st.IsWidgetExpanded = true
	})
}

// TogglePlay flips the playing intent and returns the new value.
func (s *Session) TogglePlay() bool {
	var playing bool
	s.Apply(OriginUI, func(st *Snapshot) {
		st.IsPlaying = !st.IsPlaying
		playing = st.IsPlaying
	})
	return playing
}

// ToggleWidget flips the widget state and returns the new value.
func (s *Session) ToggleWidget() bool {
	var expanded bool
	s.Apply(OriginUI, func(st *Snapshot) {
		st.IsWidgetExpanded = !st.IsWidgetExpanded
		expanded = st.IsWidgetExpanded
	})
	return expanded
}

// CollapseWidget minimizes the widget without touching playback.
func (s *Session) CollapseWidget() {
	s.Apply(OriginUI, func(st *Snapshot) {
		st.IsWidgetExpanded = false
	})
}

// Select points the session at track and index without changing the
// playing intent.
func (s *Session) Select(origin Origin, track *catalog.Track, index int) bool {
	return s.Apply(origin, func(st *Snapshot) {
		if track == nil {
			st.CurrentTrack = nil
		} else {
			t := *track
			st.CurrentTrack = &t
		}
		st.CurrentIndex = index
	})
}

// SetPlaying sets the playing intent.
func (s *Session) SetPlaying(origin Origin, playing bool) bool {
	return s.Apply(origin, func(st *Snapshot) {
		st.IsPlaying = playing
	})
}
