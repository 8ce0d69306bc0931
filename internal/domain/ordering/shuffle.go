package ordering

import "math/rand/v2"

// ShuffleOrder is a materialized random permutation of playlist indices with a
// cursor. It is generated once when shuffle is switched on (or the playlist
// changes) and then consumed in order by both Next and Previous, so skipping
// back returns to the track that actually played before.
type ShuffleOrder struct {
	order  []int
	cursor int
}

// NewShuffleOrder builds a permutation of [0, length) that starts with
// current, followed by the other indices in random order. r may be nil to use
// the package-level random source.
func NewShuffleOrder(length, current int, r *rand.Rand) *ShuffleOrder {
	perm := rand.Perm
	if r != nil {
		perm = r.Perm
	}

	order := make([]int, 0, length)
	if length > 0 && current >= 0 && current < length {
		order = append(order, current)
	}
	for _, i := range perm(length) {
		if i != current {
			order = append(order, i)
		}
	}
	return &ShuffleOrder{order: order}
}

// Len returns the number of indices in the permutation.
func (s *ShuffleOrder) Len() int {
	return len(s.order)
}

// Current returns the playlist index under the cursor.
func (s *ShuffleOrder) Current() (int, bool) {
	if s.cursor < 0 || s.cursor >= len(s.order) {
		return 0, false
	}
	return s.order[s.cursor], true
}

// Order returns a copy of the permutation.
func (s *ShuffleOrder) Order() []int {
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}

// Seek moves the cursor to the position holding playlist index idx. It is used
// when the user selects a track directly while shuffle is on.
func (s *ShuffleOrder) Seek(idx int) bool {
	for pos, i := range s.order {
		if i == idx {
			s.cursor = pos
			return true
		}
	}
	return false
}

// Next advances the cursor and returns the playlist index to play, or false
// when the permutation is exhausted and loop does not wrap. LoopTrack keeps
// the cursor in place.
func (s *ShuffleOrder) Next(loop LoopMode) (int, bool) {
	if len(s.order) == 0 {
		return 0, false
	}
	if loop == LoopTrack {
		return s.Current()
	}
	if s.cursor+1 >= len(s.order) {
		if loop != LoopPlaylist {
			return 0, false
		}
		s.cursor = 0
		return s.order[s.cursor], true
	}
	s.cursor++
	return s.order[s.cursor], true
}

// Previous moves the cursor back and returns the playlist index, or false at
// the start of the permutation unless loop wraps.
func (s *ShuffleOrder) Previous(loop LoopMode) (int, bool) {
	if len(s.order) == 0 {
		return 0, false
	}
	if s.cursor-1 < 0 {
		if loop != LoopPlaylist {
			return 0, false
		}
		s.cursor = len(s.order) - 1
		return s.order[s.cursor], true
	}
	s.cursor--
	return s.order[s.cursor], true
}
