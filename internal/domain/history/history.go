// Package history records which tracks were played, for the "recently
// played" view.
package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/player"
)

const (
	// DefaultMaxEntries caps the stored history.
	DefaultMaxEntries = 1000

	// duplicateWindow merges a replay of the same track into one entry.
	duplicateWindow = 5 * time.Second

	fileName = "play_history.json"
)

// Entry is one recorded play.
type Entry struct {
	ID         string          `json:"id"`
	TrackID    catalog.TrackID `json:"trackId"`
	Title      string          `json:"title"`
	Artist     string          `json:"artist"`
	Album      string          `json:"album,omitempty"`
	Cover      string          `json:"cover,omitempty"`
	Exclusive  bool            `json:"isExclusive"`
	PlayedAt   time.Time       `json:"playedAt"`
	PlayCount  int             `json:"playCount"`
	TotalPlays int             `json:"totalPlays"` // every play of the track, set by List
}

// Sort orders List results.
type Sort string

const (
	SortLastPlayed   Sort = "last_played"
	SortMostPlayed   Sort = "most_played"
	SortAlphabetical Sort = "alphabetical"
)

// Store keeps play history in memory and mirrors it to a JSON file.
type Store struct {
	mu         sync.RWMutex
	saveMu     sync.Mutex
	wg         sync.WaitGroup
	filePath   string
	entries    []Entry
	maxEntries int
	now        func() time.Time
}

// NewStore loads history from dataDir. An empty dataDir keeps history in
// memory only.
func NewStore(dataDir string) *Store {
	s := &Store{
		entries:    []Entry{},
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	if dataDir != "" {
		s.filePath = filepath.Join(dataDir, fileName)
		s.load()
	}
	return s
}

// Record adds a play of track. A replay of the same track within a few
// seconds bumps the previous entry instead.
func (s *Store) Record(track catalog.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for i := len(s.entries) - 1; i >= 0 && i >= len(s.entries)-5; i-- {
		if s.entries[i].TrackID == track.ID && now.Sub(s.entries[i].PlayedAt) < duplicateWindow {
			s.entries[i].PlayedAt = now
			s.entries[i].PlayCount++
			log.Debug().Str("track", string(track.ID)).Msg("Updated existing play history entry")
			s.saveAsync()
			return
		}
	}

	s.entries = append(s.entries, Entry{
		ID:        uuid.New().String(),
		TrackID:   track.ID,
		Title:     track.Title,
		Artist:    track.Artist,
		Album:     track.Album,
		Cover:     track.Cover,
		Exclusive: track.Exclusive,
		PlayedAt:  now,
		PlayCount: 1,
	})
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
	}

	log.Info().
		Str("track", string(track.ID)).
		Str("title", track.Title).
		Msg("Recorded play history")

	s.saveAsync()
}

// List returns up to limit entries in the requested order. limit <= 0
// means 50.
func (s *Store) List(order Sort, limit int) []Entry {
	s.mu.RLock()
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.RUnlock()

	switch order {
	case SortMostPlayed:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].PlayCount > entries[j].PlayCount
		})
	case SortAlphabetical:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Title < entries[j].Title
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].PlayedAt.After(entries[j].PlayedAt)
		})
	}

	if limit <= 0 {
		limit = 50
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].TotalPlays = s.PlayCount(entries[i].TrackID)
	}
	return entries
}

// PlayCount returns the total plays recorded for a track.
func (s *Store) PlayCount(id catalog.TrackID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if e.TrackID == id {
			count += e.PlayCount
		}
	}
	return count
}

// Clear removes all history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = []Entry{}
	s.saveAsync()
	log.Info().Msg("Play history cleared")
}

// Run records every track the controller starts until ctx is done or the
// event channel closes.
func (s *Store) Run(ctx context.Context, events <-chan player.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == player.EventTrackStarted && ev.Track != nil {
				s.Record(*ev.Track)
			}
		}
	}
}

// Close waits for pending writes.
func (s *Store) Close() error {
	s.wg.Wait()
	return nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", s.filePath).Msg("Failed to read play history")
		}
		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Msg("Failed to parse play history")
		return
	}

	s.entries = entries
	log.Info().Int("count", len(entries)).Msg("Loaded play history")
}

// saveAsync writes the history in the background. Callers hold s.mu.
func (s *Store) saveAsync() {
	if s.filePath == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// saveMu keeps writes in snapshot order.
		s.saveMu.Lock()
		defer s.saveMu.Unlock()

		s.mu.RLock()
		entries := make([]Entry, len(s.entries))
		copy(entries, s.entries)
		s.mu.RUnlock()

		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal play history")
			return
		}
		if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
			log.Error().Err(err).Msg("Failed to create history directory")
			return
		}
		if err := os.WriteFile(s.filePath, data, 0644); err != nil {
			log.Error().Err(err).Msg("Failed to save play history")
		}
	}()
}
