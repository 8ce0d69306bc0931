package catalog

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Library holds the live catalog and the name of the playlist the player
// was last fed from, so a reloaded catalog can feed it again.
type Library struct {
	mu       sync.RWMutex
	cat      *Catalog
	selected string
}

// NewLibrary wraps c. An empty selection means PlaylistAll.
func NewLibrary(c *Catalog, selected string) *Library {
	if c == nil {
		c = Default()
	}
	if selected == "" {
		selected = PlaylistAll
	}
	return &Library{cat: c, selected: selected}
}

func (l *Library) Catalog() *Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cat
}

// Selected returns the current playlist name.
func (l *Library) Selected() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected
}

func (l *Library) Find(id TrackID) (Track, bool) {
	return l.Catalog().Find(id)
}

// Select resolves name and remembers it on success.
func (l *Library) Select(name string, unlocked bool) ([]Track, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tracks, err := l.cat.Playlist(name, unlocked)
	if err != nil {
		return nil, err
	}
	l.selected = name
	return tracks, nil
}

// Current resolves the selected playlist against the live catalog.
func (l *Library) Current(unlocked bool) []Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolveLocked(unlocked)
}

// Replace swaps in a reloaded catalog and returns the selected playlist
// resolved against it. A selection the new catalog no longer has falls
// back to PlaylistAll.
func (l *Library) Replace(c *Catalog, unlocked bool) []Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cat = c
	return l.resolveLocked(unlocked)
}

func (l *Library) resolveLocked(unlocked bool) []Track {
	tracks, err := l.cat.Playlist(l.selected, unlocked)
	if err == nil {
		return tracks
	}
	if errors.Is(err, ErrUnknownPlaylist) || errors.Is(err, ErrLocked) {
		log.Warn().Err(err).Str("playlist", l.selected).Msg("Selected playlist unavailable, using all")
	}
	l.selected = PlaylistAll
	tracks, _ = l.cat.Playlist(PlaylistAll, unlocked)
	return tracks
}
