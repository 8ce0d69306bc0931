package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edumarques81/neon-player-backend/internal/audio"
)

// Playlist names understood by Catalog.Playlist.
const (
	PlaylistSingles   = "singles"
	PlaylistExclusive = "exclusive"
	PlaylistAll       = "all"

	albumPrefix = "album:"
)

var (
	// ErrUnknownPlaylist is returned for a playlist name the catalog does not know.
	ErrUnknownPlaylist = errors.New("unknown playlist")
	// ErrLocked is returned when an exclusive playlist is requested without access.
	ErrLocked = errors.New("exclusive content is locked")
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Album groups tracks released together.
type Album struct {
	ID     string  `json:"id" yaml:"id"`
	Title  string  `json:"title" yaml:"title"`
	Art    string  `json:"art" yaml:"art"`
	Year   int     `json:"year" yaml:"year"`
	Type   string  `json:"type" yaml:"type"` // album, ep, single
	Tracks []Track `json:"tracks" yaml:"tracks"`
}

// Catalog is the static track data of the site. It is never mutated after
// Parse returns; accessors hand out copies.
type Catalog struct {
	Singles   []Track `json:"singles" yaml:"singles"`
	Exclusive []Track `json:"exclusive" yaml:"exclusive"`
	Albums    []Album `json:"albums" yaml:"albums"`
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a YAML catalog from path. An empty path yields the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	for i := range c.Exclusive {
		c.Exclusive[i].Exclusive = true
	}
	for i := range c.Albums {
		album := &c.Albums[i]
		if album.ID == "" {
			return nil, fmt.Errorf("album %d has no id", i)
		}
		for j := range album.Tracks {
			if album.Tracks[j].Album == "" {
				album.Tracks[j].Album = album.Title
			}
			if album.Tracks[j].Cover == "" {
				album.Tracks[j].Cover = album.Art
			}
		}
	}

	seen := make(map[TrackID]string)
	check := func(where string, tracks []Track) error {
		for _, t := range tracks {
			if t.ID == "" {
				return fmt.Errorf("%s: track %q has no id", where, t.Title)
			}
			if t.Src == "" {
				return fmt.Errorf("%s: track %s has no src", where, t.ID)
			}
			if !audio.ValidSource(t.Src) {
				return fmt.Errorf("%s: track %s has unsupported source %q", where, t.ID, t.Src)
			}
			if prev, dup := seen[t.ID]; dup {
				return fmt.Errorf("%s: duplicate track id %s (also in %s)", where, t.ID, prev)
			}
			seen[t.ID] = where
		}
		return nil
	}
	if err := check(PlaylistSingles, c.Singles); err != nil {
		return nil, err
	}
	if err := check(PlaylistExclusive, c.Exclusive); err != nil {
		return nil, err
	}
	for _, a := range c.Albums {
		if err := check(albumPrefix+a.ID, a.Tracks); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// All returns the singles followed by the exclusive tracks.
func (c *Catalog) All() []Track {
	all := make([]Track, 0, len(c.Singles)+len(c.Exclusive))
	all = append(all, c.Singles...)
	return append(all, c.Exclusive...)
}

// Playlist resolves a named playlist. Playlists containing exclusive tracks
// require unlocked to be true.
func (c *Catalog) Playlist(name string, unlocked bool) ([]Track, error) {
	switch {
	case name == PlaylistSingles:
		return clone(c.Singles), nil
	case name == PlaylistExclusive:
		if !unlocked {
			return nil, ErrLocked
		}
		return clone(c.Exclusive), nil
	case name == PlaylistAll:
		if !unlocked {
			return clone(c.Singles), nil
		}
		return c.All(), nil
	case strings.HasPrefix(name, albumPrefix):
		id := strings.TrimPrefix(name, albumPrefix)
		for _, a := range c.Albums {
			if a.ID == id {
				return clone(a.Tracks), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPlaylist, name)
}

// PlaylistNames lists every playlist name the catalog can resolve.
func (c *Catalog) PlaylistNames() []string {
	names := []string{PlaylistSingles, PlaylistExclusive, PlaylistAll}
	for _, a := range c.Albums {
		names = append(names, albumPrefix+a.ID)
	}
	return names
}

// Find looks a track up by ID across singles, exclusive tracks and albums.
func (c *Catalog) Find(id TrackID) (Track, bool) {
	if i := IndexOf(c.Singles, id); i >= 0 {
		return c.Singles[i], true
	}
	if i := IndexOf(c.Exclusive, id); i >= 0 {
		return c.Exclusive[i], true
	}
	for _, a := range c.Albums {
		if i := IndexOf(a.Tracks, id); i >= 0 {
			return a.Tracks[i], true
		}
	}
	return Track{}, false
}

func clone(tracks []Track) []Track {
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}
