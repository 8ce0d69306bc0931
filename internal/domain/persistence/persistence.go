// Package persistence stores the player snapshot, the standalone volume and
// the exclusive-access grant in a key-value store. Nothing here returns an
// error to callers: an unavailable store or corrupt content degrades to
// defaults and a logged warning.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/ordering"
	"github.com/edumarques81/neon-player-backend/internal/infra/store"
)

// Storage keys.
const (
	KeyExclusive = "dj-joel-exclusive"
	KeyPlayer    = "dj-joel-player"
	KeyVolume    = "dj-joel-volume"
)

const (
	// DefaultVolume is used when nothing valid is stored.
	DefaultVolume = 0.8

	// ExclusiveTTL is how long an exclusive-access grant stays valid.
	ExclusiveTTL = 30 * 24 * time.Hour

	opTimeout = 3 * time.Second
)

// PlayerState is the persisted player snapshot.
type PlayerState struct {
	CurrentTrack int               `json:"currentTrack"`
	Playlist     []catalog.Track   `json:"playlist"`
	IsPlaying    bool              `json:"isPlaying"`
	Volume       float64           `json:"volume"`
	Shuffle      bool              `json:"shuffle"`
	Loop         ordering.LoopMode `json:"loop"`
}

// ExclusiveAccess is a stored exclusive-content grant.
type ExclusiveAccess struct {
	HasAccess bool   `json:"hasAccess"`
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
}

// Adapter reads and writes typed state through a store.Store.
type Adapter struct {
	store         store.Store
	defaultVolume float64
	now           func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDefaultVolume overrides DefaultVolume.
func WithDefaultVolume(v float64) Option {
	return func(a *Adapter) { a.defaultVolume = clampVolume(v, DefaultVolume) }
}

// WithClock replaces time.Now, for grant expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New creates an adapter. A nil store gives an in-memory one.
func New(s store.Store, opts ...Option) *Adapter {
	if s == nil {
		s = store.NewMemory()
	}
	a := &Adapter{
		store:         s,
		defaultVolume: DefaultVolume,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultPlayerState returns the snapshot used when nothing valid is stored.
func (a *Adapter) DefaultPlayerState() PlayerState {
	return PlayerState{
		CurrentTrack: 0,
		Playlist:     []catalog.Track{},
		Volume:       a.defaultVolume,
		Loop:         ordering.LoopNone,
	}
}

func (a *Adapter) get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := a.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("Failed to read stored state")
		}
		return nil, false
	}
	return data, true
}

func (a *Adapter) set(key string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := a.store.Set(ctx, key, data); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to write state")
	}
}

func (a *Adapter) remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := a.store.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to remove state")
	}
}

// LoadPlayerState returns the stored snapshot merged over the defaults.
// The standalone volume key seeds the default volume. IsPlaying is always
// false in the result.
func (a *Adapter) LoadPlayerState() PlayerState {
	state := a.DefaultPlayerState()
	state.Volume = a.LoadVolume()

	data, ok := a.get(KeyPlayer)
	if !ok {
		return state
	}

	merged := state
	merged.Playlist = []catalog.Track{}
	if err := json.Unmarshal(data, &merged); err != nil {
		log.Warn().Err(err).Msg("Stored player state is corrupt, using defaults")
		return state
	}

	merged.IsPlaying = false
	merged.Volume = clampVolume(merged.Volume, a.defaultVolume)
	if merged.Playlist == nil {
		merged.Playlist = []catalog.Track{}
	}
	if merged.CurrentTrack < 0 || (len(merged.Playlist) > 0 && merged.CurrentTrack >= len(merged.Playlist)) {
		merged.CurrentTrack = 0
	}
	return merged
}

// SavePlayerState stores the snapshot with IsPlaying forced to false.
func (a *Adapter) SavePlayerState(state PlayerState) {
	state.IsPlaying = false
	if state.Playlist == nil {
		state.Playlist = []catalog.Track{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode player state")
		return
	}
	a.set(KeyPlayer, data)
}

// ClearPlayerState removes the stored snapshot.
func (a *Adapter) ClearPlayerState() {
	a.remove(KeyPlayer)
}

// LoadVolume returns the stored volume, or the default when missing or invalid.
func (a *Adapter) LoadVolume() float64 {
	data, ok := a.get(KeyVolume)
	if !ok {
		return a.defaultVolume
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return a.defaultVolume
	}
	return clampVolume(v, a.defaultVolume)
}

// SaveVolume stores v, clamped to [0,1].
func (a *Adapter) SaveVolume(v float64) {
	v = clampVolume(v, a.defaultVolume)
	a.set(KeyVolume, []byte(strconv.FormatFloat(v, 'f', -1, 64)))
}

// LoadExclusive returns the stored grant. Expired or missing grants report
// ok=false.
func (a *Adapter) LoadExclusive() (ExclusiveAccess, bool) {
	data, ok := a.get(KeyExclusive)
	if !ok {
		return ExclusiveAccess{}, false
	}
	var grant ExclusiveAccess
	if err := json.Unmarshal(data, &grant); err != nil {
		log.Warn().Err(err).Msg("Stored exclusive grant is corrupt")
		return ExclusiveAccess{}, false
	}
	if !grant.HasAccess {
		return grant, false
	}
	age := a.now().Sub(time.UnixMilli(grant.Timestamp))
	if age >= ExclusiveTTL {
		return grant, false
	}
	return grant, true
}

// HasExclusiveAccess reports whether a valid grant is stored.
func (a *Adapter) HasExclusiveAccess() bool {
	_, ok := a.LoadExclusive()
	return ok
}

// GrantExclusive stores a fresh grant and returns it.
func (a *Adapter) GrantExclusive() ExclusiveAccess {
	grant := ExclusiveAccess{
		HasAccess: true,
		Timestamp: a.now().UnixMilli(),
		DeviceID:  uuid.New().String(),
	}
	data, err := json.Marshal(grant)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode exclusive grant")
		return grant
	}
	a.set(KeyExclusive, data)
	return grant
}

// ClearExclusive removes the stored grant.
func (a *Adapter) ClearExclusive() {
	a.remove(KeyExclusive)
}

// ClearAll removes every key this adapter owns.
func (a *Adapter) ClearAll() {
	a.remove(KeyExclusive)
	a.remove(KeyPlayer)
	a.remove(KeyVolume)
}

// Available reports whether the underlying store currently works.
func (a *Adapter) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return a.store.Ping(ctx) == nil
}

func clampVolume(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return math.Max(0, math.Min(1, v))
}
