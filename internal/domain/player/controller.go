package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/neon-player-backend/internal/audio"
	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/ordering"
	"github.com/edumarques81/neon-player-backend/internal/domain/persistence"
	"github.com/edumarques81/neon-player-backend/internal/domain/session"
)

var (
	// ErrNoTrack is returned when an operation needs a current track.
	ErrNoTrack = errors.New("no track selected")
	// ErrIndexOutOfRange is returned for a playlist index that does not exist.
	ErrIndexOutOfRange = errors.New("track index out of range")
)

// DefaultLoadTimeout bounds how long a bind may stay loading.
const DefaultLoadTimeout = 15 * time.Second

// Config wires a Controller.
type Config struct {
	Output  Output
	Session *session.Session
	Store   *persistence.Adapter
	// Playlist is used when no playlist was persisted.
	Playlist     []catalog.Track
	MediaBaseURL string
	LoadTimeout  time.Duration
	// Rand drives shuffle permutations. Nil uses the global source.
	Rand *rand.Rand
}

// Controller owns the one live media handle. Every method is safe for
// concurrent use; all state changes are serialized on one mutex, and events
// from a superseded handle are discarded by generation.
type Controller struct {
	mu sync.Mutex

	output      Output
	session     *session.Session
	store       *persistence.Adapter
	bus         *Bus
	baseURL     string
	loadTimeout time.Duration
	rng         *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc

	playlist []catalog.Track
	state    TransportState
	shuffle  *ordering.ShuffleOrder

	handle     Handle
	bound      *catalog.Track
	boundIndex int
	gen        uint64
	loaded     bool // canplay seen for gen
	active     bool // Play requested on handle and not paused since
	started    bool // EventTrackStarted published for gen
	errMsg     string
	watchdog   *time.Timer

	unsubscribe func()
	closed      bool
}

// NewController restores the persisted player snapshot, binds the current
// track paused and starts observing the session.
func NewController(cfg Config) *Controller {
	if cfg.Session == nil {
		cfg.Session = session.New()
	}
	if cfg.Store == nil {
		cfg.Store = persistence.New(nil)
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}

	c := &Controller{
		output:      cfg.Output,
		session:     cfg.Session,
		store:       cfg.Store,
		bus:         NewBus(),
		baseURL:     cfg.MediaBaseURL,
		loadTimeout: cfg.LoadTimeout,
		rng:         cfg.Rand,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.restore(cfg.Playlist)
	c.unsubscribe = c.session.Subscribe(c.onSessionChange)
	return c
}

func (c *Controller) restore(fallback []catalog.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	saved := c.store.LoadPlayerState()
	playlist, index := saved.Playlist, saved.CurrentTrack
	if len(playlist) > 0 && !c.store.HasExclusiveAccess() {
		before := len(playlist)
		playlist, index = catalog.WithoutExclusive(playlist, index)
		if dropped := before - len(playlist); dropped > 0 {
			log.Info().Int("dropped", dropped).Msg("Exclusive access expired, removed locked tracks from restored playlist")
		}
	}
	if len(playlist) == 0 {
		playlist = fallback
	}
	c.playlist = append([]catalog.Track(nil), playlist...)

	if index < 0 || index >= len(c.playlist) {
		index = 0
	}

	c.state = TransportState{
		Volume:     saved.Volume,
		IsShuffled: saved.Shuffle,
		LoopMode:   saved.Loop,
	}
	if c.state.IsShuffled {
		c.shuffle = ordering.NewShuffleOrder(len(c.playlist), index, c.rng)
	}

	var track *catalog.Track
	if len(c.playlist) > 0 {
		t := c.playlist[index]
		track = &t
	}
	c.session.Apply(session.OriginTransport, func(st *session.Snapshot) {
		st.CurrentTrack = track
		st.CurrentIndex = index
		st.IsPlaying = false
	})
	c.bindLocked()

	log.Info().
		Int("tracks", len(c.playlist)).
		Int("index", index).
		Float64("volume", c.state.Volume).
		Bool("shuffle", c.state.IsShuffled).
		Str("loop", c.state.LoopMode.String()).
		Msg("Player state restored")
}

// Subscribe returns a channel of controller events. See Bus.Subscribe.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	return c.bus.Subscribe(buffer)
}

// Session returns the session the controller observes.
func (c *Controller) Session() *session.Session {
	return c.session
}

// Snapshot returns the current session and transport state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Playlist returns a copy of the current playlist.
func (c *Controller) Playlist() []catalog.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]catalog.Track(nil), c.playlist...)
}

// PlayTrack makes track current and plays it. index is a hint into the
// playlist; a track not in the playlist is appended. Calling it again for
// the track that is already playing does nothing.
func (c *Controller) PlayTrack(track catalog.Track, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	snap := c.session.Snapshot()
	if snap.IsPlaying && snap.CurrentTrack.Same(&track) && c.bound.Same(&track) && c.handle != nil {
		log.Debug().Str("track", string(track.ID)).Msg("PlayTrack ignored, already playing")
		return
	}

	idx := c.locateLocked(track, index)
	t := c.playlist[idx]
	log.Info().Str("track", string(t.ID)).Int("index", idx).Msg("PlayTrack")

	c.session.Apply(session.OriginTransport, func(st *session.Snapshot) {
		st.CurrentTrack = &t
		st.CurrentIndex = idx
		st.IsPlaying = true
		st.IsWidgetExpanded = true
	})
	if c.handle == nil || !c.bound.Same(&t) || c.boundIndex != idx {
		c.bindLocked()
	} else {
		c.startLocked()
	}
	c.publishStateLocked()
}

// SelectTrack plays the playlist entry at index.
func (c *Controller) SelectTrack(index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.playlist) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	track := c.playlist[index]
	c.mu.Unlock()

	c.PlayTrack(track, index)
	return nil
}

// Play resumes or starts the current track. A failure to start is reported
// through EventError, not returned.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playLocked()
}

func (c *Controller) playLocked() error {
	if c.closed {
		return nil
	}
	if c.bound == nil {
		return ErrNoTrack
	}
	log.Info().Msg("Play")

	c.session.SetPlaying(session.OriginTransport, true)
	if c.handle == nil {
		c.bindLocked()
	} else if !c.active {
		c.startLocked()
	}
	c.publishStateLocked()
	return nil
}

// Pause pauses playback.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked()
}

func (c *Controller) pauseLocked() {
	if c.closed {
		return
	}
	log.Info().Msg("Pause")

	c.session.SetPlaying(session.OriginTransport, false)
	c.pauseHandleLocked()
	c.publishStateLocked()
}

// TogglePlayPause pauses when playing and plays otherwise.
func (c *Controller) TogglePlayPause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Snapshot().IsPlaying {
		c.pauseLocked()
		return nil
	}
	return c.playLocked()
}

// SeekTo moves to seconds, clamped to the track's duration. The reported
// position changes immediately.
func (c *Controller) SeekTo(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	if c.bound == nil {
		return ErrNoTrack
	}

	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if d := c.state.Duration; d > 0 && seconds > d {
		seconds = d
	}
	log.Info().Float64("position", seconds).Msg("Seek")

	c.state.CurrentTime = seconds
	if c.handle != nil {
		if err := c.handle.Seek(seconds); err != nil {
			log.Warn().Err(err).Msg("Seek failed")
		}
	}
	c.bus.Publish(Event{Kind: EventPosition, Snapshot: c.snapshotLocked()})
	return nil
}

// SetVolume stores v clamped to [0,1]. While muted the output stays at 0.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || math.IsNaN(v) {
		return
	}
	v = math.Max(0, math.Min(1, v))
	log.Info().Float64("volume", v).Msg("SetVolume")

	c.state.Volume = v
	c.applyVolumeLocked()
	c.store.SaveVolume(v)
	c.saveLocked()
	c.publishStateLocked()
}

// ToggleMute switches the applied volume between 0 and the stored volume.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.state.IsMuted
	}
	c.state.IsMuted = !c.state.IsMuted
	log.Info().Bool("muted", c.state.IsMuted).Msg("ToggleMute")

	c.applyVolumeLocked()
	c.publishStateLocked()
	return c.state.IsMuted
}

// SkipNext moves to the next track by the current loop and shuffle policy,
// or stops when there is none.
func (c *Controller) SkipNext() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	log.Info().Msg("Next")
	c.advanceLocked(false)
	c.publishStateLocked()
}

// SkipPrevious moves to the previous track. At the start of the playlist
// without playlist looping it does nothing.
func (c *Controller) SkipPrevious() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.bound == nil {
		return
	}
	log.Info().Msg("Previous")

	var (
		prev int
		ok   bool
	)
	if c.shuffle != nil {
		prev, ok = c.shuffle.Previous(c.state.LoopMode)
	} else {
		prev, ok = ordering.PreviousIndex(c.boundIndex, len(c.playlist), c.state.LoopMode)
	}
	if !ok {
		log.Debug().Int("index", c.boundIndex).Msg("No previous track")
		return
	}
	if prev == c.boundIndex {
		c.restartLocked(false)
	} else {
		c.selectLocked(prev)
	}
	c.publishStateLocked()
}

// ToggleShuffle switches shuffle. Turning it on fixes a new permutation
// starting at the current track; turning it off resumes sequential order
// from the current track.
func (c *Controller) ToggleShuffle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.state.IsShuffled
	}
	c.state.IsShuffled = !c.state.IsShuffled
	if c.state.IsShuffled {
		c.shuffle = ordering.NewShuffleOrder(len(c.playlist), c.boundIndex, c.rng)
	} else {
		c.shuffle = nil
	}
	log.Info().Bool("shuffle", c.state.IsShuffled).Msg("ToggleShuffle")

	c.saveLocked()
	c.publishStateLocked()
	return c.state.IsShuffled
}

// CycleLoopMode steps none → playlist → track → none and returns the new
// mode.
func (c *Controller) CycleLoopMode() ordering.LoopMode {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.state.LoopMode
	}
	c.state.LoopMode = c.state.LoopMode.Next()
	log.Info().Str("loop", c.state.LoopMode.String()).Msg("CycleLoopMode")

	c.saveLocked()
	c.publishStateLocked()
	return c.state.LoopMode
}

// SetPlaylist replaces the playlist. The current track stays current when
// it is still present; otherwise the first track is bound, paused.
func (c *Controller) SetPlaylist(tracks []catalog.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.playlist = append([]catalog.Track(nil), tracks...)

	idx := -1
	if c.bound != nil {
		idx = catalog.IndexOf(c.playlist, c.bound.ID)
	}

	if idx >= 0 {
		t := c.playlist[idx]
		c.session.Select(session.OriginTransport, &t, idx)
		c.bound = &t
		c.boundIndex = idx
	} else {
		idx = 0
		var track *catalog.Track
		if len(c.playlist) > 0 {
			t := c.playlist[0]
			track = &t
		}
		c.session.Apply(session.OriginTransport, func(st *session.Snapshot) {
			st.CurrentTrack = track
			st.CurrentIndex = 0
			st.IsPlaying = false
		})
		c.bindLocked()
	}

	if c.state.IsShuffled {
		c.shuffle = ordering.NewShuffleOrder(len(c.playlist), idx, c.rng)
	}
	log.Info().Int("tracks", len(c.playlist)).Int("index", idx).Msg("SetPlaylist")

	c.saveLocked()
	c.bus.Publish(Event{Kind: EventQueue, Snapshot: c.snapshotLocked()})
	c.publishStateLocked()
}

// Reset returns the player to its startup defaults over tracks and forgets
// the stored snapshot: the first track is bound paused, shuffle and loop are
// off. Volume and mute are kept.
func (c *Controller) Reset(tracks []catalog.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.playlist = append([]catalog.Track(nil), tracks...)
	c.state.IsShuffled = false
	c.state.LoopMode = ordering.LoopNone
	c.shuffle = nil

	var track *catalog.Track
	if len(c.playlist) > 0 {
		t := c.playlist[0]
		track = &t
	}
	c.session.Apply(session.OriginTransport, func(st *session.Snapshot) {
		st.CurrentTrack = track
		st.CurrentIndex = 0
		st.IsPlaying = false
	})
	c.bindLocked()
	c.store.ClearPlayerState()
	log.Info().Int("tracks", len(c.playlist)).Msg("Player reset")

	c.bus.Publish(Event{Kind: EventQueue, Snapshot: c.snapshotLocked()})
	c.publishStateLocked()
}

// AcknowledgeError clears a playback error, returning to ready.
func (c *Controller) AcknowledgeError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.errMsg == "" {
		return
	}
	c.errMsg = ""
	c.publishStateLocked()
}

// Close releases the handle and stops observing the session. The output
// itself belongs to the caller.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	c.stopWatchdogLocked()
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close media handle")
		}
		c.handle = nil
	}
	c.saveLocked()
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.bus.Close()
	return nil
}

// onSessionChange reconciles the handle with changes other components made
// to the session, such as a widget calling PlayTrack or TogglePlay.
func (c *Controller) onSessionChange(ch session.Change) {
	if ch.Origin == session.OriginTransport {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.reconcileLocked()
	c.publishStateLocked()
}

// reconcileLocked drives the handle towards the latest session snapshot.
// It is idempotent, so concurrent writers' notifications may arrive in any
// order.
func (c *Controller) reconcileLocked() {
	snap := c.session.Snapshot()

	if snap.CurrentTrack == nil {
		if c.bound != nil {
			c.bindLocked()
		}
		if snap.IsPlaying {
			c.session.SetPlaying(session.OriginTransport, false)
		}
		return
	}

	if !snap.CurrentTrack.Same(c.bound) || snap.CurrentIndex != c.boundIndex {
		idx := c.locateLocked(*snap.CurrentTrack, snap.CurrentIndex)
		if idx != snap.CurrentIndex {
			c.session.Select(session.OriginTransport, snap.CurrentTrack, idx)
		}
		c.bindLocked()
		return
	}

	switch {
	case snap.IsPlaying && c.handle == nil:
		c.bindLocked()
	case snap.IsPlaying && !c.active:
		c.startLocked()
	case !snap.IsPlaying && c.active:
		c.pauseHandleLocked()
	}
}

// locateLocked returns the playlist index of track, preferring hint,
// appending the track when it is missing.
func (c *Controller) locateLocked(track catalog.Track, hint int) int {
	if hint >= 0 && hint < len(c.playlist) && c.playlist[hint].ID == track.ID {
		return hint
	}
	if i := catalog.IndexOf(c.playlist, track.ID); i >= 0 {
		return i
	}

	c.playlist = append(c.playlist, track)
	idx := len(c.playlist) - 1
	if c.state.IsShuffled {
		c.shuffle = ordering.NewShuffleOrder(len(c.playlist), idx, c.rng)
	}
	log.Info().Str("track", string(track.ID)).Int("index", idx).Msg("Track appended to playlist")
	c.bus.Publish(Event{Kind: EventQueue, Snapshot: c.snapshotLocked()})
	return idx
}

// bindLocked replaces the handle with one for the session's current track.
// It starts playback only if the session is playing at this moment.
func (c *Controller) bindLocked() {
	c.gen++
	gen := c.gen

	c.stopWatchdogLocked()
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close media handle")
		}
		c.handle = nil
	}
	c.loaded, c.active, c.started = false, false, false
	c.errMsg = ""
	c.state.CurrentTime = 0
	c.state.IsLoading = false
	c.state.Format = nil

	snap := c.session.Snapshot()
	c.bound = snap.CurrentTrack
	c.boundIndex = snap.CurrentIndex
	if c.bound == nil {
		c.state.Duration = 0
		return
	}
	c.state.Duration = c.bound.Duration
	if c.shuffle != nil {
		c.shuffle.Seek(c.boundIndex)
	}
	defer c.saveLocked()

	if c.output == nil {
		c.failLocked(errors.New("no audio output configured"))
		return
	}

	src := audio.ResolveSource(c.baseURL, c.bound.Src)
	h, err := c.output.Bind(src, func(ev MediaEvent) { c.handleMediaEvent(gen, ev) })
	if err != nil {
		c.failLocked(fmt.Errorf("bind %s: %w", src, err))
		return
	}
	c.handle = h

	if err := h.SetVolume(c.state.EffectiveVolume()); err != nil {
		log.Warn().Err(err).Msg("Failed to apply volume")
	}
	c.state.IsLoading = true
	if err := h.Load(); err != nil {
		c.failLocked(fmt.Errorf("load %s: %w", src, err))
		return
	}
	c.watchdog = time.AfterFunc(c.loadTimeout, func() { c.loadTimedOut(gen) })

	log.Info().
		Str("track", string(c.bound.ID)).
		Int("index", c.boundIndex).
		Uint64("generation", gen).
		Str("src", src).
		Msg("Track bound")

	if snap.IsPlaying {
		c.startLocked()
	}
}

// startLocked asks the handle to play without waiting for the result. A
// result from a superseded bind is discarded.
func (c *Controller) startLocked() {
	h, gen := c.handle, c.gen
	if h == nil {
		return
	}
	c.active = true
	c.errMsg = ""

	if !c.started && c.bound != nil {
		c.started = true
		t := *c.bound
		c.bus.Publish(Event{Kind: EventTrackStarted, Track: &t, Snapshot: c.snapshotLocked()})
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.loadTimeout)
	go func() {
		defer cancel()
		err := h.Play(ctx)
		c.playResult(gen, h, err)
	}()
}

func (c *Controller) playResult(gen uint64, h Handle, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen {
		log.Debug().Uint64("generation", gen).Msg("Discarding stale play result")
		return
	}
	if err == nil {
		// A pause may have landed while Play was in flight.
		if !c.active {
			if perr := h.Pause(); perr != nil {
				log.Warn().Err(perr).Msg("Failed to pause after late play")
			}
		}
		return
	}
	if !c.active {
		return
	}
	c.failLocked(fmt.Errorf("play: %w", err))
	c.publishStateLocked()
}

func (c *Controller) pauseHandleLocked() {
	c.active = false
	if c.handle != nil {
		if err := c.handle.Pause(); err != nil {
			log.Warn().Err(err).Msg("Pause failed")
		}
	}
}

func (c *Controller) applyVolumeLocked() {
	if c.handle == nil {
		return
	}
	if err := c.handle.SetVolume(c.state.EffectiveVolume()); err != nil {
		log.Warn().Err(err).Msg("Failed to apply volume")
	}
}

// advanceLocked applies the ordering policy after the current track.
func (c *Controller) advanceLocked(ended bool) {
	if c.bound == nil {
		return
	}

	var (
		next int
		ok   bool
	)
	if c.shuffle != nil {
		next, ok = c.shuffle.Next(c.state.LoopMode)
	} else {
		next, ok = ordering.NextIndex(c.boundIndex, len(c.playlist), c.state.LoopMode, false)
	}

	if !ok {
		log.Info().Int("index", c.boundIndex).Bool("ended", ended).Msg("End of playlist, stopping")
		c.session.SetPlaying(session.OriginTransport, false)
		c.pauseHandleLocked()
		return
	}
	if next == c.boundIndex {
		c.restartLocked(ended)
		return
	}
	c.selectLocked(next)
}

// restartLocked rewinds the bound track. With play set, or when the session
// is playing, playback continues from the start.
func (c *Controller) restartLocked(play bool) {
	c.state.CurrentTime = 0
	if c.handle == nil {
		return
	}
	if err := c.handle.Seek(0); err != nil {
		log.Warn().Err(err).Msg("Rewind failed")
	}
	if play {
		c.session.SetPlaying(session.OriginTransport, true)
	}
	if c.session.Snapshot().IsPlaying {
		c.active = false
		c.startLocked()
	}
}

func (c *Controller) selectLocked(idx int) {
	t := c.playlist[idx]
	c.session.Select(session.OriginTransport, &t, idx)
	c.bindLocked()
}

func (c *Controller) handleMediaEvent(gen uint64, ev MediaEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen {
		log.Debug().
			Uint64("generation", gen).
			Str("event", ev.Kind.String()).
			Msg("Discarding stale media event")
		return
	}

	switch ev.Kind {
	case MediaLoadStart:
		c.state.IsLoading = true
	case MediaCanPlay:
		c.state.IsLoading = false
		c.loaded = true
		c.stopWatchdogLocked()
	case MediaMetadata:
		if ev.Duration > 0 {
			c.state.Duration = ev.Duration
		}
		if ev.Format != nil {
			f := *ev.Format
			c.state.Format = &f
		}
	case MediaTimeUpdate:
		c.state.CurrentTime = ev.Position
		c.bus.Publish(Event{Kind: EventPosition, Snapshot: c.snapshotLocked()})
		return
	case MediaEnded:
		log.Debug().Str("track", string(c.bound.ID)).Msg("Track ended")
		if c.state.LoopMode == ordering.LoopTrack {
			c.restartLocked(true)
		} else {
			c.advanceLocked(true)
		}
	case MediaError:
		err := ev.Err
		if err == nil {
			err = errors.New("media error")
		}
		c.failLocked(err)
	}
	c.publishStateLocked()
}

func (c *Controller) loadTimedOut(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen || c.loaded || c.errMsg != "" {
		return
	}
	c.failLocked(fmt.Errorf("load timed out after %s", c.loadTimeout))
	c.publishStateLocked()
}

// failLocked leaves the session paused with the error recorded.
func (c *Controller) failLocked(err error) {
	c.stopWatchdogLocked()
	c.state.IsLoading = false
	c.active = false
	c.errMsg = err.Error()
	c.session.SetPlaying(session.OriginTransport, false)

	log.Warn().Err(err).Msg("Playback failed")
	c.bus.Publish(Event{Kind: EventError, Err: c.errMsg, Snapshot: c.snapshotLocked()})
}

func (c *Controller) stopWatchdogLocked() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

func (c *Controller) saveLocked() {
	c.store.SavePlayerState(persistence.PlayerState{
		CurrentTrack: c.boundIndex,
		Playlist:     c.playlist,
		Volume:       c.state.Volume,
		Shuffle:      c.state.IsShuffled,
		Loop:         c.state.LoopMode,
	})
}

func (c *Controller) publishStateLocked() {
	c.bus.Publish(Event{Kind: EventState, Snapshot: c.snapshotLocked()})
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.session.Snapshot()
	transport := c.state
	if transport.Format != nil {
		f := *transport.Format
		transport.Format = &f
	}
	return Snapshot{
		Track:            s.CurrentTrack,
		Index:            s.CurrentIndex,
		IsPlaying:        s.IsPlaying,
		IsWidgetExpanded: s.IsWidgetExpanded,
		Transport:        transport,
		Phase:            c.phaseLocked(s),
		LastError:        c.errMsg,
		QueueLength:      len(c.playlist),
	}
}

func (c *Controller) phaseLocked(s session.Snapshot) Phase {
	switch {
	case c.errMsg != "":
		return PhaseError
	case s.CurrentTrack == nil:
		return PhaseIdle
	case c.state.IsLoading:
		return PhaseLoading
	case s.IsPlaying:
		return PhasePlaying
	default:
		return PhaseReady
	}
}
