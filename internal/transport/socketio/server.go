// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/neon-player-backend/internal/audio"
	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/device"
	"github.com/edumarques81/neon-player-backend/internal/domain/history"
	"github.com/edumarques81/neon-player-backend/internal/domain/persistence"
	"github.com/edumarques81/neon-player-backend/internal/domain/player"
)

const (
	DefaultFrameInterval = 100 * time.Millisecond
	DefaultMaxClients    = 5
)

// stateCompareKeys are the pushState fields compared before broadcasting.
// Position fields are left out; the client interpolates them and receives
// pushPosition frames.
var stateCompareKeys = []string{
	"status", "phase", "position", "duration", "durationText", "volume", "mute", "random",
	"repeat", "repeatSingle", "loop", "isLoading", "isPlaying",
	"isWidgetExpanded", "queueLength", "error", "id", "title", "artist",
	"album", "albumart", "uri", "isExclusive", "samplerate", "bitdepth",
	"channels",
}

// Options wires a Server.
type Options struct {
	Controller *player.Controller
	Library    *catalog.Library
	Access     *persistence.Adapter
	History    *history.Store
	Device     *device.Service
	Password   string
	// MaxClients caps concurrent non-localhost connections.
	MaxClients    int
	FrameInterval time.Duration
	// OutputKind and StoreKind are reported by getSystemInfo.
	OutputKind string
	StoreKind  string
}

// Server handles Socket.io connections and events.
type Server struct {
	io       *socket.Server
	ctrl     *player.Controller
	library  *catalog.Library
	access   *persistence.Adapter
	history  *history.Store
	device   *device.Service
	password string

	outputKind string
	storeKind  string

	limiter *ConnectionLimiter
	frames  *FrameCoalescer

	mu        sync.RWMutex
	clients   map[string]*socket.Socket
	lastState map[string]interface{}
}

// NewServer creates a new Socket.io server.
func NewServer(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("socketio: controller is required")
	}
	if opts.Library == nil {
		opts.Library = catalog.NewLibrary(catalog.Default(), "")
	}
	if opts.Access == nil {
		opts.Access = persistence.New(nil)
	}
	if opts.Device == nil {
		opts.Device = device.NewService(nil)
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}

	// Configure Socket.io server options
	sopts := socket.DefaultServerOptions()
	sopts.SetPingTimeout(20 * time.Second)
	sopts.SetPingInterval(25 * time.Second)
	sopts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:       socket.NewServer(nil, sopts),
		ctrl:     opts.Controller,
		library:  opts.Library,
		access:   opts.Access,
		history:  opts.History,
		device:   opts.Device,
		password: opts.Password,

		outputKind: opts.OutputKind,
		storeKind:  opts.StoreKind,

		limiter: NewConnectionLimiter(opts.MaxClients),
		clients: make(map[string]*socket.Socket),
	}
	s.frames = NewFrameCoalescer(opts.FrameInterval, s.BroadcastState, s.BroadcastPosition, s.BroadcastQueue)

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		addr := remoteIP(client.Handshake().Address)

		log.Info().Str("id", clientID).Str("addr", addr).Msg("Client connected")

		evicted := s.limiter.Admit(clientID, addr)

		s.mu.Lock()
		s.clients[clientID] = client
		old := s.clients[evicted]
		s.mu.Unlock()

		if old != nil {
			log.Info().Str("id", evicted).Str("by", clientID).Msg("Evicting oldest external client")
			old.Disconnect(true)
		}

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
			s.pushQueue(client)
			s.pushExclusive(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		s.registerPlayerHandlers(client, clientID)
		s.registerSessionHandlers(client, clientID)
		s.registerExclusiveHandlers(client, clientID)
	})
}

func (s *Server) registerPlayerHandlers(client *socket.Socket, clientID string) {
	client.On("getState", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("getState")
		s.pushState(client)
	})

	client.On("getQueue", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("getQueue")
		s.pushQueue(client)
	})

	client.On("playTrack", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("playTrack")
		m := argMap(args)
		if id, ok := trackIDArg(m); ok {
			track, found := s.library.Find(id)
			if !found {
				s.emitError(client, "unknown track "+string(id))
				return
			}
			if track.Exclusive && !s.access.HasExclusiveAccess() {
				s.emitError(client, catalog.ErrLocked.Error())
				return
			}
			index := -1
			if v, ok := numberArg(m, "index"); ok {
				index = int(v)
			}
			s.ctrl.PlayTrack(track, index)
			return
		}
		if v, ok := numberArg(m, "index"); ok {
			if err := s.ctrl.SelectTrack(int(v)); err != nil {
				s.emitError(client, err.Error())
			}
		}
	})

	client.On("selectTrack", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("selectTrack")
		v, ok := numberArg(argMap(args), "index")
		if !ok {
			v, ok = firstNumber(args)
		}
		if !ok {
			return
		}
		if err := s.ctrl.SelectTrack(int(v)); err != nil {
			s.emitError(client, err.Error())
		}
	})

	client.On("play", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("play")
		if err := s.ctrl.Play(); err != nil {
			log.Error().Err(err).Msg("Play failed")
		}
	})

	client.On("pause", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("pause")
		s.ctrl.Pause()
	})

	client.On("togglePlayPause", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("togglePlayPause")
		if err := s.ctrl.TogglePlayPause(); err != nil {
			log.Error().Err(err).Msg("TogglePlayPause failed")
		}
	})

	client.On("next", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("next")
		s.ctrl.SkipNext()
	})

	client.On("prev", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("prev")
		s.ctrl.SkipPrevious()
	})

	client.On("seek", func(args ...any) {
		pos, ok := seekArg(args)
		if !ok {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("seek: invalid position")
			return
		}
		log.Debug().Str("id", clientID).Float64("pos", pos).Msg("seek")
		if err := s.ctrl.SeekTo(pos); err != nil {
			log.Error().Err(err).Msg("Seek failed")
		}
	})

	client.On("volume", func(args ...any) {
		vol, ok := firstNumber(args)
		if !ok {
			return
		}
		log.Debug().Str("id", clientID).Float64("vol", vol).Msg("volume")
		s.ctrl.SetVolume(vol)
	})

	client.On("mute", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("mute")
		s.ctrl.ToggleMute()
	})

	client.On("toggleShuffle", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("toggleShuffle")
		s.ctrl.ToggleShuffle()
	})

	client.On("cycleLoop", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("cycleLoop")
		s.ctrl.CycleLoopMode()
	})

	client.On("ackError", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("ackError")
		s.ctrl.AcknowledgeError()
	})

	client.On("setPlaylist", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("setPlaylist")
		name, _ := argMap(args)["name"].(string)
		if name == "" {
			if str, ok := firstString(args); ok {
				name = str
			}
		}
		tracks, err := s.library.Select(name, s.access.HasExclusiveAccess())
		if err != nil {
			s.emitError(client, err.Error())
			return
		}
		s.ctrl.SetPlaylist(tracks)
	})

	client.On("getPlaylists", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("getPlaylists")
		client.Emit("pushPlaylists", s.Playlists())
	})

	client.On("clearPlayerState", func(args ...any) {
		log.Info().Str("id", clientID).Msg("clearPlayerState")
		s.ClearPlayerState()
	})

	client.On("clearAll", func(args ...any) {
		log.Info().Str("id", clientID).Msg("clearAll")
		s.ClearAll()
	})

	client.On("getSystemInfo", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("getSystemInfo")
		client.Emit("pushSystemInfo", s.SystemInfo())
	})

	client.On("setDeviceName", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("setDeviceName")
		name, _ := argMap(args)["name"].(string)
		if name == "" {
			name, _ = firstString(args)
		}
		if err := s.device.SetName(name); err != nil {
			log.Warn().Err(err).Msg("Failed to rename device")
			s.emitError(client, err.Error())
			return
		}
		s.io.Emit("pushSystemInfo", s.SystemInfo())
	})

	client.On("getHistory", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("getHistory")
		s.pushHistory(client, argMap(args))
	})
}

// registerSessionHandlers exposes the widget's direct session writes.
func (s *Server) registerSessionHandlers(client *socket.Socket, clientID string) {
	sess := s.ctrl.Session()

	client.On("toggleWidget", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("toggleWidget")
		sess.ToggleWidget()
	})

	client.On("collapseWidget", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("collapseWidget")
		sess.CollapseWidget()
	})
}

func (s *Server) registerExclusiveHandlers(client *socket.Socket, clientID string) {
	client.On("unlockExclusive", func(args ...any) {
		password, _ := argMap(args)["password"].(string)
		if password == "" {
			password, _ = firstString(args)
		}
		if !s.checkPassword(password) {
			log.Warn().Str("id", clientID).Msg("Exclusive unlock rejected")
			client.Emit("pushExclusive", map[string]interface{}{
				"granted": false,
				"error":   "invalid password",
			})
			return
		}
		grant := s.access.GrantExclusive()
		log.Info().Str("id", clientID).Str("device", grant.DeviceID).Msg("Exclusive access granted")
		s.io.Emit("pushExclusive", exclusiveJSON(grant, true))
		s.ctrl.SetPlaylist(s.library.Current(true))
	})

	client.On("lockExclusive", func(args ...any) {
		log.Info().Str("id", clientID).Msg("Exclusive access cleared")
		s.access.ClearExclusive()
		s.io.Emit("pushExclusive", map[string]interface{}{"granted": false})
		s.ctrl.SetPlaylist(s.library.Current(false))
	})

	client.On("getExclusive", func(args ...any) {
		s.pushExclusive(client)
	})
}

// PlaylistInfo describes one named playlist for getPlaylists.
type PlaylistInfo struct {
	Name     string `json:"name"`
	Locked   bool   `json:"locked"`
	Selected bool   `json:"selected"`
}

// Playlists lists every playlist the catalog can resolve. Locked marks
// those that need exclusive access the player does not have.
func (s *Server) Playlists() []PlaylistInfo {
	unlocked := s.access.HasExclusiveAccess()
	selected := s.library.Selected()
	names := s.library.Catalog().PlaylistNames()

	out := make([]PlaylistInfo, 0, len(names))
	for _, name := range names {
		_, err := s.library.Catalog().Playlist(name, unlocked)
		out = append(out, PlaylistInfo{
			Name:     name,
			Locked:   errors.Is(err, catalog.ErrLocked),
			Selected: name == selected,
		})
	}
	return out
}

// ClearPlayerState forgets the stored player snapshot and resets the player
// onto the selected playlist. Volume and the exclusive grant are kept.
func (s *Server) ClearPlayerState() {
	s.ctrl.Reset(s.library.Current(s.access.HasExclusiveAccess()))
}

// ClearAll removes everything the player stores: the snapshot, the volume
// and the exclusive grant. The player restarts from defaults with exclusive
// content locked.
func (s *Server) ClearAll() {
	s.ctrl.SetVolume(s.access.DefaultPlayerState().Volume)
	s.ctrl.Reset(s.library.Current(false))
	s.access.ClearAll()
	s.io.Emit("pushExclusive", map[string]interface{}{"granted": false})
}

func (s *Server) checkPassword(candidate string) bool {
	if s.password == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.password)) == 1
}

// Run relays controller events to clients until ctx is done.
func (s *Server) Run(ctx context.Context) {
	events, cancel := s.ctrl.Subscribe(256)
	defer cancel()

	log.Info().Msg("Player event relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Player event relay stopped")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case player.EventState, player.EventTrackStarted:
				s.frames.Trigger(FrameState)
			case player.EventPosition:
				s.frames.Trigger(FramePosition)
			case player.EventQueue:
				s.frames.Trigger(FrameQueue)
			case player.EventError:
				s.io.Emit("pushError", map[string]interface{}{"message": ev.Err})
				s.frames.Trigger(FrameState)
			}
		}
	}
}

func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.ctrl.Snapshot().ToJSON())
}

func (s *Server) pushQueue(client *socket.Socket) {
	client.Emit("pushQueue", queueJSON(s.ctrl.Playlist()))
}

func (s *Server) pushExclusive(client *socket.Socket) {
	grant, ok := s.access.LoadExclusive()
	client.Emit("pushExclusive", exclusiveJSON(grant, ok))
}

func (s *Server) pushHistory(client *socket.Socket, m map[string]interface{}) {
	if s.history == nil {
		client.Emit("pushHistory", []history.Entry{})
		return
	}
	order, _ := m["sort"].(string)
	limit := 0
	if v, ok := numberArg(m, "limit"); ok {
		limit = int(v)
	}
	client.Emit("pushHistory", s.history.List(history.Sort(order), limit))
}

func (s *Server) emitError(client *socket.Socket, msg string) {
	log.Warn().Str("id", string(client.Id())).Str("error", msg).Msg("Request rejected")
	client.Emit("pushError", map[string]interface{}{"message": msg})
}

// BroadcastState sends state to all connected clients unless nothing but
// the position changed since the last broadcast.
func (s *Server) BroadcastState() {
	state := s.ctrl.Snapshot().ToJSON()
	if s.isStateSame(state) {
		return
	}
	s.saveLastState(state)

	s.io.Emit("pushState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// BroadcastPosition sends the playback position to all connected clients.
func (s *Server) BroadcastPosition() {
	state := s.ctrl.Snapshot().ToJSON()
	s.io.Emit("pushPosition", map[string]interface{}{
		"seek":     state["seek"],
		"duration": state["duration"],
	})
}

// BroadcastQueue sends the playlist to all connected clients.
func (s *Server) BroadcastQueue() {
	s.io.Emit("pushQueue", queueJSON(s.ctrl.Playlist()))
}

func (s *Server) isStateSame(state map[string]interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastState == nil {
		return false
	}
	for _, key := range stateCompareKeys {
		if !reflect.DeepEqual(s.lastState[key], state[key]) {
			return false
		}
	}
	return true
}

func (s *Server) saveLastState(state map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastState = state
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.frames.Stop()
	s.io.Close(nil)
	return nil
}

func queueJSON(tracks []catalog.Track) []map[string]interface{} {
	queue := make([]map[string]interface{}, 0, len(tracks))
	for i, t := range tracks {
		queue = append(queue, map[string]interface{}{
			"position":     i,
			"id":           string(t.ID),
			"title":        t.Title,
			"artist":       t.Artist,
			"album":        t.Album,
			"albumart":     t.Cover,
			"uri":          t.Src,
			"duration":     t.Duration,
			"durationText": audio.FormatDuration(t.Duration),
			"isExclusive":  t.Exclusive,
		})
	}
	return queue
}

func exclusiveJSON(grant persistence.ExclusiveAccess, valid bool) map[string]interface{} {
	if !valid {
		return map[string]interface{}{"granted": false}
	}
	return map[string]interface{}{
		"granted":   true,
		"timestamp": grant.Timestamp,
		"deviceId":  grant.DeviceID,
	}
}

func argMap(args []any) map[string]interface{} {
	if len(args) > 0 {
		if m, ok := args[0].(map[string]interface{}); ok {
			return m
		}
	}
	return map[string]interface{}{}
}

func numberArg(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

// firstNumber accepts either a bare number or {value: n}.
func firstNumber(args []any) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	if v, ok := args[0].(float64); ok {
		return v, true
	}
	return numberArg(argMap(args), "value")
}

// seekArg accepts seconds as a number or an "M:SS" string, bare or as
// {value: ...}.
func seekArg(args []any) (float64, bool) {
	if v, ok := firstNumber(args); ok {
		return v, true
	}
	text, ok := firstString(args)
	if !ok {
		text, ok = argMap(args)["value"].(string)
	}
	if !ok {
		return 0, false
	}
	secs, err := audio.ParseTimeToSeconds(text)
	if err != nil {
		return 0, false
	}
	return secs, true
}

func firstString(args []any) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	v, ok := args[0].(string)
	return v, ok
}

// trackIDArg reads "id", which clients send as a string or a number.
func trackIDArg(m map[string]interface{}) (catalog.TrackID, bool) {
	switch v := m["id"].(type) {
	case string:
		if v != "" {
			return catalog.TrackID(v), true
		}
	case float64:
		data, _ := json.Marshal(v)
		var id catalog.TrackID
		if err := json.Unmarshal(data, &id); err == nil {
			return id, true
		}
	}
	return "", false
}

// remoteIP strips the port and IPv4-mapped prefix from a handshake address.
func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return strings.TrimPrefix(addr, "::ffff:")
}
