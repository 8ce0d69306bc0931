package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/neon-player-backend/internal/audio"
	"github.com/edumarques81/neon-player-backend/internal/config"
	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/device"
	"github.com/edumarques81/neon-player-backend/internal/domain/history"
	"github.com/edumarques81/neon-player-backend/internal/domain/persistence"
	"github.com/edumarques81/neon-player-backend/internal/domain/player"
	"github.com/edumarques81/neon-player-backend/internal/domain/session"
	"github.com/edumarques81/neon-player-backend/internal/infra/mpd"
	"github.com/edumarques81/neon-player-backend/internal/infra/store"
	"github.com/edumarques81/neon-player-backend/internal/infra/virtual"
	"github.com/edumarques81/neon-player-backend/internal/transport/socketio"
)

// app owns every long-lived component of the server.
type app struct {
	cfg *config.Config

	store   store.Store
	access  *persistence.Adapter
	device  *device.Service
	library *catalog.Library
	output  player.Output
	mpd     *mpd.Client
	ctrl    *player.Controller
	history *history.Store
	socket  *socketio.Server
	watcher *catalog.Watcher
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	st, err := store.Open(store.Options{
		Kind:          cfg.Store,
		DataDir:       cfg.DataDir,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   "neon:",
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	a.store = st
	a.access = persistence.New(st, persistence.WithDefaultVolume(cfg.DefaultVolume))
	if !a.access.Available() {
		log.Warn().Str("store", cfg.Store).Msg("State store unavailable, player state will not persist")
	}

	a.device = device.NewService(st)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.library = catalog.NewLibrary(cat, catalog.PlaylistAll)

	if err := a.openOutput(); err != nil {
		return nil, err
	}

	a.ctrl = player.NewController(player.Config{
		Output:       a.output,
		Session:      session.New(),
		Store:        a.access,
		Playlist:     a.library.Current(a.access.HasExclusiveAccess()),
		MediaBaseURL: cfg.MediaBaseURL,
		LoadTimeout:  cfg.LoadTimeout,
	})

	historyDir := cfg.DataDir
	if cfg.Store == "" || cfg.Store == "memory" {
		historyDir = ""
	}
	a.history = history.NewStore(historyDir)

	a.socket, err = socketio.NewServer(socketio.Options{
		Controller:    a.ctrl,
		Library:       a.library,
		Access:        a.access,
		History:       a.history,
		Device:        a.device,
		Password:      cfg.ExclusivePassword,
		MaxClients:    cfg.MaxClients,
		FrameInterval: cfg.FrameInterval,
		OutputKind:    cfg.Output,
		StoreKind:     cfg.Store,
	})
	if err != nil {
		return nil, err
	}

	if cfg.CatalogPath != "" {
		a.watcher, err = catalog.Watch(cfg.CatalogPath, a.reloadCatalog)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.CatalogPath).Msg("Catalog hot reload disabled")
		}
	}

	ok = true
	return a, nil
}

func (a *app) openOutput() error {
	switch a.cfg.Output {
	case config.OutputMPD:
		client := mpd.NewClient(a.cfg.MPDHost, a.cfg.MPDPort, a.cfg.MPDPassword)
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connect to MPD: %w", err)
		}
		if err := client.Ping(); err != nil {
			client.Close()
			return fmt.Errorf("MPD ping: %w", err)
		}
		log.Info().Msg("MPD connection verified")

		out := mpd.NewOutput(client, 0)
		if err := out.Start(); err != nil {
			log.Warn().Err(err).Msg("MPD watcher unavailable, relying on status polling")
		}
		a.mpd = client
		a.output = out
	default:
		a.output = virtual.NewOutput(virtual.Options{Lookup: a.lookupDuration})
		log.Info().Msg("Using virtual audio output")
	}
	return nil
}

// lookupDuration finds the catalog duration of a resolved source.
func (a *app) lookupDuration(src string) (float64, bool) {
	for _, t := range allTracks(a.library.Catalog()) {
		if audio.ResolveSource(a.cfg.MediaBaseURL, t.Src) != src {
			continue
		}
		if t.Duration > 0 {
			return t.Duration, true
		}
		return virtual.DefaultDuration, true
	}
	return 0, false
}

func (a *app) reloadCatalog(c *catalog.Catalog) {
	tracks := a.library.Replace(c, a.access.HasExclusiveAccess())
	log.Info().Int("tracks", len(tracks)).Str("playlist", a.library.Selected()).Msg("Catalog reloaded")
	a.ctrl.SetPlaylist(tracks)
}

func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", a.socket)
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/api/v1/version", handleVersion)
	mux.HandleFunc("/api/v1/state", a.handleState)
	mux.HandleFunc("/api/v1/queue", a.handleQueue)

	if a.cfg.StaticDir != "" {
		log.Info().Str("dir", a.cfg.StaticDir).Msg("Serving static files")
		mux.Handle("/", spaHandler(a.cfg.StaticDir))
	}
	return corsMiddleware(a.cfg.CORSOrigins, mux)
}

// run serves until ctx is done, then shuts everything down.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	events, unsubscribe := a.ctrl.Subscribe(256)
	go a.history.Run(ctx, events)
	go a.socket.Run(ctx)

	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		unsubscribe()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	unsubscribe()
	log.Info().Msg("Server stopped")
	return nil
}

// close releases components in reverse order of creation. Safe on a
// partially built app.
func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.socket != nil {
		a.socket.Close()
	}
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
	if a.output != nil {
		if err := a.output.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close audio output")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close state store")
		}
	}
}

func allTracks(c *catalog.Catalog) []catalog.Track {
	tracks := c.All()
	for _, album := range c.Albums {
		tracks = append(tracks, album.Tracks...)
	}
	return tracks
}
