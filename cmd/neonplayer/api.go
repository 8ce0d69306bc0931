package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/neon-player-backend/internal/audio"
	"github.com/edumarques81/neon-player-backend/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"output": a.cfg.Output,
		"store":  "ok",
	}
	status := http.StatusOK

	if !a.access.Available() {
		resp["store"] = "unavailable"
	}
	if a.mpd != nil {
		if err := a.mpd.Ping(); err != nil {
			resp["status"] = "error"
			resp["mpd"] = "disconnected"
			status = http.StatusServiceUnavailable
		} else {
			resp["mpd"] = "connected"
		}
	}
	writeJSON(w, status, resp)
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

// handleState is the REST fallback for pushState.
func (a *app) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.ctrl.Snapshot().ToJSON())
}

func (a *app) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tracks := a.ctrl.Playlist()
	var total float64
	for _, t := range tracks {
		total += t.Duration
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"playlist":      a.library.Selected(),
		"tracks":        tracks,
		"totalDuration": audio.FormatDurationHuman(total),
	})
}

// spaHandler serves files from dir and falls back to index.html for paths
// that do not exist, so client-side routes load the app.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(path); err != nil || (info.IsDir() && r.URL.Path != "/") {
			http.ServeFile(w, r, index)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
