package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edumarques81/neon-player-backend/internal/audio"
	"github.com/edumarques81/neon-player-backend/internal/config"
	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/persistence"
	"github.com/edumarques81/neon-player-backend/internal/domain/player"
	"github.com/edumarques81/neon-player-backend/internal/infra/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:          "0",
		Output:        config.OutputVirtual,
		Store:         "memory",
		DataDir:       t.TempDir(),
		DefaultVolume: 0.8,
		LoadTimeout:   time.Second,
		FrameInterval: 10 * time.Millisecond,
		MaxClients:    5,
		MPDPort:       6600,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	rec := get(t, a.handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["output"] != "virtual" || body["store"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["mpd"]; ok {
		t.Error("virtual output should not report mpd")
	}
}

func TestVersionEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	rec := get(t, a.handler(), "/api/v1/version")
	if !strings.Contains(rec.Body.String(), `"name":"Neon Player"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q", got)
	}
}

func TestStateEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	h := a.handler()

	rec := get(t, h, "/api/v1/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var state map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state["isPlaying"] != false {
		t.Errorf("isPlaying = %v, want false after startup", state["isPlaying"])
	}
	if state["volume"] != 0.8 {
		t.Errorf("volume = %v, want 0.8", state["volume"])
	}

	post := httptest.NewRecorder()
	h.ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/api/v1/state", nil))
	if post.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", post.Code)
	}
}

func TestQueueEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	rec := get(t, a.handler(), "/api/v1/queue")
	var body struct {
		Playlist      string            `json:"playlist"`
		Tracks        []json.RawMessage `json:"tracks"`
		TotalDuration string            `json:"totalDuration"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Playlist != "all" {
		t.Errorf("playlist = %q, want all", body.Playlist)
	}
	// Exclusive tracks stay hidden until unlocked.
	if want := len(a.library.Catalog().Singles); len(body.Tracks) != want {
		t.Errorf("tracks = %d, want %d", len(body.Tracks), want)
	}

	var total float64
	for _, tr := range a.library.Catalog().Singles {
		total += tr.Duration
	}
	if want := audio.FormatDurationHuman(total); body.TotalDuration != want {
		t.Errorf("totalDuration = %q, want %q", body.TotalDuration, want)
	}
}

func TestLookupDuration(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	first := a.library.Catalog().Singles[0]
	d, ok := a.lookupDuration(first.Src)
	if !ok || d != first.Duration {
		t.Errorf("lookupDuration(%q) = %v, %v; want %v", first.Src, d, ok, first.Duration)
	}
	if _, ok := a.lookupDuration("/audio/nope.mp3"); ok {
		t.Error("unknown source should not resolve")
	}
}

func TestReloadCatalogReplacesPlaylist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	writeCatalog := func(body string) {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeCatalog("singles:\n  - {id: \"1\", title: \"One\", src: \"one.mp3\", duration: 60}\n")

	cfg := testConfig(t)
	cfg.CatalogPath = path
	a := newTestApp(t, cfg)

	if n := len(a.ctrl.Playlist()); n != 1 {
		t.Fatalf("initial playlist has %d tracks, want 1", n)
	}

	writeCatalog("singles:\n  - {id: \"1\", title: \"One\", src: \"one.mp3\"}\n  - {id: \"2\", title: \"Two\", src: \"two.mp3\"}\n")

	deadline := time.Now().Add(3 * time.Second)
	for len(a.ctrl.Playlist()) != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := len(a.ctrl.Playlist()); n != 2 {
		t.Errorf("playlist has %d tracks after reload, want 2", n)
	}
}

func TestNewAppRejectsUnreachableMPD(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output = config.OutputMPD
	cfg.MPDHost = "localhost"
	cfg.MPDPort = 16600

	if _, err := newApp(cfg); err == nil {
		t.Error("newApp should fail when MPD is unreachable")
	}
}

func TestSPAHandler(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := spaHandler(dir)

	tests := []struct {
		path string
		want string
	}{
		{"/", "<html>app</html>"},
		{"/app.js", "console.log(1)"},
		{"/player/queue", "<html>app</html>"},
	}
	for _, tt := range tests {
		rec := get(t, h, tt.path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", tt.path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tt.want) {
			t.Errorf("%s: body = %q, want %q", tt.path, rec.Body.String(), tt.want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Neon Player v") {
		t.Errorf("output = %q", out.String())
	}
}

// seedUnlockedSession stores the full catalog as the saved playlist with
// the first exclusive track current, and a grant issued grantAge ago.
func seedUnlockedSession(t *testing.T, dir string, grantAge time.Duration) catalog.Track {
	t.Helper()
	st, err := store.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	issued := time.Now().Add(-grantAge)
	access := persistence.New(st, persistence.WithClock(func() time.Time { return issued }))
	access.GrantExclusive()

	cat := catalog.Default()
	all := cat.All()
	access.SavePlayerState(persistence.PlayerState{
		CurrentTrack: len(cat.Singles),
		Playlist:     all,
		Volume:       0.5,
	})
	return all[len(cat.Singles)]
}

func TestRestoreDropsExclusiveTracksWhenGrantExpired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "file"
	exclusive := seedUnlockedSession(t, cfg.DataDir, persistence.ExclusiveTTL+24*time.Hour)

	a := newTestApp(t, cfg)
	if a.access.HasExclusiveAccess() {
		t.Fatal("grant should have expired")
	}

	playlist := a.ctrl.Playlist()
	if want := len(a.library.Catalog().Singles); len(playlist) != want {
		t.Errorf("restored playlist has %d tracks, want %d singles", len(playlist), want)
	}
	for i, tr := range playlist {
		if tr.Exclusive {
			t.Errorf("track %s at index %d is exclusive", tr.ID, i)
		}
	}

	if err := a.ctrl.SelectTrack(len(playlist)); !errors.Is(err, player.ErrIndexOutOfRange) {
		t.Errorf("SelectTrack past the singles = %v, want ErrIndexOutOfRange", err)
	}
	for i := range playlist {
		if err := a.ctrl.SelectTrack(i); err != nil {
			t.Fatalf("SelectTrack(%d): %v", i, err)
		}
		if snap := a.ctrl.Snapshot(); snap.Track == nil || snap.Track.ID == exclusive.ID {
			t.Fatalf("index %d plays %v", i, snap.Track)
		}
	}
}

func TestRestoreKeepsExclusiveTracksWithValidGrant(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "file"
	exclusive := seedUnlockedSession(t, cfg.DataDir, time.Hour)

	a := newTestApp(t, cfg)
	if !a.access.HasExclusiveAccess() {
		t.Fatal("grant should still be valid")
	}
	if got := len(a.ctrl.Playlist()); got != len(a.library.Catalog().All()) {
		t.Errorf("restored playlist has %d tracks, want the full catalog", got)
	}
	if snap := a.ctrl.Snapshot(); snap.Track == nil || snap.Track.ID != exclusive.ID {
		t.Errorf("current track = %v, want %s", snap.Track, exclusive.ID)
	}
}
