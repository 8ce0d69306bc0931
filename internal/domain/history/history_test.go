package history

import (
	"context"
	"testing"
	"time"

	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
	"github.com/edumarques81/neon-player-backend/internal/domain/player"
)

var (
	neonDreams  = catalog.Track{ID: "1", Title: "Neon Dreams", Artist: "DJ Joel"}
	digitalRain = catalog.Track{ID: "2", Title: "Digital Rain", Artist: "DJ Joel"}
)

func newTestStore(dir string) (*Store, *time.Time) {
	s := NewStore(dir)
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestRecordMergesQuickReplays(t *testing.T) {
	s, now := newTestStore("")

	s.Record(neonDreams)
	*now = now.Add(2 * time.Second)
	s.Record(neonDreams)

	entries := s.List(SortLastPlayed, 0)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].PlayCount != 2 {
		t.Errorf("PlayCount = %d, want 2", entries[0].PlayCount)
	}

	*now = now.Add(10 * time.Second)
	s.Record(neonDreams)
	if got := len(s.List(SortLastPlayed, 0)); got != 2 {
		t.Errorf("replay after the window should add an entry, got %d", got)
	}
	if got := s.PlayCount("1"); got != 3 {
		t.Errorf("PlayCount = %d, want 3", got)
	}
	for _, e := range s.List(SortLastPlayed, 0) {
		if e.TotalPlays != 3 {
			t.Errorf("entry %s TotalPlays = %d, want 3", e.ID, e.TotalPlays)
		}
	}
}

func TestListOrders(t *testing.T) {
	s, now := newTestStore("")

	s.Record(neonDreams)
	*now = now.Add(time.Minute)
	s.Record(digitalRain)
	*now = now.Add(time.Second)
	s.Record(digitalRain)

	if got := s.List(SortLastPlayed, 0); got[0].TrackID != "2" {
		t.Errorf("last played first = %s, want 2", got[0].TrackID)
	}
	if got := s.List(SortMostPlayed, 0); got[0].TrackID != "2" {
		t.Errorf("most played first = %s, want 2", got[0].TrackID)
	}
	if got := s.List(SortAlphabetical, 0); got[0].Title != "Digital Rain" {
		t.Errorf("alphabetical first = %s", got[0].Title)
	}
	if got := s.List(SortLastPlayed, 1); len(got) != 1 {
		t.Errorf("limit ignored: %d entries", len(got))
	}
}

func TestMaxEntries(t *testing.T) {
	s, now := newTestStore("")
	s.maxEntries = 3

	for i, id := range []catalog.TrackID{"a", "b", "c", "d"} {
		*now = now.Add(time.Duration(i+1) * time.Minute)
		s.Record(catalog.Track{ID: id})
	}

	entries := s.List(SortLastPlayed, 0)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if s.PlayCount("a") != 0 {
		t.Error("oldest entry should be trimmed")
	}
}

func TestPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestStore(dir)
	s.Record(neonDreams)
	s.Record(digitalRain)
	s.Close()

	reloaded := NewStore(dir)
	if got := len(reloaded.List(SortLastPlayed, 0)); got != 2 {
		t.Errorf("reloaded %d entries, want 2", got)
	}

	reloaded.Clear()
	reloaded.Close()
	if got := len(NewStore(dir).List(SortLastPlayed, 0)); got != 0 {
		t.Errorf("after Clear %d entries remain", got)
	}
}

func TestRunRecordsStartedTracks(t *testing.T) {
	s, _ := newTestStore("")
	events := make(chan player.Event, 4)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), events)
		close(done)
	}()

	track := digitalRain
	events <- player.Event{Kind: player.EventState}
	events <- player.Event{Kind: player.EventTrackStarted, Track: &track}
	close(events)
	<-done

	if got := s.PlayCount("2"); got != 1 {
		t.Errorf("PlayCount = %d, want 1", got)
	}
	if got := len(s.List(SortLastPlayed, 0)); got != 1 {
		t.Errorf("got %d entries, want 1", got)
	}
}
