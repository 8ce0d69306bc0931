package catalog_test

import (
	"errors"
	"testing"

	"github.com/edumarques81/neon-player-backend/internal/domain/catalog"
)

func TestLibraryDefaultsToAll(t *testing.T) {
	lib := catalog.NewLibrary(nil, "")

	if lib.Selected() != catalog.PlaylistAll {
		t.Errorf("Selected() = %q, want all", lib.Selected())
	}
	locked := lib.Current(false)
	if len(locked) != len(lib.Catalog().Singles) {
		t.Errorf("locked all has %d tracks, want singles only", len(locked))
	}
	if unlocked := lib.Current(true); len(unlocked) != len(lib.Catalog().All()) {
		t.Errorf("unlocked all has %d tracks", len(unlocked))
	}
}

func TestLibrarySelect(t *testing.T) {
	lib := catalog.NewLibrary(catalog.Default(), catalog.PlaylistAll)

	if _, err := lib.Select(catalog.PlaylistExclusive, false); !errors.Is(err, catalog.ErrLocked) {
		t.Errorf("Select(exclusive, locked) = %v, want ErrLocked", err)
	}
	if lib.Selected() != catalog.PlaylistAll {
		t.Errorf("a failed Select changed the selection to %q", lib.Selected())
	}

	tracks, err := lib.Select(catalog.PlaylistSingles, false)
	if err != nil {
		t.Fatalf("Select(singles): %v", err)
	}
	if len(tracks) != 3 || lib.Selected() != catalog.PlaylistSingles {
		t.Errorf("got %d tracks, selected %q", len(tracks), lib.Selected())
	}
}

func TestLibraryReplaceKeepsSelection(t *testing.T) {
	lib := catalog.NewLibrary(catalog.Default(), catalog.PlaylistSingles)

	next, err := catalog.Parse([]byte(`
singles:
  - {id: "9", title: "New Single", src: "new.mp3", duration: 100}
`))
	if err != nil {
		t.Fatal(err)
	}

	tracks := lib.Replace(next, false)
	if len(tracks) != 1 || tracks[0].ID != "9" {
		t.Errorf("Replace returned %v", tracks)
	}
	if lib.Selected() != catalog.PlaylistSingles {
		t.Errorf("Selected() = %q, want singles", lib.Selected())
	}
	if _, ok := lib.Find("9"); !ok {
		t.Error("Find should see the reloaded catalog")
	}
}

func TestLibraryReplaceFallsBackWhenAlbumGone(t *testing.T) {
	base := catalog.Default()
	if len(base.Albums) == 0 {
		t.Skip("embedded catalog has no albums")
	}
	lib := catalog.NewLibrary(base, "")
	if _, err := lib.Select("album:"+base.Albums[0].ID, false); err != nil {
		t.Fatalf("Select album: %v", err)
	}

	next, err := catalog.Parse([]byte(`
singles:
  - {id: "9", title: "New Single", src: "new.mp3"}
`))
	if err != nil {
		t.Fatal(err)
	}

	tracks := lib.Replace(next, false)
	if lib.Selected() != catalog.PlaylistAll {
		t.Errorf("Selected() = %q, want fallback to all", lib.Selected())
	}
	if len(tracks) != 1 {
		t.Errorf("got %d tracks, want 1", len(tracks))
	}
}
