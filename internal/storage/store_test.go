package storage

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetAbsentEntity(t *testing.T) {
	s := openTestStore(t)

	settings, err := s.Get("light.unknown")
	if err != nil {
		t.Fatal(err)
	}
	if settings.EntityID != "light.unknown" {
		t.Errorf("EntityID = %q", settings.EntityID)
	}
	if settings.Timeshift != 0 || settings.Manual || settings.ActiveScene != "" {
		t.Errorf("absent entity has non-zero settings: %+v", settings)
	}
}

func TestUpsertsMergePerColumn(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetTimeshift("light.a", 3600); err != nil {
		t.Fatal(err)
	}
	if err := s.SetManual("light.a", true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActiveScene("light.a", "evening"); err != nil {
		t.Fatal(err)
	}

	settings, err := s.Get("light.a")
	if err != nil {
		t.Fatal(err)
	}
	if settings.Timeshift != 3600 {
		t.Errorf("Timeshift = %d", settings.Timeshift)
	}
	if !settings.Manual {
		t.Error("Manual not persisted")
	}
	if settings.ActiveScene != "evening" {
		t.Errorf("ActiveScene = %q", settings.ActiveScene)
	}

	// Updating one column must not clobber the others.
	if err := s.SetTimeshift("light.a", -1800); err != nil {
		t.Fatal(err)
	}
	settings, _ = s.Get("light.a")
	if settings.Timeshift != -1800 || !settings.Manual || settings.ActiveScene != "evening" {
		t.Errorf("settings after partial update: %+v", settings)
	}
}

func TestGetAllAndClear(t *testing.T) {
	s := openTestStore(t)

	s.SetTimeshift("light.a", 60)
	s.SetTimeshift("light.b", 120)

	all, err := s.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("GetAll returned %d rows, want 2", len(all))
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	all, _ = s.GetAll()
	if len(all) != 0 {
		t.Errorf("GetAll after Clear returned %d rows", len(all))
	}
}
