package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)

	settings, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.Server.Port != 7000 {
		t.Fatalf("unexpected default port: %d", settings.Server.Port)
	}
	if settings.RateLimit.Reservoir != 90 {
		t.Fatalf("unexpected default reservoir: %d", settings.RateLimit.Reservoir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults should be written to disk: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	settings := DefaultSettings()
	settings.Server.Port = 9090
	settings.Services.AniListURL = "http://localhost:1234"
	if err := m.Save(settings); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Server.Port != 9090 || loaded.Services.AniListURL != "http://localhost:1234" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadFillsMissingFieldsWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":8000}}`), 0o644); err != nil {
		t.Fatalf("write partial config: %v", err)
	}

	settings, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.Server.Port != 8000 {
		t.Fatalf("explicit value lost: %d", settings.Server.Port)
	}
	if settings.Cache.QueryEntries != 500 {
		t.Fatalf("missing fields should keep defaults: %+v", settings.Cache)
	}
}
