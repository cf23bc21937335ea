package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)
	m.getenv = func(string) string { return "" }

	s, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected settings file to be created: %v", err)
	}
	if s.Discovery.ExcludeWindow != 30 {
		t.Fatalf("expected default exclude window 30, got %d", s.Discovery.ExcludeWindow)
	}
	if s.Metadata.Region != "US" {
		t.Fatalf("expected default region US, got %q", s.Metadata.Region)
	}
}

func TestLoadNormalizesAndKeepsDefaultsForMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := `{"metadata":{"tmdbApiKey":"  abc  ","region":"gb"},"watchlist":{"backend":"BADGER","path":"x"},"discovery":{"excludeWindow":0}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(path)
	m.getenv = func(string) string { return "" }
	s, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if s.Metadata.TMDBAPIKey != "abc" {
		t.Errorf("expected trimmed key, got %q", s.Metadata.TMDBAPIKey)
	}
	if s.Metadata.Region != "GB" {
		t.Errorf("expected upper-cased region, got %q", s.Metadata.Region)
	}
	if s.Watchlist.Backend != WatchlistBackendBadger {
		t.Errorf("expected badger backend, got %q", s.Watchlist.Backend)
	}
	if s.Discovery.ExcludeWindow != 30 {
		t.Errorf("expected exclude window reset to 30, got %d", s.Discovery.ExcludeWindow)
	}
	if s.Server.Port != 7788 {
		t.Errorf("expected default port for missing section, got %d", s.Server.Port)
	}
}

func TestEnvironmentCredentialsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)
	env := map[string]string{
		"TMDB_API_KEY":   "tmdb-env",
		"API_KEY":        "legacy",
		"GEMINI_API_KEY": "gemini-env",
	}
	m.getenv = func(k string) string { return env[k] }

	s, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Metadata.TMDBAPIKey != "tmdb-env" {
		t.Errorf("tmdb key = %q", s.Metadata.TMDBAPIKey)
	}
	if s.Gemini.APIKey != "gemini-env" {
		t.Errorf("gemini key = %q", s.Gemini.APIKey)
	}

	// Credentials from the environment are not persisted.
	m.getenv = func(string) string { return "" }
	reloaded, err := m.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Gemini.APIKey != "" || reloaded.Metadata.TMDBAPIKey != "" {
		t.Fatalf("expected env credentials not to be written to disk, got %+v", reloaded.Metadata)
	}
}
