package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Metadata  MetadataSettings  `json:"metadata"`
	Gemini    GeminiSettings    `json:"gemini"`
	Posters   PosterSettings    `json:"posters"`
	Discovery DiscoverySettings `json:"discovery"`
	Watchlist WatchlistSettings `json:"watchlist"`
	Cache     CacheSettings     `json:"cache"`
	RateLimit RateLimitSettings `json:"rateLimit"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	Language   string `json:"language"`
	Region     string `json:"region"` // watch-provider region (ISO 3166-1)
	BaseURL    string `json:"baseUrl,omitempty"`
}

type GeminiSettings struct {
	APIKey  string `json:"apiKey"`
	Model   string `json:"model"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type PosterSettings struct {
	RPDBAPIKey     string `json:"rpdbApiKey"`
	RPDBBaseURL    string `json:"rpdbBaseUrl"`
	TMDBImageBase  string `json:"tmdbImageBase"`
	PlaceholderURL string `json:"placeholderUrl"`
}

type DiscoverySettings struct {
	ExcludeWindow           int `json:"excludeWindow"`           // most-recent exclusions sent upstream
	CandidateTimeoutSeconds int `json:"candidateTimeoutSeconds"` // 0 = transport timeout only
	TrendingPerType         int `json:"trendingPerType"`
	MaxConcurrency          int `json:"maxConcurrency"` // 0 = one goroutine per candidate
}

// WatchlistBackend selects the durable store used for the watchlist.
type WatchlistBackend string

const (
	WatchlistBackendFile   WatchlistBackend = "file"
	WatchlistBackendBadger WatchlistBackend = "badger"
)

type WatchlistSettings struct {
	Backend WatchlistBackend `json:"backend"`
	Path    string           `json:"path"`
}

type CacheSettings struct {
	Directory          string `json:"directory"`
	MetadataTTLMinutes int    `json:"metadataTtlMinutes"`
	Size               int    `json:"size"`
}

type RateLimitSettings struct {
	SearchPerMinute int `json:"searchPerMinute"`
	Burst           int `json:"burst"`
}

// LogConfig controls file logging with rotation.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`    // megabytes
	MaxBackups int    `json:"maxBackups"` // files
	MaxAge     int    `json:"maxAge"`     // days
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server:   ServerSettings{Host: "127.0.0.1", Port: 7788},
		Metadata: MetadataSettings{TMDBAPIKey: "", Language: "en-US", Region: "US"},
		Gemini:   GeminiSettings{APIKey: "", Model: "gemini-3-flash-preview"},
		Posters: PosterSettings{
			RPDBAPIKey:     "t0-free-rpdb",
			RPDBBaseURL:    "https://api.ratingposterdb.com",
			TMDBImageBase:  "https://image.tmdb.org/t/p/w500",
			PlaceholderURL: "https://picsum.photos/300/450?grayscale&blur=2",
		},
		Discovery: DiscoverySettings{ExcludeWindow: 30, CandidateTimeoutSeconds: 0, TrendingPerType: 8, MaxConcurrency: 0},
		Watchlist: WatchlistSettings{Backend: WatchlistBackendFile, Path: "cache/watchlist"},
		Cache:     CacheSettings{Directory: "cache", MetadataTTLMinutes: 60, Size: 512},
		RateLimit: RateLimitSettings{SearchPerMinute: 30, Burst: 10},
		Log: LogConfig{
			File:       "cache/logs/cinewise.log",
			Level:      "info",
			MaxSize:    20,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path   string
	getenv func(string) string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath, getenv: os.Getenv}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
// Service credentials from the environment take precedence over the file
// but are never written back.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		m.applyEnv(&defaults)
		return defaults, nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}

	// Decode over defaults so sections missing from older files keep sane values.
	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	normalize(&s)
	m.applyEnv(&s)
	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}

func (m *Manager) applyEnv(s *Settings) {
	if m.getenv == nil {
		return
	}
	if v := strings.TrimSpace(m.getenv("TMDB_API_KEY")); v != "" {
		s.Metadata.TMDBAPIKey = v
	}
	// API_KEY is the historical name of the language-service credential.
	if v := strings.TrimSpace(m.getenv("API_KEY")); v != "" {
		s.Gemini.APIKey = v
	}
	if v := strings.TrimSpace(m.getenv("GEMINI_API_KEY")); v != "" {
		s.Gemini.APIKey = v
	}
}

func normalize(s *Settings) {
	defaults := DefaultSettings()

	s.Metadata.TMDBAPIKey = strings.TrimSpace(s.Metadata.TMDBAPIKey)
	s.Gemini.APIKey = strings.TrimSpace(s.Gemini.APIKey)
	s.Metadata.Region = strings.ToUpper(strings.TrimSpace(s.Metadata.Region))
	if s.Metadata.Region == "" {
		s.Metadata.Region = defaults.Metadata.Region
	}
	if strings.TrimSpace(s.Gemini.Model) == "" {
		s.Gemini.Model = defaults.Gemini.Model
	}
	if s.Discovery.ExcludeWindow <= 0 {
		s.Discovery.ExcludeWindow = defaults.Discovery.ExcludeWindow
	}
	if s.Discovery.TrendingPerType <= 0 {
		s.Discovery.TrendingPerType = defaults.Discovery.TrendingPerType
	}
	switch WatchlistBackend(strings.ToLower(string(s.Watchlist.Backend))) {
	case WatchlistBackendBadger:
		s.Watchlist.Backend = WatchlistBackendBadger
	default:
		s.Watchlist.Backend = WatchlistBackendFile
	}
	if s.Cache.MetadataTTLMinutes <= 0 {
		s.Cache.MetadataTTLMinutes = defaults.Cache.MetadataTTLMinutes
	}
	if s.Cache.Size <= 0 {
		s.Cache.Size = defaults.Cache.Size
	}
}
