package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Settings represents the application configuration persisted to disk.
// Per-user options (upstream token, sync flags) never live here; they
// arrive with each request inside the addon install URL.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Database  DatabaseSettings  `json:"database"`
	Cache     CacheSettings     `json:"cache"`
	RateLimit RateLimitSettings `json:"rateLimit"`
	Services  ServiceSettings   `json:"services"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseSettings struct {
	Path string `json:"path"`
}

// CacheSettings bounds the two in-memory caches. The mapping cache runs a
// much longer TTL since identity mappings rarely change.
type CacheSettings struct {
	QueryEntries    int `json:"queryEntries"`
	QueryTTLMinutes int `json:"queryTtlMinutes"`
	MappingEntries  int `json:"mappingEntries"`
	MappingTTLHours int `json:"mappingTtlHours"`
}

// RateLimitSettings parameterize the upstream request gateway.
type RateLimitSettings struct {
	MaxConcurrent         int `json:"maxConcurrent"`
	Reservoir             int `json:"reservoir"`
	RefillAmount          int `json:"refillAmount"`
	RefillIntervalSeconds int `json:"refillIntervalSeconds"`
	MinSpacingMillis      int `json:"minSpacingMillis"`
}

// ServiceSettings holds base URLs and keys for the external collaborators.
// URLs are overridable so tests can point clients at local fakes.
type ServiceSettings struct {
	AniListURL   string `json:"anilistUrl"`
	KitsuURL     string `json:"kitsuUrl"`
	ARMURL       string `json:"armUrl"`
	CinemetaURL  string `json:"cinemetaUrl"`
	FanartURL    string `json:"fanartUrl"`
	FanartAPIKey string `json:"fanartApiKey"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server:   ServerSettings{Host: "0.0.0.0", Port: 7000},
		Database: DatabaseSettings{Path: "cache/mappings.db"},
		Cache: CacheSettings{
			QueryEntries:    500,
			QueryTTLMinutes: 30,
			MappingEntries:  5000,
			MappingTTLHours: 24 * 7,
		},
		RateLimit: RateLimitSettings{
			MaxConcurrent:         2,
			Reservoir:             90,
			RefillAmount:          90,
			RefillIntervalSeconds: 60,
			MinSpacingMillis:      700,
		},
		Services: ServiceSettings{
			AniListURL:  "https://graphql.anilist.co",
			KitsuURL:    "https://kitsu.io/api/edge",
			ARMURL:      "https://arm.haglund.dev/api/v2",
			CinemetaURL: "https://v3-cinemeta.strem.io",
			FanartURL:   "https://webservice.fanart.tv/v3",
		},
		Log: LogConfig{File: "", MaxSize: 50, MaxAge: 14, MaxBackups: 3, Compress: true},
	}
}

// Manager loads and saves the settings file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	settings := DefaultSettings()
	if err := json.NewDecoder(f).Decode(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Save writes settings atomically next to the target path.
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
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
