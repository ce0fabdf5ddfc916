package config

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/handiism/vasset-downloader/internal/progress"
)

// EnvPrefix prefixes every environment override, e.g. VASSET_API_BASE_URL.
const EnvPrefix = "VASSET"

// Settings holds all configuration options.
type Settings struct {
	// Backend endpoints
	APIBaseURL string `json:"api_base_url" envconfig:"API_BASE_URL"`
	WSURL      string `json:"ws_url"       envconfig:"WS_URL"`

	// Local paths
	DownloadsPath string `json:"downloads_path" envconfig:"DOWNLOADS_PATH"`
	SessionPath   string `json:"session_path"   envconfig:"SESSION_PATH"`

	// Requests
	RequestTimeout float64 `json:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	Quality        string  `json:"quality"         envconfig:"QUALITY"`
	Container      string  `json:"container"       envconfig:"CONTAINER"`
	SkipCache      bool    `json:"skip_cache"      envconfig:"SKIP_CACHE"`

	// Progress channel reconnection
	ReconnectInitialDelay float64 `json:"reconnect_initial_delay" envconfig:"RECONNECT_INITIAL_DELAY"`
	ReconnectMaxDelay     float64 `json:"reconnect_max_delay"     envconfig:"RECONNECT_MAX_DELAY"`
	ReconnectMaxAttempts  int     `json:"reconnect_max_attempts"  envconfig:"RECONNECT_MAX_ATTEMPTS"`

	// Batch downloads
	MaxConcurrentDownloads int `json:"max_concurrent_downloads" envconfig:"MAX_CONCURRENT_DOWNLOADS"`

	// Post-processing of retrieved files
	TagAudio         bool `json:"tag_audio"          envconfig:"TAG_AUDIO"`
	SaveThumbnail    bool `json:"save_thumbnail"     envconfig:"SAVE_THUMBNAIL"`
	ThumbnailMaxSize int  `json:"thumbnail_max_size" envconfig:"THUMBNAIL_MAX_SIZE"`

	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		APIBaseURL: "http://localhost:8080",
		WSURL:      "ws://localhost:8080",

		DownloadsPath: filepath.Join(homeDir, "Downloads", "vasset"),
		SessionPath:   filepath.Join(homeDir, ".config", "vasset", "session.json"),

		RequestTimeout: 30,
		Quality:        "best",
		Container:      "mp4",
		SkipCache:      false,

		ReconnectInitialDelay: 1,
		ReconnectMaxDelay:     30,
		ReconnectMaxAttempts:  5,

		MaxConcurrentDownloads: 2,

		TagAudio:         true,
		SaveThumbnail:    false,
		ThumbnailMaxSize: 1000,

		LogLevel: "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "vasset", "config.json")
}

// Load reads settings from a JSON file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, err
		}
	}

	if err := settings.ApplyEnv(); err != nil {
		return nil, err
	}
	return settings, nil
}

// ApplyEnv overrides fields from VASSET_* environment variables.
func (s *Settings) ApplyEnv() error {
	return envconfig.Process(EnvPrefix, s)
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Timeout returns the HTTP request timeout.
func (s *Settings) Timeout() time.Duration {
	return seconds(s.RequestTimeout)
}

// Backoff converts the reconnect settings to a progress.Backoff.
func (s *Settings) Backoff() progress.Backoff {
	return progress.Backoff{
		Initial:     seconds(s.ReconnectInitialDelay),
		Max:         seconds(s.ReconnectMaxDelay),
		MaxAttempts: s.ReconnectMaxAttempts,
	}
}

// ProgressURL returns the websocket endpoint for progress events.
// A WSURL that already carries a path is used verbatim.
func (s *Settings) ProgressURL() string {
	u, err := url.Parse(s.WSURL)
	if err != nil || strings.Trim(u.Path, "/") != "" {
		return s.WSURL
	}
	return strings.TrimRight(s.WSURL, "/") + "/api/v1/ws/progress"
}

// ConfigureLogging applies LogLevel to the global logger.
func (s *Settings) ConfigureLogging() {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", s.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
