package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feed kinds understood by internal/feed.
const (
	FeedKindYAML = "yaml"
	FeedKindICS  = "ics"
)

// FeedConfig describes a single event source.
type FeedConfig struct {
	// ID is an internal identifier used for logging and record ids.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Kind is "yaml" (CMS export) or "ics". Empty is inferred from the URL.
	Kind string `yaml:"kind" json:"kind"`
	// URL is an http(s) URL, a file:// URL or a plain filesystem path.
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SnapshotConfig controls the headless-browser PNG capture of the event page.
type SnapshotConfig struct {
	// URL defaults to the local server root.
	URL    string `yaml:"url,omitempty" json:"url,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
	Width  int    `yaml:"width,omitempty" json:"width,omitempty"`
	Height int    `yaml:"height,omitempty" json:"height,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the page and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone whose wall clock "today" and all event
	// times are read in. Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a standard 5-field cron expression for scheduled
	// resolution passes (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds the HTTP feed cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Snapshot SnapshotConfig `yaml:"snapshot,omitempty" json:"snapshot,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultRefreshCron = "*/15 * * * *"
	defaultLogLevel    = "info"
	defaultCacheDir    = "./var/feed-cache"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		RefreshCron: defaultRefreshCron,
		LogLevel:    defaultLogLevel,
		CacheDir:    defaultCacheDir,
		Feeds:       []FeedConfig{},
	}
}

// Normalize fills in missing values so partially-filled configs behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		f := &c.Feeds[i]
		if f.ID == "" {
			if f.Name != "" {
				f.ID = f.Name
			} else {
				f.ID = f.URL
			}
		}
		f.Kind = strings.ToLower(strings.TrimSpace(f.Kind))
		if f.Kind == "" {
			f.Kind = inferKind(f.URL)
		}
	}
}

func inferKind(url string) string {
	u := strings.ToLower(url)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if strings.HasSuffix(u, ".ics") || strings.HasPrefix(u, "webcal://") {
		return FeedKindICS
	}
	return FeedKindYAML
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
