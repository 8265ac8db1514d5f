package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration, loadable from a YAML file with
// env-var overrides on top.
type Config struct {
	Server   ServerSection   `yaml:"server"`
	Database DatabaseSection `yaml:"database"`
	Presence PresenceSection `yaml:"presence"`
	Auth     AuthSection     `yaml:"auth"`
	Logging  LoggingSection  `yaml:"logging"`
}

type ServerSection struct {
	Addr       string `yaml:"addr"`
	SocketPath string `yaml:"socket_path"`
}

type DatabaseSection struct {
	Path string `yaml:"path"`
}

type PresenceSection struct {
	// RedisURL empty means single-process mode with the in-memory store.
	RedisURL  string `yaml:"redis_url"`
	Namespace string `yaml:"namespace"`
}

type AuthSection struct {
	TokenTTL   string `yaml:"token_ttl"`
	RateLimit  int    `yaml:"rate_limit"`
	RateWindow string `yaml:"rate_window"`
}

type LoggingSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the config used when no file is present.
func DefaultConfig() Config {
	return Config{
		Server:   ServerSection{Addr: ":8080", SocketPath: "/socket"},
		Database: DatabaseSection{Path: ""},
		Presence: PresenceSection{Namespace: "socialwire:"},
		Auth:     AuthSection{TokenTTL: "720h", RateLimit: 10, RateWindow: "1m"},
		Logging:  LoggingSection{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the optional YAML file, then applies env overrides. A
// missing file is fine; a malformed one is not.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	cfg.Server.SocketPath = NormalizeSocketPath(cfg.Server.SocketPath)
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDBPath()
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SOCIALWIRE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SOCIALWIRE_SOCKET_PATH"); v != "" {
		cfg.Server.SocketPath = v
	}
	if v := os.Getenv("SOCIALWIRE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Presence.RedisURL = v
	}
	if v := os.Getenv("SOCIALWIRE_PRESENCE_NAMESPACE"); v != "" {
		cfg.Presence.Namespace = v
	}
	if v := os.Getenv("SOCIALWIRE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SOCIALWIRE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// TokenTTLDuration parses the configured session lifetime.
func (a AuthSection) TokenTTLDuration() time.Duration {
	if d, err := time.ParseDuration(a.TokenTTL); err == nil && d > 0 {
		return d
	}
	return 720 * time.Hour
}

// RateWindowDuration parses the auth rate-limit window.
func (a AuthSection) RateWindowDuration() time.Duration {
	if d, err := time.ParseDuration(a.RateWindow); err == nil && d > 0 {
		return d
	}
	return time.Minute
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg LoggingSection) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	Username  string
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("SOCIALWIRE_DB_PATH"); env != "" {
		return env
	}
	if env := os.Getenv("SOCIALWIRE_DATA_DIR"); env != "" {
		return filepath.Join(env, "socialwire.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "socialwire", "socialwire.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Socialwire", "socialwire.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Socialwire", "socialwire.db")
		}
		return filepath.Join(home, ".local", "share", "socialwire", "socialwire.db")
	}
	return filepath.Join(".", ".socialwire", "socialwire.db")
}

// NormalizeSocketPath guarantees the websocket path starts with '/' and
// falls back to /socket when empty.
func NormalizeSocketPath(path string) string {
	if path == "" {
		return "/socket"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
