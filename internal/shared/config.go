package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database     DatabaseConfig     `toml:"database"`
	Server       ServerConfig       `toml:"server"`
	Admin        AdminConfig        `toml:"admin"`
	Client       ClientConfig       `toml:"client"`
	Player       PlayerConfig       `toml:"player"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Site         SiteConfig         `toml:"site"`
	Log          LogConfig          `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains sync server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdminConfig identifies the single administrator account.
//
// Requests presenting Token as a bearer credential are treated as Email.
type AdminConfig struct {
	Email string `toml:"email"`
	Token string `toml:"token"`
}

// ClientConfig contains settings for sessions connecting to a sync server.
type ClientConfig struct {
	URL            string `toml:"url"`
	Token          string `toml:"token"`
	RequestTimeout int    `toml:"request_timeout_ms"`
}

// PlayerConfig contains output device settings.
type PlayerConfig struct {
	MPDNetwork  string  `toml:"mpd_network"`
	MPDAddress  string  `toml:"mpd_address"`
	MPDPassword string  `toml:"mpd_password"`
	Volume      float64 `toml:"volume"`
	TickMS      int     `toml:"tick_ms"`
}

// ConnectivityConfig contains connectivity monitor timings.
type ConnectivityConfig struct {
	OfflineDebounceMS   int `toml:"offline_debounce_ms"`
	ReconnectedNoticeMS int `toml:"reconnected_notice_ms"`
}

// OfflineDebounce returns the debounce applied to offline signals.
func (c ConnectivityConfig) OfflineDebounce() time.Duration {
	return time.Duration(c.OfflineDebounceMS) * time.Millisecond
}

// ReconnectedNotice returns how long the reconnected notice stays up.
func (c ConnectivityConfig) ReconnectedNotice() time.Duration {
	return time.Duration(c.ReconnectedNoticeMS) * time.Millisecond
}

// SiteConfig contains presentation metadata published to now-playing surfaces.
type SiteConfig struct {
	Artist        string `toml:"artist"`
	DefaultFolder string `toml:"default_folder"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// ParsedLevel returns the configured [log.Level], defaulting to info.
func (l LogConfig) ParsedLevel() log.Level {
	if l.Level == "" {
		return log.InfoLevel
	}
	lvl, err := log.ParseLevel(l.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
