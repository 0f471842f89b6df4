package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultQLabPort is the port QLab listens on for OSC.
const DefaultQLabPort = 53000

// MaxActivitySize bounds the activity log replayed to each attaching operator.
const MaxActivitySize = 1024

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Logging LogConfig
	QLab    QLabConfig
	Session SessionConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// QLabConfig holds discovery and transport configuration.
type QLabConfig struct {
	// Servers lists known servers as name=host:port entries.
	Servers         []string      `envconfig:"QLAB_SERVERS" default:"Museo=10.0.1.111:53000"`
	ConfigFile      string        `envconfig:"QLAB_CONFIG"`
	RefreshInterval time.Duration `envconfig:"QLAB_REFRESH_INTERVAL" default:"3s"`
	ReplyTimeout    time.Duration `envconfig:"QLAB_REPLY_TIMEOUT" default:"10s"`
	ConnectTimeout  time.Duration `envconfig:"QLAB_CONNECT_TIMEOUT" default:"10s"`
	AutoConnect     bool          `envconfig:"QLAB_AUTO_CONNECT" default:"true"`
}

// SessionConfig holds controller and presentation tuning.
type SessionConfig struct {
	CueDebounce    time.Duration `envconfig:"CUE_DEBOUNCE" default:"50ms"`
	ConfirmTimeout time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"30s"`
	ActivitySize   int           `envconfig:"ACTIVITY_SIZE" default:"128"`
}

// ServerEntry is one statically configured server.
type ServerEntry struct {
	Name      string            `yaml:"name"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	Passcodes map[string]string `yaml:"passcodes"`
}

// Address returns host:port for the entry.
func (e ServerEntry) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Passcode returns the passcode configured for a workspace, matched by ID
// first and then by name.
func (e ServerEntry) Passcode(workspaceID, workspaceName string) string {
	if code, ok := e.Passcodes[workspaceID]; ok {
		return code
	}
	return e.Passcodes[workspaceName]
}

type fileConfig struct {
	Servers []ServerEntry `yaml:"servers"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects session settings the presentation layer cannot honour.
func (c SessionConfig) Validate() error {
	if c.ActivitySize < 1 || c.ActivitySize > MaxActivitySize {
		return fmt.Errorf("ACTIVITY_SIZE must be between 1 and %d, got %d", MaxActivitySize, c.ActivitySize)
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("CONFIRM_TIMEOUT must be positive, got %s", c.ConfirmTimeout)
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level: "info",
		},
		QLab: QLabConfig{
			Servers:         []string{"Museo=10.0.1.111:53000"},
			RefreshInterval: 3 * time.Second,
			ReplyTimeout:    10 * time.Second,
			ConnectTimeout:  10 * time.Second,
			AutoConnect:     true,
		},
		Session: SessionConfig{
			CueDebounce:    50 * time.Millisecond,
			ConfirmTimeout: 30 * time.Second,
			ActivitySize:   128,
		},
	}
}

// ServerEntries merges the QLAB_SERVERS list with the optional YAML file.
// File entries replace env entries with the same address.
func (c *QLabConfig) ServerEntries() ([]ServerEntry, error) {
	var entries []ServerEntry
	index := make(map[string]int)

	for _, raw := range c.Servers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		entry, err := ParseServerEntry(raw)
		if err != nil {
			return nil, err
		}
		index[entry.Address()] = len(entries)
		entries = append(entries, entry)
	}

	if c.ConfigFile == "" {
		return entries, nil
	}

	fromFile, err := loadServerFile(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	for _, entry := range fromFile {
		if i, ok := index[entry.Address()]; ok {
			entries[i] = entry
			continue
		}
		index[entry.Address()] = len(entries)
		entries = append(entries, entry)
	}

	return entries, nil
}

// ParseServerEntry parses "name=host:port", "host:port" or "host".
func ParseServerEntry(raw string) (ServerEntry, error) {
	var entry ServerEntry

	addr := raw
	if name, rest, ok := strings.Cut(raw, "="); ok {
		entry.Name = strings.TrimSpace(name)
		addr = strings.TrimSpace(rest)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portStr = strconv.Itoa(DefaultQLabPort)
	}
	if host == "" {
		return ServerEntry{}, fmt.Errorf("invalid server entry %q: missing host", raw)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ServerEntry{}, fmt.Errorf("invalid server entry %q: bad port", raw)
	}

	entry.Host = host
	entry.Port = port
	if entry.Name == "" {
		entry.Name = host
	}
	return entry, nil
}

func loadServerFile(path string) ([]ServerEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse server file: %w", err)
	}

	for i := range fc.Servers {
		if fc.Servers[i].Host == "" {
			return nil, fmt.Errorf("server %d in %s has no host", i, path)
		}
		if fc.Servers[i].Port == 0 {
			fc.Servers[i].Port = DefaultQLabPort
		}
		if fc.Servers[i].Name == "" {
			fc.Servers[i].Name = fc.Servers[i].Host
		}
	}
	return fc.Servers, nil
}
