package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTapPath           = "/_/tap"
	DefaultTransport         = "websocket"
	DefaultCheckInterval     = 5 * time.Second
	DefaultHandshakeTimeout  = 45 * time.Second
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultLogSize           = 200
	DefaultStatsPath         = "/_/server_stats"
	DefaultStatsFormat       = "json"
	DefaultStatsInterval     = 5 * time.Second
	DefaultNodesPath         = "/_/nodes"
	DefaultRequestTimeout    = 10 * time.Second
)

// Config is the top-level dashboard configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// LogLevel is one of: debug | info | warn | error. It is the only field
	// applied on hot reload.
	LogLevel string `yaml:"log_level"`

	Tap       TapConfig       `yaml:"tap"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Stats     StatsConfig     `yaml:"stats"`
	Nodes     NodesConfig     `yaml:"nodes"`
}

// TapConfig holds the settings of the tap connection to the Hop server.
type TapConfig struct {
	// Server is the base URL of the Hop server (http, https, ws or wss).
	Server string `yaml:"server"`

	// Path is the streaming endpoint path on Server.
	Path string `yaml:"path"`

	// Transport is one of: websocket | http.
	Transport string `yaml:"transport"`

	// CrossDomain allows the tap to be opened from a different origin.
	// When set, Origin is sent as the request origin.
	CrossDomain bool   `yaml:"cross_domain"`
	Origin      string `yaml:"origin"`

	// CheckInterval is how often the connectivity check polls the transport.
	CheckInterval time.Duration `yaml:"check_interval"`

	// HandshakeTimeout bounds the opening handshake of one transport.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// URL returns the tap endpoint: Server joined with Path.
func (t TapConfig) URL() string {
	return strings.TrimRight(t.Server, "/") + t.Path
}

// DashboardConfig holds the settings of the dashboard's own HTTP surface.
type DashboardConfig struct {
	// HTTPPort is the port the REST API, WebSocket hub and /metrics listen on.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval controls how often state is pushed to browser clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// LogSize is the number of inbound frames kept in the debug log.
	LogSize int `yaml:"log_size"`
}

// StatsConfig configures the server stats poller.
type StatsConfig struct {
	Path string `yaml:"path"`

	// Format is one of: json | prometheus.
	Format string `yaml:"format"`

	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NodesConfig configures the node registry consumer.
type NodesConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Tap: TapConfig{
			Path:             DefaultTapPath,
			Transport:        DefaultTransport,
			CheckInterval:    DefaultCheckInterval,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		Dashboard: DashboardConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
			LogSize:           DefaultLogSize,
		},
		Stats: StatsConfig{
			Path:     DefaultStatsPath,
			Format:   DefaultStatsFormat,
			Interval: DefaultStatsInterval,
			Timeout:  DefaultRequestTimeout,
		},
		Nodes: NodesConfig{
			Path:    DefaultNodesPath,
			Timeout: DefaultRequestTimeout,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", cfg.LogLevel)
	}

	if cfg.Tap.Server == "" {
		return fmt.Errorf("tap.server is required")
	}
	u, err := url.Parse(cfg.Tap.Server)
	if err != nil {
		return fmt.Errorf("tap.server: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("tap.server: unsupported scheme %q", u.Scheme)
	}
	if !strings.HasPrefix(cfg.Tap.Path, "/") {
		return fmt.Errorf("tap.path must start with /")
	}
	switch cfg.Tap.Transport {
	case "websocket", "http":
	default:
		return fmt.Errorf("tap.transport: unknown transport %q", cfg.Tap.Transport)
	}
	if cfg.Tap.CheckInterval <= 0 {
		return fmt.Errorf("tap.check_interval must be positive")
	}
	if cfg.Tap.HandshakeTimeout <= 0 {
		return fmt.Errorf("tap.handshake_timeout must be positive")
	}

	if cfg.Dashboard.HTTPPort <= 0 || cfg.Dashboard.HTTPPort > 65535 {
		return fmt.Errorf("dashboard.http_port out of range: %d", cfg.Dashboard.HTTPPort)
	}
	if cfg.Dashboard.BroadcastInterval <= 0 {
		return fmt.Errorf("dashboard.broadcast_interval must be positive")
	}
	if cfg.Dashboard.LogSize <= 0 {
		return fmt.Errorf("dashboard.log_size must be positive")
	}

	switch cfg.Stats.Format {
	case "json", "prometheus":
	default:
		return fmt.Errorf("stats.format: unknown format %q", cfg.Stats.Format)
	}
	if cfg.Stats.Interval <= 0 {
		return fmt.Errorf("stats.interval must be positive")
	}
	if cfg.Stats.Timeout <= 0 || cfg.Nodes.Timeout <= 0 {
		return fmt.Errorf("stats.timeout and nodes.timeout must be positive")
	}
	return nil
}
