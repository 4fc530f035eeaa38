// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/redirect-proxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are served by the proxy itself and cannot host metrics.
var reservedRoutes = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64  `toml:"body_max_bytes"`
}

// UpstreamConfig holds settings for outbound requests to proxy targets.
type UpstreamConfig struct {
	// TimeoutSeconds bounds a whole inbound request, across every redirect hop.
	TimeoutSeconds     int  `toml:"timeout_seconds"`
	IdleConnections    int  `toml:"idle_connections"`
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/redirect-proxy/config.toml then configs/config.toml and falls back to
// built-in defaults if neither exists. Unknown keys are rejected.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) decodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config: parse %s: unknown keys:\n%s", path, strict.String())
		}
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.filePath = path
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// validate reports every invalid field at once.
func (c *Config) validate() error {
	return errors.Join(
		c.Server.validate(),
		c.Upstream.validate(),
		c.Log.validate(),
		c.Metrics.validate(),
	)
}

func (s *ServerConfig) validate() error {
	var errs []error
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 0-65535; got %d", s.Port))
	}
	if s.BodyMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("server.body_max_bytes must be non-negative; got %d", s.BodyMaxBytes))
	}
	return errors.Join(errs...)
}

func (u *UpstreamConfig) validate() error {
	var errs []error
	if u.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", u.TimeoutSeconds))
	}
	if u.IdleConnections < 0 {
		errs = append(errs, fmt.Errorf("upstream.idle_connections must be non-negative; got %d", u.IdleConnections))
	}
	return errors.Join(errs...)
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
)

func (l *LogConfig) validate() error {
	var errs []error
	if lv := strings.ToLower(l.Level); lv != "" && !slices.Contains(logLevels, lv) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %s; got %q", strings.Join(logLevels, ", "), l.Level))
	}
	if f := strings.ToLower(l.Format); f != "" && !slices.Contains(logFormats, f) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %s; got %q", strings.Join(logFormats, ", "), l.Format))
	}
	return errors.Join(errs...)
}

// validate checks the metrics path only when metrics are served. Every
// path outside the reserved routes belongs to the proxy catch-all.
func (m *MetricsConfig) validate() error {
	if !m.Enabled || m.Path == "" {
		return nil
	}
	switch {
	case !strings.HasPrefix(m.Path, "/"):
		return fmt.Errorf("metrics.path must start with '/'; got %q", m.Path)
	case m.Path == "/":
		return fmt.Errorf("metrics.path %q conflicts with the proxy route", m.Path)
	}
	for _, reserved := range reservedRoutes {
		if m.Path == reserved || strings.HasPrefix(m.Path, reserved+"/") {
			return fmt.Errorf("metrics.path %q conflicts with reserved route %q", m.Path, reserved)
		}
	}
	return nil
}

// defaults holds the values used for zero-valued fields. TOML cannot
// distinguish an explicit 0 from an omitted key, so zero means unset.
var defaults = Config{
	Server:   ServerConfig{Host: "0.0.0.0", Port: 8000, BodyMaxBytes: 10 << 20},
	Upstream: UpstreamConfig{TimeoutSeconds: 120, IdleConnections: 100},
	Log:      LogConfig{Level: "info", Format: "json"},
	Metrics:  MetricsConfig{Path: "/metrics"},
}

func (c *Config) setDefaults() {
	orDefault(&c.Server.Host, defaults.Server.Host)
	orDefault(&c.Server.Port, defaults.Server.Port)
	orDefault(&c.Server.BodyMaxBytes, defaults.Server.BodyMaxBytes)
	orDefault(&c.Upstream.TimeoutSeconds, defaults.Upstream.TimeoutSeconds)
	orDefault(&c.Upstream.IdleConnections, defaults.Upstream.IdleConnections)
	orDefault(&c.Log.Level, defaults.Log.Level)
	orDefault(&c.Log.Format, defaults.Log.Format)
	orDefault(&c.Metrics.Path, defaults.Metrics.Path)
}

func orDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// FilePath returns the config file that was loaded, or empty when defaults were used.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		logger.Info("no config file found; using defaults", "searched", configSearchPaths)
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("cannot stat config file", "path", c.filePath, "err", err)
		}
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
