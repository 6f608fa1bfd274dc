// Package config loads the viewcore command configuration.
//
// The configuration lives in viewcore.json (or viewcore.yaml / viewcore.yml)
// and every field has a default, so an empty file is valid:
//
//	{
//	  "server": {"host": "localhost", "port": 7070, "readTimeout": "60s"},
//	  "driver": {"queueSize": 256, "tickInterval": "1s"},
//	  "journal": {"enabled": true, "sink": "dir", "dir": ".viewcore/journal"},
//	  "metrics": {"enabled": true, "namespace": "viewcore", "buckets": [0.001, 0.01, 0.1]},
//	  "log": {"level": "info", "format": "text"}
//	}
package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/viewcore/internal/errors"
)

// ConfigFileNames are the file names Load looks for, in order.
var ConfigFileNames = []string{"viewcore.json", "viewcore.yaml", "viewcore.yml"}

const (
	DefaultHost        = "localhost"
	DefaultPort        = 7070
	DefaultQueueSize   = 256
	DefaultJournalDir  = ".viewcore/journal"
	DefaultSegmentSize = 1 << 20
	DefaultNamespace   = "viewcore"
	DefaultSubsystem   = "driver"
	DefaultTick        = "1s"
)

// Sink kinds.
const (
	SinkDir = "dir"
	SinkS3  = "s3"
)

// Config is the complete configuration.
type Config struct {
	Name    string        `json:"name,omitempty" yaml:"name,omitempty"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Driver  DriverConfig  `json:"driver" yaml:"driver"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Log     LogConfig     `json:"log" yaml:"log"`

	configPath string
}

// ServerConfig configures the WebSocket server.
type ServerConfig struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`

	// Durations such as "60s".
	ReadTimeout  string `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`
	WriteTimeout string `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
	PingInterval string `json:"pingInterval,omitempty" yaml:"pingInterval,omitempty"`

	MaxMessageSize int64 `json:"maxMessageSize,omitempty" yaml:"maxMessageSize,omitempty"`

	// AllowedOrigins lists Origin values accepted besides same-origin
	// requests. "*" accepts any origin.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

// DriverConfig configures each session's driver.
type DriverConfig struct {
	QueueSize int `json:"queueSize,omitempty" yaml:"queueSize,omitempty"`

	// TickInterval is the demo clock period. "0s" hides the clock.
	TickInterval string `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`

	// DebugIDs stamps every element with a data-debugid attribute.
	DebugIDs bool `json:"debugIds,omitempty" yaml:"debugIds,omitempty"`
}

// JournalConfig configures message journaling.
type JournalConfig struct {
	Enabled     bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Sink        string `json:"sink,omitempty" yaml:"sink,omitempty"`
	Dir         string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Bucket      string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix      string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region      string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	SegmentSize int    `json:"segmentSize,omitempty" yaml:"segmentSize,omitempty"`
}

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Subsystem string `json:"subsystem,omitempty" yaml:"subsystem,omitempty"`

	// Buckets are the cycle duration histogram buckets in seconds.
	// Empty means the Prometheus defaults.
	Buckets []float64 `json:"buckets,omitempty" yaml:"buckets,omitempty"`

	// Labels are constant labels added to every driver metric.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New returns a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "60s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "10s"
	}
	if c.Server.PingInterval == "" {
		c.Server.PingInterval = "25s"
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = 64 * 1024
	}
	if c.Driver.QueueSize == 0 {
		c.Driver.QueueSize = DefaultQueueSize
	}
	if c.Journal.Sink == "" {
		c.Journal.Sink = SinkDir
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = DefaultJournalDir
	}
	if c.Journal.SegmentSize == 0 {
		c.Journal.SegmentSize = DefaultSegmentSize
	}
	if c.Driver.TickInterval == "" {
		c.Driver.TickInterval = DefaultTick
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Metrics.Subsystem == "" {
		c.Metrics.Subsystem = DefaultSubsystem
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Load reads the first configuration file found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("VC100").
		WithDetail("No configuration file found in " + dir).
		WithSuggestion("Create viewcore.json or run without --config to use defaults")
}

// LoadFile reads a configuration file. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("VC100").WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("VC101").Wrap(err)
	}

	cfg := &Config{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("VC101").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// SaveTo writes the configuration to path, as YAML or JSON by extension.
func (c *Config) SaveTo(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("VC101").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("VC101").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("VC101").WithDetail("server.port must be between 0 and 65535")
	}
	for field, v := range map[string]string{
		"server.readTimeout":  c.Server.ReadTimeout,
		"server.writeTimeout": c.Server.WriteTimeout,
		"server.pingInterval": c.Server.PingInterval,
		"driver.tickInterval": c.Driver.TickInterval,
	} {
		if _, err := parseDuration(field, v); err != nil {
			return err
		}
	}
	if c.Server.MaxMessageSize <= 0 {
		return errors.New("VC101").WithDetail("server.maxMessageSize must be positive")
	}
	if c.Driver.QueueSize <= 0 {
		return errors.New("VC101").WithDetail("driver.queueSize must be positive")
	}
	if c.Journal.Enabled {
		switch c.Journal.Sink {
		case SinkDir:
		case SinkS3:
			if c.Journal.Bucket == "" {
				return errors.New("VC101").
					WithDetail("journal.bucket is required for the s3 sink")
			}
		default:
			return errors.New("VC101").
				WithDetail("journal.sink must be \"dir\" or \"s3\", got " + strconv.Quote(c.Journal.Sink))
		}
	}
	for i := 1; i < len(c.Metrics.Buckets); i++ {
		if c.Metrics.Buckets[i] <= c.Metrics.Buckets[i-1] {
			return errors.New("VC101").WithDetail("metrics.buckets must be strictly increasing")
		}
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("VC101").
			WithDetail("log.format must be \"text\" or \"json\", got " + strconv.Quote(c.Log.Format))
	}
	return nil
}

func parseDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, errors.New("VC102").
			WithDetail(field + " is not a valid duration: " + strconv.Quote(v))
	}
	return d, nil
}

// Address returns the server listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Timeouts returns the parsed server durations. Call Validate first.
func (s ServerConfig) Timeouts() (read, write, ping time.Duration) {
	read, _ = time.ParseDuration(s.ReadTimeout)
	write, _ = time.ParseDuration(s.WriteTimeout)
	ping, _ = time.ParseDuration(s.PingInterval)
	return read, write, ping
}

// Tick returns the parsed demo clock period. Call Validate first.
func (d DriverConfig) Tick() time.Duration {
	tick, _ := time.ParseDuration(d.TickInterval)
	return tick
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.New("VC101").
			WithDetail("log.level must be debug, info, warn or error, got " + strconv.Quote(l.Level))
	}
	return level, nil
}

// NewLogger returns a logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
