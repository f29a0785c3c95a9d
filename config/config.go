package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/errors"
)

// Config represents the complete application configuration
type Config struct {
	Version   string          `json:"version" yaml:"version"`
	Connector ConnectorConfig `json:"connector" yaml:"connector"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	NATS      NATSConfig      `json:"nats" yaml:"nats"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Demo      DemoConfig      `json:"demo" yaml:"demo"`
}

// ConnectorConfig configures one connector instance
type ConnectorConfig struct {
	Name string `json:"name" yaml:"name"`

	// ConverterPrefix names converters "<prefix><n>"
	ConverterPrefix string `json:"converter_prefix,omitempty" yaml:"converter_prefix,omitempty"`

	// MatchExisting lets a new source tap bind straight to a subgraph that has
	// already seen a compatible format instead of announcing it.
	MatchExisting bool `json:"match_existing" yaml:"match_existing"`
}

// EventsConfig configures tap event publishing
type EventsConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	SubjectPrefix string `json:"subject_prefix,omitempty" yaml:"subject_prefix,omitempty"`
	Workers       int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // json, text
}

// DemoConfig describes the taps the CLI requests on startup
type DemoConfig struct {
	// Sinks is the number of sink taps to request
	Sinks int `json:"sinks" yaml:"sinks"`

	// Sources are requested in order after the sinks
	Sources []DemoSource `json:"sources,omitempty" yaml:"sources,omitempty"`

	// Claims are formats an upstream listener claims when announced
	Claims []string `json:"claims,omitempty" yaml:"claims,omitempty"`

	// Formats are delivered on sink taps after all taps exist
	Formats []DemoFormat `json:"formats,omitempty" yaml:"formats,omitempty"`
}

// DemoSource is one requested source tap
type DemoSource struct {
	Caps       string `json:"caps,omitempty" yaml:"caps,omitempty"`             // declared format, empty for none
	Downstream string `json:"downstream,omitempty" yaml:"downstream,omitempty"` // peer allowed caps, empty for unconnected
}

// DemoFormat is a format arriving on a sink tap
type DemoFormat struct {
	Sink int    `json:"sink" yaml:"sink"`
	Caps string `json:"caps" yaml:"caps"`
}

// Duration is a time.Duration read from strings like "2s"
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or integer nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.WrapInvalid(err, "Duration", "UnmarshalJSON", "decode")
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.WrapInvalid(err, "Duration", "parse", fmt.Sprintf("duration %q", s))
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration that passes Validate
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Connector: ConnectorConfig{
			Name:            "connector0",
			ConverterPrefix: "agnosticbin",
		},
		Events: EventsConfig{
			SubjectPrefix: "mediaconnector.events",
			Workers:       2,
			QueueSize:     256,
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			Timeout:       Duration(5 * time.Second),
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "SafeConfig", "Update", "config validation")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// Validate checks if the config is valid, normalizing case-insensitive fields
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
			"Config", "Validate", "validation")
	}

	if c.Connector.Name == "" {
		return invalid("connector.name is required")
	}
	if !isValidNATSSubjectPart(c.Connector.Name) || strings.Contains(c.Connector.Name, ".") {
		return invalid("connector.name '%s' is not a valid NATS subject token", c.Connector.Name)
	}

	if c.Events.Enabled {
		if c.Events.SubjectPrefix == "" || !isValidNATSSubjectPart(c.Events.SubjectPrefix) {
			return invalid("events.subject_prefix '%s' is not valid for NATS subjects", c.Events.SubjectPrefix)
		}
		if len(c.NATS.URLs) == 0 {
			return invalid("nats.urls is required when events are enabled")
		}
		if c.NATS.Timeout <= 0 || c.NATS.ReconnectWait <= 0 {
			return invalid("nats.timeout and nats.reconnect_wait must be positive")
		}
	}
	if c.Events.Workers < 0 || c.Events.QueueSize < 0 {
		return invalid("events.workers and events.queue_size must not be negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return invalid("metrics.port %d out of range", c.Metrics.Port)
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("log.level '%s' must be debug, info, warn or error", c.Log.Level)
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return invalid("log.format '%s' must be json or text", c.Log.Format)
	}

	return c.Demo.validate(invalid)
}

func (d DemoConfig) validate(invalid func(string, ...any) error) error {
	if d.Sinks < 0 {
		return invalid("demo.sinks must not be negative")
	}
	for i, s := range d.Sources {
		for _, c := range []string{s.Caps, s.Downstream} {
			if _, err := caps.Parse(c); err != nil {
				return invalid("demo.sources[%d]: %v", i, err)
			}
		}
	}
	for i, c := range d.Claims {
		if _, err := caps.Parse(c); err != nil {
			return invalid("demo.claims[%d]: %v", i, err)
		}
	}
	for i, f := range d.Formats {
		if f.Sink < 0 || f.Sink >= d.Sinks {
			return invalid("demo.formats[%d]: sink %d does not exist", i, f.Sink)
		}
		if _, err := caps.Parse(f.Caps); err != nil {
			return invalid("demo.formats[%d]: %v", i, err)
		}
	}
	return nil
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	clone := c.Clone()
	for _, s := range []*string{&clone.NATS.Password, &clone.NATS.Token} {
		if *s != "" {
			*s = "***"
		}
	}
	data, _ := json.MarshalIndent(clone, "", "  ")
	return string(data)
}
