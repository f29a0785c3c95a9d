package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/mediaconnector/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "MEDIACONNECTOR_"

// Loader builds a Config from defaults, file layers and the environment.
// Later layers override earlier ones field by field.
type Loader struct {
	layers     []string
	validate   bool
	lookupEnv  func(string) (string, bool)
	skipEnvVar bool
}

// NewLoader creates a loader starting from Default()
func NewLoader() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// AddLayer appends a config file applied on top of the previous ones
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation makes Load reject invalid results
func (l *Loader) EnableValidation(enable bool) {
	l.validate = enable
}

// DisableEnv skips environment overrides
func (l *Loader) DisableEnv() {
	l.skipEnvVar = true
}

// LoadFile loads a single file over the defaults
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies every layer and the environment over Default()
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := decodeFile(path, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("layer %s", path))
		}
	}

	if !l.skipEnvVar {
		if err := l.applyEnv(cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "environment overrides")
		}
	}

	if l.validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}
	data, err := safeReadFile(path)
	if err != nil {
		return err
	}

	switch f {
	case formatYAML:
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// applyEnv applies MEDIACONNECTOR_* variables
func (l *Loader) applyEnv(cfg *Config) error {
	str := func(key string, dst *string) error {
		v, ok := l.lookupEnv(EnvPrefix + key)
		if !ok {
			return nil
		}
		if err := validateEnvVar(key, v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
	boolean := func(key string, dst *bool) error {
		var s string
		if err := str(key, &s); err != nil || s == "" {
			return err
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		var s string
		if err := str(key, &s); err != nil || s == "" {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	var urls string
	if err := str("NATS_URLS", &urls); err != nil {
		return err
	}
	if urls != "" {
		cfg.NATS.URLs = strings.Split(urls, ",")
	}

	var wait string
	if err := str("NATS_RECONNECT_WAIT", &wait); err != nil {
		return err
	}
	if wait != "" {
		d, err := time.ParseDuration(wait)
		if err != nil {
			return fmt.Errorf("%sNATS_RECONNECT_WAIT: %w", EnvPrefix, err)
		}
		cfg.NATS.ReconnectWait = Duration(d)
	}

	for _, apply := range []func() error{
		func() error { return str("CONNECTOR_NAME", &cfg.Connector.Name) },
		func() error { return boolean("MATCH_EXISTING", &cfg.Connector.MatchExisting) },
		func() error { return boolean("EVENTS_ENABLED", &cfg.Events.Enabled) },
		func() error { return str("EVENTS_SUBJECT_PREFIX", &cfg.Events.SubjectPrefix) },
		func() error { return str("NATS_USERNAME", &cfg.NATS.Username) },
		func() error { return str("NATS_PASSWORD", &cfg.NATS.Password) },
		func() error { return str("NATS_TOKEN", &cfg.NATS.Token) },
		func() error { return boolean("METRICS_ENABLED", &cfg.Metrics.Enabled) },
		func() error { return integer("METRICS_PORT", &cfg.Metrics.Port) },
		func() error { return str("LOG_LEVEL", &cfg.Log.Level) },
		func() error { return str("LOG_FORMAT", &cfg.Log.Format) },
	} {
		if err := apply(); err != nil {
			return err
		}
	}
	return nil
}

// SaveToFile writes cfg as JSON or YAML depending on the extension
func SaveToFile(cfg *Config, path string) error {
	f, err := formatOf(path)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "path check")
	}

	var data []byte
	switch f {
	case formatYAML:
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode")
	}

	if err := safeWriteFile(path, data); err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "write")
	}
	return nil
}
