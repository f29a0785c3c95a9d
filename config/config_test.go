package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mediaconnector/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "connector0", cfg.Connector.Name)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait.Std())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing name", func(c *Config) { c.Connector.Name = "" }, false},
		{"dotted name", func(c *Config) { c.Connector.Name = "a.b" }, false},
		{"name with space", func(c *Config) { c.Connector.Name = "a b" }, false},
		{"events without nats", func(c *Config) {
			c.Events.Enabled = true
			c.NATS.URLs = nil
		}, false},
		{"events bad prefix", func(c *Config) {
			c.Events.Enabled = true
			c.Events.SubjectPrefix = "bad prefix"
		}, false},
		{"events zero nats timeout", func(c *Config) {
			c.Events.Enabled = true
			c.NATS.Timeout = 0
		}, false},
		{"negative workers", func(c *Config) { c.Events.Workers = -1 }, false},
		{"metrics port out of range", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 70000
		}, false},
		{"upper case level", func(c *Config) { c.Log.Level = "DEBUG" }, true},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }, false},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"demo format on missing sink", func(c *Config) {
			c.Demo.Sinks = 1
			c.Demo.Formats = []DemoFormat{{Sink: 1, Caps: "video/x-raw"}}
		}, false},
		{"demo bad caps", func(c *Config) {
			c.Demo.Sources = []DemoSource{{Caps: ",format=I420"}}
		}, false},
		{"demo ok", func(c *Config) {
			c.Demo.Sinks = 1
			c.Demo.Sources = []DemoSource{{Caps: "video/x-h264", Downstream: "ANY"}}
			c.Demo.Claims = []string{"video/x-h264"}
			c.Demo.Formats = []DemoFormat{{Sink: 0, Caps: "video/x-h264"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestValidate_NormalizesLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "WARN"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_YAMLAndJSONLayers(t *testing.T) {
	base := writeFile(t, "base.yaml", `
connector:
  name: studio
  match_existing: true
nats:
  reconnect_wait: 500ms
demo:
  sinks: 1
  formats:
    - sink: 0
      caps: video/x-raw,format=I420
`)
	override := writeFile(t, "override.json", `{"log": {"level": "debug"}}`)

	l := NewLoader()
	l.DisableEnv()
	l.AddLayer(base)
	l.AddLayer(override)
	l.EnableValidation(true)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "studio", cfg.Connector.Name)
	assert.True(t, cfg.Connector.MatchExisting)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "defaults survive layering")
	require.Len(t, cfg.Demo.Formats, 1)
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := NewLoader()
	l.lookupEnv = envMap(map[string]string{
		"MEDIACONNECTOR_CONNECTOR_NAME":      "edge",
		"MEDIACONNECTOR_MATCH_EXISTING":      "true",
		"MEDIACONNECTOR_NATS_URLS":           "nats://a:4222,nats://b:4222",
		"MEDIACONNECTOR_NATS_RECONNECT_WAIT": "3s",
		"MEDIACONNECTOR_METRICS_PORT":        "9191",
		"MEDIACONNECTOR_LOG_FORMAT":          "text",
	})

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.Connector.Name)
	assert.True(t, cfg.Connector.MatchExisting)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 3*time.Second, cfg.NATS.ReconnectWait.Std())
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoader_BadEnv(t *testing.T) {
	l := NewLoader()
	l.lookupEnv = envMap(map[string]string{"MEDIACONNECTOR_METRICS_PORT": "ninety"})

	_, err := l.Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_RejectsPaths(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"extension", "config.toml"},
		{"traversal", "../../etc/passwd.json"},
		{"missing", filepath.Join(t.TempDir(), "absent.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestLoader_ValidationFailure(t *testing.T) {
	path := writeFile(t, "bad.json", `{"connector": {"name": ""}}`)
	l := NewLoader()
	l.DisableEnv()
	l.EnableValidation(true)

	_, err := l.LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			cfg := Default()
			cfg.Connector.Name = "saved"
			cfg.NATS.Timeout = Duration(1500 * time.Millisecond)
			path := filepath.Join(t.TempDir(), "out"+ext)
			require.NoError(t, SaveToFile(cfg, path))

			l := NewLoader()
			l.DisableEnv()
			got, err := l.LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "saved", got.Connector.Name)
			assert.Equal(t, 1500*time.Millisecond, got.NATS.Timeout.Std())
		})
	}
}

func TestDuration_JSONNumber(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte("1000000")))
	assert.Equal(t, time.Millisecond, d.Std())
	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	got := sc.Get()
	got.Connector.Name = "mutated"
	assert.Equal(t, "connector0", sc.Get().Connector.Name, "Get returns a copy")

	bad := Default()
	bad.Connector.Name = ""
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))

	good := Default()
	good.Connector.Name = "next"
	require.NoError(t, sc.Update(good))
	assert.Equal(t, "next", sc.Get().Connector.Name)
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.NATS.Password = "hunter2"
	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "***")
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}
