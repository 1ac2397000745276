package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/logflow/tracesim/pkg/errors"
)

func newTestManager(env map[string]string) *Manager {
	m := NewManager()
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_ExplicitFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracesim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
measure:
  features: [activity, resource]
  ramp_io_perc: 0.1
store:
  backend: redis
  redis_ttl: 1h
`), 0644))

	m := newTestManager(nil)
	require.NoError(t, m.Load(path))
	cfg := m.Get()

	assert.Equal(t, []string{"activity", "resource"}, cfg.Measure.Features)
	assert.Equal(t, 0.1, cfg.Measure.RampIOPerc)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Store.RedisTTL)
	// untouched keys keep defaults
	assert.Equal(t, "caseid", cfg.Reader.CaseIDColumn)
	assert.Equal(t, int64(1), cfg.Measure.Seed)
	assert.Contains(t, m.GetPaths(), path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracesim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("measure:\n  seed: 5\n"), 0644))

	m := newTestManager(map[string]string{
		"TRACESIM_SEED":     "9",
		"TRACESIM_FEATURES": "task,role",
		"TRACESIM_WORKERS":  "3",
	})
	require.NoError(t, m.Load(path))
	cfg := m.Get()

	assert.Equal(t, int64(9), cfg.Measure.Seed)
	assert.Equal(t, []string{"task", "role"}, cfg.Measure.Features)
	assert.Equal(t, 3, cfg.Runs.Workers)
}

func TestLoad_Errors(t *testing.T) {
	m := newTestManager(nil)
	err := m.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, tserrors.IsCode(err, tserrors.CodeFileNotFound))

	m = newTestManager(map[string]string{"TRACESIM_SEED": "abc"})
	err = m.Load("")
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidConfig))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("measure: [\n"), 0644))
	err = newTestManager(nil).Load(path)
	assert.True(t, tserrors.IsCode(err, tserrors.CodeInvalidConfig))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		code   tserrors.Code
	}{
		{"no features", func(c *Config) { c.Measure.Features = nil }, tserrors.CodeInvalidFeatures},
		{"ramp too large", func(c *Config) { c.Measure.RampIOPerc = 0.5 }, tserrors.CodeInvalidRamp},
		{"engine", func(c *Config) { c.Reader.Engine = "spark" }, tserrors.CodeInvalidConfig},
		{"delimiter", func(c *Config) { c.Reader.Delimiter = ";;" }, tserrors.CodeInvalidConfig},
		{"runs", func(c *Config) { c.Runs.Count = 0 }, tserrors.CodeInvalidConfig},
		{"store", func(c *Config) { c.Store.Backend = "etcd" }, tserrors.CodeInvalidConfig},
		{"compression", func(c *Config) { c.Output.Compression = "brotli" }, tserrors.CodeInvalidConfig},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, tserrors.CodeInvalidConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, tserrors.IsCode(err, tc.code))
		})
	}
}
