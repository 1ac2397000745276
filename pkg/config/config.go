// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	tserrors "github.com/logflow/tracesim/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRACESIM_"

// Config holds all tracesim configuration.
type Config struct {
	Version int `yaml:"version"`

	Measure   MeasureConfig   `yaml:"measure"`
	Reader    ReaderConfig    `yaml:"reader"`
	Runs      RunsConfig      `yaml:"runs"`
	Store     StoreConfig     `yaml:"store"`
	S3        S3Config        `yaml:"s3"`
	Output    OutputConfig    `yaml:"output"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// MeasureConfig controls a single comparison.
type MeasureConfig struct {
	Features           []string `yaml:"features"`     // one or two attribute names
	RampIOPerc         float64  `yaml:"ramp_io_perc"` // [0, 0.5)
	Seed               int64    `yaml:"seed"`
	Alphabet           string   `yaml:"alphabet"` // empty = printable ASCII
	DeterministicAlias bool     `yaml:"deterministic_alias"`
}

// ReaderConfig describes the columns of input logs.
type ReaderConfig struct {
	CaseIDColumn    string `yaml:"case_id_column"`
	ActivityColumn  string `yaml:"activity_column"`
	ResourceColumn  string `yaml:"resource_column"`
	StartColumn     string `yaml:"start_column"`
	EndColumn       string `yaml:"end_column"`
	TBTWColumn      string `yaml:"tbtw_column"` // empty = derive from timestamps
	TimestampFormat string `yaml:"timestamp_format"`
	Delimiter       string `yaml:"delimiter"`
	Engine          string `yaml:"engine"` // native | duckdb
}

// RunsConfig controls batch execution.
type RunsConfig struct {
	Count   int `yaml:"count"`
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// StoreConfig selects where run results are kept.
type StoreConfig struct {
	Backend string `yaml:"backend"` // none | file | redis
	Dir     string `yaml:"dir"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// S3Config for s3:// sources and uploads.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// OutputConfig controls score exports.
type OutputConfig struct {
	Compression string `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
}

// TelemetryConfig for optional OTLP tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	ServiceName   string  `yaml:"service_name"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
	Insecure      bool    `yaml:"insecure"`
}

// LogConfig for zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version: 1,
		Measure: MeasureConfig{
			Features:   []string{"activity"},
			RampIOPerc: 0.2,
			Seed:       1,
		},
		Reader: ReaderConfig{
			CaseIDColumn:   "caseid",
			ActivityColumn: "task",
			ResourceColumn: "role",
			StartColumn:    "start_timestamp",
			EndColumn:      "end_timestamp",
			Delimiter:      ",",
			Engine:         "native",
		},
		Runs: RunsConfig{
			Count:   1,
			Workers: 0,
		},
		Store: StoreConfig{
			Backend:     "file",
			Dir:         filepath.Join(homeDir, ".tracesim", "runs"),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "tracesim:",
			RedisTTL:    7 * 24 * time.Hour,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Output: OutputConfig{
			Compression: "snappy",
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			ServiceName:   "tracesim",
			SamplingRatio: 1.0,
			Insecure:      true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	m := c.Measure
	if len(m.Features) == 0 || len(m.Features) > 2 {
		return tserrors.New(tserrors.CodeInvalidFeatures, "measure.features must name one or two attributes").
			WithContext("features", m.Features)
	}
	if m.RampIOPerc < 0 || m.RampIOPerc >= 0.5 {
		return tserrors.New(tserrors.CodeInvalidRamp, "measure.ramp_io_perc must lie in [0, 0.5)").
			WithContext("ramp_io_perc", m.RampIOPerc)
	}
	switch c.Reader.Engine {
	case "native", "duckdb":
	default:
		return invalid("reader.engine", c.Reader.Engine)
	}
	if len(c.Reader.Delimiter) != 1 {
		return invalid("reader.delimiter", c.Reader.Delimiter)
	}
	if c.Runs.Count < 1 {
		return invalid("runs.count", c.Runs.Count)
	}
	if c.Runs.Workers < 0 {
		return invalid("runs.workers", c.Runs.Workers)
	}
	switch c.Store.Backend {
	case "none", "file", "redis":
	default:
		return invalid("store.backend", c.Store.Backend)
	}
	switch c.Output.Compression {
	case "snappy", "zstd", "gzip", "lz4", "none":
	default:
		return invalid("output.compression", c.Output.Compression)
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return invalid("telemetry.sampling_ratio", c.Telemetry.SamplingRatio)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("log.format", c.Log.Format)
	}
	return nil
}

func invalid(key string, value interface{}) error {
	return tserrors.New(tserrors.CodeInvalidConfig, "invalid configuration value").
		WithContext("key", key).
		WithContext("value", value)
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
	getenv func(string) string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		getenv: os.Getenv,
	}
}

// Load loads configuration from all sources in priority order. An explicit
// path, when given, must exist.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			if os.IsNotExist(err) {
				return tserrors.FileNotFound(explicit)
			}
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	return m.loadEnv()
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/tracesim/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".tracesim", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".tracesim.yaml"))
	}

	return paths
}

// loadFile decodes a config file over the current values; keys absent from
// the file keep their value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, m.config); err != nil {
		return tserrors.Wrap(err, tserrors.CodeInvalidConfig, "malformed configuration file").
			WithContext("path", path)
	}
	return nil
}

// loadEnv applies TRACESIM_* overrides.
func (m *Manager) loadEnv() error {
	c := m.config
	str := func(name string, dst *string) {
		if v := m.getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	var err error
	num := func(name string, parse func(string) error) {
		if v := m.getenv(EnvPrefix + name); v != "" && err == nil {
			if perr := parse(v); perr != nil {
				err = tserrors.Wrap(perr, tserrors.CodeInvalidConfig, "invalid environment override").
					WithContext("variable", EnvPrefix+name)
			}
		}
	}

	if v := m.getenv(EnvPrefix + "FEATURES"); v != "" {
		c.Measure.Features = strings.Split(v, ",")
	}
	num("RAMP_IO_PERC", func(v string) (e error) { c.Measure.RampIOPerc, e = strconv.ParseFloat(v, 64); return })
	num("SEED", func(v string) (e error) { c.Measure.Seed, e = strconv.ParseInt(v, 10, 64); return })
	num("WORKERS", func(v string) (e error) { c.Runs.Workers, e = strconv.Atoi(v); return })
	num("RUNS", func(v string) (e error) { c.Runs.Count, e = strconv.Atoi(v); return })
	num("TELEMETRY_ENABLED", func(v string) (e error) { c.Telemetry.Enabled, e = strconv.ParseBool(v); return })
	str("ALPHABET", &c.Measure.Alphabet)
	str("ENGINE", &c.Reader.Engine)
	str("STORE", &c.Store.Backend)
	str("STORE_DIR", &c.Store.Dir)
	str("REDIS_ADDR", &c.Store.RedisAddr)
	str("REDIS_PASSWORD", &c.Store.RedisPassword)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_REGION", &c.S3.Region)
	str("OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return err
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

// Marshal renders the effective configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
