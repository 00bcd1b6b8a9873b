// Package config provides unified configuration loading for lifesim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults for a generator run.
const (
	DefaultSubjects   = 500
	DefaultDays       = 120
	DefaultOutputPath = "data/raw/lifestyle/simulated/lifestyle_advanced.csv"
	DefaultFormat     = "" // infer from the output extension
	DefaultLogLevel   = "info"
)

// LifesimConfig contains all lifesim configuration settings.
type LifesimConfig struct {
	// Simulation controls population size, horizon, and randomness.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Output controls where and how the trajectory table is written.
	Output OutputConfig `json:"output" yaml:"output"`

	// Sink optionally loads the table into a SQL database.
	Sink SinkConfig `json:"sink" yaml:"sink"`

	// Publish optionally uploads the output file and manifest to a blob store.
	Publish PublishConfig `json:"publish" yaml:"publish"`

	// Metrics optionally writes run metrics in Prometheus text format.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures the population run.
type SimulationConfig struct {
	Subjects int `json:"subjects" yaml:"subjects"`
	Days     int `json:"days" yaml:"days"`

	// Seed makes a run reproducible. When nil a random seed is chosen and
	// recorded in the manifest.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Workers bounds concurrent subjects; 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

// OutputConfig configures the trajectory file.
type OutputConfig struct {
	Path string `json:"path" yaml:"path"`

	// Format is "csv" or "parquet". Empty infers from the path extension.
	Format string `json:"format" yaml:"format"`

	// CreateDirs creates a missing output directory instead of failing.
	CreateDirs bool `json:"create_dirs" yaml:"create_dirs"`

	// Manifest writes <path>.manifest.json next to the output.
	Manifest bool `json:"manifest" yaml:"manifest"`
}

// SinkConfig configures the optional SQL sink.
type SinkConfig struct {
	// Driver is "sqlite", "postgres", or "" for disabled.
	Driver string `json:"driver" yaml:"driver"`

	// DSN is a file path for sqlite or a connection string for postgres.
	// Supports ${VAR} syntax for env vars.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// Enabled reports whether a sink is configured.
func (c SinkConfig) Enabled() bool { return c.Driver != "" }

// RedactedDSN returns the DSN with any password masked.
func (c SinkConfig) RedactedDSN() string {
	return redactDSN(c.DSN)
}

// String implements fmt.Stringer to prevent accidental credential logging.
func (c SinkConfig) String() string {
	return fmt.Sprintf("SinkConfig{Driver:%s, DSN:%s}", c.Driver, c.RedactedDSN())
}

// PublishConfig configures the optional blob upload.
type PublishConfig struct {
	// Driver is "fs", "s3", or "" for disabled.
	Driver string `json:"driver" yaml:"driver"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	FS FSConfig `json:"fs" yaml:"fs"`
	S3 S3Config `json:"s3" yaml:"s3"`
}

// Enabled reports whether publishing is configured.
func (c PublishConfig) Enabled() bool { return c.Driver != "" }

// FSConfig configures the filesystem blob store.
type FSConfig struct {
	Root string `json:"root" yaml:"root"`
}

// S3Config configures the S3 blob store. Empty credentials fall back to the
// default AWS credential chain.
type S3Config struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
}

// RedactedSecret returns the secret key with most characters masked.
// Shows first 4 and last 4 characters, e.g., "wJal...EKEY".
// Returns "" for empty keys and "(set)" for keys shorter than 12 chars.
func (c S3Config) RedactedSecret() string {
	if c.SecretAccessKey == "" {
		return ""
	}
	if len(c.SecretAccessKey) < 12 {
		return "(set)"
	}
	return c.SecretAccessKey[:4] + "..." + c.SecretAccessKey[len(c.SecretAccessKey)-4:]
}

// String implements fmt.Stringer to prevent accidental secret logging.
func (c S3Config) String() string {
	return fmt.Sprintf("S3Config{Bucket:%s, Region:%s, Endpoint:%s, Secret:%s}",
		c.Bucket, c.Region, c.Endpoint, c.RedactedSecret())
}

// MetricsConfig configures run metrics.
type MetricsConfig struct {
	// Textfile is a path for node-exporter textfile output; empty disables.
	Textfile string `json:"textfile,omitempty" yaml:"textfile,omitempty"`
}

// LoggingConfig configures lifesim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug", or "trace". "debug" enables event logging next to the output;
	// "trace" additionally records every simulated subject.
	Level string `json:"level" yaml:"level"`
}

// Default returns a LifesimConfig with sensible defaults.
func Default() *LifesimConfig {
	return &LifesimConfig{
		Simulation: SimulationConfig{
			Subjects: DefaultSubjects,
			Days:     DefaultDays,
		},
		Output: OutputConfig{
			Path:       DefaultOutputPath,
			Format:     DefaultFormat,
			CreateDirs: false,
			Manifest:   true,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// DefaultPath returns ~/.lifesim/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".lifesim", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.lifesim/config.yaml -> environment variables
func Load() (*LifesimConfig, error) {
	config := Default()

	// Try to load from default config file
	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFrom loads configuration from an explicit file, then applies
// environment variable overrides. An empty path behaves like Load.
func LoadFrom(path string) (*LifesimConfig, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*LifesimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables in credentials
	config.Sink.DSN = expandEnvVars(config.Sink.DSN)
	config.Publish.S3.AccessKeyID = expandEnvVars(config.Publish.S3.AccessKeyID)
	config.Publish.S3.SecretAccessKey = expandEnvVars(config.Publish.S3.SecretAccessKey)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *LifesimConfig) Validate() error {
	if c.Simulation.Subjects < 1 {
		return fmt.Errorf("subjects must be positive, got %d", c.Simulation.Subjects)
	}
	if c.Simulation.Days < 1 {
		return fmt.Errorf("days must be positive, got %d", c.Simulation.Days)
	}
	if c.Simulation.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Simulation.Workers)
	}

	if c.Output.Path == "" {
		return fmt.Errorf("output path is required")
	}
	validFormats := map[string]bool{"": true, "csv": true, "parquet": true}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("invalid output format: %s (valid: csv, parquet, or empty to infer)", c.Output.Format)
	}

	validSinks := map[string]bool{"": true, "sqlite": true, "postgres": true}
	if !validSinks[c.Sink.Driver] {
		return fmt.Errorf("invalid sink driver: %s (valid: sqlite, postgres, or empty)", c.Sink.Driver)
	}
	if c.Sink.Enabled() && c.Sink.DSN == "" {
		return fmt.Errorf("sink driver %s requires a dsn", c.Sink.Driver)
	}

	switch c.Publish.Driver {
	case "":
	case "fs":
		if c.Publish.FS.Root == "" {
			return fmt.Errorf("publish driver fs requires fs.root")
		}
	case "s3":
		if c.Publish.S3.Bucket == "" {
			return fmt.Errorf("publish driver s3 requires s3.bucket")
		}
	default:
		return fmt.Errorf("invalid publish driver: %s (valid: fs, s3, or empty)", c.Publish.Driver)
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *LifesimConfig) {
	if v := os.Getenv("LIFESIM_SUBJECTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Subjects = n
		}
	}
	if v := os.Getenv("LIFESIM_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Days = n
		}
	}
	if v := os.Getenv("LIFESIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = &n
		}
	}
	if v := os.Getenv("LIFESIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Workers = n
		}
	}

	// A new output path re-infers the format unless one is given with it.
	if v := os.Getenv("LIFESIM_OUTPUT"); v != "" {
		config.Output.Path = v
		config.Output.Format = ""
	}
	if v := os.Getenv("LIFESIM_FORMAT"); v != "" {
		config.Output.Format = v
	}
	if v := os.Getenv("LIFESIM_CREATE_DIRS"); v != "" {
		config.Output.CreateDirs = v == "true" || v == "1"
	}

	if v := os.Getenv("LIFESIM_SINK_DRIVER"); v != "" {
		config.Sink.Driver = v
	}
	if v := os.Getenv("LIFESIM_SINK_DSN"); v != "" {
		config.Sink.DSN = v
	}

	if v := os.Getenv("LIFESIM_PUBLISH_DRIVER"); v != "" {
		config.Publish.Driver = v
	}
	if v := os.Getenv("LIFESIM_PUBLISH_PREFIX"); v != "" {
		config.Publish.Prefix = v
	}
	if v := os.Getenv("LIFESIM_S3_BUCKET"); v != "" {
		config.Publish.S3.Bucket = v
	}
	if v := os.Getenv("LIFESIM_S3_ENDPOINT"); v != "" {
		config.Publish.S3.Endpoint = v
	}
	// Standard AWS variables fill only what the file left empty.
	if v := os.Getenv("AWS_REGION"); v != "" && config.Publish.S3.Region == "" {
		config.Publish.S3.Region = v
	}

	if v := os.Getenv("LIFESIM_METRICS_TEXTFILE"); v != "" {
		config.Metrics.Textfile = v
	}

	if v := os.Getenv("LIFESIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

// redactDSN masks the password in URL-style ("postgres://u:p@h/db") and
// keyword-style ("password=p") connection strings.
func redactDSN(dsn string) string {
	if at := strings.Index(dsn, "@"); at > 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < at {
			userinfo := dsn[scheme+3 : at]
			if colon := strings.Index(userinfo, ":"); colon >= 0 {
				return dsn[:scheme+3] + userinfo[:colon] + ":***" + dsn[at:]
			}
		}
	}
	fields := strings.Fields(dsn)
	changed := false
	for i, f := range fields {
		if strings.HasPrefix(strings.ToLower(f), "password=") {
			fields[i] = "password=***"
			changed = true
		}
	}
	if changed {
		return strings.Join(fields, " ")
	}
	return dsn
}
