package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sparcflow/sparcflow/internal/fsutil"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the base name searched for when no --config is given.
const DefaultFileName = "sparcflow"

// EnvPrefix prefixes environment overrides, e.g. SPARCFLOW_MODEL.
const EnvPrefix = "SPARCFLOW"

// Config represents the sparcflow.json configuration file
type Config struct {
	Version        string            `json:"version" yaml:"version" mapstructure:"version"`
	Binary         string            `json:"binary" yaml:"binary" mapstructure:"binary"`
	Model          string            `json:"model" yaml:"model" mapstructure:"model"`
	Host           string            `json:"host" yaml:"host" mapstructure:"host"`
	TimeoutMinutes int               `json:"timeout_minutes" yaml:"timeout_minutes" mapstructure:"timeout_minutes"`
	Verbose        bool              `json:"verbose" yaml:"verbose" mapstructure:"verbose"`
	LogLevel       string            `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	ResultsDir     string            `json:"results_dir" yaml:"results_dir" mapstructure:"results_dir"`
	MetricsAddr    string            `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" mapstructure:"metrics_addr"`
	Concurrency    int               `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version:        "1.0",
		Binary:         "ollama",
		Model:          "gemma3n:e2b",
		Host:           "localhost:11434",
		TimeoutMinutes: 59,
		Verbose:        false,
		LogLevel:       "info",
		ResultsDir:     ".sparcflow/results",
		Concurrency:    4,
		Env:            map[string]string{},
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if strings.TrimSpace(c.Binary) == "" {
		return fmt.Errorf("configuration error: empty 'binary' field\n\nHint: Point sparcflow at the model runner:\n  \"binary\": \"ollama\"")
	}

	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("configuration error: empty 'model' field\n\nHint: Name a model that is pulled locally:\n  \"model\": \"gemma3n:e2b\"")
	}

	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("configuration error: empty 'host' field\n\nHint: Set the Ollama endpoint:\n  \"host\": \"localhost:11434\"")
	}

	if c.TimeoutMinutes <= 0 {
		return fmt.Errorf("configuration error: invalid 'timeout_minutes' value: %d\n\nHint: The deadline is measured in whole minutes and must be positive:\n  \"timeout_minutes\": 59", c.TimeoutMinutes)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("configuration error: invalid 'concurrency' value: %d\n\nHint: Run at least one task at a time:\n  \"concurrency\": 4", c.Concurrency)
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error", "err":
	default:
		return fmt.Errorf("configuration error: unknown 'log_level' value: %q\n\nHint: Use one of debug, info, warn, error:\n  \"log_level\": \"info\"", c.LogLevel)
	}

	for k := range c.Env {
		if k == "" || strings.ContainsAny(k, "= ") {
			return fmt.Errorf("configuration error: invalid environment variable name %q in 'env'\n\nHint: Names may not be empty or contain '=' or spaces:\n  \"env\": {\"OLLAMA_NUM_CTX\": \"8192\"}", k)
		}
	}

	return nil
}

// Load builds the effective configuration from defaults, the config file,
// SPARCFLOW_* environment variables and any flags already bound to v, in
// increasing order of precedence.
//
// When path is empty, sparcflow.{json,yaml,yml} is searched for in the
// working directory and $HOME/.sparcflow; a missing file is not an error.
// An explicit path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, GenerateDefault())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sparcflow")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.Env = upperKeys(cfg.Env)

	return &cfg, nil
}

// ConfigFileUsed reports the file Load read, or "" when none was found.
func ConfigFileUsed(v *viper.Viper) string {
	return v.ConfigFileUsed()
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("binary", d.Binary)
	v.SetDefault("model", d.Model)
	v.SetDefault("host", d.Host)
	v.SetDefault("timeout_minutes", d.TimeoutMinutes)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("results_dir", d.ResultsDir)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("env", d.Env)
}

// viper folds map keys to lower case; environment names are restored to
// their conventional upper case.
func upperKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// LoadFromFile loads a configuration from a JSON or YAML file. Fields absent
// from the file keep their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := GenerateDefault()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// SaveToFile writes the configuration atomically with 0600 permissions,
// as YAML when path ends in .yaml or .yml and as JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
