// Package config handles configuration loading for tradegate.
// It supports YAML config files, a .env file and environment variable
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment overrides.
const EnvPrefix = "TRADEGATE"

// Config represents the complete application configuration.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"         yaml:"llm"         json:"llm"`
	MarketData MarketDataConfig `mapstructure:"market_data" yaml:"market_data" json:"market_data"`
	Executor   ExecutorConfig   `mapstructure:"executor"    yaml:"executor"    json:"executor"`
	Network    NetworkConfig    `mapstructure:"network"     yaml:"network"     json:"network"`
	Storage    StorageConfig    `mapstructure:"storage"     yaml:"storage"     json:"storage"`
	API        APIConfig        `mapstructure:"api"         yaml:"api"         json:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"     yaml:"logging"     json:"logging"`
}

// LLMConfig holds the chat-completion endpoint settings.
type LLMConfig struct {
	Driver       string        `mapstructure:"driver"        yaml:"driver"        json:"driver"` // "http" or "eino"
	APIKey       string        `mapstructure:"api_key"       yaml:"api_key"       json:"-"`
	BaseURL      string        `mapstructure:"base_url"      yaml:"base_url"      json:"base_url"`
	Model        string        `mapstructure:"model"         yaml:"model"         json:"model"`
	Temperature  float64       `mapstructure:"temperature"   yaml:"temperature"   json:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"    yaml:"max_tokens"    json:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"       yaml:"timeout"       json:"timeout"`
	TestTimeout  time.Duration `mapstructure:"test_timeout"  yaml:"test_timeout"  json:"test_timeout"`
	QuickTimeout time.Duration `mapstructure:"quick_timeout" yaml:"quick_timeout" json:"quick_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"   yaml:"max_retries"   json:"max_retries"`
	RetryWait    time.Duration `mapstructure:"retry_wait"    yaml:"retry_wait"    json:"retry_wait"`
	RateLimit    float64       `mapstructure:"rate_limit"    yaml:"rate_limit"    json:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst    int           `mapstructure:"rate_burst"    yaml:"rate_burst"    json:"rate_burst"`
}

// MarketDataConfig holds market-data provider credentials forwarded to
// the analysis framework.
type MarketDataConfig struct {
	FinnhubKey string `mapstructure:"finnhub_key" yaml:"finnhub_key" json:"-"`
	FinnhubURL string `mapstructure:"finnhub_url" yaml:"finnhub_url" json:"finnhub_url"`
}

// ExecutorConfig selects and tunes the execution strategy.
type ExecutorConfig struct {
	Mode            string        `mapstructure:"mode"             yaml:"mode"             json:"mode"` // "real" or "simulated"
	Interpreter     string        `mapstructure:"interpreter"      yaml:"interpreter"      json:"interpreter"`
	WorkDir         string        `mapstructure:"work_dir"         yaml:"work_dir"         json:"work_dir"`
	ScriptDir       string        `mapstructure:"script_dir"       yaml:"script_dir"       json:"script_dir"`
	AnalyzeTemplate string        `mapstructure:"analyze_template" yaml:"analyze_template" json:"analyze_template"`
	LaunchTemplate  string        `mapstructure:"launch_template"  yaml:"launch_template"  json:"launch_template"`
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout" yaml:"analysis_timeout" json:"analysis_timeout"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout"   yaml:"launch_timeout"   json:"launch_timeout"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"   yaml:"max_concurrent"   json:"max_concurrent"`
	QueueTimeout    time.Duration `mapstructure:"queue_timeout"    yaml:"queue_timeout"    json:"queue_timeout"`
}

// NetworkConfig configures the reachability report.
type NetworkConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout" json:"probe_timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"     yaml:"cache_ttl"     json:"cache_ttl"`
	Targets      []ProbeTarget `mapstructure:"targets"       yaml:"targets"       json:"targets"`
}

// ProbeTarget is one host checked by the reachability report. When no
// targets are configured the LLM endpoint and the market-data host are used.
type ProbeTarget struct {
	Name       string `mapstructure:"name"        yaml:"name"        json:"name"`
	URL        string `mapstructure:"url"         yaml:"url"         json:"url"`
	Kind       string `mapstructure:"kind"        yaml:"kind"        json:"kind"` // "http", "html", "feed"
	OKStatuses []int  `mapstructure:"ok_statuses" yaml:"ok_statuses" json:"ok_statuses,omitempty"`
}

// StorageConfig selects the status-check store.
type StorageConfig struct {
	Driver    string `mapstructure:"driver"     yaml:"driver"     json:"driver"` // "badger", "postgres", "sqlite"
	Path      string `mapstructure:"path"       yaml:"path"       json:"path"`
	InMemory  bool   `mapstructure:"in_memory"  yaml:"in_memory"  json:"in_memory"`
	DSN       string `mapstructure:"dsn"        yaml:"dsn"        json:"-"`
	ListLimit int    `mapstructure:"list_limit" yaml:"list_limit" json:"list_limit"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host           string        `mapstructure:"host"            yaml:"host"            json:"host"`
	Port           int           `mapstructure:"port"            yaml:"port"            json:"port"`
	CORSOrigins    []string      `mapstructure:"cors_origins"    yaml:"cors_origins"    json:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "text" or "json"
	File   string `mapstructure:"file"   yaml:"file"   json:"file"`
}

// Addr returns the listen address for the API server.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.tradegate/config.yaml (home directory)
//  3. /etc/tradegate/config.yaml (system)
//
// A .env file in the working directory is loaded first and never
// overrides variables already set. Environment variables override config
// file values. Format: TRADEGATE_<SECTION>_<KEY>, e.g. TRADEGATE_LLM_API_KEY.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".tradegate"))
	v.AddConfigPath("/etc/tradegate")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// Default returns the built-in defaults without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.driver", "http")
	v.SetDefault("llm.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.test_timeout", "10s")
	v.SetDefault("llm.quick_timeout", "5s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_wait", "1s")
	v.SetDefault("llm.rate_limit", 2.0)
	v.SetDefault("llm.rate_burst", 1)
	v.SetDefault("llm.api_key", "")

	v.SetDefault("market_data.finnhub_url", "https://finnhub.io")
	v.SetDefault("market_data.finnhub_key", "")

	v.SetDefault("executor.mode", "simulated")
	v.SetDefault("executor.interpreter", "python3")
	v.SetDefault("executor.work_dir", "./TradingAgents")
	v.SetDefault("executor.script_dir", os.TempDir())
	v.SetDefault("executor.analyze_template", "")
	v.SetDefault("executor.launch_template", "")
	v.SetDefault("executor.analysis_timeout", "5m")
	v.SetDefault("executor.launch_timeout", "10s")
	v.SetDefault("executor.max_concurrent", 4)
	v.SetDefault("executor.queue_timeout", "30s")

	v.SetDefault("network.probe_timeout", "5s")
	v.SetDefault("network.cache_ttl", "10s")

	v.SetDefault("storage.driver", "badger")
	v.SetDefault("storage.path", "./data/status")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.list_limit", 1000)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8001)
	v.SetDefault("api.cors_origins", []string{"*"})
	v.SetDefault("api.request_timeout", "6m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

// overrideFromEnv reads provider-native secret names when the prefixed
// variables are not set.
func overrideFromEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
	}
	if cfg.MarketData.FinnhubKey == "" {
		if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
			cfg.MarketData.FinnhubKey = key
		}
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Driver {
	case "http", "eino":
	default:
		return fmt.Errorf("config: unknown llm.driver %q", c.LLM.Driver)
	}
	switch c.Executor.Mode {
	case "real", "simulated":
	default:
		return fmt.Errorf("config: unknown executor.mode %q", c.Executor.Mode)
	}
	switch c.Storage.Driver {
	case "badger", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver != "badger" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required for driver %q", c.Storage.Driver)
	}

	durations := map[string]time.Duration{
		"llm.timeout":               c.LLM.Timeout,
		"llm.test_timeout":          c.LLM.TestTimeout,
		"llm.quick_timeout":         c.LLM.QuickTimeout,
		"executor.analysis_timeout": c.Executor.AnalysisTimeout,
		"executor.launch_timeout":   c.Executor.LaunchTimeout,
		"network.probe_timeout":     c.Network.ProbeTimeout,
		"api.request_timeout":       c.API.RequestTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %v", name, d)
		}
	}
	if c.Executor.MaxConcurrent < 1 {
		return fmt.Errorf("config: executor.max_concurrent must be at least 1")
	}
	for _, t := range c.Network.Targets {
		if t.Name == "" || t.URL == "" {
			return fmt.Errorf("config: network target needs name and url")
		}
		switch t.Kind {
		case "", "http", "html", "feed":
		default:
			return fmt.Errorf("config: network target %s has unknown kind %q", t.Name, t.Kind)
		}
	}
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
